package config

import (
	"os"
	"strings"
)

// QRImageUploadEnabled controls whether asset tag generation also renders a
// QR PNG and uploads it to the GCS bucket in QR_IMAGE_BUCKET.
//
// Set via env:
// - QR_IMAGE_UPLOAD=true
// - QR_IMAGE_BUCKET=<bucket name>
func QRImageUploadEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QR_IMAGE_UPLOAD")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DebugWorkflow enables verbose field logging for a workflow.
//
// Set via env:
// - DEBUG_WORKFLOWS="TRANSFER_NOTE,REQUISITION,INSPECTION,ASSET_TAG"
//
// Keys are case-insensitive.
func DebugWorkflow(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	raw := os.Getenv("DEBUG_WORKFLOWS")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == name {
			return true
		}
	}
	return false
}
