package models_test

import (
	"testing"

	"bitbucket.org/nedworks/inventry_backend/models"
)

func TestFormatTagNumber(t *testing.T) {
	cases := []struct {
		deptCode    string
		itemCode    string
		batchNumber string
		seq         int
		want        string
	}{
		{"CS", "CHAIR1", "BT-0001", 1, "CS-CHAIR1-0001-0001"},
		{"MECHANICAL", "MICROSCOPE", "BT-0042", 7, "MECH-MICROS-0042-0007"},
		// Batch number without a dash falls back to its trailing digits.
		{"EE", "PC", "12345", 12, "EE-PC-2345-0012"},
	}
	for _, c := range cases {
		got := models.FormatTagNumber(c.deptCode, c.itemCode, c.batchNumber, c.seq)
		if got != c.want {
			t.Errorf("FormatTagNumber(%q, %q, %q, %d) = %q; want %q",
				c.deptCode, c.itemCode, c.batchNumber, c.seq, got, c.want)
		}
	}
}

func TestAssetTagStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to models.AssetTagStatus }{
		{models.AssetTagStatusInStock, models.AssetTagStatusInUse},
		{models.AssetTagStatusInUse, models.AssetTagStatusUnderRepair},
		{models.AssetTagStatusUnderRepair, models.AssetTagStatusInUse},
		{models.AssetTagStatusInUse, models.AssetTagStatusWrittenOff},
		{models.AssetTagStatusUnderRepair, models.AssetTagStatusLost},
	}
	for _, c := range allowed {
		if !c.from.CanTransitionTo(c.to) {
			t.Errorf("expected %s -> %s to be allowed", c.from, c.to)
		}
	}

	// Written-off and lost are terminal.
	terminal := []models.AssetTagStatus{models.AssetTagStatusWrittenOff, models.AssetTagStatusLost}
	targets := []models.AssetTagStatus{
		models.AssetTagStatusInStock, models.AssetTagStatusInUse,
		models.AssetTagStatusUnderRepair, models.AssetTagStatusWrittenOff, models.AssetTagStatusLost,
	}
	for _, from := range terminal {
		for _, to := range targets {
			if from.CanTransitionTo(to) {
				t.Errorf("expected terminal %s -> %s to be rejected", from, to)
			}
		}
	}

	if models.AssetTagStatusInStock.CanTransitionTo(models.AssetTagStatusInStock) {
		t.Errorf("self transition must be rejected")
	}
}

func TestStockEntryTypeIsValid(t *testing.T) {
	valid := []models.StockEntryType{
		models.StockEntryTypeReceipt, models.StockEntryTypeIssue,
		models.StockEntryTypeAdjustment, models.StockEntryTypeReturn,
		models.StockEntryTypeTransferIn, models.StockEntryTypeTransferOut,
		models.StockEntryTypeQrGeneration,
	}
	for _, v := range valid {
		if !v.IsValid() {
			t.Errorf("expected %s to be valid", v)
		}
	}
	if models.StockEntryType("PURCHASE").IsValid() {
		t.Errorf("unknown entry type must be invalid")
	}
}
