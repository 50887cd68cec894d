package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// AssetTag is one physical QR label stuck on one unit of a batch. The tag
// number is human readable; the QR payload is the opaque uuid so a relabelled
// item can never collide with a reprinted tag.
type AssetTag struct {
	ID                int            `gorm:"primary_key" json:"id"`
	TagNumber         string         `gorm:"size:30;not null;unique" json:"tag_number"`
	QrUuid            string         `gorm:"size:36;not null;unique" json:"qr_uuid"`
	BatchId           int            `gorm:"index;not null" json:"batch_id"`
	Batch             *Batch         `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	StoreId           int            `gorm:"index;not null" json:"store_id"`
	Store             *Store         `gorm:"foreignKey:StoreId" json:"store,omitempty"`
	Status            AssetTagStatus `gorm:"type:enum('IN_STOCK','IN_USE','UNDER_REPAIR','WRITTEN_OFF','LOST');default:IN_STOCK" json:"status"`
	CurrentLocationId *int           `gorm:"index" json:"current_location_id"`
	CurrentLocation   *Location      `gorm:"foreignKey:CurrentLocationId" json:"current_location,omitempty"`
	QrImagePath       string         `gorm:"size:255" json:"qr_image_path"`
	Remarks           string         `gorm:"type:text" json:"remarks"`
	CreatedBy         *int           `json:"created_by"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (obj AssetTag) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj AssetTag) GetCursor() string {
	return obj.CreatedAt.String()
}

// FormatTagNumber builds the printed tag number from the department code,
// item code, batch number and per-batch sequence, e.g. "CSD-LAPTOP-0003-0007".
// Codes are truncated so the label stays scannable at small print sizes.
func FormatTagNumber(deptCode string, itemCode string, batchNumber string, seq int) string {
	dept := deptCode
	if len(dept) > 4 {
		dept = dept[:4]
	}
	item := itemCode
	if len(item) > 6 {
		item = item[:6]
	}
	batchSuffix := batchNumber
	if idx := strings.LastIndex(batchNumber, "-"); idx >= 0 {
		batchSuffix = batchNumber[idx+1:]
	}
	if len(batchSuffix) > 4 {
		batchSuffix = batchSuffix[len(batchSuffix)-4:]
	}
	return fmt.Sprintf("%s-%s-%s-%04d", dept, item, batchSuffix, seq)
}

type GenerateAssetTagsInput struct {
	BatchId         int    `json:"batch_id" binding:"required"`
	StoreId         int    `json:"store_id" binding:"required"`
	StockRegisterId int    `json:"stock_register_id" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required"`
	Remarks         string `json:"remarks"`
}

// GenerateAssetTags mints Quantity tags against a batch held at a store. Two
// budgets apply: the store may only tag units it holds untagged, and the
// batch may never carry more tags than units ever existed in the lot. A zero
// quantity QR_GENERATION ledger entry records the print run against the
// register without moving stock.
//
// QR PNG rendering and upload happen after commit and are best effort; a
// failed upload leaves the tag row valid with an empty image path.
func GenerateAssetTags(ctx context.Context, input *GenerateAssetTagsInput) ([]*AssetTag, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := config.DebugWorkflow("ASSET_TAG")

	if input.Quantity <= 0 {
		return nil, utils.NewValidationError("tag quantity must be positive")
	}
	if err := utils.ValidateResourceId[Store](ctx, input.StoreId); err != nil {
		return nil, utils.NewValidationError("store not found")
	}
	register, err := utils.FetchModel[StockRegister](ctx, input.StockRegisterId)
	if err != nil {
		return nil, utils.NewValidationError("stock register not found")
	}
	if register.StoreId != input.StoreId {
		return nil, utils.NewValidationError("stock register belongs to another store")
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(input.StoreId), "assetTag.go", "GenerateAssetTags")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	batch, err := fetchBatchLocked(tx.WithContext(ctx), input.BatchId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if batch.IsActive != nil && !*batch.IsActive {
		tx.Rollback()
		return nil, utils.NewValidationError("batch %s is inactive", batch.BatchNumber)
	}

	tagged, err := batchTaggedCount(tx.WithContext(ctx), batch.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if int(tagged)+input.Quantity > batch.TotalQuantity {
		tx.Rollback()
		return nil, &utils.InsufficientStockError{
			BatchId:   batch.ID,
			StoreId:   input.StoreId,
			Requested: input.Quantity,
			Available: batch.TotalQuantity - int(tagged),
			Reason:    "batch tag budget exhausted",
		}
	}

	// store level budget, checked and applied under the pool row lock
	if _, err := TagStock(tx.WithContext(ctx), input.StoreId, batch.ID, input.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	var item Item
	if err := tx.WithContext(ctx).Preload("Department").Where("id = ?", batch.ItemId).First(&item).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	deptCode := ""
	if item.Department != nil {
		deptCode = item.Department.Code
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":        "GenerateAssetTags",
			"batch_id":     batch.ID,
			"batch_number": batch.BatchNumber,
			"store_id":     input.StoreId,
			"quantity":     input.Quantity,
			"tagged_count": tagged,
		}).Info("begin asset tag generation")
	}

	actingUser := utils.ActingUserId(ctx)
	scope := fmt.Sprintf("batch:%d", batch.ID)

	var tags []*AssetTag
	for i := 0; i < input.Quantity; i++ {
		seq, err := NextSequence(tx.WithContext(ctx), NumberKindAssetTag, scope)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		tag := AssetTag{
			TagNumber: FormatTagNumber(deptCode, item.Code, batch.BatchNumber, seq),
			QrUuid:    uuid.New().String(),
			BatchId:   batch.ID,
			StoreId:   input.StoreId,
			Status:    AssetTagStatusInStock,
			Remarks:   input.Remarks,
			CreatedBy: actingUser,
		}
		if err := tx.WithContext(ctx).Create(&tag).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		tags = append(tags, &tag)
	}

	// print run leaves quantities untouched but is still part of the register
	batchId := batch.ID
	_, err = appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
		EntryType:       StockEntryTypeQrGeneration,
		ItemId:          batch.ItemId,
		BatchId:         &batchId,
		Quantity:        0,
		StoreId:         input.StoreId,
		StockRegisterId: register.ID,
		Remarks:         fmt.Sprintf("generated %d asset tags for %s", input.Quantity, batch.BatchNumber),
		CreatedBy:       actingUser,
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if config.QRImageUploadEnabled() {
		for _, tag := range tags {
			png, err := qrcode.Encode(tag.QrUuid, qrcode.High, 256)
			if err != nil {
				config.LogError(logger, "assetTag.go", "GenerateAssetTags", "QR encode failed", tag.TagNumber, err)
				continue
			}
			objectName := fmt.Sprintf("asset-tags/%s.png", tag.QrUuid)
			if err := utils.SaveQRImageToGCS(ctx, objectName, png); err != nil {
				config.LogError(logger, "assetTag.go", "GenerateAssetTags", "QR upload failed", tag.TagNumber, err)
				continue
			}
			if err := db.WithContext(ctx).Model(tag).UpdateColumn("QrImagePath", objectName).Error; err != nil {
				config.LogError(logger, "assetTag.go", "GenerateAssetTags", "QR path update failed", tag.TagNumber, err)
				continue
			}
			tag.QrImagePath = objectName
		}
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":    "GenerateAssetTags",
			"batch_id": batch.ID,
			"created":  len(tags),
		}).Info("asset tags generated")
	}

	return tags, nil
}

// UpdateAssetTagStatus moves a tag through its lifecycle. Written-off and
// lost tags are terminal.
func UpdateAssetTagStatus(ctx context.Context, id int, next AssetTagStatus, remarks string) (*AssetTag, error) {
	db := config.GetDB()

	tag, err := utils.FetchModel[AssetTag](ctx, id)
	if err != nil {
		return nil, err
	}
	if !tag.Status.CanTransitionTo(next) {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "asset tag",
			From:   string(tag.Status),
			Action: "set status " + string(next),
		}
	}

	updates := map[string]interface{}{
		"Status": next,
	}
	if remarks != "" {
		updates["Remarks"] = remarks
	}
	if err := db.WithContext(ctx).Model(&tag).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetAssetTag(ctx, id)
}

// RelocateAssetTag records the tag's new physical location.
func RelocateAssetTag(ctx context.Context, id int, locationId int) (*AssetTag, error) {
	db := config.GetDB()

	tag, err := utils.FetchModel[AssetTag](ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.Status == AssetTagStatusWrittenOff || tag.Status == AssetTagStatusLost {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "asset tag",
			From:   string(tag.Status),
			Action: "relocate",
		}
	}
	if err := utils.ValidateResourceId[Location](ctx, locationId); err != nil {
		return nil, utils.NewValidationError("location not found")
	}

	if err := db.WithContext(ctx).Model(&tag).UpdateColumn("CurrentLocationId", locationId).Error; err != nil {
		return nil, err
	}
	return GetAssetTag(ctx, id)
}

func GetAssetTag(ctx context.Context, id int) (*AssetTag, error) {
	return utils.FetchModel[AssetTag](ctx, id, "Batch", "Batch.Item", "Store", "CurrentLocation")
}

// GetAssetTagByUuid resolves a scanned QR payload to its tag.
func GetAssetTagByUuid(ctx context.Context, qrUuid string) (*AssetTag, error) {
	db := config.GetDB()
	var tag AssetTag
	err := db.WithContext(ctx).
		Preload("Batch").Preload("Batch.Item").Preload("Store").Preload("CurrentLocation").
		Where("qr_uuid = ?", qrUuid).First(&tag).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &tag, nil
}

type AssetTagsConnection struct {
	Edges    []*AssetTagsEdge `json:"edges"`
	PageInfo *PageInfo        `json:"pageInfo"`
}

type AssetTagsEdge Edge[AssetTag]

func PaginateAssetTag(
	ctx context.Context, limit *int, after *string,
	batchId *int,
	storeId *int,
	status *AssetTagStatus,
) (*AssetTagsConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if batchId != nil {
		dbCtx = dbCtx.Where("batch_id = ?", *batchId)
	}
	if storeId != nil {
		dbCtx = dbCtx.Where("store_id = ?", *storeId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[AssetTag](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection AssetTagsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		assetTagsEdge := AssetTagsEdge(edge)
		connection.Edges = append(connection.Edges, &assetTagsEdge)
	}

	return &connection, err
}
