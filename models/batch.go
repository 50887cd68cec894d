package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batch is one homogeneous lot of an item entering the department, either
// through inspection intake or through a transfer from the university store.
// Exactly one of InspectionItemId and TransferItemId is set; the pair of
// unique indexes also stops the same source line from spawning two batches.
type Batch struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BatchNumber          string          `gorm:"size:20;not null;unique" json:"batch_number"`
	ItemId               int             `gorm:"index;not null" json:"item_id"`
	Item                 *Item           `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	SourceType           BatchSourceType `gorm:"type:enum('DEPARTMENTAL_PURCHASE','UNIVERSITY_STORE_DISTRIBUTION');not null" json:"source_type"`
	InspectionItemId     *int            `gorm:"unique" json:"inspection_item_id"`
	TransferItemId       *int            `gorm:"unique" json:"transfer_item_id"`
	SourceStoreId        int             `gorm:"index;not null" json:"source_store_id"`
	SourceStore          *Store          `gorm:"foreignKey:SourceStoreId" json:"source_store,omitempty"`
	TotalQuantity        int             `gorm:"not null" json:"total_quantity"`
	CurrentQuantity      int             `gorm:"not null" json:"current_quantity"`
	WarrantyPeriodMonths *int            `json:"warranty_period_months"`
	WarrantyExpiryDate   *time.Time      `json:"warranty_expiry_date"`
	ExpectedLifeYears    *int            `json:"expected_life_years"`
	ManufactureDate      *time.Time      `json:"manufacture_date"`
	ExpiryDate           *time.Time      `json:"expiry_date"`
	PurchaseOrderNumber  string          `gorm:"size:100" json:"purchase_order_number"`
	Supplier             string          `gorm:"size:255" json:"supplier"`
	UnitPrice            decimal.Decimal `gorm:"type:decimal(14,2);default:0.00" json:"unit_price"`
	TotalValue           decimal.Decimal `gorm:"type:decimal(16,2);default:0.00" json:"total_value"`
	BatchSpecifications  string          `gorm:"type:json" json:"batch_specifications"`
	Remarks              string          `gorm:"type:text" json:"remarks"`
	IsActive             *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedBy            *int            `json:"created_by"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (obj Batch) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj Batch) GetCursor() string {
	return obj.CreatedAt.String()
}

func (b *Batch) BeforeSave(tx *gorm.DB) error {
	_ = tx
	if (b.InspectionItemId == nil) == (b.TransferItemId == nil) {
		return utils.NewValidationError("batch must reference exactly one source line")
	}
	if b.CurrentQuantity < 0 || b.CurrentQuantity > b.TotalQuantity {
		return utils.NewValidationError("batch current quantity out of range")
	}
	return nil
}

// NewBatch carries the optional commercial metadata captured at intake.
type NewBatch struct {
	ItemId               int
	SourceType           BatchSourceType
	InspectionItemId     *int
	TransferItemId       *int
	SourceStoreId        int
	Quantity             int
	WarrantyPeriodMonths *int
	ExpectedLifeYears    *int
	ManufactureDate      *time.Time
	ExpiryDate           *time.Time
	PurchaseOrderNumber  string
	Supplier             string
	UnitPrice            decimal.Decimal
	BatchSpecifications  string
	Remarks              string
	CreatedBy            *int
}

// createBatch allocates the batch number and inserts the row inside the
// caller's transaction. Warranty expiry is derived from the manufacture date
// when a warranty period is given but no explicit expiry.
func createBatch(tx *gorm.DB, input *NewBatch) (*Batch, error) {
	if input.Quantity <= 0 {
		return nil, utils.NewValidationError("batch quantity must be positive")
	}

	batchNumber, err := NextNumber(tx, NumberKindBatch, "", "BT", 4)
	if err != nil {
		return nil, err
	}

	specs := input.BatchSpecifications
	if specs == "" {
		specs = "{}"
	}

	batch := Batch{
		BatchNumber:          batchNumber,
		ItemId:               input.ItemId,
		SourceType:           input.SourceType,
		InspectionItemId:     input.InspectionItemId,
		TransferItemId:       input.TransferItemId,
		SourceStoreId:        input.SourceStoreId,
		TotalQuantity:        input.Quantity,
		CurrentQuantity:      input.Quantity,
		WarrantyPeriodMonths: input.WarrantyPeriodMonths,
		ExpectedLifeYears:    input.ExpectedLifeYears,
		ManufactureDate:      input.ManufactureDate,
		ExpiryDate:           input.ExpiryDate,
		PurchaseOrderNumber:  input.PurchaseOrderNumber,
		Supplier:             input.Supplier,
		UnitPrice:            input.UnitPrice,
		TotalValue:           input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Quantity))),
		BatchSpecifications:  specs,
		Remarks:              input.Remarks,
		IsActive:             utils.NewTrue(),
		CreatedBy:            input.CreatedBy,
	}
	if batch.WarrantyPeriodMonths != nil && batch.ManufactureDate != nil {
		// warranty months are flat 30-day periods, not calendar months
		expiry := batch.ManufactureDate.AddDate(0, 0, *batch.WarrantyPeriodMonths*30)
		batch.WarrantyExpiryDate = &expiry
	}

	if err := tx.Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// fetchBatchLocked loads the batch FOR UPDATE for counter mutation.
func fetchBatchLocked(tx *gorm.DB, batchId int) (*Batch, error) {
	var batch Batch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", batchId).First(&batch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// adjustBatchCurrentQuantity applies a signed delta to the batch counter. A
// positive delta may not push the counter past the original lot size.
func adjustBatchCurrentQuantity(tx *gorm.DB, batchId int, qty int) error {
	batch, err := fetchBatchLocked(tx, batchId)
	if err != nil {
		return err
	}
	next := batch.CurrentQuantity + qty
	if next < 0 {
		return &utils.InsufficientStockError{
			BatchId:   batchId,
			Requested: -qty,
			Available: batch.CurrentQuantity,
			Reason:    "batch current quantity would go negative",
		}
	}
	if next > batch.TotalQuantity {
		return utils.NewValidationError("batch current quantity cannot exceed total quantity")
	}
	return tx.Model(batch).UpdateColumn("CurrentQuantity", next).Error
}

// batchTaggedCount counts asset tags already generated against the batch,
// whatever their lifecycle status.
func batchTaggedCount(tx *gorm.DB, batchId int) (int64, error) {
	var count int64
	err := tx.Model(&AssetTag{}).Where("batch_id = ?", batchId).Count(&count).Error
	return count, err
}

func GetBatch(ctx context.Context, id int) (*Batch, error) {
	return utils.FetchModel[Batch](ctx, id, "Item", "SourceStore")
}

func DeactivateBatch(ctx context.Context, id int) (*Batch, error) {

	batch, err := utils.FetchModel[Batch](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&batch).UpdateColumn("IsActive", false).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

type BatchesConnection struct {
	Edges    []*BatchesEdge `json:"edges"`
	PageInfo *PageInfo      `json:"pageInfo"`
}

type BatchesEdge Edge[Batch]

func PaginateBatch(
	ctx context.Context, limit *int, after *string,
	itemId *int,
	sourceStoreId *int,
	sourceType *BatchSourceType,
	activeOnly bool,
) (*BatchesConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if itemId != nil {
		dbCtx = dbCtx.Where("item_id = ?", *itemId)
	}
	if sourceStoreId != nil {
		dbCtx = dbCtx.Where("source_store_id = ?", *sourceStoreId)
	}
	if sourceType != nil {
		dbCtx = dbCtx.Where("source_type = ?", *sourceType)
	}
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Batch](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection BatchesConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		batchesEdge := BatchesEdge(edge)
		connection.Edges = append(connection.Edges, &batchesEdge)
	}

	return &connection, err
}
