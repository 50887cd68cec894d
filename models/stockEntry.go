package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockEntry is one immutable row of the stock ledger. Balance is the running
// total for (item, register) at the time the row was written. Corrections are
// new ADJUSTMENT rows pointing back via ReferenceEntryId, never edits.
type StockEntry struct {
	ID               int            `gorm:"primary_key" json:"id"`
	EntryNumber      string         `gorm:"size:20;not null;unique" json:"entry_number"`
	EntryType        StockEntryType `gorm:"type:enum('RECEIPT','ISSUE','ADJUSTMENT','RETURN','TRANSFER_IN','TRANSFER_OUT','QR_GENERATION');not null" json:"entry_type"`
	EntryDate        time.Time      `gorm:"not null" json:"entry_date"`
	ItemId           int            `gorm:"index;not null" json:"item_id"`
	Item             *Item          `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	BatchId          *int           `gorm:"index" json:"batch_id"`
	Batch            *Batch         `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	Quantity         int            `gorm:"not null" json:"quantity"`
	Balance          int            `gorm:"not null" json:"balance"`
	StoreId          int            `gorm:"index;not null" json:"store_id"`
	FromStoreId      *int           `json:"from_store_id"`
	ToStoreId        *int           `json:"to_store_id"`
	ToLocationId     *int           `json:"to_location_id"`
	StockRegisterId  int            `gorm:"index;not null" json:"stock_register_id"`
	InspectionId     *int           `gorm:"index" json:"inspection_id"`
	TransferNoteId   *int           `gorm:"index" json:"transfer_note_id"`
	RequisitionId    *int           `gorm:"index" json:"requisition_id"`
	ReferenceEntryId *int           `gorm:"index" json:"reference_entry_id"`
	AdjustmentReason string         `gorm:"type:text" json:"adjustment_reason"`
	Remarks          string         `gorm:"type:text" json:"remarks"`
	CreatedBy        *int           `json:"created_by"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// NewStockEntry is the draft handed to appendStockEntry. Quantity is signed:
// positive for increases, negative for decreases.
type NewStockEntry struct {
	EntryType        StockEntryType
	EntryDate        time.Time
	ItemId           int
	BatchId          *int
	Quantity         int
	StoreId          int
	FromStoreId      *int
	ToStoreId        *int
	ToLocationId     *int
	StockRegisterId  int
	InspectionId     *int
	TransferNoteId   *int
	RequisitionId    *int
	ReferenceEntryId *int
	AdjustmentReason string
	Remarks          string
	CreatedBy        *int
}

func (obj StockEntry) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj StockEntry) GetCursor() string {
	return obj.CreatedAt.String()
}

// The ledger is append-only.
func (e *StockEntry) BeforeUpdate(tx *gorm.DB) error {
	_ = tx
	return errors.New("stock entries are immutable")
}

func (e *StockEntry) BeforeDelete(tx *gorm.DB) error {
	_ = tx
	return errors.New("stock entries are immutable")
}

// appendStockEntry computes the running balance for (item, register) and
// inserts the ledger row inside the caller's transaction. The pair's
// ledger-head series row is locked FOR UPDATE before the previous balance is
// read, so two appends on the same pair cannot interleave even when the pair
// has no entries yet to lock (the server runs READ COMMITTED, so a missing
// latest row would otherwise leave nothing to block on).
//
// A decrease that would take the balance negative is rejected unless the
// entry is an ADJUSTMENT (a correction of a prior miscount).
func appendStockEntry(tx *gorm.DB, draft *NewStockEntry) (*StockEntry, error) {
	if !draft.EntryType.IsValid() {
		return nil, utils.NewValidationError("invalid stock entry type %q", draft.EntryType)
	}
	if draft.Quantity == 0 && draft.EntryType != StockEntryTypeQrGeneration {
		return nil, utils.NewValidationError("stock entry quantity cannot be zero")
	}
	if draft.EntryType == StockEntryTypeAdjustment && draft.AdjustmentReason == "" {
		return nil, utils.NewValidationError("adjustment reason is required for adjustment entries")
	}
	if draft.ItemId <= 0 || draft.StoreId <= 0 || draft.StockRegisterId <= 0 {
		return nil, utils.NewValidationError("stock entry requires item, store and register")
	}

	headScope := fmt.Sprintf("%d:%d", draft.ItemId, draft.StockRegisterId)
	if _, err := NextSequence(tx, NumberKindLedgerHead, headScope); err != nil {
		return nil, err
	}

	var prev []StockEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND stock_register_id = ?", draft.ItemId, draft.StockRegisterId).
		Order("id DESC").Limit(1).Find(&prev).Error; err != nil {
		return nil, err
	}
	previousBalance := 0
	if len(prev) == 1 {
		previousBalance = prev[0].Balance
	}

	balance := previousBalance + draft.Quantity
	if balance < 0 && draft.Quantity < 0 && draft.EntryType != StockEntryTypeAdjustment {
		return nil, &utils.InsufficientStockError{
			BatchId:   utils.DereferencePtr(draft.BatchId),
			StoreId:   draft.StoreId,
			Requested: -draft.Quantity,
			Available: previousBalance,
			Reason:    "ledger balance would go negative",
		}
	}

	entryNumber, err := NextNumber(tx, NumberKindStockEntry, "", "SR", 6)
	if err != nil {
		return nil, err
	}

	entryDate := draft.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now()
	}

	entry := StockEntry{
		EntryNumber:      entryNumber,
		EntryType:        draft.EntryType,
		EntryDate:        entryDate,
		ItemId:           draft.ItemId,
		BatchId:          draft.BatchId,
		Quantity:         draft.Quantity,
		Balance:          balance,
		StoreId:          draft.StoreId,
		FromStoreId:      draft.FromStoreId,
		ToStoreId:        draft.ToStoreId,
		ToLocationId:     draft.ToLocationId,
		StockRegisterId:  draft.StockRegisterId,
		InspectionId:     draft.InspectionId,
		TransferNoteId:   draft.TransferNoteId,
		RequisitionId:    draft.RequisitionId,
		ReferenceEntryId: draft.ReferenceEntryId,
		AdjustmentReason: draft.AdjustmentReason,
		Remarks:          draft.Remarks,
		CreatedBy:        draft.CreatedBy,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

type NewAdjustment struct {
	ItemId           int    `json:"item_id" binding:"required"`
	BatchId          *int   `json:"batch_id"`
	StoreId          int    `json:"store_id" binding:"required"`
	StockRegisterId  int    `json:"stock_register_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required"`
	AdjustmentReason string `json:"adjustment_reason" binding:"required"`
	ReferenceEntryId *int   `json:"reference_entry_id"`
	Remarks          string `json:"remarks"`
}

// CreateAdjustmentEntry posts a manual correction. When a batch is named the
// store pool and the batch counter move by the same signed quantity, in the
// same transaction as the ledger row.
func CreateAdjustmentEntry(ctx context.Context, input *NewAdjustment) (*StockEntry, error) {
	db := config.GetDB()

	if input.Quantity == 0 {
		return nil, utils.NewValidationError("adjustment quantity cannot be zero")
	}
	if err := utils.ValidateResourceId[Item](ctx, input.ItemId); err != nil {
		return nil, utils.NewValidationError("item not found")
	}
	if err := utils.ValidateResourceId[Store](ctx, input.StoreId); err != nil {
		return nil, utils.NewValidationError("store not found")
	}
	if err := utils.ValidateResourceId[StockRegister](ctx, input.StockRegisterId); err != nil {
		return nil, utils.NewValidationError("stock register not found")
	}
	if input.ReferenceEntryId != nil {
		if err := utils.ValidateResourceId[StockEntry](ctx, *input.ReferenceEntryId); err != nil {
			return nil, utils.NewValidationError("reference entry not found")
		}
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(input.StoreId), "stockEntry.go", "CreateAdjustmentEntry")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	if input.BatchId != nil {
		if _, err := AdjustStock(tx.WithContext(ctx), input.StoreId, *input.BatchId, input.Quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := adjustBatchCurrentQuantity(tx.WithContext(ctx), *input.BatchId, input.Quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	entry, err := appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
		EntryType:        StockEntryTypeAdjustment,
		ItemId:           input.ItemId,
		BatchId:          input.BatchId,
		Quantity:         input.Quantity,
		StoreId:          input.StoreId,
		StockRegisterId:  input.StockRegisterId,
		ReferenceEntryId: input.ReferenceEntryId,
		AdjustmentReason: input.AdjustmentReason,
		Remarks:          input.Remarks,
		CreatedBy:        utils.ActingUserId(ctx),
	})
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// GetLedgerBalance returns the current running balance for (item, register),
// 0 when the pair has no entries yet.
func GetLedgerBalance(ctx context.Context, itemId int, registerId int) (int, error) {
	db := config.GetDB()
	var latest []StockEntry
	err := db.WithContext(ctx).
		Where("item_id = ? AND stock_register_id = ?", itemId, registerId).
		Order("id DESC").Limit(1).Find(&latest).Error
	if err != nil {
		return 0, err
	}
	if len(latest) == 0 {
		return 0, nil
	}
	return latest[0].Balance, nil
}

func GetStockEntry(ctx context.Context, id int) (*StockEntry, error) {
	return utils.FetchModel[StockEntry](ctx, id, "Item", "Batch")
}

type StockEntriesConnection struct {
	Edges    []*StockEntriesEdge `json:"edges"`
	PageInfo *PageInfo           `json:"pageInfo"`
}

type StockEntriesEdge Edge[StockEntry]

func PaginateStockEntry(
	ctx context.Context, limit *int, after *string,
	registerId *int,
	itemId *int,
	entryType *StockEntryType,
) (*StockEntriesConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if registerId != nil {
		dbCtx = dbCtx.Where("stock_register_id = ?", *registerId)
	}
	if itemId != nil {
		dbCtx = dbCtx.Where("item_id = ?", *itemId)
	}
	if entryType != nil {
		dbCtx = dbCtx.Where("entry_type = ?", *entryType)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[StockEntry](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection StockEntriesConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		stockEntriesEdge := StockEntriesEdge(edge)
		connection.Edges = append(connection.Edges, &stockEntriesEdge)
	}

	return &connection, err
}
