package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// TransferNote moves batches from one store to a sub store or to a physical
// location. Draft notes are editable; issuing reserves the stock at the
// source, and each destination acknowledgement settles the reservation.
type TransferNote struct {
	ID              int                `gorm:"primary_key" json:"id"`
	TransferNumber  string             `gorm:"size:20;not null;unique" json:"transfer_number"`
	FromStoreId     int                `gorm:"index;not null" json:"from_store_id"`
	FromStore       *Store             `gorm:"foreignKey:FromStoreId" json:"from_store,omitempty"`
	ToStoreId       *int               `gorm:"index" json:"to_store_id"`
	ToStore         *Store             `gorm:"foreignKey:ToStoreId" json:"to_store,omitempty"`
	ToLocationId    *int               `gorm:"index" json:"to_location_id"`
	ToLocation      *Location          `gorm:"foreignKey:ToLocationId" json:"to_location,omitempty"`
	StockRegisterId int                `gorm:"index;not null" json:"stock_register_id"`
	StockRegister   *StockRegister     `gorm:"foreignKey:StockRegisterId" json:"stock_register,omitempty"`
	TransferDate    time.Time          `gorm:"not null" json:"transfer_date"`
	Status          TransferNoteStatus `gorm:"type:enum('DRAFT','ISSUED','PARTIALLY_RECEIVED','RECEIVED','CANCELLED');default:DRAFT" json:"status"`
	Remarks         string             `gorm:"type:text" json:"remarks"`
	IssuedBy        *int               `json:"issued_by"`
	IssuedAt        *time.Time         `json:"issued_at"`
	Items           []TransferNoteItem `gorm:"foreignKey:TransferNoteId" json:"items"`
	CreatedBy       *int               `json:"created_by"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransferNoteItem struct {
	ID               int        `gorm:"primary_key" json:"id"`
	TransferNoteId   int        `gorm:"index;not null" json:"transfer_note_id"`
	BatchId          int        `gorm:"index;not null" json:"batch_id"`
	Batch            *Batch     `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	QuantitySent     int        `gorm:"not null" json:"quantity_sent"`
	QuantityReceived int        `gorm:"not null;default:0" json:"quantity_received"`
	IsAcknowledged   *bool      `gorm:"not null;default:false" json:"is_acknowledged"`
	AcknowledgedBy   *int       `json:"acknowledged_by"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at"`
	IssueEntryId     *int       `json:"issue_entry_id"`
	ReceiptEntryId   *int       `json:"receipt_entry_id"`
	Remarks          string     `gorm:"type:text" json:"remarks"`
}

func (obj TransferNote) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj TransferNote) GetCursor() string {
	return obj.CreatedAt.String()
}

type NewTransferNoteItem struct {
	BatchId      int    `json:"batch_id" binding:"required"`
	QuantitySent int    `json:"quantity_sent" binding:"required"`
	Remarks      string `json:"remarks"`
}

type NewTransferNote struct {
	FromStoreId     int                   `json:"from_store_id" binding:"required"`
	ToStoreId       *int                  `json:"to_store_id"`
	ToLocationId    *int                  `json:"to_location_id"`
	StockRegisterId int                   `json:"stock_register_id" binding:"required"`
	TransferDate    time.Time             `json:"transfer_date" binding:"required"`
	Remarks         string                `json:"remarks"`
	Items           []NewTransferNoteItem `json:"items" binding:"required"`
}

// validate input for both create & update.

func (input *NewTransferNote) validate(ctx context.Context) error {
	if (input.ToStoreId == nil) == (input.ToLocationId == nil) {
		return utils.NewValidationError("transfer requires exactly one destination, a store or a location")
	}
	if err := utils.ValidateResourceId[Store](ctx, input.FromStoreId); err != nil {
		return utils.NewValidationError("source store not found")
	}
	if input.ToStoreId != nil {
		if *input.ToStoreId == input.FromStoreId {
			return utils.NewValidationError("source and destination store cannot be the same")
		}
		if err := utils.ValidateResourceId[Store](ctx, *input.ToStoreId); err != nil {
			return utils.NewValidationError("destination store not found")
		}
	}
	if input.ToLocationId != nil {
		if err := utils.ValidateResourceId[Location](ctx, *input.ToLocationId); err != nil {
			return utils.NewValidationError("destination location not found")
		}
	}
	register, err := utils.FetchModel[StockRegister](ctx, input.StockRegisterId)
	if err != nil {
		return utils.NewValidationError("stock register not found")
	}
	if register.StoreId != input.FromStoreId {
		return utils.NewValidationError("stock register belongs to another store")
	}
	if len(input.Items) == 0 {
		return utils.NewValidationError("transfer requires at least one line")
	}
	seen := map[int]bool{}
	for _, line := range input.Items {
		if seen[line.BatchId] {
			return utils.NewValidationError("duplicate batch %d in transfer", line.BatchId)
		}
		seen[line.BatchId] = true
		if line.QuantitySent <= 0 {
			return utils.NewValidationError("sent quantity must be positive for batch %d", line.BatchId)
		}
		batch, err := utils.FetchModel[Batch](ctx, line.BatchId)
		if err != nil {
			return utils.NewValidationError("batch %d not found", line.BatchId)
		}
		if batch.IsActive != nil && !*batch.IsActive {
			return utils.NewValidationError("batch %s is inactive", batch.BatchNumber)
		}
	}
	return nil
}

func CreateTransferNote(ctx context.Context, input *NewTransferNote) (*TransferNote, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	var items []TransferNoteItem
	for _, line := range input.Items {
		items = append(items, TransferNoteItem{
			BatchId:        line.BatchId,
			QuantitySent:   line.QuantitySent,
			IsAcknowledged: utils.NewFalse(),
			Remarks:        line.Remarks,
		})
	}

	note := TransferNote{
		FromStoreId:     input.FromStoreId,
		ToStoreId:       input.ToStoreId,
		ToLocationId:    input.ToLocationId,
		StockRegisterId: input.StockRegisterId,
		TransferDate:    input.TransferDate,
		Status:          TransferNoteStatusDraft,
		Remarks:         input.Remarks,
		Items:           items,
		CreatedBy:       utils.ActingUserId(ctx),
	}

	tx := db.Begin()

	number, err := NextNumber(tx.WithContext(ctx), NumberKindTransfer, "", "TN", 4)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	note.TransferNumber = number

	if err := tx.WithContext(ctx).Create(&note).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateTransferNote replaces the header and lines of a draft note.
func UpdateTransferNote(ctx context.Context, id int, input *NewTransferNote) (*TransferNote, error) {
	db := config.GetDB()

	note, err := utils.FetchModel[TransferNote](ctx, id)
	if err != nil {
		return nil, err
	}
	if note.Status != TransferNoteStatusDraft {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "transfer note",
			From:   string(note.Status),
			Action: "update",
		}
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	tx := db.Begin()

	err = tx.WithContext(ctx).Model(&note).Updates(map[string]interface{}{
		"FromStoreId":     input.FromStoreId,
		"ToStoreId":       input.ToStoreId,
		"ToLocationId":    input.ToLocationId,
		"StockRegisterId": input.StockRegisterId,
		"TransferDate":    input.TransferDate,
		"Remarks":         input.Remarks,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Where("transfer_note_id = ?", id).Delete(&TransferNoteItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, line := range input.Items {
		item := TransferNoteItem{
			TransferNoteId: id,
			BatchId:        line.BatchId,
			QuantitySent:   line.QuantitySent,
			IsAcknowledged: utils.NewFalse(),
			Remarks:        line.Remarks,
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetTransferNote(ctx, id)
}

// IssueTransferNote moves a draft note to ISSUED. Every line's quantity is
// reserved at the source store and written to the ledger as an ISSUE.
// The whole note issues or none of it does.
func IssueTransferNote(ctx context.Context, id int) (*TransferNote, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := config.DebugWorkflow("TRANSFER_NOTE")

	existing, err := utils.FetchModel[TransferNote](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(existing.FromStoreId), "transferNote.go", "IssueTransferNote")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var note TransferNote
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Preload("Items.Batch").Where("id = ?", id).First(&note).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if note.Status != TransferNoteStatusDraft {
		tx.Rollback()
		return nil, &utils.InvalidStateTransitionError{
			Entity: "transfer note",
			From:   string(note.Status),
			Action: "issue",
		}
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":           "IssueTransferNote",
			"transfer_id":     note.ID,
			"transfer_number": note.TransferNumber,
			"from_store_id":   note.FromStoreId,
			"items_count":     len(note.Items),
		}).Info("begin transfer note issue")
	}

	actingUser := utils.ActingUserId(ctx)
	noteId := note.ID
	for i := range note.Items {
		line := &note.Items[i]

		inv, err := ReserveStock(tx.WithContext(ctx), note.FromStoreId, line.BatchId, line.QuantitySent)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		// The reservation settles out of allocated at acknowledgment; the row
		// must still hold its tagged units then, so reject here rather than
		// strand the note in ISSUED.
		if inv.QuantityQrTagged > inv.QuantityOnHand+inv.QuantityAllocated-line.QuantitySent {
			tx.Rollback()
			return nil, &utils.InsufficientStockError{
				BatchId:   line.BatchId,
				StoreId:   note.FromStoreId,
				Requested: line.QuantitySent,
				Available: inv.QuantityOnHand + inv.QuantityAllocated - inv.QuantityQrTagged,
				Reason:    "issue would dip into QR-tagged units",
			}
		}
		if err := adjustBatchCurrentQuantity(tx.WithContext(ctx), line.BatchId, -line.QuantitySent); err != nil {
			tx.Rollback()
			return nil, err
		}

		entry, err := appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
			EntryType:       StockEntryTypeIssue,
			EntryDate:       note.TransferDate,
			ItemId:          line.Batch.ItemId,
			BatchId:         &line.BatchId,
			Quantity:        -line.QuantitySent,
			StoreId:         note.FromStoreId,
			FromStoreId:     &note.FromStoreId,
			ToStoreId:       note.ToStoreId,
			ToLocationId:    note.ToLocationId,
			StockRegisterId: note.StockRegisterId,
			TransferNoteId:  &noteId,
			Remarks:         "transfer out " + note.TransferNumber,
			CreatedBy:       actingUser,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		err = tx.WithContext(ctx).Model(line).UpdateColumn("IssueEntryId", entry.ID).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	err = tx.WithContext(ctx).Model(&note).Updates(map[string]interface{}{
		"Status":   TransferNoteStatusIssued,
		"IssuedBy": actingUser,
		"IssuedAt": &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":       "IssueTransferNote",
			"transfer_id": note.ID,
			"status":      TransferNoteStatusIssued,
		}).Info("transfer note issued")
	}

	return GetTransferNote(ctx, id)
}

// TransferAckLine acknowledges one line at the destination. StockRegisterId
// is the destination register and is required when the destination is a
// store. When CreateBatch is set the received units open a new batch at the
// destination instead of extending the source batch's pool.
type TransferAckLine struct {
	TransferNoteItemId int  `json:"transfer_note_item_id" binding:"required"`
	QuantityReceived   int  `json:"quantity_received" binding:"required"`
	StockRegisterId    *int `json:"stock_register_id"`
	CreateBatch        bool `json:"create_batch"`
}

// AcknowledgeTransferNote records destination receipts for one or more
// lines. Each acknowledged line settles its reservation at the source; the
// note moves to RECEIVED once every line is acknowledged, otherwise to
// PARTIALLY_RECEIVED. Short receipts are left for a manual adjustment.
func AcknowledgeTransferNote(ctx context.Context, id int, lines []TransferAckLine) (*TransferNote, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := config.DebugWorkflow("TRANSFER_NOTE")

	if len(lines) == 0 {
		return nil, utils.NewValidationError("acknowledgement requires at least one line")
	}

	existing, err := utils.FetchModel[TransferNote](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(existing.FromStoreId), "transferNote.go", "AcknowledgeTransferNote")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var note TransferNote
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Preload("Items.Batch").Where("id = ?", id).First(&note).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if note.Status != TransferNoteStatusIssued && note.Status != TransferNoteStatusPartiallyReceived {
		tx.Rollback()
		return nil, &utils.InvalidStateTransitionError{
			Entity: "transfer note",
			From:   string(note.Status),
			Action: "acknowledge",
		}
	}

	itemsById := map[int]*TransferNoteItem{}
	for i := range note.Items {
		itemsById[note.Items[i].ID] = &note.Items[i]
	}

	actingUser := utils.ActingUserId(ctx)
	now := time.Now()
	noteId := note.ID

	for _, ack := range lines {
		line, ok := itemsById[ack.TransferNoteItemId]
		if !ok {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d does not belong to this transfer", ack.TransferNoteItemId)
		}
		if line.IsAcknowledged != nil && *line.IsAcknowledged {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d already acknowledged", ack.TransferNoteItemId)
		}
		if ack.QuantityReceived <= 0 || ack.QuantityReceived > line.QuantitySent {
			tx.Rollback()
			return nil, utils.NewValidationError("received quantity out of range for line %d", ack.TransferNoteItemId)
		}

		// the units left the source when the note was issued
		if _, err := SettleAllocatedStock(tx.WithContext(ctx), note.FromStoreId, line.BatchId, line.QuantitySent); err != nil {
			tx.Rollback()
			return nil, err
		}

		var receiptEntryId *int
		if note.ToStoreId != nil {
			if ack.StockRegisterId == nil {
				tx.Rollback()
				return nil, utils.NewValidationError("destination register required for line %d", ack.TransferNoteItemId)
			}
			var register StockRegister
			if err := tx.WithContext(ctx).Where("id = ?", *ack.StockRegisterId).First(&register).Error; err != nil {
				tx.Rollback()
				return nil, utils.NewValidationError("destination register not found for line %d", ack.TransferNoteItemId)
			}
			if register.StoreId != *note.ToStoreId {
				tx.Rollback()
				return nil, utils.NewValidationError("destination register belongs to another store for line %d", ack.TransferNoteItemId)
			}

			receiptBatchId := line.BatchId
			if ack.CreateBatch {
				lineId := line.ID
				newBatch, err := createBatch(tx.WithContext(ctx), &NewBatch{
					ItemId:              line.Batch.ItemId,
					SourceType:          BatchSourceUniversityStore,
					TransferItemId:      &lineId,
					SourceStoreId:       *note.ToStoreId,
					Quantity:            ack.QuantityReceived,
					Supplier:            line.Batch.Supplier,
					UnitPrice:           line.Batch.UnitPrice,
					BatchSpecifications: line.Batch.BatchSpecifications,
					Remarks:             "received via " + note.TransferNumber,
					CreatedBy:           actingUser,
				})
				if err != nil {
					tx.Rollback()
					return nil, err
				}
				receiptBatchId = newBatch.ID
			}

			if _, err := CommitStockIn(tx.WithContext(ctx), *note.ToStoreId, receiptBatchId, ack.QuantityReceived); err != nil {
				tx.Rollback()
				return nil, err
			}

			entry, err := appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
				EntryType:        StockEntryTypeReceipt,
				EntryDate:        now,
				ItemId:           line.Batch.ItemId,
				BatchId:          &receiptBatchId,
				Quantity:         ack.QuantityReceived,
				StoreId:          *note.ToStoreId,
				FromStoreId:      &note.FromStoreId,
				ToStoreId:        note.ToStoreId,
				StockRegisterId:  register.ID,
				TransferNoteId:   &noteId,
				ReferenceEntryId: line.IssueEntryId,
				Remarks:          "transfer in " + note.TransferNumber,
				CreatedBy:        actingUser,
			})
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			receiptEntryId = &entry.ID
		}
		// location destinations hold no pools; the issue entry already
		// carries to_location_id

		err = tx.WithContext(ctx).Model(line).Updates(map[string]interface{}{
			"QuantityReceived": ack.QuantityReceived,
			"IsAcknowledged":   true,
			"AcknowledgedBy":   actingUser,
			"AcknowledgedAt":   &now,
			"ReceiptEntryId":   receiptEntryId,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		line.IsAcknowledged = utils.NewTrue()

		if debug {
			logger.WithFields(logrus.Fields{
				"field":             "AcknowledgeTransferNote",
				"transfer_id":       note.ID,
				"line_id":           line.ID,
				"quantity_sent":     line.QuantitySent,
				"quantity_received": ack.QuantityReceived,
			}).Info("transfer line acknowledged")
		}
	}

	allAcknowledged := true
	for i := range note.Items {
		if note.Items[i].IsAcknowledged == nil || !*note.Items[i].IsAcknowledged {
			allAcknowledged = false
			break
		}
	}
	status := TransferNoteStatusPartiallyReceived
	if allAcknowledged {
		status = TransferNoteStatusReceived
	}
	if err := tx.WithContext(ctx).Model(&note).UpdateColumn("Status", status).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetTransferNote(ctx, id)
}

// CancelTransferNote cancels a draft or issued note. Cancelling an issued
// note returns every unacknowledged reservation to on-hand and posts a
// RETURN entry against the original issue entry.
func CancelTransferNote(ctx context.Context, id int) (*TransferNote, error) {
	db := config.GetDB()

	existing, err := utils.FetchModel[TransferNote](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(existing.FromStoreId), "transferNote.go", "CancelTransferNote")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var note TransferNote
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Preload("Items.Batch").Where("id = ?", id).First(&note).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if note.Status != TransferNoteStatusDraft && note.Status != TransferNoteStatusIssued {
		tx.Rollback()
		return nil, &utils.InvalidStateTransitionError{
			Entity: "transfer note",
			From:   string(note.Status),
			Action: "cancel",
		}
	}

	if note.Status == TransferNoteStatusIssued {
		actingUser := utils.ActingUserId(ctx)
		noteId := note.ID
		for i := range note.Items {
			line := &note.Items[i]
			if line.IsAcknowledged != nil && *line.IsAcknowledged {
				tx.Rollback()
				return nil, utils.NewValidationError("cannot cancel, line %d already acknowledged", line.ID)
			}

			if _, err := ReleaseStock(tx.WithContext(ctx), note.FromStoreId, line.BatchId, line.QuantitySent); err != nil {
				tx.Rollback()
				return nil, err
			}
			if err := adjustBatchCurrentQuantity(tx.WithContext(ctx), line.BatchId, line.QuantitySent); err != nil {
				tx.Rollback()
				return nil, err
			}

			_, err = appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
				EntryType:        StockEntryTypeReturn,
				ItemId:           line.Batch.ItemId,
				BatchId:          &line.BatchId,
				Quantity:         line.QuantitySent,
				StoreId:          note.FromStoreId,
				StockRegisterId:  note.StockRegisterId,
				TransferNoteId:   &noteId,
				ReferenceEntryId: line.IssueEntryId,
				Remarks:          "cancelled " + note.TransferNumber,
				CreatedBy:        actingUser,
			})
			if err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.WithContext(ctx).Model(&note).UpdateColumn("Status", TransferNoteStatusCancelled).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetTransferNote(ctx, id)
}

func GetTransferNote(ctx context.Context, id int) (*TransferNote, error) {
	return utils.FetchModel[TransferNote](ctx, id,
		"FromStore", "ToStore", "ToLocation", "StockRegister", "Items", "Items.Batch", "Items.Batch.Item")
}

type TransferNotesConnection struct {
	Edges    []*TransferNotesEdge `json:"edges"`
	PageInfo *PageInfo            `json:"pageInfo"`
}

type TransferNotesEdge Edge[TransferNote]

func PaginateTransferNote(
	ctx context.Context, limit *int, after *string,
	fromStoreId *int,
	toStoreId *int,
	status *TransferNoteStatus,
) (*TransferNotesConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if fromStoreId != nil {
		dbCtx = dbCtx.Where("from_store_id = ?", *fromStoreId)
	}
	if toStoreId != nil {
		dbCtx = dbCtx.Where("to_store_id = ?", *toStoreId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[TransferNote](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection TransferNotesConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		transferNotesEdge := TransferNotesEdge(edge)
		connection.Edges = append(connection.Edges, &transferNotesEdge)
	}

	return &connection, err
}
