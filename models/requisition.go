package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Requisition is a sub store's demand on the university main store. Lines
// are requested by item; the approver binds each line to a concrete batch
// and main store register before the stock moves.
type Requisition struct {
	ID                int               `gorm:"primary_key" json:"id"`
	RequisitionNumber string            `gorm:"size:20;not null;unique" json:"requisition_number"`
	RequestingStoreId int               `gorm:"index;not null" json:"requesting_store_id"`
	RequestingStore   *Store            `gorm:"foreignKey:RequestingStoreId" json:"requesting_store,omitempty"`
	FulfillingStoreId int               `gorm:"index;not null" json:"fulfilling_store_id"`
	FulfillingStore   *Store            `gorm:"foreignKey:FulfillingStoreId" json:"fulfilling_store,omitempty"`
	RequisitionDate   time.Time         `gorm:"not null" json:"requisition_date"`
	Purpose           string            `gorm:"type:text" json:"purpose"`
	Status            RequisitionStatus `gorm:"type:enum('DRAFT','PENDING_APPROVAL','APPROVED','IN_TRANSIT','PARTIALLY_RECEIVED','RECEIVED','REJECTED');default:DRAFT" json:"status"`
	Remarks           string            `gorm:"type:text" json:"remarks"`
	SubmittedAt       *time.Time        `json:"submitted_at"`
	ApprovedBy        *int              `json:"approved_by"`
	ApprovedAt        *time.Time        `json:"approved_at"`
	RejectionReason   string            `gorm:"type:text" json:"rejection_reason"`
	Items             []RequisitionItem `gorm:"foreignKey:RequisitionId" json:"items"`
	CreatedBy         *int              `json:"created_by"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type RequisitionItem struct {
	ID                  int            `gorm:"primary_key" json:"id"`
	RequisitionId       int            `gorm:"index;not null" json:"requisition_id"`
	ItemId              int            `gorm:"index;not null" json:"item_id"`
	Item                *Item          `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	RequestedQuantity   int            `gorm:"not null" json:"requested_quantity"`
	ProvidedQuantity    int            `gorm:"not null;default:0" json:"provided_quantity"`
	IsRejected          *bool          `gorm:"not null;default:false" json:"is_rejected"`
	RejectReason        string         `gorm:"type:text" json:"reject_reason"`
	BatchId             *int           `gorm:"index" json:"batch_id"`
	Batch               *Batch         `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	MainStockRegisterId *int           `json:"main_stock_register_id"`
	MainStockRegister   *StockRegister `gorm:"foreignKey:MainStockRegisterId" json:"main_stock_register,omitempty"`
	QuantityReceived    int            `gorm:"not null;default:0" json:"quantity_received"`
	IsAcknowledged      *bool          `gorm:"not null;default:false" json:"is_acknowledged"`
	AcknowledgedBy      *int           `json:"acknowledged_by"`
	AcknowledgedAt      *time.Time     `json:"acknowledged_at"`
	IssueEntryId        *int           `json:"issue_entry_id"`
	ReceiptEntryId      *int           `json:"receipt_entry_id"`
}

func (obj Requisition) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj Requisition) GetCursor() string {
	return obj.CreatedAt.String()
}

type NewRequisitionItem struct {
	ItemId            int `json:"item_id" binding:"required"`
	RequestedQuantity int `json:"requested_quantity" binding:"required"`
}

type NewRequisition struct {
	RequestingStoreId int                  `json:"requesting_store_id" binding:"required"`
	FulfillingStoreId int                  `json:"fulfilling_store_id" binding:"required"`
	RequisitionDate   time.Time            `json:"requisition_date" binding:"required"`
	Purpose           string               `json:"purpose"`
	Remarks           string               `json:"remarks"`
	Items             []NewRequisitionItem `json:"items" binding:"required"`
}

func (input *NewRequisition) validate(ctx context.Context) error {
	if input.RequestingStoreId == input.FulfillingStoreId {
		return utils.NewValidationError("requesting and fulfilling store cannot be the same")
	}
	if err := utils.ValidateResourceId[Store](ctx, input.RequestingStoreId); err != nil {
		return utils.NewValidationError("requesting store not found")
	}
	fulfilling, err := utils.FetchModel[Store](ctx, input.FulfillingStoreId)
	if err != nil {
		return utils.NewValidationError("fulfilling store not found")
	}
	if fulfilling.StoreType != StoreTypeMain {
		return utils.NewValidationError("fulfilling store must be a main store")
	}
	if len(input.Items) == 0 {
		return utils.NewValidationError("requisition requires at least one line")
	}
	for _, line := range input.Items {
		if line.RequestedQuantity <= 0 {
			return utils.NewValidationError("requested quantity must be positive for item %d", line.ItemId)
		}
		if err := utils.ValidateResourceId[Item](ctx, line.ItemId); err != nil {
			return utils.NewValidationError("item %d not found", line.ItemId)
		}
	}
	return nil
}

func CreateRequisition(ctx context.Context, input *NewRequisition) (*Requisition, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	var items []RequisitionItem
	for _, line := range input.Items {
		items = append(items, RequisitionItem{
			ItemId:            line.ItemId,
			RequestedQuantity: line.RequestedQuantity,
			IsRejected:        utils.NewFalse(),
			IsAcknowledged:    utils.NewFalse(),
		})
	}

	requisition := Requisition{
		RequestingStoreId: input.RequestingStoreId,
		FulfillingStoreId: input.FulfillingStoreId,
		RequisitionDate:   input.RequisitionDate,
		Purpose:           input.Purpose,
		Status:            RequisitionStatusDraft,
		Remarks:           input.Remarks,
		Items:             items,
		CreatedBy:         utils.ActingUserId(ctx),
	}

	tx := db.Begin()

	number, err := NextNumber(tx.WithContext(ctx), NumberKindRequisition, "", "RQ", 4)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	requisition.RequisitionNumber = number

	if err := tx.WithContext(ctx).Create(&requisition).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &requisition, nil
}

// SubmitRequisition hands a draft over for approval.
func SubmitRequisition(ctx context.Context, id int) (*Requisition, error) {
	db := config.GetDB()

	requisition, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}
	if requisition.Status != RequisitionStatusDraft {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "requisition",
			From:   string(requisition.Status),
			Action: "submit",
		}
	}

	now := time.Now()
	err = db.WithContext(ctx).Model(&requisition).Updates(map[string]interface{}{
		"Status":      RequisitionStatusPendingApproval,
		"SubmittedAt": &now,
	}).Error
	if err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

// ProcessLine is the approver's decision for one requisition line. A zero
// provided quantity rejects the line and requires a reason; otherwise the
// line is bound to a batch and a main store register.
type ProcessLine struct {
	RequisitionItemId   int    `json:"requisition_item_id" binding:"required"`
	ProvidedQuantity    int    `json:"provided_quantity"`
	RejectReason        string `json:"reject_reason"`
	BatchId             *int   `json:"batch_id"`
	MainStockRegisterId *int   `json:"main_stock_register_id"`
}

// processRequisitionItems validates and applies the approver's per-line
// decisions inside the caller's transaction. It binds lines but moves no
// stock.
func processRequisitionItems(ctx context.Context, tx *gorm.DB, requisition *Requisition, lines []ProcessLine) (int, error) {
	linesById := map[int]ProcessLine{}
	for _, line := range lines {
		linesById[line.RequisitionItemId] = line
	}

	provided := 0
	for i := range requisition.Items {
		item := &requisition.Items[i]
		decision, ok := linesById[item.ID]
		if !ok {
			return 0, utils.NewValidationError("no decision for line %d", item.ID)
		}

		if decision.ProvidedQuantity == 0 {
			if decision.RejectReason == "" {
				return 0, utils.NewValidationError("reject reason required for line %d", item.ID)
			}
			err := tx.Model(item).Updates(map[string]interface{}{
				"IsRejected":       true,
				"RejectReason":     decision.RejectReason,
				"ProvidedQuantity": 0,
			}).Error
			if err != nil {
				return 0, err
			}
			continue
		}

		if decision.ProvidedQuantity < 0 || decision.ProvidedQuantity > item.RequestedQuantity {
			return 0, utils.NewValidationError("provided quantity out of range for line %d", item.ID)
		}
		if decision.BatchId == nil || decision.MainStockRegisterId == nil {
			return 0, utils.NewValidationError("batch and register required for line %d", item.ID)
		}
		batch, err := utils.FetchModel[Batch](ctx, *decision.BatchId)
		if err != nil {
			return 0, utils.NewValidationError("batch not found for line %d", item.ID)
		}
		if batch.ItemId != item.ItemId {
			return 0, utils.NewValidationError("batch holds a different item for line %d", item.ID)
		}
		if decision.ProvidedQuantity > batch.CurrentQuantity {
			return 0, &utils.InsufficientStockError{
				BatchId:   batch.ID,
				StoreId:   requisition.FulfillingStoreId,
				Requested: decision.ProvidedQuantity,
				Available: batch.CurrentQuantity,
				Reason:    "batch current quantity too low",
			}
		}
		register, err := utils.FetchModel[StockRegister](ctx, *decision.MainStockRegisterId)
		if err != nil {
			return 0, utils.NewValidationError("register not found for line %d", item.ID)
		}
		if register.StoreId != requisition.FulfillingStoreId {
			return 0, utils.NewValidationError("register belongs to another store for line %d", item.ID)
		}

		err = tx.Model(item).Updates(map[string]interface{}{
			"ProvidedQuantity":    decision.ProvidedQuantity,
			"BatchId":             decision.BatchId,
			"MainStockRegisterId": decision.MainStockRegisterId,
			"IsRejected":          false,
			"RejectReason":        "",
		}).Error
		if err != nil {
			return 0, err
		}
		provided++
	}
	return provided, nil
}

// ApproveRequisition applies the approver's line decisions and moves the
// requisition to APPROVED, or to REJECTED when every line was refused.
func ApproveRequisition(ctx context.Context, id int, lines []ProcessLine) (*Requisition, error) {
	db := config.GetDB()

	requisition, err := utils.FetchModel[Requisition](ctx, id, "Items")
	if err != nil {
		return nil, err
	}
	if requisition.Status != RequisitionStatusPendingApproval {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "requisition",
			From:   string(requisition.Status),
			Action: "approve",
		}
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	provided, err := processRequisitionItems(ctx, tx, requisition, lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	status := RequisitionStatusApproved
	if provided == 0 {
		status = RequisitionStatusRejected
	}
	now := time.Now()
	err = tx.Model(&requisition).Updates(map[string]interface{}{
		"Status":     status,
		"ApprovedBy": utils.ActingUserId(ctx),
		"ApprovedAt": &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

// RejectRequisition refuses the whole requisition.
func RejectRequisition(ctx context.Context, id int, reason string) (*Requisition, error) {
	db := config.GetDB()

	if reason == "" {
		return nil, utils.NewValidationError("rejection reason is required")
	}
	requisition, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}
	if requisition.Status != RequisitionStatusPendingApproval {
		return nil, &utils.InvalidStateTransitionError{
			Entity: "requisition",
			From:   string(requisition.Status),
			Action: "reject",
		}
	}

	err = db.WithContext(ctx).Model(&requisition).Updates(map[string]interface{}{
		"Status":          RequisitionStatusRejected,
		"RejectionReason": reason,
	}).Error
	if err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

// MakeTransitRequisition issues the approved quantities from the main store.
// Every provided line is reserved against its batch and written to the
// ledger as an ISSUE; the whole requisition transits or none of it does.
func MakeTransitRequisition(ctx context.Context, id int) (*Requisition, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := config.DebugWorkflow("REQUISITION")

	existing, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(existing.FulfillingStoreId), "requisition.go", "MakeTransitRequisition")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var requisition Requisition
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Where("id = ?", id).First(&requisition).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if requisition.Status != RequisitionStatusApproved {
		tx.Rollback()
		return nil, &utils.InvalidStateTransitionError{
			Entity: "requisition",
			From:   string(requisition.Status),
			Action: "transit",
		}
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":              "MakeTransitRequisition",
			"requisition_id":     requisition.ID,
			"requisition_number": requisition.RequisitionNumber,
			"fulfilling_store":   requisition.FulfillingStoreId,
			"items_count":        len(requisition.Items),
		}).Info("begin requisition transit")
	}

	actingUser := utils.ActingUserId(ctx)
	requisitionId := requisition.ID
	for i := range requisition.Items {
		line := &requisition.Items[i]
		if line.IsRejected != nil && *line.IsRejected {
			continue
		}
		if line.BatchId == nil || line.MainStockRegisterId == nil {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d has no batch binding", line.ID)
		}

		inv, err := ReserveStock(tx.WithContext(ctx), requisition.FulfillingStoreId, *line.BatchId, line.ProvidedQuantity)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if inv.QuantityQrTagged > inv.QuantityOnHand+inv.QuantityAllocated-line.ProvidedQuantity {
			tx.Rollback()
			return nil, &utils.InsufficientStockError{
				BatchId:   *line.BatchId,
				StoreId:   requisition.FulfillingStoreId,
				Requested: line.ProvidedQuantity,
				Available: inv.QuantityOnHand + inv.QuantityAllocated - inv.QuantityQrTagged,
				Reason:    "transit would dip into QR-tagged units",
			}
		}
		if err := adjustBatchCurrentQuantity(tx.WithContext(ctx), *line.BatchId, -line.ProvidedQuantity); err != nil {
			tx.Rollback()
			return nil, err
		}

		entry, err := appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
			EntryType:       StockEntryTypeIssue,
			ItemId:          line.ItemId,
			BatchId:         line.BatchId,
			Quantity:        -line.ProvidedQuantity,
			StoreId:         requisition.FulfillingStoreId,
			FromStoreId:     &requisition.FulfillingStoreId,
			ToStoreId:       &requisition.RequestingStoreId,
			StockRegisterId: *line.MainStockRegisterId,
			RequisitionId:   &requisitionId,
			Remarks:         "requisition issue " + requisition.RequisitionNumber,
			CreatedBy:       actingUser,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := tx.WithContext(ctx).Model(line).UpdateColumn("IssueEntryId", entry.ID).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Model(&requisition).UpdateColumn("Status", RequisitionStatusInTransit).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":          "MakeTransitRequisition",
			"requisition_id": requisition.ID,
			"status":         RequisitionStatusInTransit,
		}).Info("requisition in transit")
	}

	return GetRequisition(ctx, id)
}

// RequisitionAckLine records one line's receipt at the requesting store.
// StockRegisterId is the requesting store's register the receipt is booked
// on.
type RequisitionAckLine struct {
	RequisitionItemId int `json:"requisition_item_id" binding:"required"`
	QuantityReceived  int `json:"quantity_received" binding:"required"`
	StockRegisterId   int `json:"stock_register_id" binding:"required"`
}

// AcknowledgeRequisition settles the main store's reservations and books
// RECEIPT entries on the requesting store's register. The batch keeps its
// identity at the main store, so the requesting store's pool is untouched;
// a department that wants pooled stock from a requisition opens a batch via
// a transfer note instead.
func AcknowledgeRequisition(ctx context.Context, id int, lines []RequisitionAckLine) (*Requisition, error) {
	db := config.GetDB()

	if len(lines) == 0 {
		return nil, utils.NewValidationError("acknowledgement requires at least one line")
	}

	existing, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(existing.FulfillingStoreId), "requisition.go", "AcknowledgeRequisition")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var requisition Requisition
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Where("id = ?", id).First(&requisition).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if requisition.Status != RequisitionStatusInTransit && requisition.Status != RequisitionStatusPartiallyReceived {
		tx.Rollback()
		return nil, &utils.InvalidStateTransitionError{
			Entity: "requisition",
			From:   string(requisition.Status),
			Action: "acknowledge",
		}
	}

	itemsById := map[int]*RequisitionItem{}
	for i := range requisition.Items {
		itemsById[requisition.Items[i].ID] = &requisition.Items[i]
	}

	actingUser := utils.ActingUserId(ctx)
	now := time.Now()
	requisitionId := requisition.ID

	for _, ack := range lines {
		line, ok := itemsById[ack.RequisitionItemId]
		if !ok {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d does not belong to this requisition", ack.RequisitionItemId)
		}
		if line.IsRejected != nil && *line.IsRejected {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d was rejected", ack.RequisitionItemId)
		}
		if line.IsAcknowledged != nil && *line.IsAcknowledged {
			tx.Rollback()
			return nil, utils.NewValidationError("line %d already acknowledged", ack.RequisitionItemId)
		}
		if ack.QuantityReceived <= 0 || ack.QuantityReceived > line.ProvidedQuantity {
			tx.Rollback()
			return nil, utils.NewValidationError("received quantity out of range for line %d", ack.RequisitionItemId)
		}

		var register StockRegister
		if err := tx.WithContext(ctx).Where("id = ?", ack.StockRegisterId).First(&register).Error; err != nil {
			tx.Rollback()
			return nil, utils.NewValidationError("register not found for line %d", ack.RequisitionItemId)
		}
		if register.StoreId != requisition.RequestingStoreId {
			tx.Rollback()
			return nil, utils.NewValidationError("register belongs to another store for line %d", ack.RequisitionItemId)
		}

		if _, err := SettleAllocatedStock(tx.WithContext(ctx), requisition.FulfillingStoreId, *line.BatchId, line.ProvidedQuantity); err != nil {
			tx.Rollback()
			return nil, err
		}

		entry, err := appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
			EntryType:        StockEntryTypeReceipt,
			ItemId:           line.ItemId,
			BatchId:          line.BatchId,
			Quantity:         ack.QuantityReceived,
			StoreId:          requisition.RequestingStoreId,
			FromStoreId:      &requisition.FulfillingStoreId,
			ToStoreId:        &requisition.RequestingStoreId,
			StockRegisterId:  register.ID,
			RequisitionId:    &requisitionId,
			ReferenceEntryId: line.IssueEntryId,
			Remarks:          "requisition receipt " + requisition.RequisitionNumber,
			CreatedBy:        actingUser,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		err = tx.WithContext(ctx).Model(line).Updates(map[string]interface{}{
			"QuantityReceived": ack.QuantityReceived,
			"IsAcknowledged":   true,
			"AcknowledgedBy":   actingUser,
			"AcknowledgedAt":   &now,
			"ReceiptEntryId":   entry.ID,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		line.IsAcknowledged = utils.NewTrue()
	}

	allDone := true
	for i := range requisition.Items {
		line := &requisition.Items[i]
		if line.IsRejected != nil && *line.IsRejected {
			continue
		}
		if line.IsAcknowledged == nil || !*line.IsAcknowledged {
			allDone = false
			break
		}
	}
	status := RequisitionStatusPartiallyReceived
	if allDone {
		status = RequisitionStatusReceived
	}
	if err := tx.WithContext(ctx).Model(&requisition).UpdateColumn("Status", status).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

func GetRequisition(ctx context.Context, id int) (*Requisition, error) {
	return utils.FetchModel[Requisition](ctx, id,
		"RequestingStore", "FulfillingStore", "Items", "Items.Item", "Items.Batch", "Items.MainStockRegister")
}

type RequisitionsConnection struct {
	Edges    []*RequisitionsEdge `json:"edges"`
	PageInfo *PageInfo           `json:"pageInfo"`
}

type RequisitionsEdge Edge[Requisition]

func PaginateRequisition(
	ctx context.Context, limit *int, after *string,
	requestingStoreId *int,
	fulfillingStoreId *int,
	status *RequisitionStatus,
) (*RequisitionsConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if requestingStoreId != nil {
		dbCtx = dbCtx.Where("requesting_store_id = ?", *requestingStoreId)
	}
	if fulfillingStoreId != nil {
		dbCtx = dbCtx.Where("fulfilling_store_id = ?", *fulfillingStoreId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Requisition](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection RequisitionsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		requisitionsEdge := RequisitionsEdge(edge)
		connection.Edges = append(connection.Edges, &requisitionsEdge)
	}

	return &connection, err
}
