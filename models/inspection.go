package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// InspectionCertificate records the outcome of physically inspecting a
// delivery against a purchase order. Items are counted as tendered, accepted
// and rejected; only accepted quantities ever enter stock, and only once the
// certificate is processed.
type InspectionCertificate struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	CertificateNumber   string           `gorm:"size:100;not null;unique" json:"certificate_number" binding:"required"`
	CertificateDate     time.Time        `gorm:"not null" json:"certificate_date" binding:"required"`
	DepartmentId        int              `gorm:"index;not null" json:"department_id" binding:"required"`
	Department          *Department      `gorm:"foreignKey:DepartmentId" json:"department,omitempty"`
	Contractor          string           `gorm:"size:255;not null" json:"contractor" binding:"required"`
	Indenter            string           `gorm:"size:255" json:"indenter"`
	Consignee           string           `gorm:"size:255" json:"consignee"`
	PurchaseOrderNumber string           `gorm:"size:100" json:"purchase_order_number"`
	DeliveryStatus      DeliveryStatus   `gorm:"type:enum('PART','FULL');default:FULL" json:"delivery_status"`
	Remarks             string           `gorm:"type:text" json:"remarks"`
	ProcessedAt         *time.Time       `json:"processed_at"`
	ProcessedBy         *int             `json:"processed_by"`
	Items               []InspectionItem `gorm:"foreignKey:InspectionCertificateId" json:"items"`
	CreatedBy           *int             `json:"created_by"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type InspectionItem struct {
	ID                      int    `gorm:"primary_key" json:"id"`
	InspectionCertificateId int    `gorm:"index;not null" json:"inspection_certificate_id"`
	ItemId                  int    `gorm:"index;not null" json:"item_id"`
	Item                    *Item  `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	TenderedQuantity        int    `gorm:"not null" json:"tendered_quantity"`
	AcceptedQuantity        int    `gorm:"not null" json:"accepted_quantity"`
	RejectedQuantity        int    `gorm:"not null" json:"rejected_quantity"`
	RejectionReason         string `gorm:"type:text" json:"rejection_reason"`
}

func (obj InspectionCertificate) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (obj InspectionCertificate) GetCursor() string {
	return obj.CreatedAt.String()
}

type NewInspectionItem struct {
	ItemId           int    `json:"item_id" binding:"required"`
	TenderedQuantity int    `json:"tendered_quantity" binding:"required"`
	AcceptedQuantity int    `json:"accepted_quantity"`
	RejectedQuantity int    `json:"rejected_quantity"`
	RejectionReason  string `json:"rejection_reason"`
}

type NewInspectionCertificate struct {
	CertificateNumber   string              `json:"certificate_number" binding:"required"`
	CertificateDate     time.Time           `json:"certificate_date" binding:"required"`
	DepartmentId        int                 `json:"department_id" binding:"required"`
	Contractor          string              `json:"contractor" binding:"required"`
	Indenter            string              `json:"indenter"`
	Consignee           string              `json:"consignee"`
	PurchaseOrderNumber string              `json:"purchase_order_number"`
	DeliveryStatus      DeliveryStatus      `json:"delivery_status"`
	Remarks             string              `json:"remarks"`
	Items               []NewInspectionItem `json:"items" binding:"required"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewInspectionCertificate) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[InspectionCertificate](ctx, "certificate_number", input.CertificateNumber, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Department](ctx, input.DepartmentId); err != nil {
		return utils.NewValidationError("department not found")
	}
	if input.DeliveryStatus != "" &&
		input.DeliveryStatus != DeliveryStatusPartial && input.DeliveryStatus != DeliveryStatusFull {
		return utils.NewValidationError("invalid delivery status %q", input.DeliveryStatus)
	}
	if len(input.Items) == 0 {
		return utils.NewValidationError("certificate requires at least one item")
	}
	for _, line := range input.Items {
		item, err := utils.FetchModel[Item](ctx, line.ItemId)
		if err != nil {
			return utils.NewValidationError("item %d not found", line.ItemId)
		}
		if item.DepartmentId != input.DepartmentId {
			return utils.NewValidationError("item %q belongs to another department", item.Name)
		}
		if line.TenderedQuantity <= 0 {
			return utils.NewValidationError("tendered quantity must be positive for item %q", item.Name)
		}
		if line.AcceptedQuantity < 0 || line.RejectedQuantity < 0 {
			return utils.NewValidationError("negative quantity for item %q", item.Name)
		}
		if line.AcceptedQuantity+line.RejectedQuantity != line.TenderedQuantity {
			return utils.NewValidationError("accepted plus rejected must equal tendered for item %q", item.Name)
		}
		if line.RejectedQuantity > 0 && line.RejectionReason == "" {
			return utils.NewValidationError("rejection reason required for item %q", item.Name)
		}
	}
	return nil
}

func CreateInspectionCertificate(ctx context.Context, input *NewInspectionCertificate) (*InspectionCertificate, error) {
	db := config.GetDB()

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	var items []InspectionItem
	for _, line := range input.Items {
		items = append(items, InspectionItem{
			ItemId:           line.ItemId,
			TenderedQuantity: line.TenderedQuantity,
			AcceptedQuantity: line.AcceptedQuantity,
			RejectedQuantity: line.RejectedQuantity,
			RejectionReason:  line.RejectionReason,
		})
	}

	deliveryStatus := input.DeliveryStatus
	if deliveryStatus == "" {
		deliveryStatus = DeliveryStatusFull
	}

	certificate := InspectionCertificate{
		CertificateNumber:   input.CertificateNumber,
		CertificateDate:     input.CertificateDate,
		DepartmentId:        input.DepartmentId,
		Contractor:          input.Contractor,
		Indenter:            input.Indenter,
		Consignee:           input.Consignee,
		PurchaseOrderNumber: input.PurchaseOrderNumber,
		DeliveryStatus:      deliveryStatus,
		Remarks:             input.Remarks,
		Items:               items,
		CreatedBy:           utils.ActingUserId(ctx),
	}

	if err := db.WithContext(ctx).Create(&certificate).Error; err != nil {
		return nil, err
	}
	return &certificate, nil
}

// UpdateInspectionCertificate replaces the certificate header and item lines.
// Processed certificates are frozen.
func UpdateInspectionCertificate(ctx context.Context, id int, input *NewInspectionCertificate) (*InspectionCertificate, error) {
	db := config.GetDB()

	certificate, err := utils.FetchModel[InspectionCertificate](ctx, id)
	if err != nil {
		return nil, err
	}
	if certificate.ProcessedAt != nil {
		return nil, utils.ErrAlreadyProcessed
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	tx := db.Begin()

	err = tx.WithContext(ctx).Model(&certificate).Updates(map[string]interface{}{
		"CertificateNumber":   input.CertificateNumber,
		"CertificateDate":     input.CertificateDate,
		"DepartmentId":        input.DepartmentId,
		"Contractor":          input.Contractor,
		"Indenter":            input.Indenter,
		"Consignee":           input.Consignee,
		"PurchaseOrderNumber": input.PurchaseOrderNumber,
		"DeliveryStatus":      input.DeliveryStatus,
		"Remarks":             input.Remarks,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Where("inspection_certificate_id = ?", id).Delete(&InspectionItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, line := range input.Items {
		item := InspectionItem{
			InspectionCertificateId: id,
			ItemId:                  line.ItemId,
			TenderedQuantity:        line.TenderedQuantity,
			AcceptedQuantity:        line.AcceptedQuantity,
			RejectedQuantity:        line.RejectedQuantity,
			RejectionReason:         line.RejectionReason,
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetInspectionCertificate(ctx, id)
}

func DeleteInspectionCertificate(ctx context.Context, id int) (*InspectionCertificate, error) {
	db := config.GetDB()

	certificate, err := utils.FetchModel[InspectionCertificate](ctx, id)
	if err != nil {
		return nil, err
	}
	if certificate.ProcessedAt != nil {
		return nil, utils.ErrAlreadyProcessed
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("inspection_certificate_id = ?", id).Delete(&InspectionItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&certificate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return certificate, nil
}

// IntakeLine carries the optional commercial metadata for one accepted
// inspection line, matched by inspection item id.
type IntakeLine struct {
	InspectionItemId     int             `json:"inspection_item_id" binding:"required"`
	WarrantyPeriodMonths *int            `json:"warranty_period_months"`
	ExpectedLifeYears    *int            `json:"expected_life_years"`
	ManufactureDate      *time.Time      `json:"manufacture_date"`
	ExpiryDate           *time.Time      `json:"expiry_date"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	Supplier             string          `json:"supplier"`
	BatchSpecifications  string          `json:"batch_specifications"`
	Remarks              string          `json:"remarks"`
}

type ProcessInspection struct {
	StoreId         int          `json:"store_id" binding:"required"`
	StockRegisterId int          `json:"stock_register_id" binding:"required"`
	Lines           []IntakeLine `json:"lines"`
}

// ProcessInspectionCertificate turns every accepted inspection line into a
// batch, credits the receiving store's pool and writes one RECEIPT ledger
// entry per line, all in one transaction. A second call on the same
// certificate returns ErrAlreadyProcessed.
func ProcessInspectionCertificate(ctx context.Context, id int, input *ProcessInspection) (*InspectionCertificate, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := config.DebugWorkflow("INSPECTION")

	store, err := utils.FetchModel[Store](ctx, input.StoreId)
	if err != nil {
		return nil, utils.NewValidationError("store not found")
	}
	register, err := utils.FetchModel[StockRegister](ctx, input.StockRegisterId)
	if err != nil {
		return nil, utils.NewValidationError("stock register not found")
	}
	if register.StoreId != store.ID {
		return nil, utils.NewValidationError("stock register belongs to another store")
	}
	if register.IsActive != nil && !*register.IsActive {
		return nil, utils.NewValidationError("stock register is inactive")
	}

	metadata := map[int]IntakeLine{}
	for _, line := range input.Lines {
		metadata[line.InspectionItemId] = line
	}

	release, err := utils.ObtainStockLock(ctx, stockLockKey(input.StoreId), "inspection.go", "ProcessInspectionCertificate")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()

	var certificate InspectionCertificate
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").Where("id = ?", id).First(&certificate).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if certificate.ProcessedAt != nil {
		tx.Rollback()
		return nil, utils.ErrAlreadyProcessed
	}
	if store.DepartmentId != certificate.DepartmentId {
		tx.Rollback()
		return nil, utils.NewValidationError("store belongs to another department")
	}
	hasAccepted := false
	for _, line := range certificate.Items {
		if line.AcceptedQuantity > 0 {
			hasAccepted = true
			break
		}
	}
	if !hasAccepted {
		tx.Rollback()
		return nil, utils.NewValidationError("certificate has no line with a positive accepted quantity")
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":              "ProcessInspectionCertificate",
			"certificate_id":     certificate.ID,
			"certificate_number": certificate.CertificateNumber,
			"store_id":           store.ID,
			"register_id":        register.ID,
			"items_count":        len(certificate.Items),
		}).Info("begin inspection intake")
	}

	actingUser := utils.ActingUserId(ctx)
	for _, line := range certificate.Items {
		if line.AcceptedQuantity == 0 {
			continue
		}
		lineId := line.ID
		meta := metadata[lineId]

		batch, err := createBatch(tx.WithContext(ctx), &NewBatch{
			ItemId:               line.ItemId,
			SourceType:           BatchSourceDepartmentalPurchase,
			InspectionItemId:     &lineId,
			SourceStoreId:        store.ID,
			Quantity:             line.AcceptedQuantity,
			WarrantyPeriodMonths: meta.WarrantyPeriodMonths,
			ExpectedLifeYears:    meta.ExpectedLifeYears,
			ManufactureDate:      meta.ManufactureDate,
			ExpiryDate:           meta.ExpiryDate,
			PurchaseOrderNumber:  certificate.PurchaseOrderNumber,
			Supplier:             firstNonEmpty(meta.Supplier, certificate.Contractor),
			UnitPrice:            meta.UnitPrice,
			BatchSpecifications:  meta.BatchSpecifications,
			Remarks:              meta.Remarks,
			CreatedBy:            actingUser,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if _, err := CommitStockIn(tx.WithContext(ctx), store.ID, batch.ID, line.AcceptedQuantity); err != nil {
			tx.Rollback()
			return nil, err
		}

		certificateId := certificate.ID
		_, err = appendStockEntry(tx.WithContext(ctx), &NewStockEntry{
			EntryType:       StockEntryTypeReceipt,
			EntryDate:       certificate.CertificateDate,
			ItemId:          line.ItemId,
			BatchId:         &batch.ID,
			Quantity:        line.AcceptedQuantity,
			StoreId:         store.ID,
			StockRegisterId: register.ID,
			InspectionId:    &certificateId,
			Remarks:         "inspection intake " + certificate.CertificateNumber,
			CreatedBy:       actingUser,
		})
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if debug {
			logger.WithFields(logrus.Fields{
				"field":              "ProcessInspectionCertificate",
				"certificate_id":     certificate.ID,
				"inspection_item_id": lineId,
				"batch_id":           batch.ID,
				"batch_number":       batch.BatchNumber,
				"accepted_quantity":  line.AcceptedQuantity,
			}).Info("inspection line processed")
		}
	}

	now := time.Now()
	err = tx.WithContext(ctx).Model(&certificate).Updates(map[string]interface{}{
		"ProcessedAt": &now,
		"ProcessedBy": actingUser,
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
			"field":          "ProcessInspectionCertificate",
			"certificate_id": certificate.ID,
			"processed_at":   now,
		}).Info("inspection intake committed")
	}

	return GetInspectionCertificate(ctx, id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func GetInspectionCertificate(ctx context.Context, id int) (*InspectionCertificate, error) {
	return utils.FetchModel[InspectionCertificate](ctx, id, "Department", "Items", "Items.Item")
}

type InspectionCertificatesConnection struct {
	Edges    []*InspectionCertificatesEdge `json:"edges"`
	PageInfo *PageInfo                     `json:"pageInfo"`
}

type InspectionCertificatesEdge Edge[InspectionCertificate]

func PaginateInspectionCertificate(
	ctx context.Context, limit *int, after *string,
	departmentId *int,
	processed *bool,
) (*InspectionCertificatesConnection, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	if departmentId != nil {
		dbCtx = dbCtx.Where("department_id = ?", *departmentId)
	}
	if processed != nil {
		if *processed {
			dbCtx = dbCtx.Where("processed_at IS NOT NULL")
		} else {
			dbCtx = dbCtx.Where("processed_at IS NULL")
		}
	}

	edges, pageInfo, err := FetchPageCompositeCursor[InspectionCertificate](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection InspectionCertificatesConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		inspectionCertificatesEdge := InspectionCertificatesEdge(edge)
		connection.Edges = append(connection.Edges, &inspectionCertificatesEdge)
	}

	return &connection, err
}
