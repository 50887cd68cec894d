package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/models"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/shopspring/decimal"
)

// Covers the departmental purchase path end to end: inspection intake opens a
// batch and pools stock, processing is one-shot, QR tag generation is bounded
// by the batch budget, and a transfer note moves pooled stock to another store
// while keeping the source ledger and pool consistent.
func TestInspectionIntakeAndTransferLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)

	deptCS, err := models.CreateDepartment(ctx, &models.NewDepartment{Name: "Computer Science"})
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	csStore, err := models.CreateStore(ctx, &models.NewStore{
		Name: "CS Store", Code: "CS-01", StoreType: models.StoreTypeSub, DepartmentId: deptCS.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(csStore): %v", err)
	}
	csAnnex, err := models.CreateStore(ctx, &models.NewStore{
		Name: "CS Annex", Code: "CS-02", StoreType: models.StoreTypeSub, DepartmentId: deptCS.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(csAnnex): %v", err)
	}

	csReg, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "CS Deadstock", RegisterType: models.RegisterTypeDeadStock, StoreId: csStore.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(csReg): %v", err)
	}
	annexReg, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "Annex Deadstock", RegisterType: models.RegisterTypeDeadStock, StoreId: csAnnex.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(annexReg): %v", err)
	}

	category, err := models.CreateItemCategory(ctx, &models.NewItemCategory{Name: "Furniture", Code: "FUR"})
	if err != nil {
		t.Fatalf("CreateItemCategory: %v", err)
	}
	chair, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Office Chair", Code: "CHAIR1", DepartmentId: deptCS.ID, CategoryId: category.ID,
		Unit: "pcs", SourceType: models.ItemSourceTypeDeptPurchase,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// 1) Inspection intake: 50 tendered, all accepted.
	cert, err := models.CreateInspectionCertificate(ctx, &models.NewInspectionCertificate{
		CertificateNumber: "IC-2026-001",
		CertificateDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		DepartmentId:      deptCS.ID,
		Contractor:        "Acme Furnishings",
		DeliveryStatus:    models.DeliveryStatusFull,
		Items: []models.NewInspectionItem{
			{ItemId: chair.ID, TenderedQuantity: 50, AcceptedQuantity: 50},
		},
	})
	if err != nil {
		t.Fatalf("CreateInspectionCertificate: %v", err)
	}
	if len(cert.Items) != 1 {
		t.Fatalf("expected 1 inspection item, got %d", len(cert.Items))
	}

	processed, err := models.ProcessInspectionCertificate(ctx, cert.ID, &models.ProcessInspection{
		StoreId:         csStore.ID,
		StockRegisterId: csReg.ID,
		Lines: []models.IntakeLine{
			{InspectionItemId: cert.Items[0].ID, UnitPrice: decimal.NewFromInt(4500), Supplier: "Acme Furnishings"},
		},
	})
	if err != nil {
		t.Fatalf("ProcessInspectionCertificate: %v", err)
	}
	if processed.ProcessedAt == nil {
		t.Fatalf("expected certificate to be marked processed")
	}

	// Intake is one-shot.
	if _, err := models.ProcessInspectionCertificate(ctx, cert.ID, &models.ProcessInspection{
		StoreId:         csStore.ID,
		StockRegisterId: csReg.ID,
		Lines: []models.IntakeLine{
			{InspectionItemId: cert.Items[0].ID, UnitPrice: decimal.NewFromInt(4500)},
		},
	}); !errors.Is(err, utils.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second process, got %v", err)
	}

	rows, err := models.ListStoreInventory(ctx, &csStore.ID, nil)
	if err != nil {
		t.Fatalf("ListStoreInventory: %v", err)
	}
	if len(rows) != 1 || rows[0].QuantityOnHand != 50 || rows[0].QuantityAllocated != 0 {
		t.Fatalf("expected one pool row with on_hand=50; got %+v", rows)
	}
	batchId := rows[0].BatchId

	if bal, err := models.GetLedgerBalance(ctx, chair.ID, csReg.ID); err != nil || bal != 50 {
		t.Fatalf("expected ledger balance 50 after intake; got %d, err=%v", bal, err)
	}

	// 2) QR tags: 10 printed, then a run that would exceed the untagged stock.
	tags, err := models.GenerateAssetTags(ctx, &models.GenerateAssetTagsInput{
		BatchId: batchId, StoreId: csStore.ID, StockRegisterId: csReg.ID, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("GenerateAssetTags: %v", err)
	}
	if len(tags) != 10 {
		t.Fatalf("expected 10 tags, got %d", len(tags))
	}
	seen := map[string]bool{}
	for _, tag := range tags {
		if tag.TagNumber == "" || tag.QrUuid == "" {
			t.Fatalf("tag missing identifiers: %+v", tag)
		}
		if seen[tag.TagNumber] {
			t.Fatalf("duplicate tag number %s", tag.TagNumber)
		}
		seen[tag.TagNumber] = true
		if tag.Status != models.AssetTagStatusInStock {
			t.Fatalf("expected new tag IN_STOCK, got %s", tag.Status)
		}
	}

	inv, err := models.GetStoreInventory(ctx, csStore.ID, batchId)
	if err != nil {
		t.Fatalf("GetStoreInventory: %v", err)
	}
	if inv.QuantityQrTagged != 10 {
		t.Fatalf("expected qr_tagged=10, got %d", inv.QuantityQrTagged)
	}

	// 40 untagged units remain; a run of 45 must fail without partial effect.
	if _, err := models.GenerateAssetTags(ctx, &models.GenerateAssetTagsInput{
		BatchId: batchId, StoreId: csStore.ID, StockRegisterId: csReg.ID, Quantity: 45,
	}); !utils.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock for oversize tag run, got %v", err)
	}
	inv, _ = models.GetStoreInventory(ctx, csStore.ID, batchId)
	if inv.QuantityQrTagged != 10 {
		t.Fatalf("failed tag run must not change qr_tagged; got %d", inv.QuantityQrTagged)
	}

	// Tag generation records a zero-quantity ledger entry; balance is unchanged.
	if bal, _ := models.GetLedgerBalance(ctx, chair.ID, csReg.ID); bal != 50 {
		t.Fatalf("expected ledger balance 50 after tag run; got %d", bal)
	}

	// An issue that would dip into the tagged units fails at issue time, not
	// at acknowledgment.
	tnTagged, err := models.CreateTransferNote(ctx, &models.NewTransferNote{
		FromStoreId:     csStore.ID,
		ToStoreId:       &csAnnex.ID,
		StockRegisterId: csReg.ID,
		TransferDate:    time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		Items:           []models.NewTransferNoteItem{{BatchId: batchId, QuantitySent: 45}},
	})
	if err != nil {
		t.Fatalf("CreateTransferNote(tagged): %v", err)
	}
	if _, err := models.IssueTransferNote(ctx, tnTagged.ID); !utils.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock issuing into tagged units, got %v", err)
	}
	inv, _ = models.GetStoreInventory(ctx, csStore.ID, batchId)
	if inv.QuantityOnHand != 50 || inv.QuantityAllocated != 0 {
		t.Fatalf("failed issue must not move stock; got %+v", inv)
	}

	// 3) Transfer 15 units to the annex store and acknowledge in full.
	tn, err := models.CreateTransferNote(ctx, &models.NewTransferNote{
		FromStoreId:     csStore.ID,
		ToStoreId:       &csAnnex.ID,
		StockRegisterId: csReg.ID,
		TransferDate:    time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		Items:           []models.NewTransferNoteItem{{BatchId: batchId, QuantitySent: 15}},
	})
	if err != nil {
		t.Fatalf("CreateTransferNote: %v", err)
	}

	issued, err := models.IssueTransferNote(ctx, tn.ID)
	if err != nil {
		t.Fatalf("IssueTransferNote: %v", err)
	}
	if issued.Status != models.TransferNoteStatusIssued {
		t.Fatalf("expected ISSUED, got %s", issued.Status)
	}

	inv, _ = models.GetStoreInventory(ctx, csStore.ID, batchId)
	if inv.QuantityOnHand != 35 || inv.QuantityAllocated != 15 {
		t.Fatalf("after issue: expected on_hand=35 allocated=15; got %+v", inv)
	}
	if bal, _ := models.GetLedgerBalance(ctx, chair.ID, csReg.ID); bal != 35 {
		t.Fatalf("expected source ledger balance 35 after issue; got %d", bal)
	}
	batch, err := models.GetBatch(ctx, batchId)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.CurrentQuantity != 35 {
		t.Fatalf("expected batch current_quantity=35 after issue; got %d", batch.CurrentQuantity)
	}

	received, err := models.AcknowledgeTransferNote(ctx, tn.ID, []models.TransferAckLine{
		{TransferNoteItemId: issued.Items[0].ID, QuantityReceived: 15, StockRegisterId: &annexReg.ID},
	})
	if err != nil {
		t.Fatalf("AcknowledgeTransferNote: %v", err)
	}
	if received.Status != models.TransferNoteStatusReceived {
		t.Fatalf("expected RECEIVED, got %s", received.Status)
	}

	inv, _ = models.GetStoreInventory(ctx, csStore.ID, batchId)
	if inv.QuantityOnHand != 35 || inv.QuantityAllocated != 0 {
		t.Fatalf("after ack: expected source on_hand=35 allocated=0; got %+v", inv)
	}
	destInv, err := models.GetStoreInventory(ctx, csAnnex.ID, batchId)
	if err != nil {
		t.Fatalf("GetStoreInventory(dest): %v", err)
	}
	if destInv.QuantityOnHand != 15 {
		t.Fatalf("expected dest on_hand=15; got %+v", destInv)
	}
	if bal, _ := models.GetLedgerBalance(ctx, chair.ID, annexReg.ID); bal != 15 {
		t.Fatalf("expected dest ledger balance 15; got %d", bal)
	}

	// 4) Cancelling an issued note restores the reservation and the batch.
	tn2, err := models.CreateTransferNote(ctx, &models.NewTransferNote{
		FromStoreId:     csStore.ID,
		ToStoreId:       &csAnnex.ID,
		StockRegisterId: csReg.ID,
		TransferDate:    time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
		Items:           []models.NewTransferNoteItem{{BatchId: batchId, QuantitySent: 5}},
	})
	if err != nil {
		t.Fatalf("CreateTransferNote(tn2): %v", err)
	}
	if _, err := models.IssueTransferNote(ctx, tn2.ID); err != nil {
		t.Fatalf("IssueTransferNote(tn2): %v", err)
	}
	cancelled, err := models.CancelTransferNote(ctx, tn2.ID)
	if err != nil {
		t.Fatalf("CancelTransferNote: %v", err)
	}
	if cancelled.Status != models.TransferNoteStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	inv, _ = models.GetStoreInventory(ctx, csStore.ID, batchId)
	if inv.QuantityOnHand != 35 || inv.QuantityAllocated != 0 {
		t.Fatalf("after cancel: expected on_hand=35 allocated=0; got %+v", inv)
	}
	batch, _ = models.GetBatch(ctx, batchId)
	if batch.CurrentQuantity != 35 {
		t.Fatalf("expected batch current_quantity restored to 35; got %d", batch.CurrentQuantity)
	}
	if bal, _ := models.GetLedgerBalance(ctx, chair.ID, csReg.ID); bal != 35 {
		t.Fatalf("expected source ledger balance back to 35 after cancel; got %d", bal)
	}

	// A received note cannot be cancelled.
	if _, err := models.CancelTransferNote(ctx, tn.ID); !utils.IsInvalidStateTransition(err) {
		t.Fatalf("expected invalid state transition cancelling received note, got %v", err)
	}

	// 5) A certificate with every line rejected cannot be processed, and the
	// failed attempt leaves it unprocessed.
	rejCert, err := models.CreateInspectionCertificate(ctx, &models.NewInspectionCertificate{
		CertificateNumber: "IC-2026-002",
		CertificateDate:   time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		DepartmentId:      deptCS.ID,
		Contractor:        "Acme Furnishings",
		Items: []models.NewInspectionItem{
			{ItemId: chair.ID, TenderedQuantity: 8, AcceptedQuantity: 0, RejectedQuantity: 8, RejectionReason: "cracked frames"},
		},
	})
	if err != nil {
		t.Fatalf("CreateInspectionCertificate(rejected): %v", err)
	}
	if _, err := models.ProcessInspectionCertificate(ctx, rejCert.ID, &models.ProcessInspection{
		StoreId:         csStore.ID,
		StockRegisterId: csReg.ID,
	}); !utils.IsValidationError(err) {
		t.Fatalf("expected validation error processing fully rejected certificate, got %v", err)
	}
	rejCert, err = models.GetInspectionCertificate(ctx, rejCert.ID)
	if err != nil {
		t.Fatalf("GetInspectionCertificate: %v", err)
	}
	if rejCert.ProcessedAt != nil {
		t.Fatalf("fully rejected certificate must stay unprocessed")
	}
}

// Covers requisition fulfilment from the main university store: approval
// reserves nothing, transit reserves and posts ISSUE entries, acknowledgement
// settles the reservation and records receipt on the requesting register
// without opening a pool there. Ends with a manual write-off adjustment.
func TestRequisitionFulfilmentAndAdjustment(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)

	deptMain, err := models.CreateDepartment(ctx, &models.NewDepartment{
		Name: "University Central", IsMainUniversityStore: utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateDepartment(main): %v", err)
	}
	deptCS, err := models.CreateDepartment(ctx, &models.NewDepartment{Name: "Computer Science"})
	if err != nil {
		t.Fatalf("CreateDepartment(cs): %v", err)
	}

	mainStore, err := models.CreateStore(ctx, &models.NewStore{
		Name: "Main University Store", Code: "MAIN-01", StoreType: models.StoreTypeMain, DepartmentId: deptMain.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(main): %v", err)
	}
	csStore, err := models.CreateStore(ctx, &models.NewStore{
		Name: "CS Store", Code: "CS-01", StoreType: models.StoreTypeSub, DepartmentId: deptCS.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(cs): %v", err)
	}

	mainReg, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "Main Consumables", RegisterType: models.RegisterTypeConsumable, StoreId: mainStore.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(main): %v", err)
	}
	csReg, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "CS Consumables", RegisterType: models.RegisterTypeConsumable, StoreId: csStore.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(cs): %v", err)
	}

	category, err := models.CreateItemCategory(ctx, &models.NewItemCategory{Name: "Stationery", Code: "STA"})
	if err != nil {
		t.Fatalf("CreateItemCategory: %v", err)
	}
	paper, err := models.CreateItem(ctx, &models.NewItem{
		Name: "A4 Paper Ream", Code: "PAPER1", DepartmentId: deptMain.ID, CategoryId: category.ID,
		Unit: "ream", SourceType: models.ItemSourceTypeUniversityStore,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	stapler, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Heavy Stapler", Code: "STAPL1", DepartmentId: deptMain.ID, CategoryId: category.ID,
		Unit: "pcs", SourceType: models.ItemSourceTypeUniversityStore,
	})
	if err != nil {
		t.Fatalf("CreateItem(stapler): %v", err)
	}

	// Stock the main store via inspection intake: 100 reams.
	cert, err := models.CreateInspectionCertificate(ctx, &models.NewInspectionCertificate{
		CertificateNumber: "IC-2026-100",
		CertificateDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DepartmentId:      deptMain.ID,
		Contractor:        "Paper Mills Ltd",
		Items: []models.NewInspectionItem{
			{ItemId: paper.ID, TenderedQuantity: 100, AcceptedQuantity: 100},
		},
	})
	if err != nil {
		t.Fatalf("CreateInspectionCertificate: %v", err)
	}
	if _, err := models.ProcessInspectionCertificate(ctx, cert.ID, &models.ProcessInspection{
		StoreId:         mainStore.ID,
		StockRegisterId: mainReg.ID,
		Lines: []models.IntakeLine{
			{InspectionItemId: cert.Items[0].ID, UnitPrice: decimal.NewFromInt(350)},
		},
	}); err != nil {
		t.Fatalf("ProcessInspectionCertificate: %v", err)
	}

	mainRows, err := models.ListStoreInventory(ctx, &mainStore.ID, nil)
	if err != nil || len(mainRows) != 1 {
		t.Fatalf("expected one main pool row; got %v, err=%v", mainRows, err)
	}
	batchId := mainRows[0].BatchId

	// Requisition: CS asks the main store for 20 reams.
	req, err := models.CreateRequisition(ctx, &models.NewRequisition{
		RequestingStoreId: csStore.ID,
		FulfillingStoreId: mainStore.ID,
		RequisitionDate:   time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Purpose: "semester printing",
		Items: []models.NewRequisitionItem{
			{ItemId: paper.ID, RequestedQuantity: 20},
			{ItemId: stapler.ID, RequestedQuantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("CreateRequisition: %v", err)
	}

	// Transit before approval must be rejected.
	if _, err := models.MakeTransitRequisition(ctx, req.ID); !utils.IsInvalidStateTransition(err) {
		t.Fatalf("expected invalid state transition for transit from DRAFT, got %v", err)
	}

	if _, err := models.SubmitRequisition(ctx, req.ID); err != nil {
		t.Fatalf("SubmitRequisition: %v", err)
	}

	// Refusing a line without a reason is a validation error.
	_, err = models.ApproveRequisition(ctx, req.ID, []models.ProcessLine{
		{RequisitionItemId: req.Items[0].ID, ProvidedQuantity: 20, BatchId: &batchId, MainStockRegisterId: &mainReg.ID},
		{RequisitionItemId: req.Items[1].ID, ProvidedQuantity: 0},
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error for rejection without reason, got %v", err)
	}

	approved, err := models.ApproveRequisition(ctx, req.ID, []models.ProcessLine{
		{RequisitionItemId: req.Items[0].ID, ProvidedQuantity: 20, BatchId: &batchId, MainStockRegisterId: &mainReg.ID},
		{RequisitionItemId: req.Items[1].ID, ProvidedQuantity: 0, RejectReason: "out of stock at main store"},
	})
	if err != nil {
		t.Fatalf("ApproveRequisition: %v", err)
	}
	if approved.Status != models.RequisitionStatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}
	var rejectedLine *models.RequisitionItem
	for i := range approved.Items {
		if approved.Items[i].ItemId == stapler.ID {
			rejectedLine = &approved.Items[i]
		}
	}
	if rejectedLine == nil || rejectedLine.IsRejected == nil || !*rejectedLine.IsRejected || rejectedLine.ProvidedQuantity != 0 {
		t.Fatalf("expected stapler line rejected with zero provided, got %+v", rejectedLine)
	}

	// Approval itself must not touch the pool.
	inv, _ := models.GetStoreInventory(ctx, mainStore.ID, batchId)
	if inv.QuantityOnHand != 100 || inv.QuantityAllocated != 0 {
		t.Fatalf("approval must not move stock; got %+v", inv)
	}

	transit, err := models.MakeTransitRequisition(ctx, req.ID)
	if err != nil {
		t.Fatalf("MakeTransitRequisition: %v", err)
	}
	if transit.Status != models.RequisitionStatusInTransit {
		t.Fatalf("expected IN_TRANSIT, got %s", transit.Status)
	}
	inv, _ = models.GetStoreInventory(ctx, mainStore.ID, batchId)
	if inv.QuantityOnHand != 80 || inv.QuantityAllocated != 20 {
		t.Fatalf("after transit: expected on_hand=80 allocated=20; got %+v", inv)
	}
	if bal, _ := models.GetLedgerBalance(ctx, paper.ID, mainReg.ID); bal != 80 {
		t.Fatalf("expected main ledger balance 80 after transit; got %d", bal)
	}

	acked, err := models.AcknowledgeRequisition(ctx, req.ID, []models.RequisitionAckLine{
		{RequisitionItemId: req.Items[0].ID, QuantityReceived: 20, StockRegisterId: csReg.ID},
	})
	if err != nil {
		t.Fatalf("AcknowledgeRequisition: %v", err)
	}
	if acked.Status != models.RequisitionStatusReceived {
		t.Fatalf("expected RECEIVED, got %s", acked.Status)
	}

	inv, _ = models.GetStoreInventory(ctx, mainStore.ID, batchId)
	if inv.QuantityOnHand != 80 || inv.QuantityAllocated != 0 {
		t.Fatalf("after ack: expected on_hand=80 allocated=0; got %+v", inv)
	}
	// The receiving department records the receipt in its register but holds
	// no batch pool; pooled custody stays with the holding store.
	if bal, _ := models.GetLedgerBalance(ctx, paper.ID, csReg.ID); bal != 20 {
		t.Fatalf("expected requesting register balance 20; got %d", bal)
	}
	if _, err := models.GetStoreInventory(ctx, csStore.ID, batchId); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected no pool row at requesting store, got %v", err)
	}

	// Manual write-off at the main store.
	adj, err := models.CreateAdjustmentEntry(ctx, &models.NewAdjustment{
		ItemId:           paper.ID,
		BatchId:          &batchId,
		StoreId:          mainStore.ID,
		StockRegisterId:  mainReg.ID,
		Quantity:         -5,
		AdjustmentReason: "water damage in storage",
	})
	if err != nil {
		t.Fatalf("CreateAdjustmentEntry: %v", err)
	}
	if adj.Quantity != -5 || adj.EntryType != models.StockEntryTypeAdjustment {
		t.Fatalf("unexpected adjustment entry: %+v", adj)
	}
	inv, _ = models.GetStoreInventory(ctx, mainStore.ID, batchId)
	if inv.QuantityOnHand != 75 {
		t.Fatalf("after adjustment: expected on_hand=75; got %+v", inv)
	}
	if bal, _ := models.GetLedgerBalance(ctx, paper.ID, mainReg.ID); bal != 75 {
		t.Fatalf("expected main ledger balance 75 after adjustment; got %d", bal)
	}

	// A receipt may follow a batch-less adjustment that left the register
	// balance negative; increases are never blocked by the running balance.
	toner, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Printer Toner", Code: "TONER1", DepartmentId: deptMain.ID, CategoryId: category.ID,
		Unit: "pcs", SourceType: models.ItemSourceTypeUniversityStore,
	})
	if err != nil {
		t.Fatalf("CreateItem(toner): %v", err)
	}
	backlog, err := models.CreateAdjustmentEntry(ctx, &models.NewAdjustment{
		ItemId:           toner.ID,
		StoreId:          mainStore.ID,
		StockRegisterId:  mainReg.ID,
		Quantity:         -5,
		AdjustmentReason: "pre-system issue backlog",
	})
	if err != nil {
		t.Fatalf("CreateAdjustmentEntry(backlog): %v", err)
	}
	if backlog.Balance != -5 {
		t.Fatalf("expected backlog balance -5; got %d", backlog.Balance)
	}
	tonerCert, err := models.CreateInspectionCertificate(ctx, &models.NewInspectionCertificate{
		CertificateNumber: "IC-2026-101",
		CertificateDate:   time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		DepartmentId:      deptMain.ID,
		Contractor:        "Toner Traders",
		Items: []models.NewInspectionItem{
			{ItemId: toner.ID, TenderedQuantity: 3, AcceptedQuantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateInspectionCertificate(toner): %v", err)
	}
	if _, err := models.ProcessInspectionCertificate(ctx, tonerCert.ID, &models.ProcessInspection{
		StoreId:         mainStore.ID,
		StockRegisterId: mainReg.ID,
		Lines: []models.IntakeLine{
			{InspectionItemId: tonerCert.Items[0].ID},
		},
	}); err != nil {
		t.Fatalf("ProcessInspectionCertificate(toner): %v", err)
	}
	if bal, _ := models.GetLedgerBalance(ctx, toner.ID, mainReg.ID); bal != -2 {
		t.Fatalf("expected toner balance -2 after receipt into deficit; got %d", bal)
	}
}

// Exercises the ledger and pools under contention: two issues racing over the
// same stock admit exactly one winner, and receipts arriving from two source
// stores at one destination register keep the running balance a prefix sum.
func TestConcurrentStockMovements(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)

	dept, err := models.CreateDepartment(ctx, &models.NewDepartment{Name: "Mechanical"})
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	srcA, err := models.CreateStore(ctx, &models.NewStore{
		Name: "ME Store A", Code: "ME-01", StoreType: models.StoreTypeSub, DepartmentId: dept.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(srcA): %v", err)
	}
	srcB, err := models.CreateStore(ctx, &models.NewStore{
		Name: "ME Store B", Code: "ME-02", StoreType: models.StoreTypeSub, DepartmentId: dept.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(srcB): %v", err)
	}
	dest, err := models.CreateStore(ctx, &models.NewStore{
		Name: "ME Workshop", Code: "ME-03", StoreType: models.StoreTypeSub, DepartmentId: dept.ID,
	})
	if err != nil {
		t.Fatalf("CreateStore(dest): %v", err)
	}

	regA, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "A Deadstock", RegisterType: models.RegisterTypeDeadStock, StoreId: srcA.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(regA): %v", err)
	}
	regB, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "B Deadstock", RegisterType: models.RegisterTypeDeadStock, StoreId: srcB.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(regB): %v", err)
	}
	destReg, err := models.CreateStockRegister(ctx, &models.NewStockRegister{
		RegisterName: "Workshop Deadstock", RegisterType: models.RegisterTypeDeadStock, StoreId: dest.ID,
	})
	if err != nil {
		t.Fatalf("CreateStockRegister(destReg): %v", err)
	}

	category, err := models.CreateItemCategory(ctx, &models.NewItemCategory{Name: "Hardware", Code: "HRD"})
	if err != nil {
		t.Fatalf("CreateItemCategory: %v", err)
	}
	bolt, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Anchor Bolt", Code: "BOLT1", DepartmentId: dept.ID, CategoryId: category.ID,
		Unit: "pcs", SourceType: models.ItemSourceTypeDeptPurchase,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	intake := func(certNumber string, storeId, registerId, qty int) int {
		t.Helper()
		cert, err := models.CreateInspectionCertificate(ctx, &models.NewInspectionCertificate{
			CertificateNumber: certNumber,
			CertificateDate:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			DepartmentId:      dept.ID,
			Contractor:        "Bolt Works",
			Items: []models.NewInspectionItem{
				{ItemId: bolt.ID, TenderedQuantity: qty, AcceptedQuantity: qty},
			},
		})
		if err != nil {
			t.Fatalf("CreateInspectionCertificate(%s): %v", certNumber, err)
		}
		if _, err := models.ProcessInspectionCertificate(ctx, cert.ID, &models.ProcessInspection{
			StoreId:         storeId,
			StockRegisterId: registerId,
			Lines: []models.IntakeLine{
				{InspectionItemId: cert.Items[0].ID},
			},
		}); err != nil {
			t.Fatalf("ProcessInspectionCertificate(%s): %v", certNumber, err)
		}
		rows, err := models.ListStoreInventory(ctx, &storeId, nil)
		if err != nil || len(rows) != 1 {
			t.Fatalf("ListStoreInventory(store %d): %v, err=%v", storeId, rows, err)
		}
		return rows[0].BatchId
	}

	batchA := intake("IC-2026-200", srcA.ID, regA.ID, 40)
	batchB := intake("IC-2026-201", srcB.ID, regB.ID, 15)

	makeNote := func(fromStoreId, registerId, batchId, qty int) *models.TransferNote {
		t.Helper()
		note, err := models.CreateTransferNote(ctx, &models.NewTransferNote{
			FromStoreId:     fromStoreId,
			ToStoreId:       &dest.ID,
			StockRegisterId: registerId,
			TransferDate:    time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
			Items:           []models.NewTransferNoteItem{{BatchId: batchId, QuantitySent: qty}},
		})
		if err != nil {
			t.Fatalf("CreateTransferNote: %v", err)
		}
		return note
	}

	n1 := makeNote(srcA.ID, regA.ID, batchA, 30)
	n2 := makeNote(srcA.ID, regA.ID, batchA, 30)

	// 1) Two issues race over 40 on-hand units; only one can win and the
	// counters must never go negative.
	var wg sync.WaitGroup
	issueErrs := make([]error, 2)
	for i, noteId := range []int{n1.ID, n2.ID} {
		wg.Add(1)
		go func(slot, id int) {
			defer wg.Done()
			_, issueErrs[slot] = models.IssueTransferNote(ctx, id)
		}(i, noteId)
	}
	wg.Wait()

	winners := 0
	for _, err := range issueErrs {
		if err == nil {
			winners++
			continue
		}
		if !utils.IsInsufficientStock(err) && !errors.Is(err, utils.ErrConcurrencyConflict) {
			t.Fatalf("unexpected issue error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one racing issue to win; errs=%v", issueErrs)
	}
	inv, err := models.GetStoreInventory(ctx, srcA.ID, batchA)
	if err != nil {
		t.Fatalf("GetStoreInventory: %v", err)
	}
	if inv.QuantityOnHand != 10 || inv.QuantityAllocated != 30 {
		t.Fatalf("after racing issues: expected on_hand=10 allocated=30; got %+v", inv)
	}
	if bal, _ := models.GetLedgerBalance(ctx, bolt.ID, regA.ID); bal != 10 {
		t.Fatalf("expected srcA balance 10 after single issue; got %d", bal)
	}

	winnerId := n1.ID
	if issueErrs[0] != nil {
		winnerId = n2.ID
	}
	issuedA, err := models.GetTransferNote(ctx, winnerId)
	if err != nil {
		t.Fatalf("GetTransferNote(winner): %v", err)
	}

	nB := makeNote(srcB.ID, regB.ID, batchB, 15)
	issuedB, err := models.IssueTransferNote(ctx, nB.ID)
	if err != nil {
		t.Fatalf("IssueTransferNote(srcB): %v", err)
	}

	// 2) Both sources acknowledge into the same destination register at once.
	// The stock locks only cover the source stores, so this leans on the
	// ledger-level serialization for the destination pair.
	ackErrs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ackErrs[0] = models.AcknowledgeTransferNote(ctx, issuedA.ID, []models.TransferAckLine{
			{TransferNoteItemId: issuedA.Items[0].ID, QuantityReceived: 30, StockRegisterId: &destReg.ID},
		})
	}()
	go func() {
		defer wg.Done()
		_, ackErrs[1] = models.AcknowledgeTransferNote(ctx, issuedB.ID, []models.TransferAckLine{
			{TransferNoteItemId: issuedB.Items[0].ID, QuantityReceived: 15, StockRegisterId: &destReg.ID},
		})
	}()
	wg.Wait()
	for i, err := range ackErrs {
		if err != nil {
			t.Fatalf("AcknowledgeTransferNote(%d): %v", i, err)
		}
	}

	if bal, _ := models.GetLedgerBalance(ctx, bolt.ID, destReg.ID); bal != 45 {
		t.Fatalf("expected destination balance 45 after both receipts; got %d", bal)
	}
	limit := 10
	page, err := models.PaginateStockEntry(ctx, &limit, nil, &destReg.ID, &bolt.ID, nil)
	if err != nil {
		t.Fatalf("PaginateStockEntry: %v", err)
	}
	var receipts []*models.StockEntry
	for _, edge := range page.Edges {
		if edge.Node.EntryType == models.StockEntryTypeReceipt {
			receipts = append(receipts, edge.Node)
		}
	}
	if len(receipts) != 2 {
		t.Fatalf("expected two receipt entries at destination, got %d", len(receipts))
	}
	if receipts[0].Balance == receipts[1].Balance {
		t.Fatalf("receipt balances must be distinct prefix sums; got %d and %d",
			receipts[0].Balance, receipts[1].Balance)
	}
	if receipts[0].Balance != 45 && receipts[1].Balance != 45 {
		t.Fatalf("one receipt must close at balance 45; got %d and %d",
			receipts[0].Balance, receipts[1].Balance)
	}
}

// setupIntegrationEnv starts throwaway MySQL and Redis containers, wires the
// config env vars, connects and migrates. Returns a context with an acting
// user attached.
func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "inventry_test")
	// Helpful to see logs in CI when debugging failures.
	t.Setenv("DEBUG_WORKFLOWS", "INSPECTION,TRANSFER_NOTE,REQUISITION")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetIsAdminInContext(ctx, true)
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("inventry-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("inventry-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=inventry_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
