package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/nedworks/inventry_backend/models"
	"bitbucket.org/nedworks/inventry_backend/models/reports"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError maps domain errors onto HTTP statuses. Stock conflicts and
// state machine violations are 409 so clients can retry or refresh.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrAlreadyProcessed),
		errors.Is(err, utils.ErrConcurrencyConflict),
		utils.IsInsufficientStock(err),
		utils.IsInvalidStateTransition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// respondBindingError maps request binding failures to 400, with a per-field
// breakdown when the validator produced one.
func respondBindingError(c *gin.Context, err error) {
	var bindingErrors validator.ValidationErrors
	if errors.As(err, &bindingErrors) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": utils.ProcessValidationErrors(bindingErrors),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func paramId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryIntPtr(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryStrPtr(c *gin.Context, name string) *string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func queryBoolPtr(c *gin.Context, name string) *bool {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v := raw == "1" || raw == "true"
	return &v
}

func queryTimePtr(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// pageArgs returns the cursor pagination arguments with a bounded limit.
func pageArgs(c *gin.Context) (*int, *string) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	return &limit, queryStrPtr(c, "after")
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	info, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func meHandler(c *gin.Context) {
	id, ok := utils.GetUserIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func createDepartmentHandler(c *gin.Context) {
	var input models.NewDepartment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateDepartment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateDepartmentHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewDepartment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateDepartment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deleteDepartmentHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeleteDepartment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getDepartmentHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetDepartment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listDepartmentHandler(c *gin.Context) {
	results, err := models.ListDepartment(c.Request.Context(), queryStrPtr(c, "name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createStoreHandler(c *gin.Context) {
	var input models.NewStore
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateStore(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateStoreHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewStore
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateStore(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deleteStoreHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeleteStore(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getStoreHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetStore(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listStoreHandler(c *gin.Context) {
	results, err := models.ListStore(c.Request.Context(), queryStrPtr(c, "name"), queryIntPtr(c, "department_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createStockRegisterHandler(c *gin.Context) {
	var input models.NewStockRegister
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateStockRegister(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateStockRegisterHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewStockRegister
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateStockRegister(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func toggleStockRegisterHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.ToggleActiveStockRegister(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getStockRegisterHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetStockRegister(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listStockRegisterHandler(c *gin.Context) {
	var registerType *models.RegisterType
	if raw := c.Query("register_type"); raw != "" {
		t := models.RegisterType(raw)
		registerType = &t
	}
	results, err := models.ListStockRegister(c.Request.Context(), queryIntPtr(c, "store_id"), registerType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createLocationHandler(c *gin.Context) {
	var input models.NewLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateLocation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateLocationHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateLocation(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deleteLocationHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeleteLocation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getLocationHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetLocation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listLocationHandler(c *gin.Context) {
	results, err := models.ListLocation(c.Request.Context(), queryStrPtr(c, "name"), queryIntPtr(c, "department_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createItemCategoryHandler(c *gin.Context) {
	var input models.NewItemCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateItemCategory(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateItemCategoryHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewItemCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateItemCategory(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deleteItemCategoryHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeleteItemCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listItemCategoryHandler(c *gin.Context) {
	results, err := models.ListItemCategory(c.Request.Context(), queryStrPtr(c, "name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createItemHandler(c *gin.Context) {
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateItem(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateItemHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateItem(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func toggleItemHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.ToggleActiveItem(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getItemHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listItemHandler(c *gin.Context) {
	results, err := models.ListItem(c.Request.Context(),
		queryStrPtr(c, "name"), queryIntPtr(c, "department_id"), queryIntPtr(c, "category_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func createInspectionHandler(c *gin.Context) {
	var input models.NewInspectionCertificate
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateInspectionCertificate(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateInspectionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewInspectionCertificate
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateInspectionCertificate(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deleteInspectionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeleteInspectionCertificate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func processInspectionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.ProcessInspection
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "ProcessInspectionCertificate")
	defer span.End()
	result, err := models.ProcessInspectionCertificate(ctx, id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getInspectionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetInspectionCertificate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listInspectionHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	result, err := models.PaginateInspectionCertificate(c.Request.Context(), limit, after,
		queryIntPtr(c, "department_id"), queryBoolPtr(c, "processed"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getBatchHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deactivateBatchHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.DeactivateBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listBatchHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	var sourceType *models.BatchSourceType
	if raw := c.Query("source_type"); raw != "" {
		t := models.BatchSourceType(raw)
		sourceType = &t
	}
	activeOnly := c.Query("active_only") == "true" || c.Query("active_only") == "1"
	result, err := models.PaginateBatch(c.Request.Context(), limit, after,
		queryIntPtr(c, "item_id"), queryIntPtr(c, "source_store_id"), sourceType, activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listInventoryHandler(c *gin.Context) {
	results, err := models.ListStoreInventory(c.Request.Context(),
		queryIntPtr(c, "store_id"), queryIntPtr(c, "batch_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func ledgerBalanceHandler(c *gin.Context) {
	itemId := queryIntPtr(c, "item_id")
	registerId := queryIntPtr(c, "stock_register_id")
	if itemId == nil || registerId == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id and stock_register_id are required"})
		return
	}
	balance, err := models.GetLedgerBalance(c.Request.Context(), *itemId, *registerId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":           *itemId,
		"stock_register_id": *registerId,
		"balance":           balance,
	})
}

func createAdjustmentHandler(c *gin.Context) {
	var input models.NewAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateAdjustmentEntry(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func getStockEntryHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetStockEntry(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listStockEntryHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	var entryType *models.StockEntryType
	if raw := c.Query("entry_type"); raw != "" {
		t := models.StockEntryType(raw)
		entryType = &t
	}
	result, err := models.PaginateStockEntry(c.Request.Context(), limit, after,
		queryIntPtr(c, "stock_register_id"), queryIntPtr(c, "item_id"), entryType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createTransferNoteHandler(c *gin.Context) {
	var input models.NewTransferNote
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateTransferNote(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func updateTransferNoteHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewTransferNote
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateTransferNote(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func issueTransferNoteHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.IssueTransferNote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func acknowledgeTransferNoteHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		Lines []models.TransferAckLine `json:"lines" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.AcknowledgeTransferNote(c.Request.Context(), id, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func cancelTransferNoteHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.CancelTransferNote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getTransferNoteHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetTransferNote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listTransferNoteHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	var status *models.TransferNoteStatus
	if raw := c.Query("status"); raw != "" {
		s := models.TransferNoteStatus(raw)
		status = &s
	}
	result, err := models.PaginateTransferNote(c.Request.Context(), limit, after,
		queryIntPtr(c, "from_store_id"), queryIntPtr(c, "to_store_id"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createRequisitionHandler(c *gin.Context) {
	var input models.NewRequisition
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.CreateRequisition(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func submitRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.SubmitRequisition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func approveRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		Lines []models.ProcessLine `json:"lines" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.ApproveRequisition(c.Request.Context(), id, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func rejectRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.RejectRequisition(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func transitRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.MakeTransitRequisition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func acknowledgeRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		Lines []models.RequisitionAckLine `json:"lines" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.AcknowledgeRequisition(c.Request.Context(), id, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getRequisitionHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetRequisition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listRequisitionHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	var status *models.RequisitionStatus
	if raw := c.Query("status"); raw != "" {
		s := models.RequisitionStatus(raw)
		status = &s
	}
	result, err := models.PaginateRequisition(c.Request.Context(), limit, after,
		queryIntPtr(c, "requesting_store_id"), queryIntPtr(c, "fulfilling_store_id"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func generateAssetTagsHandler(c *gin.Context) {
	var input models.GenerateAssetTagsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	tags, err := models.GenerateAssetTags(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tags)
}

func updateAssetTagStatusHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		Status  models.AssetTagStatus `json:"status" binding:"required"`
		Remarks string                `json:"remarks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.UpdateAssetTagStatus(c.Request.Context(), id, req.Status, req.Remarks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func relocateAssetTagHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req struct {
		LocationId int `json:"location_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	result, err := models.RelocateAssetTag(c.Request.Context(), id, req.LocationId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getAssetTagHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	result, err := models.GetAssetTag(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func scanAssetTagHandler(c *gin.Context) {
	qrUuid := c.Param("uuid")
	if qrUuid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}
	result, err := models.GetAssetTagByUuid(c.Request.Context(), qrUuid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listAssetTagHandler(c *gin.Context) {
	limit, after := pageArgs(c)
	var status *models.AssetTagStatus
	if raw := c.Query("status"); raw != "" {
		s := models.AssetTagStatus(raw)
		status = &s
	}
	result, err := models.PaginateAssetTag(c.Request.Context(), limit, after,
		queryIntPtr(c, "batch_id"), queryIntPtr(c, "store_id"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func stockRegisterReportHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	rows, err := reports.GetStockRegisterReport(c.Request.Context(), id,
		queryTimePtr(c, "from_date"), queryTimePtr(c, "to_date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func stockRegisterExportHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	f, err := reports.ExportStockRegisterXlsx(c.Request.Context(), id,
		queryTimePtr(c, "from_date"), queryTimePtr(c, "to_date"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=stock-register.xlsx")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func storeInventoryReportHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	rows, err := reports.GetStoreInventoryReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func batchMovementReportHandler(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	rows, err := reports.GetBatchMovementReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
