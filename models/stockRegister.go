package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type StockRegister struct {
	ID             int          `gorm:"primary_key" json:"id"`
	RegisterName   string       `gorm:"size:255;not null" json:"register_name" binding:"required"`
	RegisterNumber string       `gorm:"size:50;not null;unique" json:"register_number"`
	RegisterType   RegisterType `gorm:"type:enum('DEADSTOCK','CONSUMABLE','EQUIPMENT');not null" json:"register_type" binding:"required"`
	StoreId        int          `gorm:"index;not null" json:"store_id" binding:"required"`
	Store          *Store       `gorm:"foreignKey:StoreId" json:"store,omitempty"`
	IsActive       *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockRegister struct {
	RegisterName string       `json:"register_name" binding:"required"`
	RegisterType RegisterType `json:"register_type" binding:"required"`
	StoreId      int          `json:"store_id" binding:"required"`
}

func (input *NewStockRegister) validate(ctx context.Context) error {
	if input.RegisterType.Code() == "REG" {
		return utils.NewValidationError("invalid register type %s", input.RegisterType)
	}
	if err := utils.ValidateResourceId[Store](ctx, input.StoreId); err != nil {
		return utils.NewValidationError("store not found")
	}
	return nil
}

func CreateStockRegister(ctx context.Context, input *NewStockRegister) (*StockRegister, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	store, err := GetStore(ctx, input.StoreId)
	if err != nil {
		return nil, err
	}

	register := StockRegister{
		RegisterName: input.RegisterName,
		RegisterType: input.RegisterType,
		StoreId:      input.StoreId,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	tx := db.Begin()

	// register number e.g. "MAIN-01-DSR-001"
	scope := fmt.Sprintf("%s:%s", store.Code, input.RegisterType)
	prefix := fmt.Sprintf("%s-%s", store.Code, input.RegisterType.Code())
	number, err := NextNumber(tx.WithContext(ctx), NumberKindRegister, scope, prefix, 3)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	register.RegisterNumber = number

	if err := tx.WithContext(ctx).Create(&register).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &register, nil
}

func UpdateStockRegister(ctx context.Context, id int, input *NewStockRegister) (*StockRegister, error) {

	register, err := utils.FetchModel[StockRegister](ctx, id)
	if err != nil {
		return nil, err
	}

	// type and store are baked into the register number; only rename
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&register).Updates(map[string]interface{}{
		"RegisterName": input.RegisterName,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[StockRegister](id); err != nil {
		return nil, err
	}

	return register, nil
}

func ToggleActiveStockRegister(ctx context.Context, id int, isActive bool) (*StockRegister, error) {

	register, err := utils.FetchModel[StockRegister](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&register).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[StockRegister](id); err != nil {
		return nil, err
	}
	return register, nil
}

func GetStockRegister(ctx context.Context, id int) (*StockRegister, error) {
	return GetResource[StockRegister](ctx, id)
}

func ListStockRegister(ctx context.Context, storeId *int, registerType *RegisterType) ([]*StockRegister, error) {

	db := config.GetDB()
	var results []*StockRegister

	dbCtx := db.WithContext(ctx)
	if storeId != nil {
		dbCtx = dbCtx.Where("store_id = ?", *storeId)
	}
	if registerType != nil {
		dbCtx = dbCtx.Where("register_type = ?", *registerType)
	}
	err := dbCtx.Order("register_number").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
