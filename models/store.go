package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type Store struct {
	ID              int       `gorm:"primary_key" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Code            string    `gorm:"size:50;not null;unique" json:"code" binding:"required"`
	StoreType       StoreType `gorm:"type:enum('MAIN','SUB');not null" json:"store_type" binding:"required"`
	DepartmentId    int       `gorm:"index;not null" json:"department_id" binding:"required"`
	ParentStoreId   *int      `gorm:"index" json:"parent_store_id"`
	Location        string    `gorm:"type:text" json:"location"`
	InchargeName    string    `gorm:"size:255" json:"incharge_name"`
	InchargeContact string    `gorm:"size:20" json:"incharge_contact"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStore struct {
	Name            string    `json:"name" binding:"required"`
	Code            string    `json:"code" binding:"required"`
	StoreType       StoreType `json:"store_type" binding:"required"`
	DepartmentId    int       `json:"department_id" binding:"required"`
	ParentStoreId   *int      `json:"parent_store_id"`
	Location        string    `json:"location"`
	InchargeName    string    `json:"incharge_name"`
	InchargeContact string    `json:"incharge_contact"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewStore) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Store](ctx, "code", input.Code, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Department](ctx, input.DepartmentId); err != nil {
		return utils.NewValidationError("department not found")
	}
	if input.ParentStoreId != nil {
		if err := utils.ValidateResourceId[Store](ctx, *input.ParentStoreId); err != nil {
			return utils.NewValidationError("parent store not found")
		}
	}
	if len(strings.TrimSpace(input.InchargeContact)) > 0 {
		if err := utils.ValidatePhoneNumber(input.InchargeContact, utils.CountryCode); err != nil {
			return utils.NewValidationError("incharge contact is not a valid phone number")
		}
	}
	return nil
}

func CreateStore(ctx context.Context, input *NewStore) (*Store, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	store := Store{
		Name:            input.Name,
		Code:            strings.ToUpper(input.Code),
		StoreType:       input.StoreType,
		DepartmentId:    input.DepartmentId,
		ParentStoreId:   input.ParentStoreId,
		Location:        input.Location,
		InchargeName:    input.InchargeName,
		InchargeContact: input.InchargeContact,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func UpdateStore(ctx context.Context, id int, input *NewStore) (*Store, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	store, err := utils.FetchModel[Store](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&store).Updates(map[string]interface{}{
		"Name":            input.Name,
		"Code":            strings.ToUpper(input.Code),
		"StoreType":       input.StoreType,
		"DepartmentId":    input.DepartmentId,
		"ParentStoreId":   input.ParentStoreId,
		"Location":        input.Location,
		"InchargeName":    input.InchargeName,
		"InchargeContact": input.InchargeContact,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Store](id); err != nil {
		return nil, err
	}

	return store, nil
}

func DeleteStore(ctx context.Context, id int) (*Store, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Store](ctx, id)
	if err != nil {
		return nil, err
	}

	// check if store holds inventory
	count, err := utils.ResourceCountWhere[StoreInventory](ctx, "store_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("store has stock")
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Store](id); err != nil {
		return nil, err
	}
	return result, nil
}

func GetStore(ctx context.Context, id int) (*Store, error) {
	return GetResource[Store](ctx, id)
}

func ListStore(ctx context.Context, name *string, departmentId *int) ([]*Store, error) {

	db := config.GetDB()
	var results []*Store

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if departmentId != nil {
		dbCtx = dbCtx.Where("department_id = ?", *departmentId)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
