package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type Item struct {
	ID                     int            `gorm:"primary_key" json:"id"`
	Name                   string         `gorm:"size:255;not null" json:"name" binding:"required"`
	Code                   string         `gorm:"size:50;not null;uniqueIndex:idx_item_code_department" json:"code" binding:"required"`
	DepartmentId           int            `gorm:"not null;uniqueIndex:idx_item_code_department" json:"department_id" binding:"required"`
	Department             *Department    `gorm:"foreignKey:DepartmentId" json:"department,omitempty"`
	CategoryId             int            `gorm:"index;not null" json:"category_id" binding:"required"`
	Category               *ItemCategory  `gorm:"foreignKey:CategoryId" json:"category,omitempty"`
	Specifications         string         `gorm:"type:json" json:"specifications"`
	Unit                   string         `gorm:"size:50;not null" json:"unit" binding:"required"`
	SourceType             ItemSourceType `gorm:"type:enum('DEPT_PURCHASE','UNIVERSITY_STORE');not null" json:"source_type" binding:"required"`
	UniversityMasterItemId *int           `gorm:"index" json:"university_master_item_id"`
	IsActive               *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Name                   string         `json:"name" binding:"required"`
	Code                   string         `json:"code" binding:"required"`
	DepartmentId           int            `json:"department_id" binding:"required"`
	CategoryId             int            `json:"category_id" binding:"required"`
	Specifications         string         `json:"specifications"`
	Unit                   string         `json:"unit" binding:"required"`
	SourceType             ItemSourceType `json:"source_type" binding:"required"`
	UniversityMasterItemId *int           `json:"university_master_item_id"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewItem) validate(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[Department](ctx, input.DepartmentId); err != nil {
		return utils.NewValidationError("department not found")
	}
	if err := utils.ValidateResourceId[ItemCategory](ctx, input.CategoryId); err != nil {
		return utils.NewValidationError("category not found")
	}
	if input.SourceType == ItemSourceTypeUniversityStore {
		if input.UniversityMasterItemId == nil {
			return utils.NewValidationError("university master item is required for university store items")
		}
		if err := utils.ValidateResourceId[Item](ctx, *input.UniversityMasterItemId); err != nil {
			return utils.NewValidationError("university master item not found")
		}
	}
	// code unique within the department
	var count int64
	var err error
	if id == 0 {
		count, err = utils.ResourceCountWhere[Item](ctx, "code = ? AND department_id = ?", input.Code, input.DepartmentId)
	} else {
		count, err = utils.ResourceCountWhere[Item](ctx, "code = ? AND department_id = ? AND NOT id = ?", input.Code, input.DepartmentId, id)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("duplicate item code in department")
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	specs := input.Specifications
	if specs == "" {
		specs = "{}"
	}

	item := Item{
		Name:                   input.Name,
		Code:                   input.Code,
		DepartmentId:           input.DepartmentId,
		CategoryId:             input.CategoryId,
		Specifications:         specs,
		Unit:                   input.Unit,
		SourceType:             input.SourceType,
		UniversityMasterItemId: input.UniversityMasterItemId,
		IsActive:               utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Name":                   input.Name,
		"Code":                   input.Code,
		"DepartmentId":           input.DepartmentId,
		"CategoryId":             input.CategoryId,
		"Specifications":         input.Specifications,
		"Unit":                   input.Unit,
		"SourceType":             input.SourceType,
		"UniversityMasterItemId": input.UniversityMasterItemId,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Item](id); err != nil {
		return nil, err
	}

	return item, nil
}

func ToggleActiveItem(ctx context.Context, id int, isActive bool) (*Item, error) {

	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&item).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Item](id); err != nil {
		return nil, err
	}
	return item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	return GetResource[Item](ctx, id, "Department", "Category")
}

func ListItem(ctx context.Context, name *string, departmentId *int, categoryId *int) ([]*Item, error) {

	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if departmentId != nil {
		dbCtx = dbCtx.Where("department_id = ?", *departmentId)
	}
	if categoryId != nil {
		dbCtx = dbCtx.Where("category_id = ?", *categoryId)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
