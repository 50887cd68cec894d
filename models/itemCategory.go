package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type ItemCategory struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Code        string    `gorm:"size:50;not null;unique" json:"code" binding:"required"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItemCategory struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

func (input *NewItemCategory) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[ItemCategory](ctx, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateItemCategory(ctx context.Context, input *NewItemCategory) (*ItemCategory, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	category := ItemCategory{
		Name:        input.Name,
		Code:        input.Code,
		Description: input.Description,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateItemCategory(ctx context.Context, id int, input *NewItemCategory) (*ItemCategory, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	category, err := utils.FetchModel[ItemCategory](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&category).Updates(map[string]interface{}{
		"Name":        input.Name,
		"Code":        input.Code,
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[ItemCategory](id); err != nil {
		return nil, err
	}

	return category, nil
}

func DeleteItemCategory(ctx context.Context, id int) (*ItemCategory, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[ItemCategory](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Item](ctx, "category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("category has items")
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[ItemCategory](id); err != nil {
		return nil, err
	}
	return result, nil
}

func GetItemCategory(ctx context.Context, id int) (*ItemCategory, error) {
	return GetResource[ItemCategory](ctx, id)
}

func ListItemCategory(ctx context.Context, name *string) ([]*ItemCategory, error) {

	db := config.GetDB()
	var results []*ItemCategory

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
