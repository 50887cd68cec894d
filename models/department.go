package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type Department struct {
	ID                      int       `gorm:"primary_key" json:"id"`
	Name                    string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Code                    string    `gorm:"size:50;not null;unique" json:"code"`
	IsMainUniversityStore   *bool     `gorm:"not null;default:false" json:"is_main_university_store"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDepartment struct {
	Name                  string `json:"name" binding:"required"`
	IsMainUniversityStore *bool  `json:"is_main_university_store"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewDepartment) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Department](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateDepartment(ctx context.Context, input *NewDepartment) (*Department, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	isMain := input.IsMainUniversityStore
	if isMain == nil {
		isMain = utils.NewFalse()
	}

	department := Department{
		Name:                  input.Name,
		IsMainUniversityStore: isMain,
	}

	db := config.GetDB()
	tx := db.Begin()

	// code e.g. "Computer Science Department" -> "CSD-01"
	base := utils.CodePrefix(input.Name, 3)
	code, err := NextNumber(tx.WithContext(ctx), NumberKindDepartment, base, base, 2)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	department.Code = code

	if err := tx.WithContext(ctx).Create(&department).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &department, nil
}

func UpdateDepartment(ctx context.Context, id int, input *NewDepartment) (*Department, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	department, err := utils.FetchModel[Department](ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"Name": input.Name,
	}
	if input.IsMainUniversityStore != nil {
		updates["IsMainUniversityStore"] = *input.IsMainUniversityStore
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&department).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Department](id); err != nil {
		return nil, err
	}

	return department, nil
}

func DeleteDepartment(ctx context.Context, id int) (*Department, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Department](ctx, id)
	if err != nil {
		return nil, err
	}

	// do not delete departments still referenced by stores or items
	count, err := utils.ResourceCountWhere[Store](ctx, "department_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("department has stores")
	}
	count, err = utils.ResourceCountWhere[Item](ctx, "department_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("department has items")
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Department](id); err != nil {
		return nil, err
	}
	return result, nil
}

func GetDepartment(ctx context.Context, id int) (*Department, error) {
	return GetResource[Department](ctx, id)
}

func ListDepartment(ctx context.Context, name *string) ([]*Department, error) {

	db := config.GetDB()
	var results []*Department

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
