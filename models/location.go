package models

import (
	"context"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
)

type Location struct {
	ID           int          `gorm:"primary_key" json:"id"`
	Name         string       `gorm:"size:255;not null" json:"name" binding:"required"`
	Code         string       `gorm:"size:50;not null;unique" json:"code" binding:"required"`
	LocationType LocationType `gorm:"type:enum('ROOM','AUDITORIUM','LAB','OFFICE','REPAIR_CENTER','HOSTEL','OTHER');not null" json:"location_type" binding:"required"`
	DepartmentId int          `gorm:"index;not null" json:"department_id" binding:"required"`
	Details      string       `gorm:"type:text" json:"details"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLocation struct {
	Name         string       `json:"name" binding:"required"`
	Code         string       `json:"code" binding:"required"`
	LocationType LocationType `json:"location_type" binding:"required"`
	DepartmentId int          `json:"department_id" binding:"required"`
	Details      string       `json:"details"`
}

func (input *NewLocation) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Location](ctx, "code", input.Code, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Department](ctx, input.DepartmentId); err != nil {
		return utils.NewValidationError("department not found")
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	location := Location{
		Name:         input.Name,
		Code:         input.Code,
		LocationType: input.LocationType,
		DepartmentId: input.DepartmentId,
		Details:      input.Details,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func UpdateLocation(ctx context.Context, id int, input *NewLocation) (*Location, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[Location](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Code":         input.Code,
		"LocationType": input.LocationType,
		"DepartmentId": input.DepartmentId,
		"Details":      input.Details,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Location](id); err != nil {
		return nil, err
	}

	return location, nil
}

func DeleteLocation(ctx context.Context, id int) (*Location, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Location](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[AssetTag](ctx, "current_location_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("location has assets")
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Location](id); err != nil {
		return nil, err
	}
	return result, nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return GetResource[Location](ctx, id)
}

func ListLocation(ctx context.Context, name *string, departmentId *int) ([]*Location, error) {

	db := config.GetDB()
	var results []*Location

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
