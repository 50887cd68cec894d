package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email        *string   `gorm:"size:100;unique" json:"email"`
	Password     string    `gorm:"size:255;not null" json:"password"`
	Role         UserRole  `gorm:"type:enum('A','S','C');default:C" json:"role"`
	DepartmentId *int      `gorm:"index" json:"department_id"`
	StoreId      *int      `gorm:"index" json:"store_id"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username     string   `json:"username" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Email        string   `json:"email"`
	Password     string   `json:"password" binding:"required"`
	Role         UserRole `json:"role" binding:"required"`
	DepartmentId *int     `json:"department_id"`
	StoreId      *int     `json:"store_id"`
}

type LoginInfo struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("invalid email")
	}
	if input.DepartmentId != nil {
		if err := utils.ValidateResourceId[Department](ctx, *input.DepartmentId); err != nil {
			return nil, utils.NewValidationError("department not found")
		}
	}
	if input.StoreId != nil {
		if err := utils.ValidateResourceId[Store](ctx, *input.StoreId); err != nil {
			return nil, utils.NewValidationError("store not found")
		}
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username:     input.Username,
		Name:         input.Name,
		Password:     string(hashed),
		Role:         input.Role,
		DepartmentId: input.DepartmentId,
		StoreId:      input.StoreId,
		IsActive:     utils.NewTrue(),
	}
	if input.Email != "" {
		user.Email = &input.Email
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, errors.New("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("account is inactive")
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token: token,
		Name:  user.Name,
		Role:  string(user.Role),
	}, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return user, nil
}
