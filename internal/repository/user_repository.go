package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"leftear-ai/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.firstWhere("id = ?", id)
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.firstWhere("username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.firstWhere("email = ?", email)
}

// firstWhere returns (nil, nil) when no row matches.
func (r *UserRepository) firstWhere(cond string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.Where(cond, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	return &user, nil
}
