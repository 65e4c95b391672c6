package user

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"guestbook/internal/common"
	"guestbook/internal/dbsql"
)

//go:generate mockgen -source=user_repository.go -destination=mock_user_repository_test.go -package=user

// UserRepository keeps the profile of everyone who signed in.
type UserRepository interface {
	Upsert(ctx context.Context, user *dbsql.User) error
	GetByID(ctx context.Context, id string) (*dbsql.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Upsert inserts the user or refreshes name, email and image on conflict.
func (r *userRepository) Upsert(ctx context.Context, user *dbsql.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "image", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*dbsql.User, error) {
	var user dbsql.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}
