package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create inserts a user.
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := domain.UserModel{
		ID:        user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Level:     user.Level,
		XP:        user.XP,
		Diamonds:  user.Diamonds,
		Earnings:  user.Earnings,
		Role:      user.Role,
	}
	if model.Level == 0 {
		model.Level = 1
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to create user in db")
		return err
	}
	user.Level = model.Level
	user.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return getUser(r.db.WithContext(ctx), id)
}

func getUser(db *gorm.DB, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
