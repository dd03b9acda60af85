package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// GormGiftRepository implements GiftRepository using GORM.
type GormGiftRepository struct {
	db *gorm.DB
}

// NewGormGiftRepository creates a new GORM-based gift catalog repository.
func NewGormGiftRepository(db *gorm.DB) *GormGiftRepository {
	return &GormGiftRepository{db: db}
}

// Create inserts a catalog entry.
func (r *GormGiftRepository) Create(ctx context.Context, gift *domain.Gift) error {
	model := domain.GiftModel{
		ID:                 gift.ID,
		Name:               gift.Name,
		Price:              gift.Price,
		Category:           gift.Category,
		Icon:               gift.Icon,
		IsLucky:            gift.IsLucky,
		TriggersAutoFollow: gift.TriggersAutoFollow,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// GetByID retrieves a gift by ID.
func (r *GormGiftRepository) GetByID(ctx context.Context, id string) (*domain.Gift, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByName retrieves a gift by its catalog name.
func (r *GormGiftRepository) GetByName(ctx context.Context, name string) (*domain.Gift, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *GormGiftRepository) first(ctx context.Context, query string, arg string) (*domain.Gift, error) {
	var model domain.GiftModel
	if err := r.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGiftNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("gift", arg).Msg("failed to get gift")
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns the catalog ordered by price.
func (r *GormGiftRepository) List(ctx context.Context) ([]domain.Gift, error) {
	var models []domain.GiftModel
	if err := r.db.WithContext(ctx).Order("price ASC, name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	gifts := make([]domain.Gift, len(models))
	for i := range models {
		gifts[i] = *models[i].ToDomain()
	}
	return gifts, nil
}
