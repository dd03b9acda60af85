package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room. The caller assigns the ID.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListLive returns live rooms, most watched first.
func (r *GormRoomRepository) ListLive(ctx context.Context, category string) ([]domain.Room, error) {
	query := r.db.WithContext(ctx).Where("is_live = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var models []domain.RoomModel
	if err := query.Order("viewers DESC, started_at DESC").Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list live rooms")
		return nil, err
	}
	return toRooms(models), nil
}

// ListLiveByHost returns the live rooms owned by a host.
func (r *GormRoomRepository) ListLiveByHost(ctx context.Context, hostID string) ([]domain.Room, error) {
	var models []domain.RoomModel
	if err := r.db.WithContext(ctx).
		Where("host_id = ? AND is_live = ?", hostID, true).
		Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, hostID).Msg("failed to list host live rooms")
		return nil, err
	}
	return toRooms(models), nil
}

// MarkLive flags a room live with one viewer and raises the peak to at least one.
func (r *GormRoomRepository) MarkLive(ctx context.Context, id string, startedAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"is_live":      true,
		"viewers":      1,
		"peak_viewers": gorm.Expr("CASE WHEN peak_viewers < 1 THEN 1 ELSE peak_viewers END"),
		"started_at":   startedAt,
		"ended_at":     nil,
	})
}

// MarkEnded flags a room offline with zero viewers.
func (r *GormRoomRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"is_live":  false,
		"viewers":  0,
		"ended_at": endedAt,
	})
}

// UpdateViewers writes the current and peak viewer counts.
func (r *GormRoomRepository) UpdateViewers(ctx context.Context, id string, viewers, peak int) error {
	return r.update(ctx, id, map[string]interface{}{
		"viewers":      viewers,
		"peak_viewers": peak,
	})
}

// AddCoins increments the accumulated coin total.
func (r *GormRoomRepository) AddCoins(ctx context.Context, id string, amount int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"coins": gorm.Expr("coins + ?", amount),
	})
}

func (r *GormRoomRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.RoomModel{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to update room in db")
		return result.Error
	}
	return nil
}

func toRooms(models []domain.RoomModel) []domain.Room {
	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms
}
