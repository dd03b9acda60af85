package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// GormSignalingRepository implements SignalingRepository using GORM.
type GormSignalingRepository struct {
	db *gorm.DB
}

// NewGormSignalingRepository creates a new GORM-based signaling session repository.
func NewGormSignalingRepository(db *gorm.DB) *GormSignalingRepository {
	return &GormSignalingRepository{db: db}
}

// Create records a negotiated session.
func (r *GormSignalingRepository) Create(ctx context.Context, s *domain.SignalingSession) error {
	model := domain.SignalingSessionModel{
		ID:        s.ID,
		ClientID:  s.ClientID,
		RoomID:    s.RoomID,
		UserID:    s.UserID,
		Kind:      string(s.Kind),
		StreamURL: s.StreamURL,
		StartedAt: s.StartedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, s.ID).Msg("failed to record signaling session")
		return err
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *GormSignalingRepository) GetByID(ctx context.Context, id string) (*domain.SignalingSession, error) {
	var model domain.SignalingSessionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActiveByClient returns the open sessions of a media-server client.
func (r *GormSignalingRepository) ListActiveByClient(ctx context.Context, clientID string) ([]domain.SignalingSession, error) {
	return r.listActive(ctx, "client_id = ?", clientID)
}

// ListActiveByRoom returns the open sessions of a room.
func (r *GormSignalingRepository) ListActiveByRoom(ctx context.Context, roomID string) ([]domain.SignalingSession, error) {
	return r.listActive(ctx, "room_id = ?", roomID)
}

func (r *GormSignalingRepository) listActive(ctx context.Context, query, arg string) ([]domain.SignalingSession, error) {
	var models []domain.SignalingSessionModel
	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Where("ended_at IS NULL").
		Order("started_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	sessions := make([]domain.SignalingSession, len(models))
	for i := range models {
		sessions[i] = *models[i].ToDomain()
	}
	return sessions, nil
}

// MarkEnded closes a session. It reports true only for the call that closed it.
func (r *GormSignalingRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.SignalingSessionModel{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", endedAt)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldSessionID, id).Msg("failed to end signaling session")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
