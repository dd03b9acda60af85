package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

var (
	ErrAlreadyFollowing = errors.New("already following")
	ErrDuplicateEntry   = errors.New("duplicate wallet entry")
)

// UserRepository reads user profiles.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// WalletRepository mutates balances with conditional updates.
type WalletRepository interface {
	Debit(ctx context.Context, userID string, amount int64) (*domain.User, error)
	Credit(ctx context.Context, userID string, amount int64) (*domain.User, error)
	CreditEarnings(ctx context.Context, userID string, amount int64) (*domain.User, error)
	DecrementBackpack(ctx context.Context, userID, giftID string, quantity int) (int, error)
	AddBackpack(ctx context.Context, userID, giftID string, quantity int) error
	Backpack(ctx context.Context, userID string) ([]domain.BackpackItem, error)
	SpendForGift(ctx context.Context, spend domain.GiftSpend) (*domain.GiftTransaction, *domain.User, error)
	Recharge(ctx context.Context, entryID string, r domain.Recharge) (*domain.User, bool, error)
	ListTransactions(ctx context.Context, roomID string) ([]domain.GiftTransaction, error)
}

// GiftRepository reads the gift catalog.
type GiftRepository interface {
	Create(ctx context.Context, gift *domain.Gift) error
	GetByID(ctx context.Context, id string) (*domain.Gift, error)
	GetByName(ctx context.Context, name string) (*domain.Gift, error)
	List(ctx context.Context) ([]domain.Gift, error)
}

// RoomRepository persists rooms and their counters.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	ListLive(ctx context.Context, category string) ([]domain.Room, error)
	ListLiveByHost(ctx context.Context, hostID string) ([]domain.Room, error)
	MarkLive(ctx context.Context, id string, startedAt time.Time) error
	MarkEnded(ctx context.Context, id string, endedAt time.Time) error
	UpdateViewers(ctx context.Context, id string, viewers, peak int) error
	AddCoins(ctx context.Context, id string, amount int64) error
}

// FollowRepository persists follow relationships.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
}

// SignalingRepository persists media-server negotiations.
type SignalingRepository interface {
	Create(ctx context.Context, session *domain.SignalingSession) error
	GetByID(ctx context.Context, id string) (*domain.SignalingSession, error)
	ListActiveByClient(ctx context.Context, clientID string) ([]domain.SignalingSession, error)
	ListActiveByRoom(ctx context.Context, roomID string) ([]domain.SignalingSession, error)
	MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error)
}
