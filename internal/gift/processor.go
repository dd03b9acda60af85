// Package gift turns gift requests into ledger spends and room events.
package gift

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/kafka"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const (
	defaultReceiverName = "Streamer"
	defaultMaxQuantity  = 9999
)

// ErrUnknownSource is returned for a gift source the ledger cannot debit.
var ErrUnknownSource = errors.New("unknown gift source")

// Ledger is the wallet side of a gift.
type Ledger interface {
	SpendForGift(ctx context.Context, spend domain.GiftSpend) (*domain.GiftTransaction, *domain.User, error)
	CreditEarnings(ctx context.Context, userID string, amount int64) (*domain.Wallet, error)
}

// Rooms is the room registry side of a gift.
type Rooms interface {
	Room(ctx context.Context, roomID string) (*domain.Room, error)
	Session(ctx context.Context, roomID string) (*domain.LiveSessionState, error)
	RecordContribution(ctx context.Context, roomID, userID string, value int64) error
	RecordFollower(ctx context.Context, roomID, followerID string)
}

// Publisher fans events out to room sockets.
type Publisher interface {
	Broadcast(ctx context.Context, roomID, event string, payload interface{})
}

// Observer is told about every completed gift.
type Observer interface {
	OnGift(ctx context.Context, ev domain.GiftEvent)
}

// Processor sends gifts.
type Processor struct {
	catalog   repository.GiftRepository
	ledger    Ledger
	rooms     Rooms
	users     repository.UserRepository
	follows   repository.FollowRepository
	publisher Publisher
	producer  kafka.LiveEventProducer
	cfg       config.GiftConfig

	mu        sync.RWMutex
	observers []Observer
}

// NewProcessor creates a gift processor. producer may be nil.
func NewProcessor(
	catalog repository.GiftRepository,
	ledger Ledger,
	rooms Rooms,
	users repository.UserRepository,
	follows repository.FollowRepository,
	publisher Publisher,
	producer kafka.LiveEventProducer,
	cfg config.GiftConfig,
) *Processor {
	if producer == nil {
		producer = kafka.NopProducer{}
	}
	return &Processor{
		catalog:   catalog,
		ledger:    ledger,
		rooms:     rooms,
		users:     users,
		follows:   follows,
		publisher: publisher,
		producer:  producer,
		cfg:       cfg,
	}
}

// AddObserver registers o for completed gifts.
func (p *Processor) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Catalog lists the gifts that can be sent.
func (p *Processor) Catalog(ctx context.Context) ([]domain.Gift, error) {
	return p.catalog.List(ctx)
}

// SendGift debits the sender, records the transaction and announces it.
// Once the debit commits, later failures are logged and never undo it.
func (p *Processor) SendGift(ctx context.Context, req domain.GiftRequest) (*domain.GiftTransaction, error) {
	ctx = log.WithRoom(ctx, req.RoomID)
	l := log.Ctx(ctx)

	tx, sender, receiver, gift, err := p.spend(ctx, req)
	if err != nil {
		audit.Record(ctx, audit.Entry{
			Action: audit.ActionGiftReject,
			UserID: req.SenderID,
			RoomID: req.RoomID,
			Target: req.TargetID,
			Detail: err.Error(),
		}, "gift rejected")
		return nil, err
	}

	l = l.With().Str(log.FieldTransactionID, tx.ID).Logger()
	ctx = log.WithLogger(ctx, l)
	audit.Record(ctx, audit.Entry{
		Action: audit.ActionGiftSend,
		UserID: req.SenderID,
		RoomID: req.RoomID,
		Target: tx.ReceiverID,
		Amount: tx.TotalValue,
	}, "gift sent")

	if receiver != nil {
		if amount := earnings(tx.TotalValue, p.shareFor(req.Source)); amount > 0 {
			if _, err := p.ledger.CreditEarnings(ctx, receiver.ID, amount); err != nil {
				l.Error().Err(err).Str(log.FieldUserID, receiver.ID).Msg("failed to credit earnings")
			}
		}
	}

	if err := p.rooms.RecordContribution(ctx, req.RoomID, req.SenderID, tx.TotalValue); err != nil {
		l.Error().Err(err).Msg("failed to record contribution")
	}

	p.publisher.Broadcast(ctx, req.RoomID, domain.EventStreamGift, p.giftPayload(tx, sender, receiver, gift))

	if receiver != nil && receiver.ID != sender.ID && p.autoFollows(ctx, req.RoomID, gift) {
		p.follow(ctx, req.RoomID, sender, receiver)
	}

	ev := domain.GiftEvent{
		TransactionID: tx.ID,
		RoomID:        req.RoomID,
		SenderID:      req.SenderID,
		ReceiverID:    tx.ReceiverID,
		Side:          req.Side,
		Value:         gift.Price,
		Quantity:      tx.Quantity,
	}
	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		o.OnGift(ctx, ev)
	}

	if err := p.producer.ProduceGiftSent(ctx, tx); err != nil {
		l.Warn().Err(err).Msg("failed to produce gift_sent")
	}
	return tx, nil
}

func (p *Processor) spend(ctx context.Context, req domain.GiftRequest) (*domain.GiftTransaction, *domain.User, *domain.User, *domain.Gift, error) {
	gift, err := p.resolveGift(ctx, req)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if req.Quantity < 1 || req.Quantity > p.maxQuantity() {
		return nil, nil, nil, nil, domain.ErrInvalidQuantity
	}
	switch req.Source.(type) {
	case domain.PurchasedSource, domain.BackpackSource:
	default:
		return nil, nil, nil, nil, ErrUnknownSource
	}
	switch req.Side {
	case domain.SideNone, domain.SideA, domain.SideB:
	default:
		req.Side = domain.SideNone
	}

	room, err := p.rooms.Room(ctx, req.RoomID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	receiver := p.resolveReceiver(ctx, req.TargetID, room.HostID)

	spend := domain.GiftSpend{
		SenderID: req.SenderID,
		RoomID:   req.RoomID,
		Gift:     gift,
		Quantity: req.Quantity,
		Side:     req.Side,
		Source:   req.Source,
	}
	if receiver != nil {
		spend.ReceiverID = receiver.ID
	}

	tx, sender, err := p.ledger.SpendForGift(ctx, spend)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return tx, sender, receiver, gift, nil
}

func (p *Processor) resolveGift(ctx context.Context, req domain.GiftRequest) (*domain.Gift, error) {
	if req.GiftID != "" {
		gift, err := p.catalog.GetByID(ctx, req.GiftID)
		if err == nil || !errors.Is(err, domain.ErrGiftNotFound) || req.GiftName == "" {
			return gift, err
		}
	}
	if req.GiftName != "" {
		return p.catalog.GetByName(ctx, req.GiftName)
	}
	return nil, domain.ErrGiftNotFound
}

// resolveReceiver returns the target, the host when no target is given, or
// nil when the named user does not exist.
func (p *Processor) resolveReceiver(ctx context.Context, targetID, hostID string) *domain.User {
	id := targetID
	if id == "" {
		id = hostID
	}
	user, err := p.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, id).Msg("failed to resolve gift receiver")
		}
		return nil
	}
	return user
}

func (p *Processor) maxQuantity() int {
	if p.cfg.MaxQuantity > 0 {
		return p.cfg.MaxQuantity
	}
	return defaultMaxQuantity
}

func (p *Processor) shareFor(source domain.GiftSource) float64 {
	if _, ok := source.(domain.BackpackSource); ok {
		return p.cfg.BackpackEarningsShare
	}
	return p.cfg.EarningsShare
}

func earnings(total int64, share float64) int64 {
	if share <= 0 {
		return 0
	}
	return int64(math.Floor(float64(total) * share))
}

func (p *Processor) giftPayload(tx *domain.GiftTransaction, sender, receiver *domain.User, gift *domain.Gift) domain.StreamGiftData {
	to := domain.GiftTarget{Name: defaultReceiverName}
	if receiver != nil {
		to.ID = receiver.ID
		if receiver.Name != "" {
			to.Name = receiver.Name
		}
	}
	data := domain.StreamGiftData{
		FromUser: domain.GiftUser{
			UserProfile: sender.Profile(),
			Diamonds:    sender.Diamonds,
			XP:          sender.XP,
		},
		ToUser:        to,
		Gift:          *gift,
		Quantity:      tx.Quantity,
		RoomID:        tx.RoomID,
		TotalValue:    tx.TotalValue,
		TransactionID: tx.ID,
		IsLucky:       gift.IsLucky,
		Side:          tx.BattleSide,
	}
	if gift.IsLucky && p.cfg.LuckyMultiplier > 0 {
		data.LuckyMultiplier = p.cfg.LuckyMultiplier
	}
	return data
}

func (p *Processor) autoFollows(ctx context.Context, roomID string, gift *domain.Gift) bool {
	if gift.TriggersAutoFollow {
		return true
	}
	state, err := p.rooms.Session(ctx, roomID)
	return err == nil && state.AutoFollow
}

func (p *Processor) follow(ctx context.Context, roomID string, sender, receiver *domain.User) {
	l := log.Ctx(ctx)

	following, err := p.follows.IsFollowing(ctx, sender.ID, receiver.ID)
	if err != nil {
		l.Error().Err(err).Msg("failed to check follow")
		return
	}
	if following {
		return
	}
	if err := p.follows.Follow(ctx, sender.ID, receiver.ID); err != nil {
		if !errors.Is(err, repository.ErrAlreadyFollowing) {
			l.Error().Err(err).Msg("failed to auto follow")
		}
		return
	}

	p.rooms.RecordFollower(ctx, roomID, sender.ID)
	p.publisher.Broadcast(ctx, roomID, domain.EventFollowUpdate, domain.FollowUpdateData{
		Follower:   sender.Profile(),
		Followed:   receiver.Profile(),
		IsUnfollow: false,
	})
}
