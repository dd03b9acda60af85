// Package wallet is the ledger behind every monetary effect: every change is
// a conditional update in the store, bounded by an operation timeout.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

const defaultOpTimeout = 3 * time.Second

// Ledger applies balance operations.
type Ledger struct {
	repo      repository.WalletRepository
	users     repository.UserRepository
	ids       idgen.Generator
	opTimeout time.Duration
}

// NewLedger creates a Ledger. ids names transactions and journal entries.
func NewLedger(repo repository.WalletRepository, users repository.UserRepository, ids idgen.Generator, opTimeout time.Duration) *Ledger {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Ledger{
		repo:      repo,
		users:     users,
		ids:       ids,
		opTimeout: opTimeout,
	}
}

func (l *Ledger) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.opTimeout)
}

// mapErr turns a blown deadline into ErrTimeout and passes domain errors through.
func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}

// Debit removes amount diamonds from the user, or fails with
// ErrInsufficientFunds without touching the balance.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	user, err := l.repo.Debit(ctx, userID, amount)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return walletOf(user), nil
}

// Credit adds amount diamonds to the user.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	user, err := l.repo.Credit(ctx, userID, amount)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return walletOf(user), nil
}

// CreditEarnings adds amount to the user's withdrawable earnings.
func (l *Ledger) CreditEarnings(ctx context.Context, userID string, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	user, err := l.repo.CreditEarnings(ctx, userID, amount)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return walletOf(user), nil
}

// TransferBackpackItem consumes owned gifts and returns the remaining quantity.
func (l *Ledger) TransferBackpackItem(ctx context.Context, userID, giftID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	remaining, err := l.repo.DecrementBackpack(ctx, userID, giftID, quantity)
	if err != nil {
		return 0, mapErr(ctx, err)
	}
	return remaining, nil
}

// GrantBackpackItem adds owned gifts to a user.
func (l *Ledger) GrantBackpackItem(ctx context.Context, userID, giftID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidAmount
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	return mapErr(ctx, l.repo.AddBackpack(ctx, userID, giftID, quantity))
}

// SpendForGift debits the sender and records the completed transaction
// together. It returns the record and the sender's fresh state.
func (l *Ledger) SpendForGift(ctx context.Context, spend domain.GiftSpend) (*domain.GiftTransaction, *domain.User, error) {
	if _, err := spend.Total(); err != nil {
		return nil, nil, err
	}
	if spend.TransactionID == "" {
		id, err := l.ids.Generate()
		if err != nil {
			return nil, nil, err
		}
		spend.TransactionID = id
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	tx, sender, err := l.repo.SpendForGift(ctx, spend)
	if err != nil {
		return nil, nil, mapErr(ctx, err)
	}
	return tx, sender, nil
}

// Balance returns the wallet of a user with the payout preview.
func (l *Ledger) Balance(ctx context.Context, userID string) (*domain.BalanceView, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	items, err := l.repo.Backpack(ctx, userID)
	if err != nil {
		return nil, mapErr(ctx, err)
	}

	w := walletOf(user)
	w.Backpack = items
	return &domain.BalanceView{
		Wallet: *w,
		Payout: domain.NewPayoutPreview(user.Earnings),
	}, nil
}

// Recharge credits a confirmed external payment. Replaying the same
// reference returns the current wallet and false.
func (l *Ledger) Recharge(ctx context.Context, rc domain.Recharge) (*domain.Wallet, bool, error) {
	if rc.Diamonds <= 0 {
		return nil, false, domain.ErrInvalidAmount
	}
	if rc.Reference == "" {
		return nil, false, domain.ErrMissingReference
	}
	entryID, err := l.ids.Generate()
	if err != nil {
		return nil, false, err
	}

	bctx, cancel := l.bound(ctx)
	defer cancel()

	user, applied, err := l.repo.Recharge(bctx, entryID, rc)
	if err != nil {
		return nil, false, mapErr(bctx, err)
	}

	if applied {
		audit.Record(ctx, audit.Entry{
			Action: audit.ActionWalletRecharge,
			UserID: rc.UserID,
			Amount: rc.Diamonds,
			Target: rc.Reference,
		}, "wallet recharged")
	} else {
		logger := log.Ctx(ctx)
		logger.Info().Str("reference", rc.Reference).Msg("recharge already applied")
	}
	return walletOf(user), applied, nil
}

func walletOf(u *domain.User) *domain.Wallet {
	return &domain.Wallet{
		UserID:   u.ID,
		Diamonds: u.Diamonds,
		Earnings: u.Earnings,
		XP:       u.XP,
		Level:    u.Level,
	}
}
