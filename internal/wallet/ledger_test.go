package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/testutil"
)

func newTestLedger(t *testing.T) (*Ledger, func(id string) int64) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, "sender", "alice", 100)
	testutil.SeedUser(t, db, "host", "bob", 0)

	ledger := NewLedger(
		repository.NewGormWalletRepository(db),
		repository.NewGormUserRepository(db),
		idgen.NewULIDGenerator(),
		time.Second,
	)
	balance := func(id string) int64 {
		d, _ := testutil.UserBalance(t, db, id)
		return d
	}
	return ledger, balance
}

func giftSpend(price int64, qty int) domain.GiftSpend {
	return domain.GiftSpend{
		SenderID: "sender",
		RoomID:   "room",
		Gift:     &domain.Gift{ID: fmt.Sprintf("g%d", price), Name: "gift", Price: price},
		Quantity: qty,
		Source:   domain.PurchasedSource{},
	}
}

func TestSpendRejectedWhenUnaffordable(t *testing.T) {
	ledger, balance := newTestLedger(t)

	_, _, err := ledger.SpendForGift(context.Background(), giftSpend(30, 4))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(100), balance("sender"))
}

func TestSpendDebitsPriceTimesQuantity(t *testing.T) {
	ledger, balance := newTestLedger(t)

	tx, sender, err := ledger.SpendForGift(context.Background(), giftSpend(20, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(40), sender.Diamonds)
	assert.Equal(t, int64(60), tx.TotalValue)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, int64(40), balance("sender"))
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	ledger, balance := newTestLedger(t)

	const senders = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.SpendForGift(context.Background(), giftSpend(30, 1))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(10), balance("sender"))
}

func TestDebitCreditValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Debit(ctx, "sender", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ledger.Credit(ctx, "nobody", 5)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	w, err := ledger.Credit(ctx, "host", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), w.Diamonds)
}

func TestBackpackSpendRemovesEmptyEntry(t *testing.T) {
	ledger, balance := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.GrantBackpackItem(ctx, "sender", "g10", 2))

	spend := giftSpend(10, 2)
	spend.Source = domain.BackpackSource{}
	_, sender, err := ledger.SpendForGift(ctx, spend)
	require.NoError(t, err)
	assert.Equal(t, int64(100), sender.Diamonds)
	assert.Equal(t, int64(100), balance("sender"))

	view, err := ledger.Balance(ctx, "sender")
	require.NoError(t, err)
	assert.Empty(t, view.Backpack)

	_, err = ledger.TransferBackpackItem(ctx, "sender", "g10", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
}

func TestBalancePayoutPreview(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.CreditEarnings(ctx, "host", 1000)
	require.NoError(t, err)

	view, err := ledger.Balance(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), view.Earnings)
	assert.InDelta(t, 50.0, view.Payout.Gross, 1e-9)
	assert.InDelta(t, 10.0, view.Payout.Fee, 1e-9)
	assert.InDelta(t, 40.0, view.Payout.Net, 1e-9)
}

func TestRechargeAppliesOncePerReference(t *testing.T) {
	ledger, balance := newTestLedger(t)
	ctx := context.Background()

	rc := domain.Recharge{UserID: "host", Diamonds: 300, Price: 2.99, Reference: "order-7"}
	_, applied, err := ledger.Recharge(ctx, rc)
	require.NoError(t, err)
	assert.True(t, applied)

	_, applied, err = ledger.Recharge(ctx, rc)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(300), balance("host"))

	_, _, err = ledger.Recharge(ctx, domain.Recharge{UserID: "host", Diamonds: 10})
	assert.ErrorIs(t, err, domain.ErrMissingReference)
	assert.Equal(t, int64(300), balance("host"))
}

type blockingRepo struct {
	repository.WalletRepository
}

func (blockingRepo) Debit(ctx context.Context, userID string, amount int64) (*domain.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDebitTimesOut(t *testing.T) {
	ledger := NewLedger(blockingRepo{}, nil, idgen.NewULIDGenerator(), 20*time.Millisecond)

	_, err := ledger.Debit(context.Background(), "sender", 10)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
}
