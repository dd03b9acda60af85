package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// GormWalletRepository implements WalletRepository using GORM.
// Every balance change is a single conditional UPDATE so concurrent callers
// serialize on the row instead of racing a read.
type GormWalletRepository struct {
	db *gorm.DB
}

// NewGormWalletRepository creates a new GORM-based wallet repository.
func NewGormWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// Debit removes amount diamonds if the balance covers it.
func (r *GormWalletRepository) Debit(ctx context.Context, userID string, amount int64) (*domain.User, error) {
	var user *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitDiamonds(tx, userID, amount); err != nil {
			return err
		}
		u, err := getUser(tx, userID)
		user = u
		return err
	})
	if err != nil {
		return nil, r.logErr(ctx, err, userID, "failed to debit diamonds")
	}
	return user, nil
}

// Credit adds amount diamonds.
func (r *GormWalletRepository) Credit(ctx context.Context, userID string, amount int64) (*domain.User, error) {
	return r.increment(ctx, userID, "diamonds", amount)
}

// CreditEarnings adds amount to the withdrawable earnings balance.
func (r *GormWalletRepository) CreditEarnings(ctx context.Context, userID string, amount int64) (*domain.User, error) {
	return r.increment(ctx, userID, "earnings", amount)
}

func (r *GormWalletRepository) increment(ctx context.Context, userID, column string, amount int64) (*domain.User, error) {
	var user *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := incrementColumn(tx, userID, column, amount); err != nil {
			return err
		}
		u, err := getUser(tx, userID)
		user = u
		return err
	})
	if err != nil {
		return nil, r.logErr(ctx, err, userID, "failed to credit "+column)
	}
	return user, nil
}

// DecrementBackpack removes quantity items and returns what remains.
func (r *GormWalletRepository) DecrementBackpack(ctx context.Context, userID, giftID string, quantity int) (int, error) {
	var remaining int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := decrementBackpack(tx, userID, giftID, quantity)
		remaining = n
		return err
	})
	if err != nil {
		return 0, r.logErr(ctx, err, userID, "failed to decrement backpack")
	}
	return remaining, nil
}

// AddBackpack grants quantity items of a gift.
func (r *GormWalletRepository) AddBackpack(ctx context.Context, userID, giftID string, quantity int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.BackpackItemModel{}).
			Where("user_id = ? AND gift_id = ?", userID, giftID).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&domain.BackpackItemModel{UserID: userID, GiftID: giftID, Quantity: quantity}).Error
	})
}

// Backpack lists the owned gifts of a user.
func (r *GormWalletRepository) Backpack(ctx context.Context, userID string) ([]domain.BackpackItem, error) {
	var models []domain.BackpackItemModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND quantity > 0", userID).
		Order("gift_id").
		Find(&models).Error; err != nil {
		return nil, r.logErr(ctx, err, userID, "failed to list backpack")
	}

	items := make([]domain.BackpackItem, len(models))
	for i, m := range models {
		items[i] = domain.BackpackItem{GiftID: m.GiftID, Quantity: m.Quantity}
	}
	return items, nil
}

// SpendForGift applies the sender side of a gift and appends its record in
// one transaction.
func (r *GormWalletRepository) SpendForGift(ctx context.Context, spend domain.GiftSpend) (*domain.GiftTransaction, *domain.User, error) {
	total, err := spend.Total()
	if err != nil {
		return nil, nil, err
	}

	var (
		record *domain.GiftTransaction
		sender *domain.User
	)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch spend.Source.(type) {
		case domain.PurchasedSource:
			if err := debitDiamonds(tx, spend.SenderID, total); err != nil {
				return err
			}
		case domain.BackpackSource:
			if _, err := decrementBackpack(tx, spend.SenderID, spend.Gift.ID, spend.Quantity); err != nil {
				return err
			}
		default:
			return errors.New("unknown gift source")
		}

		if err := incrementColumn(tx, spend.SenderID, "xp", total); err != nil {
			return err
		}

		model := domain.GiftTransactionModel{
			ID:         spend.TransactionID,
			SenderID:   spend.SenderID,
			GiftID:     spend.Gift.ID,
			Quantity:   spend.Quantity,
			UnitPrice:  spend.Gift.Price,
			TotalValue: total,
			Source:     domain.SourceName(spend.Source),
			RoomID:     spend.RoomID,
			BattleSide: string(spend.Side),
			Status:     string(domain.TransactionCompleted),
		}
		if spend.ReceiverID != "" {
			receiver := spend.ReceiverID
			model.ReceiverID = &receiver
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		record = model.ToDomain()

		u, err := getUser(tx, spend.SenderID)
		sender = u
		return err
	})
	if err != nil {
		return nil, nil, r.logErr(ctx, err, spend.SenderID, "failed to spend for gift")
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldTransactionID, record.ID).
		Int64("total", total).
		Msg("gift spend committed")
	return record, sender, nil
}

// Recharge credits a confirmed payment once per reference. The bool reports
// whether this call applied it.
func (r *GormWalletRepository) Recharge(ctx context.Context, entryID string, rc domain.Recharge) (*domain.User, bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&domain.WalletEntryModel{}).
			Where("reference = ?", rc.Reference).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateEntry
		}

		if err := incrementColumn(tx, rc.UserID, "diamonds", rc.Diamonds); err != nil {
			return err
		}
		entry := domain.WalletEntryModel{
			ID:        entryID,
			UserID:    rc.UserID,
			Kind:      string(domain.WalletEntryRecharge),
			Diamonds:  rc.Diamonds,
			Price:     rc.Price,
			Reference: rc.Reference,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEntry
			}
			return err
		}
		applied = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrDuplicateEntry) {
		return nil, false, r.logErr(ctx, err, rc.UserID, "failed to apply recharge")
	}

	user, getErr := getUser(r.db.WithContext(ctx), rc.UserID)
	if getErr != nil {
		return nil, false, getErr
	}
	return user, applied, nil
}

// ListTransactions returns the gift records of a room, oldest first.
func (r *GormWalletRepository) ListTransactions(ctx context.Context, roomID string) ([]domain.GiftTransaction, error) {
	var models []domain.GiftTransactionModel
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	txs := make([]domain.GiftTransaction, len(models))
	for i := range models {
		txs[i] = *models[i].ToDomain()
	}
	return txs, nil
}

func (r *GormWalletRepository) logErr(ctx context.Context, err error, userID, msg string) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientInventory):
		return err
	}
	l := log.Ctx(ctx)
	l.Error().Err(err).Str(log.FieldUserID, userID).Msg(msg)
	return err
}

// debitDiamonds is the conditional decrement; a miss is resolved into the
// reason by probing for the user.
func debitDiamonds(tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	res := tx.Model(&domain.UserModel{}).
		Where("id = ? AND diamonds >= ?", userID, amount).
		Updates(map[string]interface{}{
			"diamonds":   gorm.Expr("diamonds - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if err := userExists(tx, userID); err != nil {
			return err
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

func incrementColumn(tx *gorm.DB, userID, column string, amount int64) error {
	res := tx.Model(&domain.UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func decrementBackpack(tx *gorm.DB, userID, giftID string, quantity int) (int, error) {
	res := tx.Model(&domain.BackpackItemModel{}).
		Where("user_id = ? AND gift_id = ? AND quantity >= ?", userID, giftID, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if err := userExists(tx, userID); err != nil {
			return 0, err
		}
		return 0, domain.ErrInsufficientInventory
	}

	var item domain.BackpackItemModel
	if err := tx.First(&item, "user_id = ? AND gift_id = ?", userID, giftID).Error; err != nil {
		return 0, err
	}
	if item.Quantity == 0 {
		if err := tx.Delete(&domain.BackpackItemModel{}, "user_id = ? AND gift_id = ?", userID, giftID).Error; err != nil {
			return 0, err
		}
	}
	return item.Quantity, nil
}

func userExists(tx *gorm.DB, userID string) error {
	var count int64
	if err := tx.Model(&domain.UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
