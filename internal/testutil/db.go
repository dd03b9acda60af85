// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/database"
)

var dbSeq atomic.Int64

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("file:livetest%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     name,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// SeedUser inserts a user with the given diamond balance.
func SeedUser(t *testing.T, db *gorm.DB, id, name string, diamonds int64) {
	t.Helper()
	require.NoError(t, db.WithContext(context.Background()).Create(&domain.UserModel{
		ID:       id,
		Name:     name,
		Level:    1,
		Diamonds: diamonds,
	}).Error)
}

// SeedGift inserts a catalog entry.
func SeedGift(t *testing.T, db *gorm.DB, gift domain.Gift) {
	t.Helper()
	require.NoError(t, db.Create(&domain.GiftModel{
		ID:                 gift.ID,
		Name:               gift.Name,
		Price:              gift.Price,
		Category:           gift.Category,
		IsLucky:            gift.IsLucky,
		TriggersAutoFollow: gift.TriggersAutoFollow,
	}).Error)
}

// UserBalance reads the stored diamonds and earnings of a user.
func UserBalance(t *testing.T, db *gorm.DB, id string) (diamonds, earnings int64) {
	t.Helper()
	var m domain.UserModel
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	return m.Diamonds, m.Earnings
}
