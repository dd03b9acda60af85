package domain

import (
	"time"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Name      string    `gorm:"type:varchar(100);not null"`
	AvatarURL string    `gorm:"type:varchar(500)"`
	Level     int       `gorm:"not null;default:1"`
	XP        int64     `gorm:"not null;default:0"`
	Diamonds  int64     `gorm:"not null;default:0;check:diamonds >= 0"`
	Earnings  int64     `gorm:"not null;default:0"`
	Role      string    `gorm:"type:varchar(20)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:        m.ID,
		Name:      m.Name,
		AvatarURL: m.AvatarURL,
		Level:     m.Level,
		XP:        m.XP,
		Diamonds:  m.Diamonds,
		Earnings:  m.Earnings,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

// BackpackItemModel is the GORM model for backpack_items table.
type BackpackItemModel struct {
	UserID   string `gorm:"type:varchar(36);primaryKey"`
	GiftID   string `gorm:"type:varchar(36);primaryKey"`
	Quantity int    `gorm:"not null"`
}

// TableName specifies the table name for BackpackItemModel.
func (BackpackItemModel) TableName() string {
	return "backpack_items"
}

// GiftModel is the GORM model for gifts table.
type GiftModel struct {
	ID                 string `gorm:"type:varchar(36);primaryKey"`
	Name               string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Price              int64  `gorm:"not null"`
	Category           string `gorm:"type:varchar(50)"`
	Icon               string `gorm:"type:varchar(500)"`
	IsLucky            bool   `gorm:"not null;default:false"`
	TriggersAutoFollow bool   `gorm:"not null;default:false"`
}

// TableName specifies the table name for GiftModel.
func (GiftModel) TableName() string {
	return "gifts"
}

// ToDomain converts GiftModel to domain Gift.
func (m *GiftModel) ToDomain() *Gift {
	return &Gift{
		ID:                 m.ID,
		Name:               m.Name,
		Price:              m.Price,
		Category:           m.Category,
		Icon:               m.Icon,
		IsLucky:            m.IsLucky,
		TriggersAutoFollow: m.TriggersAutoFollow,
	}
}

// RoomModel is the GORM model for rooms table.
type RoomModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	HostID      string    `gorm:"type:varchar(36);index;not null"`
	Title       string    `gorm:"type:varchar(200);not null"`
	Category    string    `gorm:"type:varchar(50);index"`
	IsPrivate   bool      `gorm:"not null;default:false"`
	IsLive      bool      `gorm:"index;not null;default:false"`
	Viewers     int       `gorm:"not null;default:0"`
	PeakViewers int       `gorm:"not null;default:0"`
	Coins       int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:          m.ID,
		HostID:      m.HostID,
		Title:       m.Title,
		Category:    m.Category,
		IsPrivate:   m.IsPrivate,
		IsLive:      m.IsLive,
		Viewers:     m.Viewers,
		PeakViewers: m.PeakViewers,
		Coins:       m.Coins,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:          r.ID,
		HostID:      r.HostID,
		Title:       r.Title,
		Category:    r.Category,
		IsPrivate:   r.IsPrivate,
		IsLive:      r.IsLive,
		Viewers:     r.Viewers,
		PeakViewers: r.PeakViewers,
		Coins:       r.Coins,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}
}

// GiftTransactionModel is the GORM model for gift_transactions table.
type GiftTransactionModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	SenderID   string    `gorm:"type:varchar(36);index;not null"`
	ReceiverID *string   `gorm:"type:varchar(36);index"`
	GiftID     string    `gorm:"type:varchar(36);not null"`
	Quantity   int       `gorm:"not null"`
	UnitPrice  int64     `gorm:"not null"`
	TotalValue int64     `gorm:"not null"`
	Source     string    `gorm:"type:varchar(20);not null"`
	RoomID     string    `gorm:"type:varchar(36);index;not null"`
	BattleSide string    `gorm:"type:varchar(1)"`
	Status     string    `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GiftTransactionModel.
func (GiftTransactionModel) TableName() string {
	return "gift_transactions"
}

// ToDomain converts GiftTransactionModel to domain GiftTransaction.
func (m *GiftTransactionModel) ToDomain() *GiftTransaction {
	tx := &GiftTransaction{
		ID:         m.ID,
		SenderID:   m.SenderID,
		GiftID:     m.GiftID,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		TotalValue: m.TotalValue,
		Source:     m.Source,
		RoomID:     m.RoomID,
		BattleSide: Side(m.BattleSide),
		Status:     TransactionStatus(m.Status),
		CreatedAt:  m.CreatedAt,
	}
	if m.ReceiverID != nil {
		tx.ReceiverID = *m.ReceiverID
	}
	return tx
}

// WalletEntryModel is the GORM model for wallet_entries table.
type WalletEntryModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);index;not null"`
	Kind      string    `gorm:"type:varchar(20);not null"`
	Diamonds  int64     `gorm:"not null"`
	Price     float64   `gorm:"not null;default:0"`
	Reference string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for WalletEntryModel.
func (WalletEntryModel) TableName() string {
	return "wallet_entries"
}

// SignalingSessionModel is the GORM model for signaling_sessions table.
type SignalingSessionModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	ClientID  string    `gorm:"type:varchar(64);index"`
	RoomID    string    `gorm:"type:varchar(36);index;not null"`
	UserID    string    `gorm:"type:varchar(36);index;not null"`
	Kind      string    `gorm:"type:varchar(10);not null"`
	StreamURL string    `gorm:"type:varchar(500);not null"`
	StartedAt time.Time `gorm:"not null"`
	EndedAt   *time.Time
}

// TableName specifies the table name for SignalingSessionModel.
func (SignalingSessionModel) TableName() string {
	return "signaling_sessions"
}

// ToDomain converts SignalingSessionModel to domain SignalingSession.
func (m *SignalingSessionModel) ToDomain() *SignalingSession {
	return &SignalingSession{
		ID:        m.ID,
		ClientID:  m.ClientID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Kind:      SessionKind(m.Kind),
		StreamURL: m.StreamURL,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
}

// FollowModel is the GORM model for follows table.
type FollowModel struct {
	FollowerID  string    `gorm:"type:varchar(36);primaryKey"`
	FollowingID string    `gorm:"type:varchar(36);primaryKey;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for FollowModel.
func (FollowModel) TableName() string {
	return "follows"
}

// AllModels lists every persisted model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&BackpackItemModel{},
		&GiftModel{},
		&RoomModel{},
		&GiftTransactionModel{},
		&WalletEntryModel{},
		&SignalingSessionModel{},
		&FollowModel{},
	}
}
