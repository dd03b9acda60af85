package domain

import "time"

// AdminLevel is the user level that grants moderation rights.
const AdminLevel = 99

// RoleAdmin is the role that grants moderation rights.
const RoleAdmin = "admin"

// User is a platform account together with its wallet balances.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Level     int       `json:"level"`
	XP        int64     `json:"xp"`
	Diamonds  int64     `json:"diamonds"`
	Earnings  int64     `json:"earnings"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user may moderate any room.
func (u *User) IsAdmin() bool {
	return u.Level >= AdminLevel || u.Role == RoleAdmin
}

// Profile returns the public descriptor of the user.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Level:     u.Level,
	}
}

// UserProfile is the public part of a user shown to other room members.
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Level     int    `json:"level,omitempty"`
}
