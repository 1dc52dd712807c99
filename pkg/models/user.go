package models

import "time"

// User is a learner talking to the bot
type User struct {
	ID          int64      `json:"id" db:"id"` // Telegram user ID
	Username    string     `json:"username" db:"username"`
	Level       Level      `json:"level" db:"current_level"` // cached, derived from progress
	StreakCount int        `json:"streak_count" db:"streak_count"`
	LastActive  *time.Time `json:"last_active" db:"last_active"`
	Frequency   Frequency  `json:"frequency" db:"frequency"`
	// LastDispatchSlot is the last trigger point claimed for this user, "" if none
	LastDispatchSlot string    `json:"last_dispatch_slot" db:"last_dispatch_slot"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
