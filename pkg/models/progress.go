package models

import "time"

// ProgressRecord tracks one user's mastery of one topic
type ProgressRecord struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	TopicID        int64      `json:"topic_id" db:"topic_id"`
	Mastery        float64    `json:"mastery" db:"mastery"` // always within [0, 1]
	TimesPracticed int        `json:"times_practiced" db:"times_practiced"`
	LastPracticed  *time.Time `json:"last_practiced" db:"last_practiced"`
	NextReview     *time.Time `json:"next_review" db:"next_review"`
	Bookmarked     bool       `json:"bookmarked" db:"is_bookmarked"`

	// Topic is populated by snapshot reads
	Topic Topic `json:"topic" db:"topic"`
}

// ProgressOutcome is the result of a committed practice event
type ProgressOutcome struct {
	Record          ProgressRecord
	User            User
	NewAchievements []Achievement
}
