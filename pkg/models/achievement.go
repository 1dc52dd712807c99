package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AchievementKind identifies an achievement; each kind is awarded at most once per user
type AchievementKind string

const (
	AchievementFirstLesson    AchievementKind = "first_lesson"
	AchievementStreak3Days    AchievementKind = "streak_3_days"
	AchievementStreak7Days    AchievementKind = "streak_7_days"
	AchievementStreak30Days   AchievementKind = "streak_30_days"
	AchievementTopicMastery   AchievementKind = "topic_mastery"
	AchievementPracticeMaster AchievementKind = "practice_master"
	AchievementCodeWarrior    AchievementKind = "code_warrior"
	AchievementSubjectExpert  AchievementKind = "subject_expert"
)

// Achievement is an award earned by a user
type Achievement struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Kind      AchievementKind `json:"kind" db:"kind"`
	AwardedAt time.Time       `json:"awarded_at" db:"awarded_at"`
	Details   Details         `json:"details" db:"details"`
}

// Details is a kind-specific payload stored as a JSON object
type Details map[string]interface{}

// Value implements driver.Valuer
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]interface{}(d))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (d *Details) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Details", src)
	}
	out := Details{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to parse achievement details: %w", err)
		}
	}
	*d = out
	return nil
}
