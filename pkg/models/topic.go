package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Topic is a unit of lesson content
type Topic struct {
	ID            int64     `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Difficulty    Level     `json:"difficulty" db:"difficulty"`
	Prerequisites TopicIDs  `json:"prerequisites" db:"prerequisites"`
	Content       string    `json:"content" db:"content"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// TopicIDs is an ordered list of topic IDs stored as a JSON array
type TopicIDs []int64

// Value implements driver.Valuer
func (ids TopicIDs) Value() (driver.Value, error) {
	if ids == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]int64(ids))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (ids *TopicIDs) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*ids = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into TopicIDs", src)
	}
	if len(data) == 0 {
		*ids = nil
		return nil
	}
	var out []int64
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to parse prerequisites: %w", err)
	}
	*ids = out
	return nil
}
