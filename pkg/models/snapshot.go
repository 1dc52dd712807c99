package models

import "time"

// Snapshot is a transactionally consistent read of a user's progress state.
// Consumers must treat it as read-only.
type Snapshot struct {
	User         User
	Records      []ProgressRecord
	Achievements []Achievement
	TakenAt      time.Time
}

// HasAchievement reports whether kind was already awarded
func (s *Snapshot) HasAchievement(kind AchievementKind) bool {
	for _, a := range s.Achievements {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// Record returns the progress record for topicID, if any
func (s *Snapshot) Record(topicID int64) (ProgressRecord, bool) {
	for _, r := range s.Records {
		if r.TopicID == topicID {
			return r, true
		}
	}
	return ProgressRecord{}, false
}
