// Package mastery derives level, weak/strong topic sets and next-topic
// recommendations from a progress snapshot. Everything here is pure.
package mastery

import (
	"math"
	"sort"
	"time"

	"github.com/example/tutorbot/pkg/models"
)

const (
	// Average mastery needed for each derived level
	AdvancedThreshold     = 0.8
	IntermediateThreshold = 0.5

	// StrongThreshold splits weak (<) from strong (>=) topics.
	// A topic at or above it also counts as satisfying prerequisites.
	StrongThreshold = 0.7
	// NeedsReviewThreshold marks topics that should be revisited soon
	NeedsReviewThreshold = 0.6
	// CompletionThreshold marks a topic as completed in reports
	CompletionThreshold = 0.8

	MaxRecommendations = 3

	// DefaultMasteryIncrement is applied when a lesson is marked complete
	DefaultMasteryIncrement = 0.1
)

// masteryPrecision is the resolution mastery is stored at; repeated
// +0.1 steps must land exactly on 0.8 and 1.0.
const masteryPrecision = 1e9

// Clamp rounds m to masteryPrecision and limits it to [0, 1]
func Clamp(m float64) float64 {
	m = math.Round(m*masteryPrecision) / masteryPrecision
	if m < 0 {
		return 0
	}
	if m > 1 {
		return 1
	}
	return m
}

// AverageMastery is the mean mastery across all records, 0 with none
func AverageMastery(s models.Snapshot) float64 {
	if len(s.Records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.Records {
		sum += r.Mastery
	}
	return sum / float64(len(s.Records))
}

// DeriveLevel maps average mastery onto a level
func DeriveLevel(s models.Snapshot) models.Level {
	avg := AverageMastery(s)
	switch {
	case len(s.Records) == 0:
		return models.LevelBeginner
	case avg >= AdvancedThreshold:
		return models.LevelAdvanced
	case avg >= IntermediateThreshold:
		return models.LevelIntermediate
	default:
		return models.LevelBeginner
	}
}

// WeakTopics returns topics below StrongThreshold, in snapshot order
func WeakTopics(s models.Snapshot) []models.Topic {
	return filterTopics(s, func(m float64) bool { return m < StrongThreshold })
}

// StrongTopics returns topics at or above StrongThreshold, in snapshot order
func StrongTopics(s models.Snapshot) []models.Topic {
	return filterTopics(s, func(m float64) bool { return m >= StrongThreshold })
}

// NeedsReview returns topics below NeedsReviewThreshold
func NeedsReview(s models.Snapshot) []models.Topic {
	return filterTopics(s, func(m float64) bool { return m < NeedsReviewThreshold })
}

// CompletedTopics returns topics at or above CompletionThreshold
func CompletedTopics(s models.Snapshot) []models.Topic {
	return filterTopics(s, func(m float64) bool { return m >= CompletionThreshold })
}

func filterTopics(s models.Snapshot, keep func(float64) bool) []models.Topic {
	out := []models.Topic{}
	for _, r := range s.Records {
		if keep(r.Mastery) {
			out = append(out, r.Topic)
		}
	}
	return out
}

// TotalPractice sums times practiced across all records
func TotalPractice(s models.Snapshot) int {
	total := 0
	for _, r := range s.Records {
		total += r.TimesPracticed
	}
	return total
}

// RecommendNext picks up to MaxRecommendations topics from candidates whose
// prerequisites are all strong and which are not strong themselves.
// Topics the user has already started come first; ties keep creation order.
func RecommendNext(s models.Snapshot, candidates []models.Topic) []models.Topic {
	mastered := make(map[int64]bool, len(s.Records))
	started := make(map[int64]bool, len(s.Records))
	for _, r := range s.Records {
		started[r.TopicID] = true
		if r.Mastery >= StrongThreshold {
			mastered[r.TopicID] = true
		}
	}

	eligible := make([]models.Topic, 0, len(candidates))
	for _, t := range candidates {
		if mastered[t.ID] {
			continue
		}
		ok := true
		for _, id := range t.Prerequisites {
			if !mastered[id] {
				ok = false
				break
			}
		}
		if ok {
			eligible = append(eligible, t)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if started[a.ID] != started[b.ID] {
			return started[a.ID]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if len(eligible) > MaxRecommendations {
		eligible = eligible[:MaxRecommendations]
	}
	return eligible
}

// AdvanceStreak returns the streak after activity at now.
// Days are calendar days in loc.
func AdvanceStreak(streak int, lastActive *time.Time, now time.Time, loc *time.Location) int {
	if lastActive == nil || streak <= 0 {
		return 1
	}
	if loc == nil {
		loc = time.UTC
	}
	last := dayOf(lastActive.In(loc))
	today := dayOf(now.In(loc))
	switch {
	case today.Equal(last):
		return streak
	case today.Equal(last.AddDate(0, 0, 1)):
		return streak + 1
	case today.Before(last):
		// clock went backwards; keep what we have
		return streak
	default:
		return 1
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Titles extracts topic titles
func Titles(topics []models.Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.Title
	}
	return out
}
