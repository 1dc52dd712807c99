package spaced_repetition

import (
	"math"
	"sort"
	"time"

	"github.com/example/tutorbot/pkg/models"
)

// Planner schedules the next review of a topic from how often it was
// practiced and how well it is known. It is a simplified SuperMemo-2:
// mastery stands in for the answer quality.
type Planner struct {
	// Quality at or above this counts as a successful review
	PassThreshold int
	// Maximum review interval in days
	MaxInterval int
	// Fixed intervals in days for the first repetitions
	InitialIntervals []int
}

// NewPlanner returns a planner with the default settings
func NewPlanner() *Planner {
	return &Planner{
		PassThreshold:    3,
		MaxInterval:      365,
		InitialIntervals: []int{1, 2, 3, 7, 10, 15, 20, 30},
	}
}

// Quality maps mastery in [0, 1] onto the 0..5 SM-2 quality scale
func Quality(mastery float64) int {
	q := int(math.Round(mastery * 5))
	if q < 0 {
		return 0
	}
	if q > 5 {
		return 5
	}
	return q
}

// EasinessFactor grows with mastery from 1.3 to 2.5, the SM-2 bounds
func EasinessFactor(mastery float64) float64 {
	if mastery < 0 {
		mastery = 0
	}
	if mastery > 1 {
		mastery = 1
	}
	return 1.3 + 1.2*mastery
}

// Interval returns the review interval in days after the given number of
// practice sessions at the given mastery.
func (p *Planner) Interval(timesPracticed int, mastery float64) int {
	if timesPracticed <= 0 || Quality(mastery) < p.PassThreshold {
		// Failed or never practiced: review tomorrow
		return 1
	}

	var interval int
	if timesPracticed <= len(p.InitialIntervals) {
		interval = p.InitialIntervals[timesPracticed-1]
	} else {
		last := float64(p.InitialIntervals[len(p.InitialIntervals)-1])
		extra := float64(timesPracticed - len(p.InitialIntervals))
		grown := last * math.Pow(EasinessFactor(mastery), extra)
		if grown > float64(p.MaxInterval) {
			return p.MaxInterval
		}
		interval = int(grown)
	}

	if interval > p.MaxInterval {
		interval = p.MaxInterval
	}
	return interval
}

// NextReview returns when a topic practiced at now should be reviewed again
func (p *Planner) NextReview(timesPracticed int, mastery float64, now time.Time) time.Time {
	return now.AddDate(0, 0, p.Interval(timesPracticed, mastery))
}

// DueForReview returns up to limit records whose review time has come.
// Records never scheduled come first, then lower mastery, then the most overdue.
func (p *Planner) DueForReview(records []models.ProgressRecord, now time.Time, limit int) []models.ProgressRecord {
	var due []models.ProgressRecord
	for _, r := range records {
		if r.NextReview == nil || !r.NextReview.After(now) {
			due = append(due, r)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if (a.NextReview == nil) != (b.NextReview == nil) {
			return a.NextReview == nil
		}
		if a.Mastery != b.Mastery {
			return a.Mastery < b.Mastery
		}
		if a.NextReview != nil && b.NextReview != nil {
			return a.NextReview.Before(*b.NextReview)
		}
		return false
	})

	if limit > 0 && len(due) > limit {
		return due[:limit]
	}
	return due
}
