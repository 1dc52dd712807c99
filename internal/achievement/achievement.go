// Package achievement awards achievements from a progress snapshot.
//
// Every kind has an independent rule. Rules are monotonic in the snapshot
// and an award is never repeated, so evaluating the same snapshot twice
// yields nothing new the second time.
package achievement

import (
	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/pkg/models"
)

const (
	PracticeMasterCount  = 50
	CodeWarriorTopics    = 3
	SubjectExpertTopics  = 10
	TopicMasteryRequired = 0.8
	ExpertMastery        = 0.8
)

// Rule is one achievement kind and the condition that earns it
type Rule struct {
	Kind      models.AchievementKind
	Satisfied func(s models.Snapshot) bool
	Details   func(s models.Snapshot) models.Details
}

// DefaultRules is the built-in rule table
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:      models.AchievementFirstLesson,
			Satisfied: func(s models.Snapshot) bool { return mastery.TotalPractice(s) >= 1 },
			Details:   totalPracticeDetails,
		},
		streakRule(models.AchievementStreak3Days, 3),
		streakRule(models.AchievementStreak7Days, 7),
		streakRule(models.AchievementStreak30Days, 30),
		{
			Kind: models.AchievementTopicMastery,
			Satisfied: func(s models.Snapshot) bool {
				_, ok := firstMastered(s)
				return ok
			},
			Details: func(s models.Snapshot) models.Details {
				r, _ := firstMastered(s)
				return models.Details{"topic": r.Topic.Title, "mastery_level": r.Mastery}
			},
		},
		{
			Kind:      models.AchievementPracticeMaster,
			Satisfied: func(s models.Snapshot) bool { return mastery.TotalPractice(s) >= PracticeMasterCount },
			Details:   totalPracticeDetails,
		},
		{
			Kind:      models.AchievementCodeWarrior,
			Satisfied: func(s models.Snapshot) bool { return advancedCompleted(s) >= CodeWarriorTopics },
			Details: func(s models.Snapshot) models.Details {
				return models.Details{"advanced_topics_completed": advancedCompleted(s)}
			},
		},
		{
			Kind: models.AchievementSubjectExpert,
			Satisfied: func(s models.Snapshot) bool {
				if len(s.Records) < SubjectExpertTopics {
					return false
				}
				for _, r := range s.Records {
					if r.Mastery < ExpertMastery {
						return false
					}
				}
				return true
			},
			Details: func(s models.Snapshot) models.Details {
				return models.Details{
					"total_topics":    len(s.Records),
					"average_mastery": mastery.AverageMastery(s),
				}
			},
		},
	}
}

func streakRule(kind models.AchievementKind, days int) Rule {
	return Rule{
		Kind:      kind,
		Satisfied: func(s models.Snapshot) bool { return s.User.StreakCount >= days },
		Details: func(s models.Snapshot) models.Details {
			return models.Details{"streak_count": s.User.StreakCount}
		},
	}
}

func totalPracticeDetails(s models.Snapshot) models.Details {
	return models.Details{"total_practice_count": mastery.TotalPractice(s)}
}

func firstMastered(s models.Snapshot) (models.ProgressRecord, bool) {
	for _, r := range s.Records {
		if r.Mastery >= TopicMasteryRequired {
			return r, true
		}
	}
	return models.ProgressRecord{}, false
}

func advancedCompleted(s models.Snapshot) int {
	n := 0
	for _, r := range s.Records {
		if r.Topic.Difficulty == models.LevelAdvanced && r.Mastery >= mastery.StrongThreshold {
			n++
		}
	}
	return n
}

// Evaluator applies a rule table to snapshots
type Evaluator struct {
	rules []Rule
}

// New returns an evaluator over DefaultRules
func New() *Evaluator {
	return &Evaluator{rules: DefaultRules()}
}

// NewWithRules returns an evaluator over a custom table
func NewWithRules(rules []Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate returns the achievements earned by s that it does not already hold.
// The result is in rule-table order and never contains a kind twice.
func (e *Evaluator) Evaluate(s models.Snapshot) []models.Achievement {
	held := make(map[models.AchievementKind]bool, len(s.Achievements))
	for _, a := range s.Achievements {
		held[a.Kind] = true
	}

	var earned []models.Achievement
	for _, rule := range e.rules {
		if held[rule.Kind] || !rule.Satisfied(s) {
			continue
		}
		held[rule.Kind] = true
		earned = append(earned, models.Achievement{
			UserID:    s.User.ID,
			Kind:      rule.Kind,
			AwardedAt: s.TakenAt,
			Details:   rule.Details(s),
		})
	}
	return earned
}
