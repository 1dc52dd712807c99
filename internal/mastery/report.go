package mastery

import "github.com/example/tutorbot/pkg/models"

// Report summarizes a user's progress for display and lesson prompts
type Report struct {
	Level                models.Level
	TopicsCompleted      int
	TotalTopics          int
	CompletionPercentage float64
	AverageMastery       float64
	StreakCount          int
	TotalPractice        int
	WeakTopics           []string
	StrongTopics         []string
	NeedsReview          []string
	NextTopics           []string
	Achievements         []models.AchievementKind
}

// BuildReport assembles a Report; candidates are the topics at the user's level
func BuildReport(s models.Snapshot, totalTopics int, candidates []models.Topic) Report {
	completed := len(CompletedTopics(s))
	r := Report{
		Level:           DeriveLevel(s),
		TopicsCompleted: completed,
		TotalTopics:     totalTopics,
		AverageMastery:  AverageMastery(s),
		StreakCount:     s.User.StreakCount,
		TotalPractice:   TotalPractice(s),
		WeakTopics:      Titles(WeakTopics(s)),
		StrongTopics:    Titles(StrongTopics(s)),
		NeedsReview:     Titles(NeedsReview(s)),
		NextTopics:      Titles(RecommendNext(s, candidates)),
	}
	if totalTopics > 0 {
		r.CompletionPercentage = float64(completed) / float64(totalTopics) * 100
	}
	for _, a := range s.Achievements {
		r.Achievements = append(r.Achievements, a.Kind)
	}
	return r
}

// LessonRequest converts the report into a Lesson Content Provider request
func (r Report) LessonRequest(userID int64) models.LessonRequest {
	return models.LessonRequest{
		UserID:       userID,
		Level:        r.Level,
		Completed:    r.TopicsCompleted,
		TotalTopics:  r.TotalTopics,
		WeakTopics:   r.WeakTopics,
		StrongTopics: r.StrongTopics,
		NextTopics:   r.NextTopics,
	}
}
