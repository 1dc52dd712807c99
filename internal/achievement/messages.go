package achievement

import (
	"fmt"

	"github.com/example/tutorbot/pkg/models"
)

var messages = map[models.AchievementKind]string{
	models.AchievementFirstLesson:    "🎉 First Lesson Completed! You've taken your first step!",
	models.AchievementStreak3Days:    "🔥 3-Day Streak! You're building a great learning habit!",
	models.AchievementStreak7Days:    "🌟 7-Day Streak! Your dedication is impressive!",
	models.AchievementStreak30Days:   "🏆 30-Day Streak! You're a true enthusiast!",
	models.AchievementPracticeMaster: "💪 Practice Master! You've completed 50 practice sessions!",
	models.AchievementCodeWarrior:    "⚔️ Code Warrior! You've mastered 3 advanced topics!",
	models.AchievementSubjectExpert:  "👑 Expert! You've achieved mastery across every topic you study!",
}

// Message returns the announcement for a freshly awarded achievement
func Message(a models.Achievement) string {
	if a.Kind == models.AchievementTopicMastery {
		if topic, ok := a.Details["topic"].(string); ok && topic != "" {
			return fmt.Sprintf("🎯 Topic Mastery! You've mastered %s!", topic)
		}
		return "🎯 Topic Mastery! You've mastered your first topic!"
	}
	if msg, ok := messages[a.Kind]; ok {
		return msg
	}
	return "🎉 New Achievement Unlocked!"
}
