package ai

import (
	"fmt"
	"strings"

	"github.com/example/tutorbot/pkg/models"
)

const fallbackTitle = "Rust Mini-Lesson"

var knownTopics = []string{
	"ownership", "borrowing", "lifetimes", "traits", "generics",
	"error handling", "concurrency", "pattern matching", "structs",
	"enums", "modules", "testing", "cargo", "memory safety",
}

func lessonPrompt(req models.LessonRequest) string {
	next := "Basic concepts"
	if len(req.NextTopics) > 0 {
		next = strings.Join(req.NextTopics, ", ")
	}
	return fmt.Sprintf(`Create a mini Rust programming lesson with the following considerations:
- User's current level: %s
- They have completed %d out of %d topics
- Their weak areas are: %s
- Their strong areas are: %s
- Recommended next topics: %s

The lesson should:
1. Be concise but thorough (250-400 words)
2. Include a practical code example
3. Explain key concepts clearly
4. Reference previously mastered topics when relevant
5. Include a small challenge or exercise
6. Use proper Rust code formatting
7. Start with a single markdown heading naming the topic
`, req.Level, req.Completed, req.TotalTopics, listOr(req.WeakTopics, "None"), listOr(req.StrongTopics, "None"), next)
}

const tutorPrompt = `You are a helpful Rust programming assistant. You help users learn Rust by:
1. Providing clear, concise explanations
2. Showing practical code examples
3. Answering follow-up questions
4. Suggesting best practices
5. Explaining error messages
6. Recommending resources

Keep responses focused on Rust programming. If asked about other topics, politely redirect to Rust-related discussions.`

// learnerContext describes the learner so replies match their level
func learnerContext(req models.LessonRequest) string {
	return fmt.Sprintf(`The user is at %s level.
Their strong topics are: %s.
Their weak topics are: %s.
Adapt your explanations accordingly.`, req.Level, listOr(req.StrongTopics, "None yet"), listOr(req.WeakTopics, "None yet"))
}

func listOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

// extractTitle returns the first markdown heading of the lesson
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(line, "#")); title != "" {
				return title
			}
		}
	}
	return fallbackTitle
}

func relatedTopics(content string) []string {
	lower := strings.ToLower(content)
	related := []string{}
	for _, topic := range knownTopics {
		if strings.Contains(lower, topic) {
			related = append(related, topic)
		}
	}
	return related
}
