package models

// LessonRequest describes the learner a lesson is generated for
type LessonRequest struct {
	UserID       int64
	Level        Level
	Completed    int
	TotalTopics  int
	WeakTopics   []string
	StrongTopics []string
	NextTopics   []string
}

// Lesson is the Lesson Content Provider's output
type Lesson struct {
	TopicID             int64 // set once the lesson's topic is stored
	Title               string
	Content             string
	Difficulty          Level
	RelatedTopics       []string
	PracticeSuggestions []string
}

// ChatMessage is one turn of a free-text conversation with the tutor
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}
