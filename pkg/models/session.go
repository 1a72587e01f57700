package models

// AssistantSession is one AI assistant conversation thread held by the remote API.
type AssistantSession struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Topic     string `json:"topic,omitempty"`
}

// Conversation is one question/answer exchange within an assistant session.
type Conversation struct {
	ID          string `json:"id"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	Timestamp   string `json:"timestamp"`
}
