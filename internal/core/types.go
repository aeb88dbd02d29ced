package core

import "time"

const (
	EdubotName      = "EduBot"
	EdubotUserAgent = "EduBot/0.2"
	EdubotRepoURL   = "https://github.com/openedtech/edubot"
	EdubotVersion   = "0.2.0"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread is a named conversation scope, unique per platform.
type Thread struct {
	ID        int64     `json:"id"`
	Platform  string    `json:"platform"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a stored chat utterance. (ThreadID, Username, Body, SentAt) is unique.
type Message struct {
	ID       int64     `json:"id"`
	ThreadID int64     `json:"thread_id"`
	Username string    `json:"username"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// Bot is the identity of a running assistant on one platform.
type Bot struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Platform string `json:"platform"`
}

// Completion is a generated reply linked to the message it answered.
type Completion struct {
	ID        int64     `json:"id"`
	BotID     int64     `json:"bot_id"`
	Text      string    `json:"text"`
	ReplyToID int64     `json:"reply_to"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// IncomingMessage is what a transport hands over for ingestion.
type IncomingMessage struct {
	Username string    `json:"username"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// BotIdentity names a bot before it has been registered.
type BotIdentity struct {
	Username string `json:"username"`
	Platform string `json:"platform"`
}

// Feedback is an inbound reaction to one of the bot's posts.
type Feedback struct {
	Thread     string    `json:"thread"`
	QuotedText string    `json:"quoted_text"`
	Reaction   string    `json:"reaction,omitempty"`
	SentAt     time.Time `json:"sent_at"`
	Delta      int       `json:"delta"`
}

// Turn is one rendered entry of the conversation context.
type Turn struct {
	Role    Role
	Speaker string
	Text    string
}

func (t Turn) Render() string {
	return t.Speaker + ": " + t.Text
}

// ChatMessage is a single entry of a provider request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}
