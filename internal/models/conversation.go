package models

import "time"

// Message roles as stored in the conversation_messages table.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents a finished conversation ingested from the chat
// system. Conversations are immutable once stored; this service only reads
// them.
type Conversation struct {
	ID        int64     `db:"id" json:"id"`
	Source    string    `db:"source" json:"source"` // "chat", "import", "synthetic"
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Messages []ConversationMessage `db:"-" json:"messages"`
}

// ConversationMessage is a single message within a conversation, ordered by
// its sequence index.
type ConversationMessage struct {
	ID             int64  `db:"id" json:"id"`
	ConversationID int64  `db:"conversation_id" json:"conversation_id"`
	Role           string `db:"role" json:"role"`
	Content        string `db:"content" json:"content"`
	Seq            int    `db:"seq" json:"seq"`
}
