package models

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id" bson:"_id"`
	ConvID    string    `json:"conversationId" bson:"conversation_id"`
	Role      Role      `json:"role" bson:"role"` // user or assistant
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id" bson:"_id"`
	OwnerID   string    `json:"-" bson:"user_id"`
	Title     string    `json:"title" bson:"title"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// ConversationSummary is the sidebar view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
}
