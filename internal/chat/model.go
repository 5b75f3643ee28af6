package chat

import (
	"time"
)

// EnvelopeTypeChatMessage marks the broadcast frame carrying a chat message.
// EnvelopeTypeError marks a sender-local frame reporting a rejected payload.
const (
	EnvelopeTypeChatMessage = "chat_message"
	EnvelopeTypeError       = "error"
)

// Message is the durable chat log entry. SentOn is assigned by the store at
// persistence time and may trail the Datetime stamped on the broadcast
// envelope; the two are intentionally decoupled.
type Message struct {
	ID       uint      `gorm:"column:id;primaryKey"`
	UserID   string    `gorm:"column:user_id;size:190;not null;index"`
	CourseID uint      `gorm:"column:course_id;not null;index:idx_chat_messages_course_id"`
	Content  string    `gorm:"column:content;type:text;not null"`
	SentOn   time.Time `gorm:"column:sent_on;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "chat_messages"
}

// Envelope is the frame delivered to every live connection in a course room.
// It is distinct from the persisted Message record.
type Envelope struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	User     string `json:"user"`
	Datetime string `json:"datetime"`
}
