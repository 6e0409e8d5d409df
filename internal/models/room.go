package models

import "time"

// Room is the persisted form of a chat room: the unit of message storage.
type Room struct {
	ID           string `gorm:"primaryKey;size:128"`
	Type         string `gorm:"size:16;index"` // SUPPORT, ORDER, CHATBOT
	OrderID      string `gorm:"size:64;index"`
	Participants string `gorm:"type:json"` // JSON array of participant refs
	UnreadCount  int    `gorm:"default:0"`
	LastMessage  string `gorm:"type:json"` // JSON-encoded last message, empty if none
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatMessage is the persisted form of a single admitted message.
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	MessageID string `gorm:"size:128;index:idx_room_msg,unique"`
	RoomID    string `gorm:"size:128;index:idx_room_msg,unique;index"`
	SenderID  string `gorm:"size:64"`
	Content   string `gorm:"type:text"`
	Kind      string `gorm:"size:16;default:TEXT"`
	Metadata  string `gorm:"type:json"`
	Timestamp time.Time
	CreatedAt time.Time
}

// SupportSession is the persisted escalatable session descriptor. At most
// one row exists; SessionID is stable across the chatbot to agent hand-off.
type SupportSession struct {
	SessionID   string `gorm:"primaryKey;size:64"`
	ChatMode    string `gorm:"size:16"` // CHATBOT or AGENT
	Status      string `gorm:"size:16;default:ACTIVE"`
	Priority    string `gorm:"size:16"`
	Category    string `gorm:"size:64"`
	SLADeadline *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
