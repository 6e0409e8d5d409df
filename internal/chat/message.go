// Package chat implements the session/message synchronization core: the
// session resolver, message ingress pipeline, room store, chatbot-to-agent
// hand-off, and the engine event loop that ties them to the gateway.
package chat

import (
	"fmt"
	"time"
)

// SessionType distinguishes the three chat modes sharing one transport.
type SessionType string

const (
	SessionSupport SessionType = "SUPPORT"
	SessionOrder   SessionType = "ORDER"
	SessionChatbot SessionType = "CHATBOT"
)

// Kind is the message content kind.
type Kind string

const (
	KindText      Kind = "TEXT"
	KindImage     Kind = "IMAGE"
	KindVideo     Kind = "VIDEO"
	KindOrderInfo Kind = "ORDER_INFO"
	KindOptions   Kind = "OPTIONS"
)

// NormalizeKind maps a provider kind string to a canonical Kind.
// Unknown kinds default to TEXT.
func NormalizeKind(s string) Kind {
	switch Kind(s) {
	case KindText, KindImage, KindVideo, KindOrderInfo, KindOptions:
		return Kind(s)
	default:
		return KindText
	}
}

// ChatbotMeta carries scripted-bot extras attached to a message.
type ChatbotMeta struct {
	Options        []string `json:"options,omitempty"`
	QuickReplies   []string `json:"quickReplies,omitempty"`
	FormFields     []string `json:"formFields,omitempty"`
	FollowUpPrompt string   `json:"followUpPrompt,omitempty"`
}

// AgentMeta identifies the human agent behind a message.
type AgentMeta struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// Metadata is the per-message variant payload. At most one branch is set.
type Metadata struct {
	Chatbot *ChatbotMeta `json:"chatbot,omitempty"`
	Agent   *AgentMeta   `json:"agent,omitempty"`
	System  bool         `json:"system,omitempty"`
}

// Message is the canonical record every inbound wire event normalizes to.
// Immutable once admitted to a room's sequence.
type Message struct {
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

// Room is the addressable container for an ordered message sequence.
type Room struct {
	ID           string              `json:"id"`
	Type         SessionType         `json:"type"`
	OrderID      string              `json:"orderId,omitempty"`
	Participants map[string]struct{} `json:"-"`
	LastMessage  *Message            `json:"lastMessage,omitempty"`
	UnreadCount  int                 `json:"unreadCount"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// SupportSession is the escalatable session descriptor. SessionID is stable
// across the chatbot-to-agent hand-off; only ChatMode changes.
type SupportSession struct {
	SessionID   string      `json:"sessionId"`
	ChatMode    SessionType `json:"chatMode"` // SessionChatbot or "AGENT"
	Status      string      `json:"status"`
	Priority    string      `json:"priority"`
	Category    string      `json:"category,omitempty"`
	SLADeadline *time.Time  `json:"slaDeadline,omitempty"`
}

// ModeAgent is the post-hand-off chat mode.
const ModeAgent SessionType = "AGENT"

// ParseTimestamp parses gateway timestamps, which arrive either as RFC3339
// or epoch milliseconds rendered as a string. Zero input means "now".
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}
