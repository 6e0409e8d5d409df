package chat

import (
	"fmt"
	"hash/fnv"
	"log"
	"strconv"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

// Ingress normalizes inbound wire events into canonical Messages, performs
// sender-echo deduplication, and admits survivors into the store. A raw
// event that fails validation is logged and dropped; it never crashes the
// pipeline or corrupts a room.
type Ingress struct {
	store       *Store
	localUserID string
}

// NewIngress creates an Ingress for the given local user.
func NewIngress(store *Store, localUserID string) *Ingress {
	return &Ingress{store: store, localUserID: localUserID}
}

// IngestOrderMessage processes a newMessage event for an ORDER room.
// Returns the admitted message, or ok=false when the event was dropped
// (validation failure or echo of a local optimistic send).
func (in *Ingress) IngestOrderMessage(p wire.NewMessage) (Message, bool) {
	if err := p.Validate(); err != nil {
		log.Printf("chat: ingress: %v", err)
		return Message{}, false
	}
	msg := Message{
		MessageID: p.MsgID(),
		RoomID:    p.Room(),
		SenderID:  p.Sender(),
		Content:   p.Body(),
		Kind:      NormalizeKind(p.Type),
		Timestamp: ParseTimestamp(p.Timestamp),
	}
	return in.admit(msg)
}

// IngestChatbotMessage processes a chatbotMessage event. The chatbot never
// echoes local sends, but the dedup path still applies uniformly.
func (in *Ingress) IngestChatbotMessage(p wire.ChatbotMessage) (Message, bool) {
	if err := p.Validate(); err != nil {
		log.Printf("chat: ingress: %v", err)
		return Message{}, false
	}
	msg := Message{
		MessageID: chatbotMessageID(p),
		RoomID:    ChatbotRoomID(p.SessionID),
		SenderID:  "chatbot",
		Content:   p.Message,
		Kind:      NormalizeKind(p.Type),
		Timestamp: ParseTimestamp(p.Timestamp),
	}
	if len(p.Options) > 0 || len(p.QuickReplies) > 0 || len(p.FormFields) > 0 || p.FollowUpPrompt != "" {
		msg.Metadata.Chatbot = &ChatbotMeta{
			Options:        p.Options,
			QuickReplies:   p.QuickReplies,
			FormFields:     p.FormFields,
			FollowUpPrompt: p.FollowUpPrompt,
		}
	}
	return in.admit(msg)
}

// IngestAgentMessage processes an agentMessage event after the hand-off has
// been applied, admitting it into the support room.
func (in *Ingress) IngestAgentMessage(p wire.AgentMessage) (Message, bool) {
	if err := p.Validate(); err != nil {
		log.Printf("chat: ingress: %v", err)
		return Message{}, false
	}
	msg := Message{
		MessageID: agentMessageID(p),
		RoomID:    SupportRoomID(p.SessionID),
		SenderID:  p.AgentID,
		Content:   p.Message,
		Kind:      NormalizeKind(p.MessageType),
		Timestamp: ParseTimestamp(p.Timestamp),
		Metadata: Metadata{
			Agent: &AgentMeta{AgentID: p.AgentID, AgentName: p.AgentName},
		},
	}
	return in.admit(msg)
}

// IngestSupportEcho processes a support-session message addressed from the
// local user (the gateway replays our own sendSupportMessage).
func (in *Ingress) IngestSupportEcho(roomID string, p wire.NewMessage) (Message, bool) {
	if roomID == "" {
		log.Printf("chat: ingress: support echo without room")
		return Message{}, false
	}
	msg := Message{
		MessageID: p.MsgID(),
		RoomID:    roomID,
		SenderID:  p.Sender(),
		Content:   p.Body(),
		Kind:      NormalizeKind(p.Type),
		Timestamp: ParseTimestamp(p.Timestamp),
	}
	return in.admit(msg)
}

// admit runs the dedup step and appends the message. An incoming message
// whose sender is the local user and whose content is pending as an echo is
// the server's replay of an optimistic send: it is discarded and the pending
// entry consumed. A different sender is always admitted, even on content
// collision; collision is keyed by sender+content, never content alone.
func (in *Ingress) admit(msg Message) (Message, bool) {
	if msg.SenderID != "" && msg.SenderID == in.localUserID {
		if in.store.ConsumeEcho(msg.RoomID, msg.Content) {
			return Message{}, false
		}
	}
	in.store.AddMessage(msg)
	return msg, true
}

// HistoryMessages normalizes a history payload into canonical messages for
// a full-sequence replace. History is authoritative, so no echo dedup runs.
func (in *Ingress) HistoryMessages(roomID string, raws []wire.NewMessage) []Message {
	msgs := make([]Message, 0, len(raws))
	for _, p := range raws {
		msgs = append(msgs, Message{
			MessageID: p.MsgID(),
			RoomID:    roomID,
			SenderID:  p.Sender(),
			Content:   p.Body(),
			Kind:      NormalizeKind(p.Type),
			Timestamp: ParseTimestamp(p.Timestamp),
		})
	}
	return msgs
}

// chatbotMessageID builds a stable synthetic id for chatbot messages, which
// arrive without one. Timestamp plus a content digest keeps replays
// idempotent; distinct messages in the same instant get distinct ids.
func chatbotMessageID(p wire.ChatbotMessage) string {
	return fmt.Sprintf("cb_%s_%s_%s", p.SessionID, p.Timestamp, contentDigest(p.Message))
}

func agentMessageID(p wire.AgentMessage) string {
	return fmt.Sprintf("ag_%s_%s_%s_%s", p.SessionID, p.AgentID, p.Timestamp, contentDigest(p.Message))
}

func contentDigest(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return strconv.FormatUint(h.Sum64(), 16)
}
