package chat

import "strings"

// Room id namespacing. Support-family sessions are prefixed so a chatbot
// room and its escalated support room can coexist under one sessionId;
// ORDER rooms use the server-issued id untouched.
const (
	supportPrefix = "support_"
	chatbotPrefix = "chatbot_"
	pendingPrefix = "pending_"
)

// KnownIDs is whatever identifiers are currently known for a session.
type KnownIDs struct {
	SessionID    string // support/chatbot session id
	ServerRoomID string // server-issued room id (ORDER)
}

// ResolveRoomID derives the canonical room id for a session type from the
// known identifiers. When no authoritative id is known yet it returns a
// pending placeholder, which must never be persisted as authoritative.
func ResolveRoomID(t SessionType, ids KnownIDs) string {
	switch t {
	case SessionSupport:
		if ids.SessionID == "" {
			return PendingRoomID(t)
		}
		return SupportRoomID(ids.SessionID)
	case SessionChatbot:
		if ids.SessionID == "" {
			return PendingRoomID(t)
		}
		return ChatbotRoomID(ids.SessionID)
	case SessionOrder:
		if ids.ServerRoomID == "" {
			return PendingRoomID(t)
		}
		return ids.ServerRoomID
	default:
		return PendingRoomID(t)
	}
}

// SupportRoomID maps a session id to its support room id. Idempotent: an
// already-prefixed id is not doubled.
func SupportRoomID(sessionID string) string {
	if strings.HasPrefix(sessionID, supportPrefix) {
		return sessionID
	}
	return supportPrefix + sessionID
}

// ChatbotRoomID maps a session id to its chatbot room id. Idempotent.
func ChatbotRoomID(sessionID string) string {
	if strings.HasPrefix(sessionID, chatbotPrefix) {
		return sessionID
	}
	return chatbotPrefix + sessionID
}

// SessionIDOf strips the namespace prefix from a support-family room id.
func SessionIDOf(roomID string) string {
	roomID = strings.TrimPrefix(roomID, supportPrefix)
	return strings.TrimPrefix(roomID, chatbotPrefix)
}

// PendingRoomID returns the placeholder room id used while no server-issued
// id is known for the given session type.
func PendingRoomID(t SessionType) string {
	return pendingPrefix + strings.ToLower(string(t))
}

// IsPending reports whether a room id is a placeholder.
func IsPending(roomID string) bool {
	return strings.HasPrefix(roomID, pendingPrefix)
}
