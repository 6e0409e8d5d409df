package chat

import "testing"

func TestResolveRoomID(t *testing.T) {
	tests := []struct {
		name string
		typ  SessionType
		ids  KnownIDs
		want string
	}{
		{"support with session", SessionSupport, KnownIDs{SessionID: "sess1"}, "support_sess1"},
		{"chatbot with session", SessionChatbot, KnownIDs{SessionID: "sess1"}, "chatbot_sess1"},
		{"order with server room", SessionOrder, KnownIDs{ServerRoomID: "room42"}, "room42"},
		{"support pending", SessionSupport, KnownIDs{}, "pending_support"},
		{"chatbot pending", SessionChatbot, KnownIDs{}, "pending_chatbot"},
		{"order pending", SessionOrder, KnownIDs{}, "pending_order"},
		{"order ignores session id", SessionOrder, KnownIDs{SessionID: "sess1"}, "pending_order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRoomID(tt.typ, tt.ids); got != tt.want {
				t.Errorf("ResolveRoomID(%s, %+v) = %q, want %q", tt.typ, tt.ids, got, tt.want)
			}
		})
	}
}

func TestPrefixIdempotent(t *testing.T) {
	if got := SupportRoomID("support_abc"); got != "support_abc" {
		t.Errorf("SupportRoomID doubled the prefix: %q", got)
	}
	if got := ChatbotRoomID("chatbot_abc"); got != "chatbot_abc" {
		t.Errorf("ChatbotRoomID doubled the prefix: %q", got)
	}
	if got := SupportRoomID(SupportRoomID("abc")); got != "support_abc" {
		t.Errorf("double application changed result: %q", got)
	}
}

func TestSessionIDOf(t *testing.T) {
	if got := SessionIDOf("support_s1"); got != "s1" {
		t.Errorf("SessionIDOf(support_s1) = %q", got)
	}
	if got := SessionIDOf("chatbot_s1"); got != "s1" {
		t.Errorf("SessionIDOf(chatbot_s1) = %q", got)
	}
	if got := SessionIDOf("room42"); got != "room42" {
		t.Errorf("SessionIDOf(room42) = %q, want unchanged", got)
	}
}

func TestIsPending(t *testing.T) {
	if !IsPending("pending_order") {
		t.Error("pending_order should be pending")
	}
	if IsPending("support_s1") {
		t.Error("support_s1 should not be pending")
	}
}
