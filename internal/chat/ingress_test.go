package chat

import (
	"testing"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

func TestIngressEchoDiscarded(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	// Optimistic local send, then the server replays it.
	s.AddMessage(msg("local_1", "room42", "me", "hello", time.Now()))
	s.RegisterEcho("room42", "hello")

	_, ok := in.IngestOrderMessage(wire.NewMessage{
		MessageID: "srv_1",
		RoomID:    "room42",
		SenderID:  "me",
		Content:   "hello",
	})
	if ok {
		t.Error("server echo was admitted")
	}
	if got := len(s.Messages("room42")); got != 1 {
		t.Errorf("room has %d messages, want 1 (local only)", got)
	}
}

func TestIngressSameContentDifferentSender(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	s.AddMessage(msg("local_1", "room42", "me", "hello", time.Now()))
	s.RegisterEcho("room42", "hello")

	// A peer coincidentally sends identical text. Dedup keys on
	// sender+content, so this must be admitted.
	if _, ok := in.IngestOrderMessage(wire.NewMessage{
		MessageID: "srv_2",
		RoomID:    "room42",
		SenderID:  "peer",
		Content:   "hello",
	}); !ok {
		t.Error("peer message with colliding content was dropped")
	}
	if got := len(s.Messages("room42")); got != 2 {
		t.Errorf("room has %d messages, want 2", got)
	}

	// The pending echo is still armed for the real replay.
	if _, ok := in.IngestOrderMessage(wire.NewMessage{
		MessageID: "srv_3",
		RoomID:    "room42",
		SenderID:  "me",
		Content:   "hello",
	}); ok {
		t.Error("real echo admitted after peer collision")
	}
}

func TestIngressLocalSendWithoutPendingEcho(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	// A message from the local user sent from another device has no
	// pending echo and must come through.
	if _, ok := in.IngestOrderMessage(wire.NewMessage{
		MessageID: "srv_1",
		RoomID:    "room42",
		SenderID:  "me",
		Content:   "from my phone",
	}); !ok {
		t.Error("local-sender message without pending echo was dropped")
	}
}

func TestIngressValidationDrop(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	if _, ok := in.IngestOrderMessage(wire.NewMessage{Content: "no room"}); ok {
		t.Error("message without room id admitted")
	}
	if _, ok := in.IngestChatbotMessage(wire.ChatbotMessage{Message: "no session"}); ok {
		t.Error("chatbot message without session admitted")
	}
}

func TestIngressAlternateFieldNames(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	admitted, ok := in.IngestOrderMessage(wire.NewMessage{
		ID:      "alt_1",
		ChatID:  "room42",
		From:    "peer",
		Message: "via alternates",
	})
	if !ok {
		t.Fatal("alternate-field message dropped")
	}
	if admitted.MessageID != "alt_1" || admitted.RoomID != "room42" ||
		admitted.SenderID != "peer" || admitted.Content != "via alternates" {
		t.Errorf("normalized message = %+v", admitted)
	}
}

func TestIngressChatbotMetadata(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	admitted, ok := in.IngestChatbotMessage(wire.ChatbotMessage{
		SessionID: "s1",
		Message:   "pick one",
		Type:      "OPTIONS",
		Options:   []string{"refund", "status"},
	})
	if !ok {
		t.Fatal("chatbot message dropped")
	}
	if admitted.RoomID != "chatbot_s1" {
		t.Errorf("room = %q, want chatbot_s1", admitted.RoomID)
	}
	if admitted.Kind != KindOptions {
		t.Errorf("kind = %q, want OPTIONS", admitted.Kind)
	}
	if admitted.Metadata.Chatbot == nil || len(admitted.Metadata.Chatbot.Options) != 2 {
		t.Errorf("chatbot metadata not carried: %+v", admitted.Metadata)
	}
}

func TestIngressUnknownKindFallsBack(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	admitted, _ := in.IngestOrderMessage(wire.NewMessage{
		RoomID:   "room42",
		SenderID: "peer",
		Content:  "x",
		Type:     "HOLOGRAM",
	})
	if admitted.Kind != KindText {
		t.Errorf("unknown kind mapped to %q, want TEXT", admitted.Kind)
	}
}

func TestIngressChatbotMessagesSameLengthBothAdmitted(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	// Neither carries a timestamp and both are three characters long; the
	// synthetic ids must still differ so the store admits both.
	if _, ok := in.IngestChatbotMessage(wire.ChatbotMessage{SessionID: "s42", Message: "Yes"}); !ok {
		t.Fatal("first chatbot message dropped")
	}
	if _, ok := in.IngestChatbotMessage(wire.ChatbotMessage{SessionID: "s42", Message: "No!"}); !ok {
		t.Fatal("second chatbot message dropped")
	}
	if got := len(s.Messages(ChatbotRoomID("s42"))); got != 2 {
		t.Errorf("room has %d messages, want 2", got)
	}

	// A verbatim replay of one of them stays idempotent.
	in.IngestChatbotMessage(wire.ChatbotMessage{SessionID: "s42", Message: "Yes"})
	if got := len(s.Messages(ChatbotRoomID("s42"))); got != 2 {
		t.Errorf("replay duplicated: %d messages", got)
	}
}

func TestIngressAgentMessagesSameLengthBothAdmitted(t *testing.T) {
	s := NewStore(nil)
	in := NewIngress(s, "me")

	first := wire.AgentMessage{SessionID: "s42", AgentID: "agent9", Message: "one sec"}
	second := wire.AgentMessage{SessionID: "s42", AgentID: "agent9", Message: "done!!!"}
	if _, ok := in.IngestAgentMessage(first); !ok {
		t.Fatal("first agent message dropped")
	}
	if _, ok := in.IngestAgentMessage(second); !ok {
		t.Fatal("second agent message dropped")
	}
	if got := len(s.Messages(SupportRoomID("s42"))); got != 2 {
		t.Errorf("room has %d messages, want 2", got)
	}
}
