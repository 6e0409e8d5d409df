package chat

import "log"

// Handoff applies the chatbot-to-agent transition for the given session.
// One-directional: CHATBOT -> AGENT, no reverse transition exists.
//
// If the support room is still empty and the chatbot room has history, the
// chatbot history is copied (not moved) into the support room with each
// copy's RoomID remapped; the chatbot room remains retrievable. The active
// room pointer then switches to the support room. The triggering agent
// message itself is admitted by the caller through the normal ingress path.
//
// Returns the number of migrated messages (0 when no copy occurred).
func Handoff(s *Store, sessionID string) int {
	chatbotRoom := ChatbotRoomID(sessionID)
	supportRoom := SupportRoomID(sessionID)

	migrated := 0
	if len(s.Messages(supportRoom)) == 0 {
		history := s.Messages(chatbotRoom)
		if len(history) > 0 {
			copied := make([]Message, len(history))
			for i, m := range history {
				m.RoomID = supportRoom
				copied[i] = m
			}
			s.ReplaceMessages(supportRoom, copied)
			migrated = len(copied)
		}
	}

	s.AddRoom(Room{ID: supportRoom, Type: SessionSupport})
	s.SetActiveRoom(supportRoom)

	if sess := s.Session(); sess != nil && sess.SessionID == sessionID && sess.ChatMode != ModeAgent {
		sess.ChatMode = ModeAgent
		s.SetSession(*sess)
		log.Printf("chat: session %s escalated to agent (%d messages migrated)", sessionID, migrated)
	}
	return migrated
}
