package chat

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the store handed to the persistence
// layer and the dashboard. Pending placeholder rooms are excluded: they are
// never persisted as authoritative.
type Snapshot struct {
	Rooms        []Room
	Messages     map[string][]Message
	ActiveRoomID string
	Session      *SupportSession
	TakenAt      time.Time
}

// Store holds the authoritative in-memory chat state: rooms, per-room
// message sequences, the active room pointer, the support session, and the
// pending-echo sets used for send deduplication. All mutating operations
// are idempotent and trigger the persistence hook.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	messages     map[string][]Message
	activeRoomID string
	session      *SupportSession
	pendingEcho  map[string]map[string]int // roomID -> content -> pending count

	persist func(Snapshot) // fire-and-forget; nil disables persistence
}

// NewStore creates an empty Store. The persist hook may be nil.
func NewStore(persist func(Snapshot)) *Store {
	return &Store{
		rooms:       make(map[string]*Room),
		messages:    make(map[string][]Message),
		pendingEcho: make(map[string]map[string]int),
		persist:     persist,
	}
}

// Load seeds the store from a hydrated snapshot. Called once on startup,
// before any event is processed; does not re-trigger persistence.
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range snap.Rooms {
		r := snap.Rooms[i]
		if IsPending(r.ID) {
			continue
		}
		if r.Participants == nil {
			r.Participants = make(map[string]struct{})
		}
		s.rooms[r.ID] = &r
	}
	for id, msgs := range snap.Messages {
		if IsPending(id) {
			continue
		}
		s.messages[id] = append([]Message(nil), msgs...)
	}
	s.activeRoomID = snap.ActiveRoomID
	s.session = snap.Session
}

// SetActiveRoom moves the active room pointer and resets that room's
// unread counter.
func (s *Store) SetActiveRoom(id string) {
	s.mu.Lock()
	s.activeRoomID = id
	if r, ok := s.rooms[id]; ok {
		r.UnreadCount = 0
	}
	s.mu.Unlock()
	s.notifyPersist()
}

// ActiveRoom returns the current active room id.
func (s *Store) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRoomID
}

// AddRoom upserts a room. Fields absent from the payload (zero values)
// are merged onto the existing room rather than overwriting it.
func (s *Store) AddRoom(room Room) {
	s.mu.Lock()
	existing, ok := s.rooms[room.ID]
	if !ok {
		if room.Participants == nil {
			room.Participants = make(map[string]struct{})
		}
		if room.CreatedAt.IsZero() {
			room.CreatedAt = time.Now()
		}
		if room.UpdatedAt.IsZero() {
			room.UpdatedAt = room.CreatedAt
		}
		s.rooms[room.ID] = &room
	} else {
		if room.Type != "" {
			existing.Type = room.Type
		}
		if room.OrderID != "" {
			existing.OrderID = room.OrderID
		}
		for p := range room.Participants {
			existing.Participants[p] = struct{}{}
		}
		if room.LastMessage != nil {
			existing.LastMessage = room.LastMessage
		}
		existing.UpdatedAt = time.Now()
	}
	s.mu.Unlock()
	s.notifyPersist()
}

// Room returns a copy of the room, if present.
func (s *Store) Room(id string) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return Room{}, false
	}
	return *r, true
}

// Rooms returns copies of all rooms.
func (s *Store) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	return out
}

// AddMessage appends a message to its room's sequence, updates the room's
// last-message and updatedAt, and bumps the unread counter unless the room
// is active. Re-adding a message with the same MessageID is a no-op.
// The admitted sequence stays non-decreasing in timestamp: a message
// arriving with an older clock than the tail is clamped to the tail's time.
func (s *Store) AddMessage(msg Message) {
	s.mu.Lock()
	if msg.MessageID != "" {
		for _, m := range s.messages[msg.RoomID] {
			if m.MessageID == msg.MessageID {
				s.mu.Unlock()
				return
			}
		}
	}

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		room = &Room{
			ID:           msg.RoomID,
			Participants: make(map[string]struct{}),
			CreatedAt:    time.Now(),
		}
		s.rooms[msg.RoomID] = room
	}

	seq := s.messages[msg.RoomID]
	if n := len(seq); n > 0 && msg.Timestamp.Before(seq[n-1].Timestamp) {
		msg.Timestamp = seq[n-1].Timestamp
	}
	s.messages[msg.RoomID] = append(seq, msg)

	last := msg
	room.LastMessage = &last
	room.UpdatedAt = time.Now()
	if msg.SenderID != "" {
		room.Participants[msg.SenderID] = struct{}{}
	}
	if s.activeRoomID != msg.RoomID {
		room.UnreadCount++
	}
	s.mu.Unlock()
	s.notifyPersist()
}

// ReplaceMessages replaces a room's full sequence, used when history is
// fetched. The room is created if unknown.
func (s *Store) ReplaceMessages(roomID string, msgs []Message) {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = &Room{
			ID:           roomID,
			Participants: make(map[string]struct{}),
			CreatedAt:    time.Now(),
		}
	}
	seq := append([]Message(nil), msgs...)
	s.messages[roomID] = seq
	room := s.rooms[roomID]
	if n := len(seq); n > 0 {
		last := seq[n-1]
		room.LastMessage = &last
	}
	room.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.notifyPersist()
}

// Messages returns a copy of a room's message sequence.
func (s *Store) Messages(roomID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages[roomID]...)
}

// MigrateRoom atomically moves a pending room's buffered messages and room
// record under the real server-issued id. Messages already under the real
// id keep their position; migrated ones are appended with RoomID remapped.
func (s *Store) MigrateRoom(fromID, toID string) {
	if fromID == toID {
		return
	}
	s.mu.Lock()
	buffered := s.messages[fromID]
	for _, m := range buffered {
		m.RoomID = toID
		s.messages[toID] = append(s.messages[toID], m)
	}
	delete(s.messages, fromID)

	if from, ok := s.rooms[fromID]; ok {
		to, exists := s.rooms[toID]
		if !exists {
			moved := *from
			moved.ID = toID
			s.rooms[toID] = &moved
		} else {
			for p := range from.Participants {
				to.Participants[p] = struct{}{}
			}
			if to.LastMessage == nil {
				to.LastMessage = from.LastMessage
			}
		}
		delete(s.rooms, fromID)
	}
	if s.activeRoomID == fromID {
		s.activeRoomID = toID
	}
	s.mu.Unlock()
	s.notifyPersist()
}

// Session returns the support session, if one exists.
func (s *Store) Session() *SupportSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// SetSession stores the support session descriptor.
func (s *Store) SetSession(sess SupportSession) {
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
	s.notifyPersist()
}

// ClearSession drops the support session, e.g. on explicit close or logout.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.notifyPersist()
}

// RegisterEcho records the content of a locally-originated optimistic send,
// so the server's echo can be recognized and discarded.
func (s *Store) RegisterEcho(roomID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pendingEcho[roomID]
	if !ok {
		set = make(map[string]int)
		s.pendingEcho[roomID] = set
	}
	set[content]++
}

// ConsumeEcho checks whether content is a pending echo for the room and, if
// so, consumes one occurrence. Keyed by room+content; the caller has already
// matched the sender against the local user.
func (s *Store) ConsumeEcho(roomID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pendingEcho[roomID]
	if !ok || set[content] == 0 {
		return false
	}
	set[content]--
	if set[content] == 0 {
		delete(set, content)
	}
	return true
}

// MigrateEchoes moves pending-echo entries when a pending room resolves.
func (s *Store) MigrateEchoes(fromID, toID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.pendingEcho[fromID]
	if !ok {
		return
	}
	to, exists := s.pendingEcho[toID]
	if !exists {
		to = make(map[string]int)
		s.pendingEcho[toID] = to
	}
	for content, n := range from {
		to[content] += n
	}
	delete(s.pendingEcho, fromID)
}

// Snapshot returns a deep-enough copy for persistence and dashboards.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ActiveRoomID: s.activeRoomID,
		Messages:     make(map[string][]Message, len(s.messages)),
		TakenAt:      time.Now(),
	}
	for _, r := range s.rooms {
		if IsPending(r.ID) {
			continue
		}
		snap.Rooms = append(snap.Rooms, *r)
	}
	for id, msgs := range s.messages {
		if IsPending(id) {
			continue
		}
		snap.Messages[id] = append([]Message(nil), msgs...)
	}
	if s.session != nil {
		cp := *s.session
		snap.Session = &cp
	}
	return snap
}

// notifyPersist hands the current snapshot to the persistence hook.
// Never called with the lock held.
func (s *Store) notifyPersist() {
	if s.persist != nil {
		s.persist(s.Snapshot())
	}
}
