// Package persist is the asynchronous write-through cache between the
// in-memory chat store and the local mirror database. Mutations enqueue
// snapshots; a single writer flushes only the newest queued snapshot, so
// the persisted state is never older than the last mutation once the queue
// drains, and a slow write never delays message delivery.
package persist

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/models"
	"github.com/tommyle1310/flashfood-sync/internal/tracking"
	"gorm.io/gorm"
)

// Persister owns the single-writer snapshot queue.
type Persister struct {
	db *gorm.DB

	mu           sync.Mutex
	latest       *chat.Snapshot
	latestOrders *[]tracking.Order
	kick         chan struct{}
}

// New creates a Persister over an already-migrated database.
func New(db *gorm.DB) *Persister {
	return &Persister{
		db:   db,
		kick: make(chan struct{}, 1),
	}
}

// Enqueue records a snapshot for the writer. Non-blocking; an unflushed
// older snapshot is replaced (coalesced) rather than queued behind.
func (p *Persister) Enqueue(snap chat.Snapshot) {
	p.mu.Lock()
	p.latest = &snap
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run is the writer loop. It blocks until the context is cancelled, then
// flushes any pending snapshot before returning.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flushPending()
			return
		case <-p.kick:
			p.flushPending()
		}
	}
}

// flushPending writes the newest queued snapshot, if any. A write failure
// is logged and the in-memory store stays the source of truth; the next
// mutation re-enqueues and retries.
func (p *Persister) flushPending() {
	p.mu.Lock()
	snap := p.latest
	orders := p.latestOrders
	p.latest = nil
	p.latestOrders = nil
	p.mu.Unlock()
	if snap != nil {
		if err := p.Flush(*snap); err != nil {
			log.Printf("persist: write failed (in-memory store remains authoritative): %v", err)
			p.mu.Lock()
			if p.latest == nil {
				p.latest = snap
			}
			p.mu.Unlock()
		}
	}
	if orders != nil {
		if err := p.FlushOrders(*orders); err != nil {
			log.Printf("persist: order write failed (in-memory table remains authoritative): %v", err)
			p.mu.Lock()
			if p.latestOrders == nil {
				p.latestOrders = orders
			}
			p.mu.Unlock()
		}
	}
}

// Flush writes one snapshot synchronously. Exposed for shutdown and tests.
func (p *Persister) Flush(snap chat.Snapshot) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Room{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.SupportSession{}).Error; err != nil {
			return err
		}

		for _, r := range snap.Rooms {
			row, err := roomRow(r)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for roomID, msgs := range snap.Messages {
			for _, m := range msgs {
				row, err := messageRow(roomID, m)
				if err != nil {
					return err
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		if snap.Session != nil {
			row := sessionRow(*snap.Session)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		meta := models.SyncMeta{Key: models.MetaActiveRoom, Value: snap.ActiveRoomID}
		return tx.Save(&meta).Error
	})
}

// Hydrate loads the persisted mirror into a snapshot. Individually corrupt
// rows (unreadable JSON columns) are skipped, never fatal: a damaged room
// or message must not cost the rest of the mirror.
func (p *Persister) Hydrate() (chat.Snapshot, error) {
	snap := chat.Snapshot{Messages: make(map[string][]chat.Message)}

	var roomRows []models.Room
	if err := p.db.Find(&roomRows).Error; err != nil {
		return snap, err
	}
	for _, row := range roomRows {
		room, err := roomFromRow(row)
		if err != nil {
			log.Printf("persist: skipping corrupt room %s: %v", row.ID, err)
			continue
		}
		snap.Rooms = append(snap.Rooms, room)
	}

	var msgRows []models.ChatMessage
	if err := p.db.Order("room_id, timestamp, id").Find(&msgRows).Error; err != nil {
		return snap, err
	}
	for _, row := range msgRows {
		msg, err := messageFromRow(row)
		if err != nil {
			log.Printf("persist: skipping corrupt message %s in %s: %v", row.MessageID, row.RoomID, err)
			continue
		}
		snap.Messages[row.RoomID] = append(snap.Messages[row.RoomID], msg)
	}

	var sessRow models.SupportSession
	if err := p.db.First(&sessRow).Error; err == nil {
		sess := sessionFromRow(sessRow)
		snap.Session = &sess
	}

	var meta models.SyncMeta
	if err := p.db.First(&meta, "`key` = ?", models.MetaActiveRoom).Error; err == nil {
		snap.ActiveRoomID = meta.Value
	}

	return snap, nil
}

// roomRow converts a domain room to its persisted form.
func roomRow(r chat.Room) (models.Room, error) {
	participants := make([]string, 0, len(r.Participants))
	for p := range r.Participants {
		participants = append(participants, p)
	}
	pJSON, err := json.Marshal(participants)
	if err != nil {
		return models.Room{}, err
	}
	var lastJSON []byte
	if r.LastMessage != nil {
		lastJSON, err = json.Marshal(r.LastMessage)
		if err != nil {
			return models.Room{}, err
		}
	}
	return models.Room{
		ID:           r.ID,
		Type:         string(r.Type),
		OrderID:      r.OrderID,
		Participants: string(pJSON),
		UnreadCount:  r.UnreadCount,
		LastMessage:  string(lastJSON),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func roomFromRow(row models.Room) (chat.Room, error) {
	room := chat.Room{
		ID:           row.ID,
		Type:         chat.SessionType(row.Type),
		OrderID:      row.OrderID,
		UnreadCount:  row.UnreadCount,
		Participants: make(map[string]struct{}),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Participants != "" {
		var participants []string
		if err := json.Unmarshal([]byte(row.Participants), &participants); err != nil {
			return chat.Room{}, err
		}
		for _, p := range participants {
			room.Participants[p] = struct{}{}
		}
	}
	if row.LastMessage != "" {
		var last chat.Message
		if err := json.Unmarshal([]byte(row.LastMessage), &last); err != nil {
			return chat.Room{}, err
		}
		room.LastMessage = &last
	}
	return room, nil
}

func messageRow(roomID string, m chat.Message) (models.ChatMessage, error) {
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return models.ChatMessage{
		MessageID: m.MessageID,
		RoomID:    roomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Kind:      string(m.Kind),
		Metadata:  string(metaJSON),
		Timestamp: m.Timestamp,
	}, nil
}

func messageFromRow(row models.ChatMessage) (chat.Message, error) {
	msg := chat.Message{
		MessageID: row.MessageID,
		RoomID:    row.RoomID,
		SenderID:  row.SenderID,
		Content:   row.Content,
		Kind:      chat.NormalizeKind(row.Kind),
		Timestamp: row.Timestamp,
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &msg.Metadata); err != nil {
			return chat.Message{}, err
		}
	}
	return msg, nil
}

func sessionRow(s chat.SupportSession) models.SupportSession {
	return models.SupportSession{
		SessionID:   s.SessionID,
		ChatMode:    string(s.ChatMode),
		Status:      s.Status,
		Priority:    s.Priority,
		Category:    s.Category,
		SLADeadline: s.SLADeadline,
	}
}

func sessionFromRow(row models.SupportSession) chat.SupportSession {
	return chat.SupportSession{
		SessionID:   row.SessionID,
		ChatMode:    chat.SessionType(row.ChatMode),
		Status:      row.Status,
		Priority:    row.Priority,
		Category:    row.Category,
		SLADeadline: row.SLADeadline,
	}
}
