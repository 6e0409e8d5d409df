package persist

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/models"
)

// legacyMessage is the pre-room-keyed flat message format older builds
// persisted as a single JSON list.
type legacyMessage struct {
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ImportLegacy imports a legacy flat message-list file into the room-keyed
// schema. Runs exactly once: a SyncMeta marker guards against duplication
// on repeated hydrations. Missing file and already-imported are both no-ops.
func (p *Persister) ImportLegacy(path string) error {
	var marker models.SyncMeta
	if err := p.db.First(&marker, "`key` = ?", models.MetaLegacyImported).Error; err == nil {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist: read legacy file %s: %w", path, err)
	}

	var flat []legacyMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		// A corrupt legacy file is tolerated: mark imported so we do not
		// retry forever, and keep the current mirror intact.
		log.Printf("persist: legacy file %s unreadable, skipping import: %v", path, err)
		return p.markLegacyImported()
	}

	imported := 0
	for _, lm := range flat {
		roomID := lm.RoomID
		if roomID == "" && lm.SessionID != "" {
			roomID = chat.SupportRoomID(lm.SessionID)
		}
		if roomID == "" {
			log.Printf("persist: skipping legacy message without room or session")
			continue
		}
		row := models.ChatMessage{
			MessageID: fmt.Sprintf("legacy_%s_%d", roomID, imported),
			RoomID:    roomID,
			SenderID:  lm.SenderID,
			Content:   lm.Content,
			Kind:      string(chat.NormalizeKind(lm.Type)),
			Timestamp: chat.ParseTimestamp(lm.Timestamp),
		}
		if err := p.db.Create(&row).Error; err != nil {
			return fmt.Errorf("persist: import legacy message: %w", err)
		}
		var room models.Room
		if err := p.db.First(&room, "id = ?", roomID).Error; err != nil {
			room = models.Room{ID: roomID, Participants: "[]"}
			if err := p.db.Create(&room).Error; err != nil {
				return fmt.Errorf("persist: create room for legacy import: %w", err)
			}
		}
		imported++
	}
	if imported > 0 {
		log.Printf("persist: imported %d legacy messages from %s", imported, path)
	}
	return p.markLegacyImported()
}

func (p *Persister) markLegacyImported() error {
	marker := models.SyncMeta{Key: models.MetaLegacyImported, Value: "1"}
	if err := p.db.Save(&marker).Error; err != nil {
		return fmt.Errorf("persist: write legacy marker: %w", err)
	}
	return nil
}
