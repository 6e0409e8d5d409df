package models

import "time"

// SyncMeta is a small key/value table for durable sync markers: the active
// room pointer, and the one-shot legacy-import flag.
type SyncMeta struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// Well-known SyncMeta keys.
const (
	MetaActiveRoom     = "active_room_id"
	MetaLegacyImported = "legacy_imported"
)
