package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tommyle1310/flashfood-sync/internal/models"
)

func writeLegacyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy_messages.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}
	return path
}

func TestImportLegacy(t *testing.T) {
	gdb := testDB(t)
	p := New(gdb)
	path := writeLegacyFile(t, `[
		{"roomId": "room42", "senderId": "me", "content": "old one", "type": "TEXT", "timestamp": "2025-01-02T10:00:00Z"},
		{"sessionId": "s1", "senderId": "me", "content": "old two", "type": "TEXT"},
		{"senderId": "me", "content": "orphan"}
	]`)

	if err := p.ImportLegacy(path); err != nil {
		t.Fatalf("import: %v", err)
	}

	snap, err := p.Hydrate()
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if got := len(snap.Messages["room42"]); got != 1 {
		t.Errorf("room42 imported %d messages, want 1", got)
	}
	// Session-keyed legacy rows land in the derived support room.
	if got := len(snap.Messages["support_s1"]); got != 1 {
		t.Errorf("support_s1 imported %d messages, want 1", got)
	}
	total := 0
	for _, msgs := range snap.Messages {
		total += len(msgs)
	}
	if total != 2 {
		t.Errorf("imported %d messages, want 2 (orphan skipped)", total)
	}
}

func TestImportLegacyRunsOnce(t *testing.T) {
	gdb := testDB(t)
	p := New(gdb)
	path := writeLegacyFile(t, `[{"roomId": "room42", "senderId": "me", "content": "x"}]`)

	if err := p.ImportLegacy(path); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if err := p.ImportLegacy(path); err != nil {
		t.Fatalf("second import: %v", err)
	}

	var count int64
	gdb.Model(&models.ChatMessage{}).Count(&count)
	if count != 1 {
		t.Errorf("repeated import produced %d rows, want 1", count)
	}
}

func TestImportLegacyMissingFile(t *testing.T) {
	p := New(testDB(t))
	if err := p.ImportLegacy(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Errorf("missing file should be a no-op, got %v", err)
	}
}

func TestImportLegacyCorruptFile(t *testing.T) {
	gdb := testDB(t)
	p := New(gdb)
	path := writeLegacyFile(t, `{"not": "a list"`)

	if err := p.ImportLegacy(path); err != nil {
		t.Fatalf("corrupt import: %v", err)
	}

	// Marked imported so startup does not retry forever.
	var marker models.SyncMeta
	if err := gdb.First(&marker, "`key` = ?", models.MetaLegacyImported).Error; err != nil {
		t.Error("corrupt file did not set the import marker")
	}
	var count int64
	gdb.Model(&models.ChatMessage{}).Count(&count)
	if count != 0 {
		t.Errorf("corrupt file imported %d rows", count)
	}
}
