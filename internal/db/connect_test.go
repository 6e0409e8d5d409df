package db

import (
	"strings"
	"testing"

	"github.com/tommyle1310/flashfood-sync/internal/config"
	"github.com/tommyle1310/flashfood-sync/internal/models"
)

func TestDSN(t *testing.T) {
	got := DSN("dbhost", 3307, "ffsync")
	want := "root@tcp(dbhost:3307)/ffsync?parseTime=true"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.StorageConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("err = %v", err)
	}
}

func TestMigrateAndQuery(t *testing.T) {
	gdb, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	room := models.Room{ID: "room42", Type: "ORDER", Participants: "[]"}
	if err := gdb.Create(&room).Error; err != nil {
		t.Fatalf("create room: %v", err)
	}

	msg := models.ChatMessage{MessageID: "m1", RoomID: "room42", Content: "hi"}
	if err := gdb.Create(&msg).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}
	// The room+message unique index rejects a duplicate admit.
	dup := models.ChatMessage{MessageID: "m1", RoomID: "room42", Content: "hi again"}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Error("duplicate (messageId, roomId) accepted")
	}

	var count int64
	gdb.Model(&models.ChatMessage{}).Count(&count)
	if count != 1 {
		t.Errorf("messages = %d, want 1", count)
	}
}
