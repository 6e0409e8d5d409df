// Package notify delivers best-effort desktop notifications for sync
// alerts (driver arriving, agent hand-off).
package notify

import (
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/tommyle1310/flashfood-sync/internal/config"
)

// Desktop runs a configured shell command template per alert. Errors are
// logged, not returned; a broken notifier must never block the sync path.
type Desktop struct {
	command string
}

// NewDesktop creates a Desktop notifier from config.
func NewDesktop(cfg config.NotifyConfig) *Desktop {
	return &Desktop{command: cfg.Command}
}

// Notify sends one notification.
func (d *Desktop) Notify(title, body string) {
	if d.command != "" {
		cmdStr := templateAlert(d.command, title, body)
		cmd := exec.Command("sh", "-c", cmdStr)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Printf("notify: command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}

	// If inside tmux, also display a tmux message.
	if os.Getenv("TMUX") != "" {
		cmd := exec.Command("tmux", "display-message", title+": "+body)
		if err := cmd.Run(); err != nil {
			log.Printf("notify: tmux display-message failed: %v", err)
		}
	}
}

// templateAlert replaces placeholders in the command template.
func templateAlert(command, title, body string) string {
	r := strings.NewReplacer(
		"{{.Title}}", title,
		"{{.Body}}", body,
	)
	return r.Replace(command)
}
