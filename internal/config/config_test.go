package config

import (
	"strings"
	"testing"
)

const validYAML = `
gateway:
  url: wss://gateway.flashfood.dev
auth:
  token: tok-123
  user_id: CUS-1
storage:
  driver: sqlite
  path: /tmp/ffsync.db
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Gateway.URL != "wss://gateway.flashfood.dev" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if cfg.Auth.UserID != "CUS-1" {
		t.Errorf("user id = %q", cfg.Auth.UserID)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Reconnect.MaxAttempts != 10 {
		t.Errorf("reconnect.max_attempts = %d, want 10", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Driver.ArrivalThresholdMin != 5 {
		t.Errorf("driver.arrival_threshold_min = %d, want 5", cfg.Driver.ArrivalThresholdMin)
	}
	if cfg.Driver.InactivityWindowSec != 120 {
		t.Errorf("driver.inactivity_window_sec = %d, want 120", cfg.Driver.InactivityWindowSec)
	}
	if cfg.Dashboard.Port != 8090 {
		t.Errorf("dashboard.port = %d, want 8090", cfg.Dashboard.Port)
	}
	// REST base is derived from the gateway URL when unset.
	if cfg.Tracking.RESTBaseURL != "https://gateway.flashfood.dev" {
		t.Errorf("tracking.rest_base_url = %q", cfg.Tracking.RESTBaseURL)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing gateway url",
			yaml: "auth:\n  user_id: CUS-1\n",
			want: "gateway.url is required",
		},
		{
			name: "missing user id",
			yaml: "gateway:\n  url: wss://g\n",
			want: "auth.user_id is required",
		},
		{
			name: "bad storage driver",
			yaml: "gateway:\n  url: wss://g\nauth:\n  user_id: u\nstorage:\n  driver: postgres\n",
			want: "not supported",
		},
		{
			name: "mysql without database",
			yaml: "gateway:\n  url: wss://g\nauth:\n  user_id: u\nstorage:\n  driver: mysql\n",
			want: "storage.database is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestMySQLDefaults(t *testing.T) {
	yaml := `
gateway:
  url: wss://g
auth:
  user_id: u
storage:
  driver: mysql
  database: ffsync
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Host != "127.0.0.1" || cfg.Storage.Port != 3306 {
		t.Errorf("mysql defaults = %s:%d", cfg.Storage.Host, cfg.Storage.Port)
	}
}
