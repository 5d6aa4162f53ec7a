package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfigFile(t *testing.T) {
	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 15*time.Second {
		t.Errorf("expected API read timeout 15s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected empty database URL, got %s", cfg.Database.URL)
	}
	if cfg.Dispatch.DefaultDailyQuota != 100 {
		t.Errorf("expected default daily quota 100, got %d", cfg.Dispatch.DefaultDailyQuota)
	}
	if cfg.Dispatch.MaxAttachmentBytes != 2<<20 {
		t.Errorf("expected max attachment bytes 2MiB, got %d", cfg.Dispatch.MaxAttachmentBytes)
	}
	if cfg.Stream.Heartbeat != 25*time.Second {
		t.Errorf("expected stream heartbeat 25s, got %v", cfg.Stream.Heartbeat)
	}
	if cfg.Credentials.CacheTTL != 5*time.Minute {
		t.Errorf("expected credential cache ttl 5m, got %v", cfg.Credentials.CacheTTL)
	}
	if cfg.Auth.Audience != "request-mailer-api" {
		t.Errorf("expected audience request-mailer-api, got %s", cfg.Auth.Audience)
	}
	if cfg.Snapshots.Type != "local" || cfg.Snapshots.S3Region != "us-east-1" {
		t.Errorf("unexpected snapshots config: %+v", cfg.Snapshots)
	}
	if cfg.Redis.EventChannel != "request-mailer:delivery-events" {
		t.Errorf("unexpected event channel %s", cfg.Redis.EventChannel)
	}
}

func TestLoad_EnvironmentVariableOverride(t *testing.T) {
	t.Setenv("REQUEST_MAILER_DISPATCH_DEFAULT_DAILY_QUOTA", "250")
	t.Setenv("REQUEST_MAILER_REDIS_ADDR", "redis:6379")
	t.Setenv("REQUEST_MAILER_STREAM_HEARTBEAT", "10s")

	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Dispatch.DefaultDailyQuota != 250 {
		t.Errorf("expected quota 250 from env, got %d", cfg.Dispatch.DefaultDailyQuota)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.Redis.Addr)
	}
	if cfg.Stream.Heartbeat != 10*time.Second {
		t.Errorf("expected heartbeat 10s from env, got %v", cfg.Stream.Heartbeat)
	}
	// untouched values still come from the file
	if cfg.API.Port != 8080 {
		t.Errorf("expected API port 8080, got %d", cfg.API.Port)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return dir
}

func TestLoad_PartialConfigUsesDefaults(t *testing.T) {
	dir := writeConfig(t, `
auth:
  signing_key: partial-test-key
logging:
  level: debug
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Stream.Buffer != 64 {
		t.Errorf("expected default stream buffer 64, got %d", cfg.Stream.Buffer)
	}
	if cfg.Redis.LockTTL != 2*time.Minute {
		t.Errorf("expected default lock ttl 2m, got %v", cfg.Redis.LockTTL)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing signing key",
			body:    "logging:\n  level: info\n",
			wantErr: "auth.signing_key",
		},
		{
			name:    "database without sealing key",
			body:    "auth:\n  signing_key: k\ndatabase:\n  url: postgres://localhost/x\n",
			wantErr: "credentials.sealing_key",
		},
		{
			name:    "negative quota",
			body:    "auth:\n  signing_key: k\ndispatch:\n  default_daily_quota: -5\n",
			wantErr: "default_daily_quota",
		},
		{
			name:    "quota wider than 32 bits",
			body:    "auth:\n  signing_key: k\ndispatch:\n  default_daily_quota: 4294967296\n",
			wantErr: "default_daily_quota",
		},
		{
			name:    "unknown timezone",
			body:    "auth:\n  signing_key: k\ndispatch:\n  timezone: Mars/Olympus\n",
			wantErr: "timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDispatchConfig_Location(t *testing.T) {
	loc, err := DispatchConfig{Timezone: "Asia/Seoul"}.Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc.String() != "Asia/Seoul" {
		t.Errorf("Location() = %s", loc)
	}

	if loc, _ := (DispatchConfig{}).Location(); loc != time.Local {
		t.Errorf("empty timezone should be time.Local, got %s", loc)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path")
	if err == nil {
		t.Error("expected error for missing config file, got nil")
	}
}
