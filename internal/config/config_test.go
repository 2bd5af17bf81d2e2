package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "5000"); got != "5000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "5000")
	}

	t.Setenv(key, "8080")
	if got := getEnv(key, "5000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want 7", got)
	}
	t.Setenv("TEST_INT", "3")
	if got := getEnvInt("TEST_INT", 7); got != 3 {
		t.Fatalf("getEnvInt = %d, want 3", got)
	}
}

func TestLoadReadsEnvAndSettings(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(f, []byte("ingest:\n  feeds: [\"http://a/feed\"]\n  authors: [\"Ann\"]\n  interval_hours: 5\nupload:\n  max_width: 640\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("SETTINGS_FILE", f)
	t.Setenv("APP_PORT", "1234")
	t.Setenv("APP_BASIC_USER", "user")
	t.Setenv("APP_BASIC_PASS", "pass")
	t.Setenv("INGEST_LOOKBACK_DAYS", "3")

	cfg := Load()
	if cfg.AppPort != "1234" {
		t.Fatalf("AppPort = %q, want %q", cfg.AppPort, "1234")
	}
	if cfg.BasicAuthUser != "user" || cfg.BasicAuthPass != "pass" {
		t.Fatalf("BasicAuthUser/Pass not loaded correctly: %+v", cfg)
	}
	in := cfg.Settings.Ingest
	if len(in.Feeds) != 1 || in.Feeds[0] != "http://a/feed" {
		t.Fatalf("feeds = %v", in.Feeds)
	}
	if in.LookbackDays != 3 {
		t.Fatalf("LookbackDays = %d, want 3 (env override)", in.LookbackDays)
	}
	if in.CronSpec != "@every 5h" {
		t.Fatalf("CronSpec = %q, want @every 5h", in.CronSpec)
	}
	if cfg.Settings.Upload.MaxWidth != 640 {
		t.Fatalf("MaxWidth = %d, want 640", cfg.Settings.Upload.MaxWidth)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	in := s.Ingest
	if in.LookbackDays != 7 || in.IntervalHours != 6 || in.CronSpec != "0 */6 * * *" {
		t.Fatalf("schedule defaults wrong: %+v", in)
	}
	if in.ExcerptLength != 150 || in.MetaDescriptionLength != 160 || in.MinContentChars != 200 {
		t.Fatalf("length defaults wrong: %+v", in)
	}
	if len(in.Feeds) != len(DefaultFeeds) || len(in.Authors) != 4 {
		t.Fatalf("list defaults wrong: feeds=%d authors=%d", len(in.Feeds), len(in.Authors))
	}
	if in.DefaultCategory != "General" {
		t.Fatalf("DefaultCategory = %q", in.DefaultCategory)
	}
}

func TestValidateRejects(t *testing.T) {
	c := &Config{StoreDriver: "oracle"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expect unsupported driver error")
	}
	s := &Settings{Ingest: IngestSettings{LookbackDays: -1}}
	if err := s.Validate(); err == nil {
		t.Fatalf("expect error for negative lookback")
	}
	s = &Settings{Upload: UploadSettings{JPEGQuality: 101}}
	if err := s.Validate(); err == nil {
		t.Fatalf("expect error for jpeg quality > 100")
	}
}
