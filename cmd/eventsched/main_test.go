package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "eventsched.yaml")
	body := "timezone: UTC\n" +
		"log_level: error\n" +
		"storage:\n  driver: csv\n  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"reminders:\n  enabled: false\n" +
		"backup:\n  dir: " + filepath.Join(dir, "backup") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"eventsched", "--config", cfgPath}, args...))
	return out.String(), err
}

func TestCommandsShareTheCatalogFiles(t *testing.T) {
	cfg, dir := writeConfig(t)

	out, err := run(t, cfg, "add", "--title", "Dentist", "--start", "2025-01-06T10:00", "--end", "2025-01-06T11:00")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "created event 1") {
		t.Errorf("add output = %q", out)
	}

	out, err = run(t, cfg, "recur", "--title", "Standup", "--start", "2025-01-06T09:00", "--end", "2025-01-06T09:15", "--every", "1d", "--count", "3")
	if err != nil {
		t.Fatalf("recur: %v", err)
	}
	if !strings.Contains(out, "created 3 events: 2 3 4") {
		t.Errorf("recur output = %q", out)
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "events.csv")); err != nil {
		t.Fatalf("events file: %v", err)
	}

	out, err = run(t, cfg, "search", "--date", "2025-01-07")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "Standup") || strings.Contains(out, "Dentist") {
		t.Errorf("search output = %q", out)
	}

	out, err = run(t, cfg, "conflicts", "--start", "2025-01-06T09:10", "--end", "2025-01-06T10:30")
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if !strings.Contains(out, "Standup") || !strings.Contains(out, "Dentist") {
		t.Errorf("conflicts output = %q", out)
	}

	if _, err := run(t, cfg, "delete", "42"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("delete missing: %v", err)
	}
	if _, err := run(t, cfg, "delete", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	out, err = run(t, cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, "Dentist") || strings.Count(out, "Standup") != 3 {
		t.Errorf("list output = %q", out)
	}
}

func TestBackupRestoreCommands(t *testing.T) {
	cfg, dir := writeConfig(t)
	if _, err := run(t, cfg, "add", "--title", "Gym", "--start", "2025-01-06T18:00", "--end", "2025-01-06T19:00"); err != nil {
		t.Fatalf("add: %v", err)
	}

	bak := filepath.Join(dir, "manual.bak")
	if _, err := run(t, cfg, "backup", "--out", bak); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if _, err := run(t, cfg, "delete", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	out, err := run(t, cfg, "restore", bak)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "restored 1 events, 0 recurrences; next id 2") {
		t.Errorf("restore output = %q", out)
	}

	if _, err := run(t, cfg, "restore", filepath.Join(dir, "missing.bak")); err == nil {
		t.Error("restore of a missing file succeeded")
	}
}

func TestRecurRequiresEventOrID(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := run(t, cfg, "recur", "--every", "1w", "--count", "2")
	if err == nil || !strings.Contains(err.Error(), "--title") {
		t.Errorf("recur without event: %v", err)
	}
}
