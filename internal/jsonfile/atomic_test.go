package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWrite_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	data := map[string]any{"key": "value", "count": 42}
	if err := Write(path, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("key: got %v, want %q", result["key"], "value")
	}
}

func TestWrite_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	if err := Write(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := Write(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	bakContent, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}
	var bakData map[string]string
	if err := json.Unmarshal(bakContent, &bakData); err != nil {
		t.Fatalf("Unmarshal .bak failed: %v", err)
	}
	if bakData["version"] != "1" {
		t.Errorf("backup version: got %q, want %q", bakData["version"], "1")
	}

	var curData map[string]string
	if err := Read(path, &curData); err != nil {
		t.Fatalf("Read current failed: %v", err)
	}
	if curData["version"] != "2" {
		t.Errorf("current version: got %q, want %q", curData["version"], "2")
	}
}

func TestWriteRaw_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	if err := WriteRaw(path, []byte("{not json")); err == nil {
		t.Fatal("expected error for invalid json content")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid content must not reach the target path")
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir after failed write, found %d entries", len(entries))
	}
}

func TestRead_ToleratesJSONC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	content := []byte("{\n  // hand-edited\n  \"name\": \"demo\",\n}\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var result map[string]string
	if err := Read(path, &result); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if result["name"] != "demo" {
		t.Errorf("name: got %q, want %q", result["name"], "demo")
	}
}

func TestQuarantine(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "broken.json")
	if err := os.WriteFile(path, []byte("{corrupt"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := Quarantine(base, path); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file should be gone after quarantine")
	}

	entries, err := os.ReadDir(filepath.Join(base, "quarantine"))
	if err != nil {
		t.Fatalf("ReadDir quarantine failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 quarantined file, got %d", len(entries))
	}
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	if err := Write(path, map[string]string{"v": "good"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := Write(path, map[string]string{"v": "newer"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Corrupt the live file, then restore.
	if err := os.WriteFile(path, []byte("{corrupt"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := RestoreFromBackup(path); err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}

	var data map[string]string
	if err := Read(path, &data); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if data["v"] != "good" {
		t.Errorf("restored value: got %q, want %q", data["v"], "good")
	}
}

func TestRestoreFromBackup_NoBackup(t *testing.T) {
	dir := t.TempDir()
	if err := RestoreFromBackup(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error when no backup exists")
	}
}
