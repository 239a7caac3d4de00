package config

import (
	"os"
	"path/filepath"
	"testing"
)

// 設定ファイルが存在しない場合はデフォルト設定が保存・返却されること
func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Queue.Capacity != 256 {
		t.Errorf("expected default capacity 256, got %d", cfg.Queue.Capacity)
	}
	if cfg.Forwarder.UinputPath != "/dev/uinput" {
		t.Errorf("unexpected uinput path: %s", cfg.Forwarder.UinputPath)
	}

	// デフォルト設定がファイルとして作成されていること
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file not created: %v", err)
	}
}

// 保存した設定がそのまま読み戻せること
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := DefaultConfig()
	want.Queue.Capacity = 64
	want.Capture.GrabDevices = true
	want.Capture.PreferredPointer = "usb-trackball-event-mouse"
	want.Forwarder.Enabled = false
	want.API.Port = 9090

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got.Queue.Capacity != 64 {
		t.Errorf("capacity: expected 64, got %d", got.Queue.Capacity)
	}
	if !got.Capture.GrabDevices {
		t.Error("grab_devices not persisted")
	}
	if got.Capture.PreferredPointer != "usb-trackball-event-mouse" {
		t.Errorf("preferred_pointer not persisted: %q", got.Capture.PreferredPointer)
	}
	if got.Forwarder.Enabled {
		t.Error("forwarder.enabled not persisted")
	}
	if got.API.Port != 9090 {
		t.Errorf("port: expected 9090, got %d", got.API.Port)
	}
}

// 部分的な設定ファイルでは残りがデフォルト値で補われること
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[queue]\ncapacity = 16\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Queue.Capacity != 16 {
		t.Errorf("capacity: expected 16, got %d", cfg.Queue.Capacity)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("port should fall back to default, got %d", cfg.API.Port)
	}
}
