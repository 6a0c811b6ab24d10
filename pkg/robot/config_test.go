package robot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := &Config{Port: "/dev/ttyACM0", Timeouts: TimeoutsConfig{MoveMs: 30000}}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsConfigured() || got.Port != cfg.Port {
		t.Errorf("Port = %q", got.Port)
	}
	if d := Duration(got.Timeouts.MoveMs, time.Second); d != 30*time.Second {
		t.Errorf("move timeout = %v", d)
	}
	if d := Duration(got.Timeouts.StepsMs, 8*time.Second); d != 8*time.Second {
		t.Errorf("unset steps timeout = %v, want fallback", d)
	}
}

func TestLoadConfigFrom_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfigFrom(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: got %v, want fs.ErrNotExist", err)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad json", `{"port":`, "parse config"},
		{"negative timeout", `{"port":"COM3","timeouts":{"steps_ms":-1}}`, "steps_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfigFrom(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}
