package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLoggerRespectsLevelAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	l := FromLogrus(base)

	l.Debug("hidden")
	l.Info("visible", F("project", "p1"), F("error", errors.New("boom")))

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "visible" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
	if entries[0].Data["project"] != "p1" {
		t.Fatalf("expected project field, got %#v", entries[0].Data)
	}
	if entries[0].Data["error"] != "boom" {
		t.Fatalf("expected error to be flattened to a string, got %#v", entries[0].Data["error"])
	}
}

func TestWithFieldsCarriesPresetFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	l := FromLogrus(base).WithFields(F("component", "web"))
	l.Warn("slow")

	entry := hook.LastEntry()
	if entry == nil || entry.Data["component"] != "web" {
		t.Fatalf("expected preset field, got %#v", entry)
	}
	if entry.Level != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %v", entry.Level)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != DEBUG || ParseLevel("error") != ERROR || ParseLevel("nope") != INFO {
		t.Fatalf("unexpected level parsing")
	}
}

func TestRotatingFileRollsOverBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	r, err := openRotatingFile(path, 32, 7, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	line := []byte(strings.Repeat("x", 20) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected first backup: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Fatalf("expected second backup: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current: %v", err)
	}
	if info.Size() != int64(len(line)) {
		t.Fatalf("expected current file to hold one line, got %d bytes", info.Size())
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(Config{Level: INFO, FilePath: path, MaxSize: 1 << 20, MaxAge: 7, MaxBackups: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("hello", F("k", "v"))
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), `"k":"v"`) {
		t.Fatalf("unexpected log output: %s", data)
	}
}
