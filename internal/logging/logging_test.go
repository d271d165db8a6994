package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/skobkin/mavrouter/internal/config"
)

func TestManagerConfigure_WritesToStdoutByDefault(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	origStdout := os.Stdout
	t.Cleanup(func() { os.Stdout = origStdout })
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("create stdout pipe: %v", err)
	}
	os.Stdout = pw

	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "info"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("test").Info("hello")

	_ = pw.Close()
	os.Stdout = origStdout
	out, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("read stdout pipe: %v", err)
	}
	if !bytes.Contains(out, []byte("hello")) {
		t.Fatalf("stdout does not contain test message, contents: %q", string(out))
	}
}

func TestManagerConfigure_LogFileReceivesLogs(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "router.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true, MaxSizeMB: 1, MaxAgeDays: 1, MaxBackups: 1}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	cleanLogPath := filepath.Clean(logPath)
	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(cleanLogPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

func TestManagerConfigure_RejectsUnknownLevel(t *testing.T) {
	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "verbose"}, ""); err == nil {
		t.Fatal("expected an error for an unsupported log level")
	}
}
