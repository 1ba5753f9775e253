package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer := New(Config{Level: "warn"}, &buf)
	defer func() { _ = closer.Close() }()

	l.Info("hidden")
	l.Warn("shown", "instance", "abc123")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "instance=abc123")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Format: "json"}, &buf)
	l.Info("instance started", "pid", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "instance started", rec["msg"])
	assert.Equal(t, float64(42), rec["pid"])
}

func TestColorHandlerKeepsColorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Color: true, Level: "debug"}, &buf)
	l.With("component", "supervisor").Error("boom")

	out := buf.String()
	assert.Contains(t, out, "\033[31mERROR\033[0m")
	assert.Contains(t, out, "component=supervisor")
	assert.NotContains(t, out, "level=")
}

func TestColorHandlerWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))
	l.Info("hello")
	assert.NotContains(t, buf.String(), "time=")
	assert.Contains(t, buf.String(), "\033[32mINFO\033[0m")
}

func TestFileOutputRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nuko.log")
	var console bytes.Buffer
	l, closer := New(Config{Color: true, File: FileConfig{Path: path}}, &console)
	l.Info("to file")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=\"to file\"")
	assert.False(t, strings.Contains(string(b), "\033["), "file output is never coloured")
	assert.Empty(t, console.String())
}

func TestInstallRoutesStdLog(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	defer log.SetOutput(os.Stderr)
	defer log.SetFlags(log.LstdFlags)

	var buf bytes.Buffer
	l, _ := New(Config{}, &buf)
	Install(l)
	log.Print("from stdlib")
	assert.Contains(t, buf.String(), "from stdlib")
}
