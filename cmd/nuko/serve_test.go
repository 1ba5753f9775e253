package main

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuko-mc/nuko/internal/config"
	"github.com/nuko-mc/nuko/internal/logger"
	"github.com/nuko-mc/nuko/pkg/client"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		Server:  config.ServerConfig{Listen: "127.0.0.1:0", BasePath: "/api"},
		Log:     logger.Config{Level: "error", Format: "text"},
		Restart: config.RestartConfig{Interval: 50 * time.Millisecond, Attempts: 5},
		Metrics: config.MetricsConfig{Enabled: true},
		History: config.HistoryConfig{DSN: "sqlite://" + filepath.Join(dir, "history.db")},
		Schedules: []config.ScheduleConfig{
			{Instance: "survival", Cron: "@every 1h", Action: "command", Command: "save-all"},
		},
	}
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testConfig(t)
	d, err := newDaemon(cfg, io.Discard)
	require.NoError(t, err)
	defer d.close()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, ln, true) }()

	cl := client.New(client.Config{BaseURL: "http://" + ln.Addr().String() + "/api", Timeout: 2 * time.Second})
	require.Eventually(t, func() bool { return cl.IsReachable(t.Context()) }, 2*time.Second, 20*time.Millisecond)

	inst, err := cl.Create(t.Context(), client.CreateRequest{Name: "survival", Software: "paper", Version: "1.21.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)

	infos, err := cl.List(t.Context())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Running)

	evs, err := cl.History(t.Context(), inst.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, evs)

	err = cl.Stop(t.Context(), inst.ID)
	assert.True(t, client.IsKind(err, "not_running"), "got %v", err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestDaemonLocksDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.DSN = ""
	d, err := newDaemon(cfg, io.Discard)
	require.NoError(t, err)

	_, err = newDaemon(cfg, io.Discard)
	require.ErrorIs(t, err, ErrLocked)

	d.close()
	d2, err := newDaemon(cfg, io.Discard)
	require.NoError(t, err)
	d2.close()
}

func TestDaemonRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedules = []config.ScheduleConfig{{Instance: "survival", Cron: "not a cron", Action: "start"}}
	_, err := newDaemon(cfg, io.Discard)
	require.Error(t, err)

	// the failed daemon released its lock
	cfg.Schedules = nil
	d, err := newDaemon(cfg, io.Discard)
	require.NoError(t, err)
	d.close()
}
