package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSQLSink_PostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("nuko"),
		postgres.WithUsername("nuko"),
		postgres.WithPassword("nuko"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := pg.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := NewSQLSinkFromDSN(connStr)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	assert.Equal(t, "postgres", sink.Dialect())

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, sink.Send(ctx, Event{Type: EventStart, InstanceID: "abc123", Name: "survival", PID: 77, OccurredAt: now}))
	require.NoError(t, sink.Send(ctx, Event{Type: EventKill, InstanceID: "abc123", Name: "survival", PID: 77, OccurredAt: now.Add(time.Second)}))

	got, err := sink.Recent(ctx, "abc123", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, EventKill, got[0].Type)
	assert.Equal(t, 77, got[1].PID)
}
