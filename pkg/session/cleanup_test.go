package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	cutoffs []time.Time
	n       int
	err     error
}

func (p *recordingPruner) PruneBefore(_ context.Context, cutoff time.Time) (int, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.n, p.err
}

func TestNewCleanup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := NewCleanup("", 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultCleanupSchedule, c.Schedule())
		assert.Equal(t, DefaultRetention, c.Retention())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewCleanup("every tuesday", time.Hour)
		assert.Error(t, err)
	})

	t.Run("negative retention", func(t *testing.T) {
		_, err := NewCleanup("@daily", -time.Hour)
		assert.Error(t, err)
	})
}

func TestCleanup_CleanupNow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions := &recordingPruner{n: 2}
	traces := &recordingPruner{n: 3}

	c, err := NewCleanup("@daily", 24*time.Hour, sessions, traces)
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	n, err := c.CleanupNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	want := now.Add(-24 * time.Hour)
	assert.Equal(t, []time.Time{want}, sessions.cutoffs)
	assert.Equal(t, []time.Time{want}, traces.cutoffs)
}

func TestCleanup_CleanupNowStopsOnError(t *testing.T) {
	failing := &recordingPruner{n: 1, err: errors.New("disk gone")}
	after := &recordingPruner{n: 4}

	c, err := NewCleanup("@daily", time.Hour, failing, after)
	require.NoError(t, err)

	n, err := c.CleanupNow(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, after.cutoffs)
}

func TestCleanup_StartStop(t *testing.T) {
	c, err := NewCleanup("@every 1h", time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.Error(t, c.Start())

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	assert.Error(t, c.Stop())
}

func TestCleanup_WithStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.AppendState(ctx, Snapshot{ID: "s1", State: StateCompleted}))

	c, err := NewCleanup("@daily", time.Hour, store)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := c.CleanupNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
