package tracestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "traces.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	rec := Record{
		EvalID:    "calc_20240309T140507Z",
		SessionID: "sess-1",
		AgentName: "Calc",
		Path:      "/tmp/calc.evalset.json",
		Format:    "json",
		ToolCalls: 2,
		CreatedAt: created,
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, rec.EvalID)
	require.NoError(t, err)
	assert.Equal(t, rec.EvalID, got.EvalID)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "Calc", got.AgentName)
	assert.Equal(t, 2, got.ToolCalls)
	assert.True(t, created.Equal(got.CreatedAt))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_PutReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Record{EvalID: "e1", SessionID: "s1", Path: "a", Format: "json"}))
	require.NoError(t, s.Put(ctx, Record{EvalID: "e1", SessionID: "s1", Path: "b", Format: "yaml"}))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Path)
	assert.Equal(t, "yaml", got.Format)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_PutRequiresEvalID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Put(context.Background(), Record{SessionID: "s"}))
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []Record{
		{EvalID: "a", SessionID: "s1", AgentName: "calc", CreatedAt: base},
		{EvalID: "b", SessionID: "s2", AgentName: "calc", CreatedAt: base.Add(time.Hour)},
		{EvalID: "c", SessionID: "s3", AgentName: "weather", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, rec := range records {
		rec.Format = "json"
		require.NoError(t, s.Put(ctx, rec))
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{name: "all newest first", opts: ListOptions{}, want: []string{"c", "b", "a"}},
		{name: "by agent", opts: ListOptions{AgentName: "calc"}, want: []string{"b", "a"}},
		{name: "by session", opts: ListOptions{SessionID: "s3"}, want: []string{"c"}},
		{name: "limit", opts: ListOptions{Limit: 1}, want: []string{"c"}},
		{name: "no match", opts: ListOptions{AgentName: "other"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.opts)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, rec := range got {
				ids = append(ids, rec.EvalID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Record{EvalID: "e1", Format: "json"}))
	require.NoError(t, s.Delete(ctx, "e1"))

	_, err := s.Get(ctx, "e1")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.Delete(ctx, "e1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_PruneBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	oldPath := filepath.Join(dir, "old.evalset.json")
	newPath := filepath.Join(dir, "new.evalset.json")
	require.NoError(t, os.WriteFile(oldPath, []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(newPath, []byte("{}"), 0644))

	require.NoError(t, s.Put(ctx, Record{EvalID: "old", Path: oldPath, Format: "json", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Put(ctx, Record{EvalID: "new", Path: newPath, Format: "json", CreatedAt: now}))
	require.NoError(t, s.Put(ctx, Record{EvalID: "gone", Path: filepath.Join(dir, "missing.json"), Format: "json", CreatedAt: now.Add(-72 * time.Hour)}))

	deleted, err := s.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)

	remaining, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].EvalID)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Record{EvalID: "e1", Format: "json"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "e1")
	assert.NoError(t, err)
}
