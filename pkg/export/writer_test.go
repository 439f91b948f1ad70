package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "traces")
	w := NewWriter(dir)
	ec := calcCase(t)

	path, err := w.Write(ctx, ec, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calc_20240309T140507Z.evalset.json"), path)

	back, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, ec.EvalID, back.EvalID)
	assert.Equal(t, "sess-1", back.Conversation[0].InvocationID)

	yamlPath, err := w.Write(ctx, ec, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, ".yaml", filepath.Ext(yamlPath))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files are left behind")
}

func TestWriter_WriteErrors(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, err := w.Write(context.Background(), nil, FormatJSON)
	assert.Error(t, err)

	_, err = w.Write(context.Background(), calcCase(t), "csv")
	assert.Error(t, err)
}
