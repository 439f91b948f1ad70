package tracestore

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/export"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/rs/zerolog/log"
)

// Archive writes golden trace files and catalogues them
type Archive struct {
	writer *export.Writer
	store  *Store
	format string
}

// NewArchive creates an archive writing to dir in format (json or yaml)
func NewArchive(writer *export.Writer, store *Store, format string) *Archive {
	if format == "" {
		format = export.FormatJSON
	}
	return &Archive{writer: writer, store: store, format: format}
}

// Store returns the underlying catalog
func (a *Archive) Store() *Store {
	return a.store
}

// Format returns the file format traces are written in
func (a *Archive) Format() string {
	return a.format
}

// SaveTrace writes ec to disk and records it in the catalog
func (a *Archive) SaveTrace(ctx context.Context, ec *export.EvalCase, snap session.Snapshot) (string, error) {
	path, err := a.writer.Write(ctx, ec, a.format)
	if err != nil {
		return "", err
	}

	rec := Record{
		EvalID:    ec.EvalID,
		SessionID: snap.ID,
		AgentName: snap.AgentName,
		Path:      path,
		Format:    a.format,
		ToolCalls: countToolCalls(snap.History),
	}
	if err := a.store.Put(ctx, rec); err != nil {
		return path, err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("eval_id", ec.EvalID).
		Int("tool_calls", rec.ToolCalls).
		Msg("Trace catalogued")
	return path, nil
}

// Load reads the trace file of a catalogued record
func (a *Archive) Load(ctx context.Context, evalID string) (*export.EvalCase, *Record, error) {
	rec, err := a.store.Get(ctx, evalID)
	if err != nil {
		return nil, nil, err
	}
	ec, err := export.Read(rec.Path)
	if err != nil {
		return nil, rec, err
	}
	return ec, rec, nil
}

// Remove deletes a trace file and its catalog row
func (a *Archive) Remove(ctx context.Context, evalID string) error {
	rec, err := a.store.Get(ctx, evalID)
	if err != nil {
		return err
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove trace file: %w", err)
	}
	return a.store.Delete(ctx, evalID)
}

func countToolCalls(l *history.Log) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, e := range l.Entries() {
		if e.Type() == history.TypeToolCall {
			n++
		}
	}
	return n
}
