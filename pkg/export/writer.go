package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harun/agentsim/internal/observability"
	"github.com/harun/agentsim/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Writer stores golden traces as <eval_id>.evalset.<ext> files
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns where a trace with evalID would be written
func (w *Writer) Path(evalID, format string) string {
	return filepath.Join(w.dir, evalID+FileExtension(format))
}

// Write formats ec and writes it atomically, returning the file path
func (w *Writer) Write(ctx context.Context, ec *EvalCase, format string) (path string, err error) {
	if format == "" {
		format = FormatJSON
	}
	if ec == nil {
		return "", fmt.Errorf("eval case cannot be nil")
	}

	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerExport,
		"export.write",
		attribute.String("eval_id", ec.EvalID),
		attribute.String("format", format),
	)
	defer func() {
		tracing.EndSpan(span, err)
		observability.RecordTraceExport(format, err == nil)
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RecordExportAudit(ctx, ec.EvalID, sessionOf(ec), status, map[string]interface{}{
			"format": format,
			"path":   path,
		})
	}()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	data, err := Format(ec, format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create traces directory: %w", err)
	}

	path = w.Path(ec.EvalID, format)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize trace: %w", err)
	}

	logger.Info().
		Str("eval_id", ec.EvalID).
		Str("path", path).
		Int("bytes", len(data)).
		Msg("Golden trace written")

	return path, nil
}

// Read loads a trace file written by Write
func Read(path string) (*EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return Parse(data)
}

func sessionOf(ec *EvalCase) string {
	if len(ec.Conversation) == 0 {
		return ""
	}
	return ec.Conversation[0].InvocationID
}
