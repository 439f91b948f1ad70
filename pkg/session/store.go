package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/agentsim/internal/observability"
	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/history"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Record kinds
const (
	RecordState = "state"
	RecordEntry = "entry"
)

// Record is one line of a session's JSONL file
type Record struct {
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	State     State           `json:"state,omitempty"`
	AgentName string          `json:"agentName,omitempty"`
	Entry     json.RawMessage `json:"entry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Info describes a persisted session file
type Info struct {
	SessionID    string    `json:"session_id"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store persists session state changes and history entries as JSONL
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore creates a store rooted at dir
func NewStore(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".agentsim", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session store initialized")
	s.updateSessionsMetric()

	return s, nil
}

// Dir returns the directory holding session files
func (s *Store) Dir() string {
	return s.dir
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

func (s *Store) updateSessionsMetric() {
	ids, err := s.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(ids))
}

func (s *Store) writeLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[sessionID]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[sessionID] = lock
	return lock
}

func (s *Store) releaseWriteLock(sessionID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, sessionID)
}

// AppendState records the session's current state and agent
func (s *Store) AppendState(ctx context.Context, snap Snapshot) error {
	return s.append(ctx, Record{
		SessionID: snap.ID,
		Kind:      RecordState,
		State:     snap.State,
		AgentName: snap.AgentName,
		Timestamp: time.Now().UTC(),
	})
}

// AppendEntry records one history entry
func (s *Store) AppendEntry(ctx context.Context, sessionID string, entry history.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	return s.append(ctx, Record{
		SessionID: sessionID,
		Kind:      RecordEntry,
		Entry:     data,
		Timestamp: entry.Time(),
	})
}

func (s *Store) append(ctx context.Context, rec Record) (err error) {
	ctx = tracing.WithSessionID(ctx, rec.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerSession,
		"session.append",
		attribute.String("session_id", rec.SessionID),
		attribute.String("kind", rec.Kind),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := validateSessionID(rec.SessionID); err != nil {
		return err
	}

	lock := s.writeLock(rec.SessionID)
	lock.Lock()
	defer lock.Unlock()

	_, statErr := os.Stat(s.path(rec.SessionID))
	created := os.IsNotExist(statErr)

	file, err := os.OpenFile(s.path(rec.SessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if created {
		s.updateSessionsMetric()
	}

	logger.Debug().
		Str("kind", rec.Kind).
		Str("state", string(rec.State)).
		Msg("Session record appended")

	return nil
}

// Load replays a session file into a snapshot. Unparseable lines and
// entries that break history correlation are skipped with a warning.
func (s *Store) Load(ctx context.Context, sessionID string) (snap *Snapshot, err error) {
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerSession,
		"session.load",
		attribute.String("session_id", sessionID),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFound("load_session", "session", sessionID)
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	snap = &Snapshot{
		ID:      sessionID,
		State:   StateSelectingAgent,
		History: history.NewLog(),
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}

		if snap.CreatedAt.IsZero() {
			snap.CreatedAt = rec.Timestamp
		}

		switch rec.Kind {
		case RecordState:
			if !rec.State.Valid() {
				logger.Warn().Int("line", lineNum).Str("state", string(rec.State)).Msg("Invalid state, skipping")
				continue
			}
			snap.State = rec.State
			if rec.AgentName != "" {
				snap.AgentName = rec.AgentName
			}
			if rec.State == StateActive {
				snap.StartedAt = rec.Timestamp
			}
		case RecordEntry:
			entry, err := history.DecodeEntry(rec.Entry)
			if err != nil {
				logger.Warn().Int("line", lineNum).Err(err).Msg("Invalid entry, skipping")
				continue
			}
			if err := snap.History.Add(entry); err != nil {
				logger.Warn().Int("line", lineNum).Err(err).Msg("Uncorrelated entry, skipping")
				continue
			}
		default:
			logger.Warn().Int("line", lineNum).Str("kind", rec.Kind).Msg("Unknown record kind, skipping")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	logger.Debug().
		Int("entries", snap.History.Len()).
		Str("state", string(snap.State)).
		Msg("Session loaded")

	return snap, nil
}

// Delete removes a session file
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	logger := tracing.LoggerFromContext(tracing.WithSessionID(ctx, sessionID), log.Logger)

	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	lock := s.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	s.releaseWriteLock(sessionID)
	s.updateSessionsMetric()

	logger.Info().Msg("Session deleted")
	return nil
}

// List returns the ids of all persisted sessions, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Info returns file metadata about a session
func (s *Store) Info(sessionID string) (*Info, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	fi, err := os.Stat(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFound("session_info", "session", sessionID)
		}
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	return &Info{
		SessionID:    sessionID,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}, nil
}

// PruneBefore deletes session files last modified before cutoff
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		info, err := s.Info(id)
		if err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Failed to get session info")
			continue
		}
		if !info.LastModified.Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			log.Error().Str("session_id", id).Err(err).Msg("Failed to delete session")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Close drops the per-session write locks
func (s *Store) Close() error {
	s.locksMu.Lock()
	s.writeLocks = make(map[string]*sync.Mutex)
	s.locksMu.Unlock()

	log.Info().Msg("Session store closed")
	return nil
}
