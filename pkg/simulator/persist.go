package simulator

import (
	"context"

	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/rs/zerolog/log"
)

// StoreObserver mirrors every state change and history entry into a
// session.Store. Write failures are logged and never fail the operation.
type StoreObserver struct {
	store *session.Store
}

// NewStoreObserver creates an observer writing to store
func NewStoreObserver(store *session.Store) *StoreObserver {
	return &StoreObserver{store: store}
}

// OnStateChange appends a state record
func (o *StoreObserver) OnStateChange(ctx context.Context, snap session.Snapshot) {
	ctx = tracing.Detach(ctx)
	if err := o.store.AppendState(ctx, snap); err != nil {
		logger := tracing.LoggerFromContext(ctx, log.Logger)
		logger.Error().
			Err(err).
			Str("state", string(snap.State)).
			Msg("Failed to persist session state")
	}
}

// OnHistoryAppend appends an entry record
func (o *StoreObserver) OnHistoryAppend(ctx context.Context, sessionID string, entry history.Entry) {
	ctx = tracing.Detach(ctx)
	if err := o.store.AppendEntry(ctx, sessionID, entry); err != nil {
		logger := tracing.LoggerFromContext(ctx, log.Logger)
		logger.Error().
			Err(err).
			Str("entry_type", string(entry.Type())).
			Msg("Failed to persist history entry")
	}
}
