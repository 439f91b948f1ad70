package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/rs/zerolog"
)

// writeWait bounds a single event write so a stalled client cannot hold
// up the session
const writeWait = 2 * time.Second

// EventBroadcaster handles broadcasting events to all authenticated clients.
// It also observes the simulator and turns session changes into events.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all authenticated clients
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	b.BroadcastTyped(EventMessage{Event: event, Data: data})
}

// BroadcastTyped fills in type, sequence and timestamp and sends msg
func (b *EventBroadcaster) BroadcastTyped(msg EventMessage) {
	msg.Type = "event"
	if msg.Seq == 0 {
		msg.Seq = b.nextSeq()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	b.broadcastMessage(msg)
}

// OnStateChange publishes a session.state event
func (b *EventBroadcaster) OnStateChange(ctx context.Context, snap session.Snapshot) {
	entries := 0
	if snap.History != nil {
		entries = snap.History.Len()
	}
	b.BroadcastTyped(EventMessage{
		Event:     EventSessionState,
		TraceID:   tracing.GetTraceID(ctx),
		SessionID: snap.ID,
		AgentName: snap.AgentName,
		Data: map[string]interface{}{
			"session_id": snap.ID,
			"agent_name": snap.AgentName,
			"state":      snap.State,
			"entries":    entries,
		},
	})
}

// OnHistoryAppend publishes a history.appended event
func (b *EventBroadcaster) OnHistoryAppend(ctx context.Context, sessionID string, entry history.Entry) {
	b.BroadcastTyped(EventMessage{
		Event:     EventHistoryAppended,
		TraceID:   tracing.GetTraceID(ctx),
		SessionID: sessionID,
		AgentName: tracing.GetAgentName(ctx),
		Data: map[string]interface{}{
			"session_id": sessionID,
			"entry":      entry,
		},
	})
}

func (b *EventBroadcaster) broadcastMessage(msg EventMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("Failed to marshal event")
		return
	}

	clients := b.clients.GetAuthenticatedClients()
	if len(clients) == 0 {
		b.logger.Debug().
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("No authenticated clients to broadcast to")
		return
	}

	successCount := 0
	failureCount := 0
	for _, client := range clients {
		if err := client.writeEvent(jsonData); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to client")
			failureCount++
		} else {
			successCount++
		}
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}

func (c *Client) writeEvent(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	defer c.Conn.SetWriteDeadline(time.Time{})
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}
