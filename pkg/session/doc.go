// Package session holds the simulation session aggregate and its persistence.
//
// Invariants:
// - State moves SELECTING_AGENT -> AWAITING_QUERY -> ACTIVE -> COMPLETED, never skipping.
// - A transition from the wrong state returns a StateViolation and changes nothing.
// - Tools are fixed at agent selection; history is append-only.
// - Writes to one session's JSONL file are serialized.
//
// Usage:
//
//	sess := session.New()
//	_ = sess.SelectAgent("calc", calcAgent, tools)
//	_, _ = sess.Start("add 2 and 3")
//	call, _ := sess.RecordToolCall("add", map[string]any{"a": 2, "b": 3})
//	_ = sess.RecordToolResult(history.NewToolOutput(call.CallID, 5, 1.2))
//	_, _ = sess.Complete("5")
//
//	store, _ := session.NewStore("/tmp/agentsim/sessions")
//	_ = store.AppendState(ctx, sess.Snapshot())
package session
