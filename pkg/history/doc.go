// Package history records the timeline of a simulation session.
//
// Invariants:
// - Entries are only ever appended; nothing is removed or reordered.
// - Every ToolOutput/ToolError call ID refers to an earlier ToolCall.
// - A call ID receives at most one terminal entry (output or error).
//
// Usage:
//
//	log := history.NewLog()
//	call := history.NewToolCall("add", map[string]any{"a": 2, "b": 3})
//	_ = log.Add(call)
//	_ = log.Add(history.NewToolOutput(call.CallID, 5, 1.2))
//	query, ok := history.First[history.UserQuery](log)
//	_, _ = query, ok
package history
