// Package export turns a completed session into a golden trace: an
// evaluation case holding one invocation with the user query, the final
// response and every tool use and response in history order.
//
// Invariants:
// - Only COMPLETED sessions are exported; anything else is a StateViolation.
// - The first user query and the last final response are authoritative.
// - Building twice from the same history yields identical tool data.
// - intermediate_data is omitted when there are no tool uses or responses.
//
// Usage:
//
//	ec, _ := export.NewBuilder().Build(sess.Snapshot())
//	data, _ := export.Format(ec, export.FormatJSON)
//	path, _ := export.NewWriter(dir).Write(ctx, ec, export.FormatJSON)
package export
