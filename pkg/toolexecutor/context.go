package toolexecutor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionInfo is the view of the owning session needed to build an
// execution context
type SessionInfo interface {
	ID() string
	AgentName() string
}

// ExecutionContext provides runtime information to a running tool
type ExecutionContext struct {
	SessionKey     string
	AgentID        string
	InvocationID   string
	FunctionCallID string
	StartedAt      time.Time
}

// NewExecutionContext builds the context for one invocation on behalf of sess
func NewExecutionContext(sess SessionInfo) *ExecutionContext {
	execCtx := &ExecutionContext{
		FunctionCallID: uuid.NewString(),
		StartedAt:      time.Now(),
	}
	if sess != nil {
		execCtx.SessionKey = sess.ID()
		execCtx.AgentID = sess.AgentName()
		execCtx.InvocationID = sess.ID() + "_inv"
	}
	return execCtx
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a context.Context for tool handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a context.Context.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}
