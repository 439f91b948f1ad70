package toolexecutor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// CancelledMessage is the error message recorded for cancelled calls
	CancelledMessage = "Tool execution was cancelled"
	// CancelledErrorType is the error type recorded for cancelled calls
	CancelledErrorType = "Cancelled"
	// BusyErrorType is returned when Execute is called while a call is in flight
	BusyErrorType = "EngineBusy"
)

// ExecutionResult is the outcome of one invocation
type ExecutionResult struct {
	Success        bool    `json:"success"`
	Result         any     `json:"result,omitempty"`
	Err            error   `json:"-"`
	ErrorType      string  `json:"error_type,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	ErrorTraceback string  `json:"error_traceback,omitempty"`
	DurationMs     float64 `json:"duration_ms"`
	Cancelled      bool    `json:"cancelled"`
}

// Engine runs one tool at a time and supports cooperative cancellation
type Engine struct {
	mu      sync.Mutex
	running bool
	started time.Time
	cancel  context.CancelFunc
}

// NewEngine creates an idle engine
func NewEngine() *Engine {
	return &Engine{}
}

// IsRunning reports whether an invocation is in progress
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ElapsedMs returns the running time of the current invocation, or 0 when idle
func (e *Engine) ElapsedMs() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0
	}
	return sinceMs(e.started)
}

// Cancel signals the running invocation. It reports whether there was one;
// calling it while idle has no effect.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// Execute invokes tool with args and waits for completion, failure or
// cancellation. It never returns an error; every outcome is a result value.
func (e *Engine) Execute(ctx context.Context, tool Tool, args map[string]any, sess SessionInfo) ExecutionResult {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ExecutionResult{
			ErrorType:    BusyErrorType,
			ErrorMessage: "another tool invocation is in progress",
		}
	}
	if ctx.Err() != nil {
		e.mu.Unlock()
		return cancelledResult(0)
	}
	runCtx, cancel := context.WithCancel(ctx)
	started := time.Now()
	e.running = true
	e.started = started
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	execCtx := NewExecutionContext(sess)
	runCtx = ContextWithExecContext(runCtx, execCtx)

	log.Debug().
		Str("tool", tool.Name()).
		Str("session_id", execCtx.SessionKey).
		Str("function_call_id", execCtx.FunctionCallID).
		Msg("Executing tool")

	type outcome struct {
		value     any
		err       error
		errType   string
		errMsg    string
		stack     string
		cancelled bool
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := &PanicError{Value: r}
				errType, errMsg, _ := describeError(err)
				done <- outcome{err: err, errType: errType, errMsg: errMsg, stack: string(debug.Stack())}
			}
		}()
		value, err := tool.Run(runCtx, args, execCtx)
		out := outcome{value: value, err: err}
		if err != nil {
			out.errType, out.errMsg, out.cancelled = describeError(err)
		}
		done <- out
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		// a completion that raced the signal still counts
		select {
		case out = <-done:
		default:
			duration := sinceMs(started)
			log.Info().
				Str("tool", tool.Name()).
				Float64("duration_ms", duration).
				Msg("Tool execution cancelled")
			return cancelledResult(duration)
		}
	}

	duration := sinceMs(started)

	if out.err == nil {
		log.Debug().
			Str("tool", tool.Name()).
			Float64("duration_ms", duration).
			Msg("Tool execution completed")
		return ExecutionResult{
			Success:    true,
			Result:     out.value,
			DurationMs: duration,
		}
	}

	if runCtx.Err() != nil || out.cancelled {
		log.Info().
			Str("tool", tool.Name()).
			Float64("duration_ms", duration).
			Msg("Tool execution cancelled")
		return cancelledResult(duration)
	}

	log.Error().
		Str("tool", tool.Name()).
		Float64("duration_ms", duration).
		Str("error_type", out.errType).
		Str("error", out.errMsg).
		Msg("Tool execution failed")

	return ExecutionResult{
		Err:            out.err,
		ErrorType:      out.errType,
		ErrorMessage:   out.errMsg,
		ErrorTraceback: out.stack,
		DurationMs:     duration,
	}
}

func cancelledResult(duration float64) ExecutionResult {
	return ExecutionResult{
		ErrorType:    CancelledErrorType,
		ErrorMessage: CancelledMessage,
		DurationMs:   duration,
		Cancelled:    true,
	}
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
