package export

import (
	"errors"
	"testing"
	"time"

	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 250000000, time.UTC)

func fixedBuilder() *Builder {
	return &Builder{Now: func() time.Time { return fixedNow }}
}

func completed(t *testing.T, agentName string, entries ...history.Entry) session.Snapshot {
	t.Helper()
	log, err := history.FromEntries(entries)
	require.NoError(t, err)
	return session.Snapshot{
		ID:        "sess-1",
		AgentName: agentName,
		State:     session.StateCompleted,
		History:   log,
	}
}

func TestBuild_CalcScenario(t *testing.T) {
	call := history.NewToolCall("add", map[string]any{"a": 2, "b": 3})
	snap := completed(t, "Calc",
		history.NewUserQuery("add 2 and 3"),
		call,
		history.NewToolOutput(call.CallID, 5, 1.1),
		history.NewFinalResponse("5"),
	)

	ec, err := fixedBuilder().Build(snap)
	require.NoError(t, err)

	assert.Equal(t, "calc_20240309T140507Z", ec.EvalID)
	assert.InDelta(t, float64(fixedNow.Unix())+0.25, ec.CreationTimestamp, 1e-6)
	require.Len(t, ec.Conversation, 1)

	inv := ec.Conversation[0]
	assert.Equal(t, "sess-1", inv.InvocationID)
	assert.Equal(t, Content{Role: RoleUser, Parts: []Part{{Text: "add 2 and 3"}}}, inv.UserContent)
	assert.Equal(t, Content{Role: RoleModel, Parts: []Part{{Text: "5"}}}, inv.FinalResponse)

	require.NotNil(t, inv.IntermediateData)
	require.Len(t, inv.IntermediateData.ToolUses, 1)
	assert.Equal(t, ToolUse{ID: call.CallID, Name: "add", Args: map[string]any{"a": 2, "b": 3}}, inv.IntermediateData.ToolUses[0])

	require.Len(t, inv.IntermediateData.ToolResponses, 1)
	assert.Equal(t, ToolResponse{ID: call.CallID, Name: "add", Response: map[string]any{"result": 5}}, inv.IntermediateData.ToolResponses[0])
}

func TestBuild_RequiresCompleted(t *testing.T) {
	for _, state := range []session.State{session.StateSelectingAgent, session.StateAwaitingQuery, session.StateActive, session.StateNone} {
		t.Run(string(state), func(t *testing.T) {
			snap := session.Snapshot{ID: "s", State: state, History: history.NewLog()}

			_, err := NewBuilder().Build(snap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, session.ErrStateViolation))

			var serr *session.Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, "export_trace", serr.Op)
			assert.Equal(t, state, serr.Actual)
		})
	}
}

func TestBuild_FirstQueryLastResponse(t *testing.T) {
	snap := completed(t, "calc",
		history.NewUserQuery("first"),
		history.NewUserQuery("second"),
		history.NewFinalResponse("draft"),
		history.NewFinalResponse("final"),
	)

	ec, err := fixedBuilder().Build(snap)
	require.NoError(t, err)

	inv := ec.Conversation[0]
	assert.Equal(t, "first", inv.UserContent.Parts[0].Text)
	assert.Equal(t, "final", inv.FinalResponse.Parts[0].Text)
}

func TestBuild_EmptyHistory(t *testing.T) {
	snap := session.Snapshot{ID: "s", State: session.StateCompleted}

	ec, err := fixedBuilder().Build(snap)
	require.NoError(t, err)

	inv := ec.Conversation[0]
	assert.Equal(t, textContent(RoleUser, ""), inv.UserContent)
	assert.Equal(t, textContent(RoleModel, ""), inv.FinalResponse)
	assert.Nil(t, inv.IntermediateData)
	assert.Equal(t, "unknown_20240309T140507Z", ec.EvalID)
}

func TestBuild_ToolErrors(t *testing.T) {
	bad := history.NewToolCall("add", map[string]any{"a": "x"})
	cancelled := history.NewToolCall("slow", nil)
	snap := completed(t, "calc",
		history.NewUserQuery("q"),
		bad,
		history.NewToolError(bad.CallID, "ValueError", "bad arg", "goroutine 1 [running]", 0.4),
		cancelled,
		history.NewToolError(cancelled.CallID, "Cancelled", "Tool execution was cancelled", "", 3),
		history.NewFinalResponse("gave up"),
	)

	ec, err := fixedBuilder().Build(snap)
	require.NoError(t, err)

	data := ec.Conversation[0].IntermediateData
	require.NotNil(t, data)
	require.Len(t, data.ToolResponses, 2)

	assert.Equal(t, map[string]any{
		"error":         true,
		"error_type":    "ValueError",
		"error_message": "bad arg",
		"traceback":     "goroutine 1 [running]",
	}, data.ToolResponses[0].Response)

	assert.Equal(t, "slow", data.ToolResponses[1].Name)
	assert.NotContains(t, data.ToolResponses[1].Response, "traceback")
	assert.Equal(t, map[string]any{}, data.ToolUses[1].Args)
}

func TestBuild_Deterministic(t *testing.T) {
	call := history.NewToolCall("lookup", map[string]any{"city": "Oslo", "days": 3})
	snap := completed(t, "WeatherAgent",
		history.NewUserQuery("weather?"),
		call,
		history.NewToolOutput(call.CallID, map[string]any{"temp": -2.5, "sky": "snow"}, 12),
		history.NewFinalResponse("cold"),
	)

	b := fixedBuilder()
	first, err := b.Build(snap)
	require.NoError(t, err)
	second, err := b.Build(snap)
	require.NoError(t, err)

	a, err := Format(first, FormatJSON)
	require.NoError(t, err)
	c, err := Format(second, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))

	// Exported args are a copy of history
	first.Conversation[0].IntermediateData.ToolUses[0].Args["city"] = "Bergen"
	assert.Equal(t, "Oslo", call.Arguments["city"])
}

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MyTestAgent", "my_test_agent"},
		{"calculator_agent", "calculator_agent"},
		{"Calc", "calc"},
		{"ABC", "a_b_c"},
		{"Test-Agent 123!", "test_agent_123"},
		{"  spaced  out ", "spaced_out"},
		{"already__snake", "already_snake"},
		{"", "unknown"},
		{"!!!", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SnakeCase(tt.in))
		})
	}
}

func TestEvalID(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2024, 1, 2, 5, 4, 5, 0, loc)

	assert.Equal(t, "my_agent_20240102T030405Z", EvalID("MyAgent", at))
}
