package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/harun/agentsim/pkg/gateway"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/harun/agentsim/pkg/tracestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.Port = 0
	cfg.Logging.File = filepath.Join(cfg.DataDir, "agentsim.log")
	return cfg
}

func rpc(t *testing.T, addr, method string, params map[string]interface{}, out interface{}) {
	t.Helper()

	body, err := json.Marshal(gateway.RPCRequest{ID: method, Method: method, Params: params})
	require.NoError(t, err)
	resp, err := http.Post("http://"+addr+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage   `json:"result"`
		Error  *gateway.RPCError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error, method)
	if out != nil {
		require.NoError(t, json.Unmarshal(decoded.Result, out))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Simulation.ExportFormat = "xml"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewBuildsCatalog(t *testing.T) {
	custom := &agent.Agent{Name: "custom"}

	t.Run("demo from config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Agents = []config.AgentConfig{{Name: "weather", Instruction: "Report the weather."}}

		sim, err := New(cfg, WithAgents(custom))
		require.NoError(t, err)
		t.Cleanup(sim.close)

		assert.Equal(t, []string{"custom", agent.CalculatorAgentName, "weather"}, sim.Catalog().Names())
	})

	t.Run("demo disabled by option", func(t *testing.T) {
		sim, err := New(testConfig(t), WithDemo(false), WithAgents(custom))
		require.NoError(t, err)
		t.Cleanup(sim.close)

		assert.Equal(t, []string{"custom"}, sim.Catalog().Names())
	})

	t.Run("duplicate agent names", func(t *testing.T) {
		_, err := New(testConfig(t), WithAgents(agent.CalculatorAgent()))
		assert.Error(t, err)
	})
}

func TestSimulatorEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	sim, err := New(cfg, WithTickInterval(-1))
	require.NoError(t, err)

	require.NoError(t, sim.Start())
	assert.Error(t, sim.Start())

	status := sim.Status()
	require.True(t, status.Running)
	require.NotEmpty(t, status.Addr)

	pid, err := ReadPID(PIDFilePath(cfg.DataDir))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	var snap session.Snapshot
	rpc(t, status.Addr, "session.create", nil, &snap)
	require.NotEmpty(t, snap.ID)
	rpc(t, status.Addr, "session.selectAgent", map[string]interface{}{"agent": agent.CalculatorAgentName}, nil)
	rpc(t, status.Addr, "session.start", map[string]interface{}{"query": "add 2 and 3"}, nil)

	var exec gateway.ExecuteResult
	rpc(t, status.Addr, "tools.execute", map[string]interface{}{
		"name": "add",
		"args": map[string]interface{}{"a": 2, "b": 3},
	}, &exec)
	assert.True(t, exec.Success)

	rpc(t, status.Addr, "session.submit", map[string]interface{}{"response": "5"}, nil)

	var exported struct {
		EvalID string `json:"eval_id"`
	}
	rpc(t, status.Addr, "session.export", nil, &exported)
	require.NotEmpty(t, exported.EvalID)

	ctx := context.Background()
	rec, err := sim.Archive().Store().Get(ctx, exported.EvalID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, rec.SessionID)
	assert.Equal(t, agent.CalculatorAgentName, rec.AgentName)
	assert.Equal(t, 1, rec.ToolCalls)
	assert.FileExists(t, rec.Path)
	assert.Equal(t, filepath.Join(cfg.TracesDir(), exported.EvalID+".evalset.json"), rec.Path)

	replayed, err := sim.Sessions().Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, replayed.State)
	assert.Equal(t, agent.CalculatorAgentName, replayed.AgentName)
	require.Equal(t, 4, replayed.History.Len())
	assert.Equal(t, history.TypeToolOutput, replayed.History.Entries()[2].Type())

	require.NoError(t, sim.Stop())
	assert.False(t, sim.Status().Running)
	assert.NoFileExists(t, PIDFilePath(cfg.DataDir))
	assert.Error(t, sim.Stop())

	// the catalog survives in SQLite after shutdown
	store, err := tracestore.Open(cfg.TraceDBPath())
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sim, err := New(testConfig(t), WithTickInterval(-1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	require.Eventually(t, func() bool { return sim.Status().Running }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, sim.Status().Running)
}

func TestReloadAgents(t *testing.T) {
	cfg := testConfig(t)
	configPath := filepath.Join(cfg.DataDir, "agentsim.json")

	sim, err := New(cfg, WithConfigPath(configPath))
	require.NoError(t, err)
	t.Cleanup(sim.close)
	require.Equal(t, []string{agent.CalculatorAgentName}, sim.Catalog().Names())

	reloaded := config.DefaultConfig()
	reloaded.DataDir = cfg.DataDir
	reloaded.Agents = []config.AgentConfig{{Name: "weather"}}
	require.NoError(t, config.NewLoader(configPath).Save(reloaded))

	require.NoError(t, sim.ReloadAgents())
	assert.Equal(t, []string{agent.CalculatorAgentName, "weather"}, sim.Catalog().Names())

	noPath, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(noPath.close)
	assert.Error(t, noPath.ReloadAgents())
}

func TestLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	lc := NewLifecycle(dir)

	require.NoError(t, lc.Start())
	assert.True(t, IsRunning(lc.PIDFile()))

	require.NoError(t, lc.Stop())
	assert.False(t, IsRunning(lc.PIDFile()))
	require.NoError(t, lc.Stop())

	t.Run("invalid pid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), PIDFileName)
		require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))
		_, err := ReadPID(path)
		assert.Error(t, err)
		assert.False(t, IsRunning(path))
	})

	t.Run("stale pid file is replaced", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(PIDFilePath(dir), []byte(strconv.Itoa(1<<22+12345)), 0644))
		lc := NewLifecycle(dir)
		require.NoError(t, lc.Start())
		pid, err := ReadPID(lc.PIDFile())
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
		require.NoError(t, lc.Stop())
	})

	assert.False(t, ProcessRunning(0))
}
