package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "json", cfg.Simulation.ExportFormat)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"server": {"port": 9090, "host": "0.0.0.0"},
			"simulation": {"export_format": "yaml", "tool_timeout_seconds": 5},
			"agents": [
				{
					"name": "weather",
					"description": "Weather lookups",
					"instruction": "Answer weather questions.",
					"tools": {"allow": ["forecast"]},
					"mcp_servers": [
						{"id": "wx", "transport": "http", "url": "http://localhost:9000/mcp"}
					]
				}
			]
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, "yaml", cfg.Simulation.ExportFormat)
		assert.Equal(t, 5, cfg.Simulation.ToolTimeoutSeconds)
		// Untouched defaults survive
		assert.Equal(t, 30, cfg.Simulation.RetentionDays)
		assert.Equal(t, "info", cfg.Logging.Level)

		require.Len(t, cfg.Agents, 1)
		assert.Equal(t, "weather", cfg.Agents[0].Name)
		assert.Equal(t, []string{"forecast"}, cfg.Agents[0].Tools.Allow)
		require.Len(t, cfg.Agents[0].MCPServers, 1)
		assert.Equal(t, "http", cfg.Agents[0].MCPServers[0].Transport)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"logging": {"level": "debug"}}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "agentsim.log"), cfg.Logging.File)
	})

	t.Run("env override", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"server": {"port": 9090, "host": "127.0.0.1"}}`), 0644)
		require.NoError(t, err)
		t.Setenv("AGENTSIM_SERVER_PORT", "7070")

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.DataDir = tmpDir
		cfg.Server.Port = 9191
		cfg.Agents = []AgentConfig{
			{Name: "calc", Instruction: "Do arithmetic."},
		}

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		loadedCfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, 9191, loadedCfg.Server.Port)
		assert.Equal(t, tmpDir, loadedCfg.DataDir)
		require.Len(t, loadedCfg.Agents, 1)
		assert.Equal(t, "calc", loadedCfg.Agents[0].Name)
		assert.Equal(t, "Do arithmetic.", loadedCfg.Agents[0].Instruction)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		loader := NewLoader(configPath)
		err := loader.Save(DefaultConfig())

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".agentsim")
	})
}
