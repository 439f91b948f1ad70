package cli

import (
	"fmt"
	"os"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/pkg/simulator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveDemo bool
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the agent simulator gateway",
	Long: `Start the agent simulator gateway in the foreground.
Callers drive sessions over JSON-RPC at /rpc and receive history and state
events over the /ws websocket. Stop it with Ctrl-C or "agentsim stop".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "add the calculator demo agent")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "listen port, 0 for any free port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort >= 0 {
		cfg.Server.Port = servePort
	}

	pidFile := simulator.PIDFilePath(cfg.DataDir)
	if simulator.IsRunning(pidFile) {
		return fmt.Errorf("simulator is already running (PID file: %s)", pidFile)
	}

	l, err := setupLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer l.Close()

	opts := []simulator.Option{}
	if cmd.Flags().Changed("demo") {
		opts = append(opts, simulator.WithDemo(serveDemo))
	}
	configPath := config.NewLoader(cfgFile).GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		opts = append(opts, simulator.WithConfigPath(configPath))
	}

	sim, err := simulator.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}
	if err := sim.Start(); err != nil {
		return err
	}

	status := sim.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "agentsim listening on %s (agents: %d)\n", status.Addr, sim.Catalog().Len())
	log.Info().Str("addr", status.Addr).Msg("Waiting for callers")

	sim.Wait()
	return nil
}
