package cli

import (
	"fmt"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agentsim",
	Short: "agentsim - human-in-the-loop agent simulator",
	Long: `agentsim lets a human play the model: pick an agent, type the user
query, call the agent's tools by hand and submit the final answer. Each
completed session can be exported as a golden trace for agent evaluation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.agentsim/agentsim.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies an explicit --log-level
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the global logger. One-shot commands log to the
// console only.
func setupLogger(cfg *config.Config, toFile bool) (*logger.Logger, error) {
	lc := logger.FromConfig(cfg.Logging)
	if !toFile {
		lc.File = ""
		lc.Level = "warn"
		if f := rootCmd.PersistentFlags().Lookup("log-level"); f != nil && f.Changed {
			lc.Level = logLevel
		}
	}
	return logger.New(lc)
}
