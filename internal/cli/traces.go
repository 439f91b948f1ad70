package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/pkg/export"
	"github.com/harun/agentsim/pkg/session"
	"github.com/harun/agentsim/pkg/tracestore"
	"github.com/spf13/cobra"
)

var (
	tracesAgent     string
	tracesSession   string
	tracesLimit     int
	tracesFormat    string
	tracesOlderThan time.Duration
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect and manage exported golden traces",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported traces, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTracesList,
}

var tracesShowCmd = &cobra.Command{
	Use:   "show <eval_id>",
	Short: "Print an exported trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracesShow,
}

var tracesExportCmd = &cobra.Command{
	Use:   "export <session_id>",
	Short: "Export a trace from a recorded session",
	Long: `Replay a session from its JSONL record and export it as a golden trace.
The session must have reached COMPLETED.`,
	Args: cobra.ExactArgs(1),
	RunE: runTracesExport,
}

var tracesRemoveCmd = &cobra.Command{
	Use:   "rm <eval_id>",
	Short: "Delete an exported trace and its catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracesRemove,
}

var tracesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete session records and traces past the retention window",
	Args:  cobra.NoArgs,
	RunE:  runTracesPrune,
}

func init() {
	tracesListCmd.Flags().StringVar(&tracesAgent, "agent", "", "only traces of this agent")
	tracesListCmd.Flags().StringVar(&tracesSession, "session", "", "only traces of this session")
	tracesListCmd.Flags().IntVar(&tracesLimit, "limit", 20, "maximum number of traces, 0 for all")
	tracesShowCmd.Flags().StringVar(&tracesFormat, "format", "", "output format: json or yaml (default: simulation.export_format)")
	tracesExportCmd.Flags().StringVar(&tracesFormat, "format", "", "file format: json or yaml (default: simulation.export_format)")
	tracesPruneCmd.Flags().DurationVar(&tracesOlderThan, "older-than", 0, "retention window (default: simulation.retention_days)")

	tracesCmd.AddCommand(tracesListCmd, tracesShowCmd, tracesExportCmd, tracesRemoveCmd, tracesPruneCmd)
	rootCmd.AddCommand(tracesCmd)
}

// openArchive opens the trace catalog of the configured data directory
func openArchive(cfg *config.Config, format string) (*tracestore.Archive, error) {
	if format == "" {
		format = cfg.Simulation.ExportFormat
	}
	if err := config.NewValidator().ValidateExportFormat(format); err != nil {
		return nil, err
	}
	store, err := tracestore.Open(cfg.TraceDBPath())
	if err != nil {
		return nil, err
	}
	return tracestore.NewArchive(export.NewWriter(cfg.TracesDir()), store, format), nil
}

func tracesSetup(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	l, err := setupLogger(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { _ = l.Close() }, nil
}

func runTracesList(cmd *cobra.Command, args []string) error {
	cfg, done, err := tracesSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	archive, err := openArchive(cfg, "")
	if err != nil {
		return err
	}
	defer archive.Store().Close()

	records, err := archive.Store().List(cmd.Context(), tracestore.ListOptions{
		AgentName: tracesAgent,
		SessionID: tracesSession,
		Limit:     tracesLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No traces found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVAL ID\tAGENT\tSESSION\tTOOL CALLS\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.EvalID, r.AgentName, r.SessionID, r.ToolCalls, r.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runTracesShow(cmd *cobra.Command, args []string) error {
	cfg, done, err := tracesSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	archive, err := openArchive(cfg, tracesFormat)
	if err != nil {
		return err
	}
	defer archive.Store().Close()

	ec, _, err := archive.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data, err := export.Format(ec, archive.Format())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runTracesExport(cmd *cobra.Command, args []string) error {
	cfg, done, err := tracesSetup(cmd)
	if err != nil {
		return err
	}
	defer done()
	ctx := cmd.Context()

	sessions, err := session.NewStore(cfg.SessionsDir())
	if err != nil {
		return err
	}
	defer sessions.Close()

	snap, err := sessions.Load(ctx, args[0])
	if err != nil {
		return err
	}
	ec, err := export.NewBuilder().Build(*snap)
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg, tracesFormat)
	if err != nil {
		return err
	}
	defer archive.Store().Close()

	path, err := archive.SaveTrace(ctx, ec, *snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", ec.EvalID, path)
	return nil
}

func runTracesRemove(cmd *cobra.Command, args []string) error {
	cfg, done, err := tracesSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	archive, err := openArchive(cfg, "")
	if err != nil {
		return err
	}
	defer archive.Store().Close()

	if err := archive.Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func runTracesPrune(cmd *cobra.Command, args []string) error {
	cfg, done, err := tracesSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	retention := tracesOlderThan
	if retention <= 0 {
		retention = cfg.Retention()
	}

	sessions, err := session.NewStore(cfg.SessionsDir())
	if err != nil {
		return err
	}
	defer sessions.Close()

	archive, err := openArchive(cfg, "")
	if err != nil {
		return err
	}
	defer archive.Store().Close()

	cleanup, err := session.NewCleanup(cfg.Simulation.CleanupSchedule, retention, sessions, archive.Store())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	n, err := cleanup.CleanupNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d records older than %s\n", n, retention)
	return nil
}
