package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/agentsim/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	agentsDemo  bool
	agentsTools bool
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured agents",
	Long: `List the agents a session can select. With --tools each agent's
toolsets are resolved, which starts or dials its MCP servers.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsDemo, "demo", false, "include the calculator demo agent")
	agentsCmd.Flags().BoolVar(&agentsTools, "tools", false, "resolve and list each agent's tools")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := setupLogger(cfg, false)
	if err != nil {
		return err
	}
	defer l.Close()

	agents, err := agent.FromConfig(cfg.Agents)
	if err != nil {
		return err
	}
	demo := cfg.Simulation.DemoAgent
	if cmd.Flags().Changed("demo") {
		demo = agentsDemo
	}
	if demo {
		agents = append([]*agent.Agent{agent.CalculatorAgent()}, agents...)
	}

	catalog, err := agent.NewCatalog(agents...)
	if err != nil {
		return err
	}
	defer catalog.Close()

	out := cmd.OutOrStdout()
	if catalog.Len() == 0 {
		fmt.Fprintln(out, "No agents configured")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODEL\tTOOLSETS\tDESCRIPTION")
	for _, a := range catalog.List() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.Name, orDash(a.Model), len(a.Toolsets), orDash(a.Description))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !agentsTools {
		return nil
	}

	provider := agent.NewToolsetProvider()
	for _, a := range catalog.List() {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		tools, err := provider.Tools(ctx, a)
		cancel()

		fmt.Fprintf(out, "\n%s:\n", a.Name)
		if err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			continue
		}
		for _, tool := range tools {
			fmt.Fprintf(out, "  - %s: %s\n", tool.Name(), tool.Description())
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
