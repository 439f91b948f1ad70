package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/agentsim/pkg/agent"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var demoMCPAddr string

var demoMCPCmd = &cobra.Command{
	Use:   "demo-mcp",
	Short: "Serve a demo MCP server with a multiply tool",
	Long: `Serve a streamable HTTP MCP server exposing a single multiply(a, b) tool.
Point an agent at it to try MCP toolsets:

  "mcp_servers": [{"id": "demo", "transport": "http", "url": "http://127.0.0.1:9001/mcp"}]`,
	Args: cobra.NoArgs,
	RunE: runDemoMCP,
}

func init() {
	demoMCPCmd.Flags().StringVar(&demoMCPAddr, "addr", "127.0.0.1:9001", "listen address")
	rootCmd.AddCommand(demoMCPCmd)
}

func runDemoMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", demoMCPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", demoMCPAddr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "demo MCP server listening on http://%s/mcp\n", ln.Addr())
	return serveDemoMCP(ctx, ln)
}

// serveDemoMCP serves on ln until ctx is done
func serveDemoMCP(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", agent.NewDemoMCPServer())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down demo MCP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
