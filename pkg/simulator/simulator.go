package simulator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/internal/observability"
	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/harun/agentsim/pkg/export"
	"github.com/harun/agentsim/pkg/gateway"
	"github.com/harun/agentsim/pkg/session"
	"github.com/harun/agentsim/pkg/tracestore"
	"github.com/rs/zerolog/log"
)

const defaultTickInterval = 15 * time.Second

// Option customises a Simulator
type Option func(*options)

type options struct {
	agents       []*agent.Agent
	configPath   string
	demo         *bool
	provider     agent.Provider
	tickInterval time.Duration
}

// WithAgents adds agents ahead of the configured ones
func WithAgents(agents ...*agent.Agent) Option {
	return func(o *options) {
		o.agents = append(o.agents, agents...)
	}
}

// WithConfigPath enables hot reload of the agents section of this file
func WithConfigPath(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithDemo overrides simulation.demo_agent
func WithDemo(enabled bool) Option {
	return func(o *options) {
		o.demo = &enabled
	}
}

// WithProvider replaces the default toolset provider
func WithProvider(p agent.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithTickInterval sets the gateway keepalive interval, negative disables it
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.tickInterval = d
	}
}

// Simulator wires the controller to persistence, retention, catalog reload
// and the gateway
type Simulator struct {
	config *config.Config

	catalog    *agent.Catalog
	controller *Controller
	sessions   *session.Store
	traces     *tracestore.Store
	archive    *tracestore.Archive
	cleanup    *session.Cleanup
	watcher    *agent.Watcher
	gateway    *gateway.Server
	lifecycle  *Lifecycle

	mu             sync.RWMutex
	running        bool
	startTime      time.Time
	tracingEnabled bool
}

// Status reports whether the simulator is serving
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Addr      string
}

// New builds a simulator from configuration. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*Simulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{tickInterval: defaultTickInterval}
	for _, opt := range opts {
		opt(&o)
	}
	demo := cfg.Simulation.DemoAgent
	if o.demo != nil {
		demo = *o.demo
	}

	observability.EnsureRegistered()
	s := &Simulator{config: cfg}
	if err := tracing.InitOpenTelemetry("agentsim"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		s.tracingEnabled = true
	}

	if err := s.init(o, demo); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Simulator) init(o options, demo bool) error {
	cfg := s.config

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Failed to open audit log")
	}

	static := append([]*agent.Agent{}, o.agents...)
	if demo {
		static = append(static, agent.CalculatorAgent())
	}
	configured, err := agent.FromConfig(cfg.Agents)
	if err != nil {
		return fmt.Errorf("failed to build agents: %w", err)
	}
	s.catalog, err = agent.NewCatalog(append(append([]*agent.Agent{}, static...), configured...)...)
	if err != nil {
		return fmt.Errorf("failed to build agent catalog: %w", err)
	}

	s.sessions, err = session.NewStore(cfg.SessionsDir())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	s.traces, err = tracestore.Open(cfg.TraceDBPath())
	if err != nil {
		return fmt.Errorf("failed to open trace store: %w", err)
	}
	s.archive = tracestore.NewArchive(export.NewWriter(cfg.TracesDir()), s.traces, cfg.Simulation.ExportFormat)

	s.cleanup, err = session.NewCleanup(cfg.Simulation.CleanupSchedule, cfg.Retention(), s.sessions, s.traces)
	if err != nil {
		return fmt.Errorf("failed to create session cleanup: %w", err)
	}

	s.controller, err = NewController(s.catalog, Options{
		Provider:    o.provider,
		ToolTimeout: cfg.ToolTimeout(),
		Observers:   []Observer{NewStoreObserver(s.sessions)},
		Sink:        s.archive,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	tick := o.tickInterval
	if tick < 0 {
		tick = 0
	}
	s.gateway, err = gateway.NewServer(gateway.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		SharedSecret: cfg.Server.SharedSecret,
		TickInterval: tick,
		Simulator:    s.controller,
		Logger:       log.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	s.controller.AddObserver(s.gateway.Broadcaster())

	if o.configPath != "" {
		s.watcher, err = agent.NewWatcher(agent.WatcherConfig{
			ConfigPath: o.configPath,
			Catalog:    s.catalog,
			Static:     static,
			OnReload:   s.onCatalogReload,
		})
		if err != nil {
			return fmt.Errorf("failed to create agent watcher: %w", err)
		}
	}

	s.lifecycle = NewLifecycle(cfg.DataDir)
	return nil
}

func (s *Simulator) onCatalogReload(agents []string, err error) {
	data := map[string]interface{}{"agents": agents}
	if err != nil {
		data["error"] = err.Error()
	}
	s.gateway.Broadcast(gateway.EventCatalogReloaded, data)
}

// Start writes the PID file and starts the gateway, retention and catalog
// reload
func (s *Simulator) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("simulator is already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	logger := log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Strs("agents", s.catalog.Names()).Msg("Starting agent simulator")

	if err := s.lifecycle.Start(); err != nil {
		s.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := s.gateway.Start(); err != nil {
		_ = s.lifecycle.Stop()
		s.setStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", s.gateway.Addr()).Msg("Gateway server started")

	if err := s.cleanup.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start session cleanup")
	}

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start agent catalog watcher")
		}
	}

	logger.Info().Msg("Agent simulator started")
	return nil
}

func (s *Simulator) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop shuts the gateway down, cancels any in-flight tool call and closes
// the stores
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("simulator is not running")
	}
	s.running = false
	s.mu.Unlock()

	logger := log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping agent simulator")

	if s.controller.CancelTool() {
		logger.Info().Msg("Cancelled in-flight tool call")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.gateway.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}
	cancel()

	if s.cleanup.IsRunning() {
		if err := s.cleanup.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session cleanup")
		}
	}

	if err := s.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	s.close()
	logger.Info().Msg("Agent simulator stopped")
	return nil
}

// close releases stores and toolsets; safe on a partially built simulator
func (s *Simulator) close() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop agent catalog watcher")
		}
		s.watcher = nil
	}
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close session store")
		}
	}
	if s.traces != nil {
		if err := s.traces.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close trace store")
		}
	}

	if s.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		s.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit logger")
	}
}

// Run starts the simulator and stops it when ctx is done
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Wait blocks until SIGINT or SIGTERM, then stops the simulator
func (s *Simulator) Wait() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if err := s.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop simulator")
	}
}

// Status returns the running state
func (s *Simulator) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{Running: s.running}
	if s.running {
		status.StartTime = s.startTime
		status.Uptime = time.Since(s.startTime)
		status.Addr = s.gateway.Addr()
	}
	return status
}

// Controller returns the session controller
func (s *Simulator) Controller() *Controller {
	return s.controller
}

// Catalog returns the agent catalog
func (s *Simulator) Catalog() *agent.Catalog {
	return s.catalog
}

// Archive returns the trace archive
func (s *Simulator) Archive() *tracestore.Archive {
	return s.archive
}

// Sessions returns the JSONL session store
func (s *Simulator) Sessions() *session.Store {
	return s.sessions
}

// Gateway returns the gateway server
func (s *Simulator) Gateway() *gateway.Server {
	return s.gateway
}

// Cleanup returns the retention job
func (s *Simulator) Cleanup() *session.Cleanup {
	return s.cleanup
}

// ReloadAgents re-reads the config file now; it fails without WithConfigPath
func (s *Simulator) ReloadAgents() error {
	if s.watcher == nil {
		return fmt.Errorf("agent reload requires a config path")
	}
	return s.watcher.Reload()
}
