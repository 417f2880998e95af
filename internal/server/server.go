package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
	"github.com/swar00pduthks/Aaf/pkg/aaf/event"
	"github.com/swar00pduthks/Aaf/pkg/aaf/registry"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

// ErrDuplicateWorkflow is returned by AddWorkflow when the name is taken.
var ErrDuplicateWorkflow = errors.New("workflow already registered")

// Options configures a Server.
type Options struct {
	// Logger is the service logger. Nil disables logging.
	Logger *zap.Logger
	// RunLogger receives executor logs. Nil keeps runs silent.
	RunLogger *slog.Logger
	// Store persists final states and checkpoints. Required.
	Store *statestore.Manager
	// Run holds defaults applied to every run.
	Run config.Run
	// Chat serves POST /chat when set.
	Chat *aaf.Workflow[string]
	// Registry receives the service collectors. Nil uses a fresh registry.
	Registry *prometheus.Registry
	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int
	// Version is reported by /health.
	Version string
	// Tracing and OTelMetrics enable executor spans and instruments.
	Tracing     bool
	OTelMetrics bool
}

// Server serves workflow runs over HTTP.
type Server struct {
	opts    Options
	logger  *zap.Logger
	store   *statestore.Manager
	metrics *Metrics
	bus     *event.LocalBus
	started time.Time

	// addMu serializes AddWorkflow so the duplicate check and the
	// registration are atomic.
	addMu     sync.Mutex
	workflows *registry.Registry[string, *aaf.CompiledGraph]
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: state store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		store:     opts.Store,
		metrics:   NewMetrics(opts.Registry),
		bus:       event.NewBus(event.BusConfig{NonBlocking: true}),
		started:   time.Now(),
		workflows: registry.New[string, *aaf.CompiledGraph](),
	}
	s.bus.Subscribe([]string{aaf.EventNodeCompleted, aaf.EventNodeFailed}, event.HandlerFunc(s.metrics.HandleEvent))
	if opts.Chat != nil {
		if err := s.AddWorkflow(opts.Chat.Graph()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddWorkflow makes a compiled graph runnable under its name.
func (s *Server) AddWorkflow(cg *aaf.CompiledGraph) error {
	s.addMu.Lock()
	defer s.addMu.Unlock()
	if s.workflows.Has(cg.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, cg.Name())
	}
	s.workflows.Register(cg.Name(), cg)
	s.logger.Info("workflow registered",
		zap.String("workflow", cg.Name()),
		zap.Int("nodes", len(cg.NodeIDs())))
	return nil
}

func (s *Server) workflow(name string) (*aaf.CompiledGraph, bool) {
	return s.workflows.Get(name)
}

// Metrics returns the service collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP handler. ctx bounds background work such as
// the rate limiter sweeper.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /workflows/{name}", s.handleGetWorkflow)
	mux.HandleFunc("POST /workflows/{name}/runs", s.handleRun)
	mux.HandleFunc("POST /workflows/{name}/runs/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	if s.opts.Chat != nil {
		mux.HandleFunc("POST /chat", s.handleChat)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestLogger(s.logger, s.metrics),
	}
	if s.opts.RateLimit > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, s.opts.RateLimit, s.opts.RateBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// Close stops event delivery. The state store is owned by the caller.
func (s *Server) Close() error {
	return s.bus.Close()
}

// runOptions builds executor options from the service defaults and the
// per-request overrides.
func (s *Server) runOptions(runID string, maxIterations int, timeout time.Duration) []aaf.RunOption {
	opts := []aaf.RunOption{
		aaf.WithRunID(runID),
		aaf.WithEventBus(s.bus),
		aaf.WithObservabilityLogger(s.opts.RunLogger),
		aaf.WithTracing(s.opts.Tracing),
		aaf.WithMetrics(s.opts.OTelMetrics),
	}
	if s.opts.Run.Checkpoint {
		opts = append(opts, aaf.WithCheckpointing(s.store))
	}
	if maxIterations == 0 {
		maxIterations = s.opts.Run.MaxIterations
	}
	if maxIterations > 0 {
		opts = append(opts, aaf.WithMaxIterations(maxIterations))
	}
	if timeout == 0 {
		timeout = s.opts.Run.Timeout
	}
	if timeout > 0 {
		opts = append(opts, aaf.WithTimeout(timeout))
	}
	return opts
}

// persist stores the final state when checkpointing is off. With
// checkpointing on, the executor already saved it.
func (s *Server) persist(ctx context.Context, runID string, final aaf.State) {
	if s.opts.Run.Checkpoint {
		return
	}
	if err := s.store.SaveWorkflowState(context.WithoutCancel(ctx), runID, final); err != nil {
		s.logger.Error("saving run state failed", zap.String("run_id", runID), zap.Error(err))
	}
}
