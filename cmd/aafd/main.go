// Command aafd serves agent workflow graphs over HTTP.
//
// Usage:
//
//	aafd serve [--config aafd.yaml]       start the service
//	aafd validate <definition files...>   load and compile workflow files
//	aafd health [--addr URL]              probe a running service
//	aafd version                          print build information
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/swar00pduthks/Aaf/internal/chatflow"
	"github.com/swar00pduthks/Aaf/internal/server"
	"github.com/swar00pduthks/Aaf/internal/telemetry"
	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
	"github.com/swar00pduthks/Aaf/pkg/aaf/definition"
	"github.com/swar00pduthks/Aaf/pkg/aaf/llm"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "version":
		fmt.Printf("aafd %s (commit %s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "aafd: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`aafd - agent workflow graph service

Usage:
  aafd <command> [options]

Commands:
  serve      Start the HTTP service
  validate   Load and compile workflow definition files
  health     Check a running service
  version    Show version information

Options for 'serve':
  --config <path>   Path to configuration file (YAML or JSON)`)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting aafd",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("store", cfg.Store.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	backend, err := statestore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	store := statestore.NewManager(backend,
		statestore.WithTTL(cfg.Store.TTL),
		statestore.WithManagerLogger(runLogger(cfg.Log)))
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing state store failed", zap.Error(err))
		}
	}()

	client := llm.NewMockClient("")
	chat, err := chatflow.NewWorkflow(chatflow.Options{LLM: client})
	if err != nil {
		return fmt.Errorf("build chat workflow: %w", err)
	}

	srv, err := server.New(server.Options{
		Logger:      logger,
		RunLogger:   runLogger(cfg.Log),
		Store:       store,
		Run:         cfg.Run,
		Chat:        chat,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		Version:     Version,
		Tracing:     providers.Enabled(),
		OTelMetrics: providers.Enabled(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	graphs, err := loadWorkflows(cfg.Workflows, client)
	if err != nil {
		return err
	}
	for _, cg := range graphs {
		if err := srv.AddWorkflow(cg); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(ctx),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		errs := []error{httpServer.Shutdown(shutdownCtx)}
		if providers != nil {
			errs = append(errs, providers.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("aafd stopped")
	return nil
}

// loadWorkflows loads and compiles every definition file. Definitions
// may only use built-in node kinds since no nodes are registered.
func loadWorkflows(paths []string, client llm.Client) ([]*aaf.CompiledGraph, error) {
	graphs := make([]*aaf.CompiledGraph, 0, len(paths))
	for _, path := range paths {
		def, err := definition.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cg, err := definition.Build(def, aaf.NewRegistry(), definition.BuildOptions{LLM: client})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		graphs = append(graphs, cg)
	}
	return graphs, nil
}

func runValidate(args []string) error {
	if len(args) == 0 {
		return errors.New("validate: no definition files given")
	}
	graphs, err := loadWorkflows(args, llm.NewMockClient(""))
	if err != nil {
		return err
	}
	for i, cg := range graphs {
		fmt.Printf("%s: %s ok (entry %s, %d nodes)\n", args[i], cg.Name(), cg.EntryPoint(), len(cg.NodeIDs()))
	}
	return nil
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "service address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Println("OK")
	return nil
}

func zapLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func initLogger(cfg config.Log) *zap.Logger {
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel(cfg.Level)),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// runLogger is the slog logger handed to the executor and the state
// store. Executor logs are debug-level noise unless asked for.
func runLogger(cfg config.Log) *slog.Logger {
	if cfg.Level != "debug" {
		return nil
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
