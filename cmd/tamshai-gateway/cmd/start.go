package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamshai/gateway/internal/adapter/inbound/httpapi"
	"github.com/tamshai/gateway/internal/adapter/outbound/auditfile"
	"github.com/tamshai/gateway/internal/adapter/outbound/mcpbackend"
	"github.com/tamshai/gateway/internal/adapter/outbound/memory"
	"github.com/tamshai/gateway/internal/adapter/outbound/postgres"
	"github.com/tamshai/gateway/internal/adapter/outbound/sqlite"
	"github.com/tamshai/gateway/internal/config"
	"github.com/tamshai/gateway/internal/domain/audit"
	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/policy"
	"github.com/tamshai/gateway/internal/domain/tool"
	"github.com/tamshai/gateway/internal/port/outbound"
	"github.com/tamshai/gateway/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the Tamshai gateway server.

The gateway serves the assistant-facing HTTP API: tool invocations under
/api/mcp/{domain}/{toolname}, write confirmation under /execute and
/api/confirm/{id}, plus /healthz and /metrics.

Examples:
  # Start with config file settings
  tamshai-gateway start

  # Start with a specific config file
  tamshai-gateway --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("tamshai-gateway stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tokens, err := cfg.Tokens()
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	tokenStore := memory.NewTokenStore(tokens)
	identitySvc := service.NewIdentityService(tokenStore, logger)
	logger.Info("identity provisioned", "tokens", len(tokens))

	registry, err := tool.NewRegistry(tool.DefaultSpecs())
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	table, err := policy.NewTable(cfg.Grants(), logger)
	if err != nil {
		return fmt.Errorf("failed to build policy table: %w", err)
	}
	logger.Info("policy loaded", "grants", len(cfg.Grants()))

	backends, err := buildBackends(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackends(backends, logger)

	confirmStore, err := buildConfirmationStore(cfg)
	if err != nil {
		return err
	}
	if closer, ok := confirmStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	auditStore, err := buildAuditStore(cfg, logger)
	if err != nil {
		return err
	}
	auditor := service.NewAuditService(auditStore, logger)
	defer func() {
		if err := auditor.Close(); err != nil {
			logger.Error("audit close failed", "error", err)
		}
	}()

	timeout, err := cfg.ConfirmationTimeout()
	if err != nil {
		return err
	}
	confirmSvc := service.NewConfirmationService(registry, confirmStore, backends, auditor, logger,
		service.WithConfirmationTimeout(timeout))
	if sweep, err := cfg.SweepInterval(); err != nil {
		return err
	} else if sweep > 0 {
		confirmSvc.StartJanitor(ctx, sweep)
	}

	routerSvc := service.NewRouterService(registry, table, backends, confirmSvc, auditor, logger,
		service.WithPageSoftCap(cfg.Page.SoftCap))

	metrics := httpapi.NewMetrics()
	metrics.RegisterPendingConfirmations(func() float64 {
		return float64(confirmSvc.CountPending(context.Background()))
	})
	metrics.RegisterAuditDrops(func() float64 {
		return float64(auditor.DroppedRecords())
	})

	handler := httpapi.NewHandler(identitySvc, routerSvc, confirmSvc, metrics, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildBackends opens one tool backend per configured domain.
func buildBackends(cfg *config.Config, logger *slog.Logger) (map[string]outbound.ToolBackend, error) {
	backends := make(map[string]outbound.ToolBackend, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		switch bc.Kind {
		case "postgres":
			b, err := postgres.Open(bc.Domain, bc.DSN, postgres.DefaultCatalog(bc.Domain), logger)
			if err != nil {
				closeBackends(backends, logger)
				return nil, fmt.Errorf("open postgres backend for %s: %w", bc.Domain, err)
			}
			backends[bc.Domain] = b
		case "mcp":
			backends[bc.Domain] = mcpbackend.New(bc.Domain, bc.URL)
		default:
			closeBackends(backends, logger)
			return nil, fmt.Errorf("unknown backend kind %q for domain %s", bc.Kind, bc.Domain)
		}
		logger.Info("backend configured", "domain", bc.Domain, "kind", bc.Kind)
	}
	return backends, nil
}

func closeBackends(backends map[string]outbound.ToolBackend, logger *slog.Logger) {
	for domain, b := range backends {
		if closer, ok := b.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("backend close failed", "domain", domain, "error", err)
			}
		}
	}
}

func buildConfirmationStore(cfg *config.Config) (confirm.Store, error) {
	switch cfg.Confirmation.Store {
	case "sqlite":
		store, err := sqlite.Open(cfg.Confirmation.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open confirmation store: %w", err)
		}
		return store, nil
	default:
		return memory.NewConfirmationStore(), nil
	}
}

func buildAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	if cfg.Audit.Dir == "" {
		return memory.NewAuditStore(10000), nil
	}
	store, err := auditfile.New(auditfile.Config{
		Dir:           cfg.Audit.Dir,
		RetentionDays: cfg.Audit.RetentionDays,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return store, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
