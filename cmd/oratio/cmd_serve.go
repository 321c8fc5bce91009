package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/oratio/internal/app"
	"github.com/MrWong99/oratio/internal/config"
	"github.com/MrWong99/oratio/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(g *globals) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP API",
		Long: `Run the HTTP API: POST /v1/analyses, GET /v1/users/{id}/sessions,
GET /v1/languages, /healthz, /readyz and /metrics.

With --watch the config file is polled and log level, rule packs and AI
tuning are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				g.cfg.Server.ListenAddr = addr
			}
			return runServe(cmd.Context(), cmd.OutOrStdout(), g, watch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "override server.listen_addr")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")

	return cmd
}

func runServe(parent context.Context, out io.Writer, g *globals, watch bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := g.cfg

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "oratio",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return &InputError{Err: err}
	}

	a, err := app.New(ctx, cfg, providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithLevelVar(g.level),
	)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if watch {
		w, err := config.NewWatcher(g.configPath, func(newCfg *config.Config, d config.ConfigDiff) {
			if len(d.RestartRequired) > 0 {
				slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
			}
			a.Apply(newCfg, d)
		})
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("no config file to watch", "path", g.configPath)
		case err != nil:
			slog.Warn("config watcher disabled", "err", err)
		default:
			defer w.Stop()
		}
	}

	printStartupSummary(out, cfg, a)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			_ = a.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(sctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.Shutdown(sctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// printStartupSummary writes a human-readable overview of the active
// configuration.
func printStartupSummary(w io.Writer, cfg *config.Config, a *app.App) {
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║             Oratio ready             ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
	fmt.Fprintf(w, "  Listen   : %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(w, "  Rules    : %v (default %s)\n", a.Rules().Languages(), cfg.Rules.DefaultLanguage)
	if a.AIEnabled() {
		fmt.Fprintf(w, "  AI       : %s / %s (+%d fallbacks)\n", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, len(cfg.Providers.LLMFallbacks))
	} else {
		fmt.Fprintln(w, "  AI       : (disabled, rules only)")
	}
	fmt.Fprintf(w, "  Cache    : %s\n", cfg.Cache.Backend)
	fmt.Fprintf(w, "  History  : %s\n", cfg.History.Backend)
	fmt.Fprintf(w, "  Log level: %s\n", cfg.Server.LogLevel)
}
