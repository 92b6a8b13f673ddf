package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	orchestration "github.com/koscakluka/ema-phone/core"
	"github.com/koscakluka/ema-phone/core/gateway"
	"github.com/koscakluka/ema-phone/internal/config"
	"github.com/koscakluka/ema-phone/internal/telemetry"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept media-stream connections",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx,
		telemetry.WithTracesAndMetrics(cfg.Telemetry.Stdout),
		telemetry.WithServiceVersion(version))
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	factory, err := newProviderFactory(cfg, config.LookupCredentials)
	if err != nil {
		return err
	}
	defer factory.Close()

	gw := gateway.New(factory.Providers,
		func() []string { return cfg.MissingCredentials(config.LookupCredentials()) },
		gateway.WithReadLimit(cfg.Server.ReadLimit),
		gateway.WithSessionOptions(
			orchestration.WithTimeout(cfg.Session.Timeout),
			orchestration.WithWriteTimeout(cfg.Session.WriteTimeout),
			orchestration.WithQueueCapacity(cfg.Session.QueueCapacity),
			orchestration.WithMaxFrameSize(cfg.Session.MaxFrameSize),
		),
	)

	if missing := cfg.MissingCredentials(config.LookupCredentials()); len(missing) > 0 {
		logger.WarnContext(ctx, "credentials missing, media streams will be refused", "missing", missing)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: gw.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", "addr", cfg.Server.Addr, "version", version)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down", "active_sessions", gw.Registry().Len())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by the server, so
	// sessions are closed explicitly.
	gw.Registry().CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
