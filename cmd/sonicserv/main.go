package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonicshare/sonicshare/internal/config"
	"github.com/sonicshare/sonicshare/internal/logging"
	"github.com/sonicshare/sonicshare/internal/relay"
	"github.com/sonicshare/sonicshare/internal/server"
	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/internal/termio"
)

const serverVersion = "v0.2.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := config.Default()
	var configFile string

	root := &cobra.Command{
		Use:     "sonicserv",
		Short:   "SonicShare pairing and relay server",
		Long:    "Pairs two peers by a short code and relays signaling and payload\nmessages between them, buffering for whichever side is momentarily offline.",
		Version: serverVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				if err := cfg.ApplyFile(configFile); err != nil {
					return err
				}
			}
			cfg.ApplyEnv()
			// Explicitly set flags win over file and environment.
			overlay := func(name string, apply func()) {
				if cmd.Flags().Changed(name) {
					apply()
				}
			}
			overlay("addr", func() { cfg.Addr = flags.Addr })
			overlay("log-level", func() { cfg.LogLevel = flags.LogLevel })
			overlay("code-length", func() { cfg.CodeLength = flags.CodeLength })
			overlay("pending-limit", func() { cfg.PendingLimit = flags.PendingLimit })
			overlay("idle-timeout", func() { cfg.IdleTimeout = flags.IdleTimeout })
			overlay("sweep-interval", func() { cfg.SweepInterval = flags.SweepInterval })
			overlay("keepalive-interval", func() { cfg.KeepaliveInterval = flags.KeepaliveInterval })
			overlay("write-timeout", func() { cfg.WriteTimeout = flags.WriteTimeout })
			overlay("max-message-bytes", func() { cfg.MaxMessageBytes = flags.MaxMessageBytes })

			return run(cmd.Context(), cfg)
		},
	}

	root.Flags().StringVar(&configFile, "config", "", "optional TOML config file")
	root.Flags().StringVar(&flags.Addr, "addr", flags.Addr, "listen address")
	root.Flags().StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().IntVar(&flags.CodeLength, "code-length", flags.CodeLength, "pairing code length (digits)")
	root.Flags().IntVar(&flags.PendingLimit, "pending-limit", flags.PendingLimit, "max buffered frames per role")
	root.Flags().DurationVar(&flags.IdleTimeout, "idle-timeout", flags.IdleTimeout, "session idle timeout before eviction")
	root.Flags().DurationVar(&flags.SweepInterval, "sweep-interval", flags.SweepInterval, "idle-session sweep period")
	root.Flags().DurationVar(&flags.KeepaliveInterval, "keepalive-interval", flags.KeepaliveInterval, "websocket keepalive ping period")
	root.Flags().DurationVar(&flags.WriteTimeout, "write-timeout", flags.WriteTimeout, "websocket write deadline")
	root.Flags().IntVar(&flags.MaxMessageBytes, "max-message-bytes", flags.MaxMessageBytes, "max websocket message size")
	return root
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	logger := logging.New("sonicserv", cfg.LogLevel)

	reg := session.NewRegistry(session.NewGenerator(cfg.CodeLength), cfg.PendingLimit)
	binder := relay.NewBinder(reg, logger)
	router := relay.NewRouter(reg, logger)
	monitor := relay.NewMonitor(reg, cfg.SweepInterval, cfg.IdleTimeout, logger)

	srv := server.New(cfg, logger, reg, binder, router)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(termio.Stdout(), "starting server addr=%s\n", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	fmt.Fprintln(termio.Stdout(), "server stopped")
	return nil
}
