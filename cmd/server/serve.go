package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Inkroom/internal/adapters/discovery"
	router "github.com/dkeye/Inkroom/internal/adapters/http"
	"github.com/dkeye/Inkroom/internal/adapters/signal"
	"github.com/dkeye/Inkroom/internal/app"
	"github.com/dkeye/Inkroom/internal/app/orch"
	"github.com/dkeye/Inkroom/internal/config"
	"github.com/dkeye/Inkroom/internal/entitlement"
	"github.com/dkeye/Inkroom/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		port int
		mdns bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("mdns") {
				cfg.MDNS.Enabled = mdns
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&mdns, "mdns", false, "advertise the server on the local network")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	setLogLevel(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	policy, err := app.PolicyByName(cfg.SlowPolicy)
	if err != nil {
		return err
	}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(metrics),
		Policy:   policy,
		Metrics:  metrics,
	}

	drawings, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("drawing store: %w", err)
	}
	if c, ok := drawings.(io.Closer); ok {
		defer c.Close()
	}
	guard := &entitlement.Guard{Limits: entitlement.NewTable(cfg.Entitlement.Limits), Store: drawings}

	ctl := signal.NewSignalWSController(o, signal.Options{
		SendBuffer:  cfg.SendBuffer,
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		DrawLimiter: signal.NewRateLimiter(cfg.DrawRateLimit, cfg.DrawRateInterval),
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:     o,
		Signal:   ctl,
		Store:    drawings,
		Guard:    guard,
		Gatherer: reg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	if cfg.MDNS.Enabled {
		adv, err := discovery.Advertise(cfg.MDNS.Service, cfg.Port)
		if err != nil {
			log.Warn().Err(err).Msg("mDNS advertise failed")
		}
		defer adv.Shutdown()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Backend).Msg("Inkroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Int("rooms", o.Rooms.Len()).Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
