package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/tablekeeper/internal/adapters/http"
	"github.com/dkeye/tablekeeper/internal/adapters/tcp"
	"github.com/dkeye/tablekeeper/internal/adapters/ws"
	"github.com/dkeye/tablekeeper/internal/app"
	"github.com/dkeye/tablekeeper/internal/config"
	"github.com/dkeye/tablekeeper/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.DefaultContextLogger = &log.Logger

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	store := core.NewRoomStore()
	limiter := app.NewJoinLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval)
	coord := app.NewCoordinator(store, limiter)
	dispatcher := app.NewDispatcher(store, coord)
	reg := app.NewRegistry()
	reaper := app.NewReaper(store, limiter, cfg.JoinTimeout, cfg.ReapInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		reaper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		srv := tcp.NewServer(dispatcher, reg, cfg.MaxFrameBytes, cfg.ReadTimeout)
		return srv.ListenAndServe(gctx, cfg.Addr())
	})

	if cfg.HTTPAddr != "" {
		wsh := ws.NewHandler(dispatcher, reg, cfg.ReadLimit, cfg.PingPeriod)
		httpSrv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: router.SetupRouter(gctx, cfg, store, reg, wsh),
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server started")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server forced to shutdown")
			}
			return nil
		})
	}

	log.Info().Str("addr", cfg.Addr()).Msg("tablekeeper started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
