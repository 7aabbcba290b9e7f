package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ryadrakem/mms-V2/internal/api"
	"github.com/ryadrakem/mms-V2/internal/config"
	"github.com/ryadrakem/mms-V2/internal/hub"
	"github.com/ryadrakem/mms-V2/internal/invitation"
	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/jobs"
	"github.com/ryadrakem/mms-V2/internal/logging"
	"github.com/ryadrakem/mms-V2/internal/metrics"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/session"
	"github.com/ryadrakem/mms-V2/internal/video"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session API server",
		RunE:  runServe,
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log, err := logging.Setup(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON}, os.Stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, closeStore, err := openStore(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	store := recordstore.Instrument(backend, m)

	h := hub.New(log, hub.Options{
		ReadLimit:      cfg.WS.ReadLimit,
		PingPeriod:     cfg.WS.PingPeriod,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})
	bridge := video.NewBridge(h, log)
	h.OnFrame(bridge.Dispatch)

	sinks := notify.Multi{h, notify.LogSink{Logger: log}}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		sinks = append(sinks, notify.NewRedisSink(rdb, cfg.Redis.ChannelPrefix))
	}

	var tokens *jaas.Service
	if cfg.Jitsi.Enabled() {
		issuer, err := jaas.NewIssuer(jaas.Config{
			AppID:      cfg.Jitsi.AppID,
			KeyID:      cfg.Jitsi.KeyID,
			PrivateKey: cfg.Jitsi.PrivateKey,
			Domain:     cfg.Jitsi.Domain,
			TTL:        cfg.Jitsi.TokenTTL,
		})
		if err != nil {
			return fmt.Errorf("init jaas issuer: %w", err)
		}
		tokens = jaas.NewService(store, issuer, m)
	} else {
		log.Warn().Msg("jitsi app id not set, room tokens disabled")
	}

	deps := session.Deps{
		Store:     store,
		Notifier:  sinks,
		Navigator: h,
		Surface:   h,
		Video:     bridge,
		Runner:    jobs.NewRunner(log, m),
		Metrics:   m,
		Logger:    log,
	}
	apiDeps := api.Deps{
		Invitations: invitation.NewService(store, log),
		Sockets:     h,
		Gatherer:    reg,
		Logger:      log,
		BaseContext: ctx,
	}
	if tokens != nil {
		deps.Tokens = tokens
		apiDeps.Tokens = tokens
	}
	manager := session.NewManager(deps, sessionOptions(cfg.Session))
	apiDeps.Sessions = manager

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     api.NewRouter(cfg, apiDeps),
		ReadTimeout: 30 * time.Second,
		// End meeting may wait on three record writes and the kick round trip.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("store", cfg.StoreBackend).Msg("mms listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		manager.Close()
		return err
	})
	return g.Wait()
}

// openStore connects the configured record store backend. The returned
// func releases it.
func openStore(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log zerolog.Logger) (recordstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping db: %w", err)
		}
		reg.MustRegister(metrics.NewPoolStatsCollector(pool))
		return recordstore.NewPostgres(pool), pool.Close, nil
	case "jsonrpc":
		return recordstore.NewJSONRPC(recordstore.JSONRPCOptions{
			BaseURL:   cfg.JSONRPC.URL,
			SessionID: cfg.JSONRPC.SessionID,
		}), func() {}, nil
	case "memory":
		log.Warn().Msg("using in-memory record store, data is lost on exit")
		return recordstore.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func sessionOptions(sc config.SessionConfig) session.Options {
	return session.Options{
		PollInterval: sc.PollInterval,
		TickInterval: sc.TickInterval,
		SettleDelay:  sc.SettleDelay,
		HangupDelay:  sc.HangupDelay,
		Retry:        session.RetryPolicy{MaxAttempts: sc.MaxRetries},
	}
}
