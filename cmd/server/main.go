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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/config"
	"mercadinho/backend/internal/httpapi"
	"mercadinho/backend/internal/logger"
	"mercadinho/backend/internal/metrics"
	"mercadinho/backend/internal/service"
	"mercadinho/backend/internal/store"
	"mercadinho/backend/internal/store/memory"
	pgstore "mercadinho/backend/internal/store/postgres"
)

func main() {
	_ = config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: cfg.ServiceName,
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		WarnStack:   cfg.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := validateSecurityConfig(cfg); err != nil {
		logg.Error(ctx, "invalid security configuration", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "server stopped")
}

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) (err error) {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	repo, closeRepo, err := openRepository(startupCtx, cfg, logg)
	if err != nil {
		return err
	}
	closers = append(closers, closeRepo)

	readCache, closeCache := openCache(startupCtx, cfg, logg)
	closers = append(closers, closeCache)

	reg := prometheus.NewRegistry()
	var pos *metrics.POS
	if cfg.MetricsEnabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pos = metrics.New(reg)
	}

	svc := service.New(repo,
		service.WithLocation(loc),
		service.WithCache(readCache),
		service.WithLogger(logg),
		service.WithMetrics(pos),
	)

	auth := httpapi.NewAuthManager(startupCtx, cfg.AuthSecret, cfg.TokenTTL(), repo)
	if cfg.BootstrapAdminPassword != "" {
		created, err := auth.EnsureAdmin(startupCtx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logg.Zerolog(ctx).Info().Str("username", cfg.BootstrapAdminUsername).Msg("bootstrap admin created")
		}
	}

	apiOpts := []httpapi.Option{
		httpapi.WithAllowedOrigin(cfg.AllowedOrigin),
		httpapi.WithLogger(logg),
	}
	if pos != nil {
		apiOpts = append(apiOpts, httpapi.WithMetrics(pos, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	api := httpapi.New(svc, auth, apiOpts...)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Zerolog(ctx).Info().
			Str("addr", cfg.Address()).
			Str("reference_timezone", loc.String()).
			Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openRepository picks postgres when DATABASE_URL is set and never falls back
// to the in-memory store in that case.
func openRepository(ctx context.Context, cfg config.Config, logg *logger.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logg.Zerolog(ctx).Warn().Str("repository", "memory").Msg("DATABASE_URL not set; data is lost on restart")
		return memory.NewSeeded(), func() error { return nil }, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		logg.Info(ctx, "migrations applied")
	}
	logg.Zerolog(ctx).Info().Str("repository", "postgres").Msg("repository ready")
	return pg, pg.Close, nil
}

// openCache prefers redis and degrades to a process-local cache when redis is
// not configured or not reachable.
func openCache(ctx context.Context, cfg config.Config, logg *logger.Logger) (cache.Cache, func() error) {
	local := func() (cache.Cache, func() error) {
		return cache.NewMemory(cfg.CacheTTL()), func() error { return nil }
	}
	if cfg.RedisURL == "" {
		logg.Zerolog(ctx).Info().Str("cache", "memory").Msg("cache ready")
		return local()
	}

	redisCache, err := cache.NewRedisFromURL(cfg.RedisURL, cfg.CacheTTL())
	if err == nil {
		err = redisCache.Ping(ctx)
		if err != nil {
			_ = redisCache.Close()
		}
	}
	if err != nil {
		logg.Zerolog(ctx).Warn().Err(err).Msg("redis unavailable, using in-process cache")
		return local()
	}

	logg.Zerolog(ctx).Info().Str("cache", "redis").Msg("cache ready")
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.BootstrapAdminPassword != "" && len(cfg.BootstrapAdminPassword) < 12 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 12 characters")
	}
	return nil
}
