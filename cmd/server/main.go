package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/hiring/internal/config"
	"github.com/sumire/hiring/internal/events"
	"github.com/sumire/hiring/internal/handler"
	"github.com/sumire/hiring/internal/repository"
	"github.com/sumire/hiring/internal/repository/memory"
	"github.com/sumire/hiring/internal/scheduler"
	"github.com/sumire/hiring/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	tx           service.TxRunner
	pipelines    service.PipelineStore
	jobs         service.JobStore
	applications service.ApplicationStore
	close        func() error
}

func openStores(cfg config.Config) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		s := memory.New()
		slog.Warn("using in-memory store; data is lost on restart")
		return stores{tx: s, pipelines: s, jobs: s, applications: s, close: func() error { return nil }}, nil
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	wrapped := repository.NewDB(db)
	return stores{
		tx:           wrapped,
		pipelines:    repository.NewPipelineRepository(wrapped),
		jobs:         repository.NewJobRepository(wrapped),
		applications: repository.NewApplicationRepository(wrapped),
		close:        db.Close,
	}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	var publisher service.EventPublisher = events.LogPublisher{}
	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, cfg.EventPrefix)
		slog.Info("redis connected")
	}

	pipelineSvc := service.NewPipelineService(st.pipelines, st.tx)
	jobSvc := service.NewJobService(st.jobs, st.pipelines, st.tx, publisher)
	trigger := service.NewAutoTransitionTrigger(st.applications, jobSvc)
	appSvc := service.NewApplicationService(st.applications, st.jobs, st.pipelines, st.tx, publisher, trigger)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTAccessTTL,
	})

	sched := scheduler.New(jobSvc, cfg.ExpirySweepSpec)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	e := handler.NewRouter(handler.Services{
		Pipelines:    pipelineSvc,
		Jobs:         jobSvc,
		Applications: appSvc,
		Tokens:       tokenSvc,
		TokenTTL:     cfg.JWTAccessTTL,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
