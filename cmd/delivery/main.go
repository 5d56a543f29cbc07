package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/future-messaging/internal/api"
	"github.com/LeventeLantos/future-messaging/internal/cache"
	"github.com/LeventeLantos/future-messaging/internal/config"
	"github.com/LeventeLantos/future-messaging/internal/mailer"
	"github.com/LeventeLantos/future-messaging/internal/repo"
	"github.com/LeventeLantos/future-messaging/internal/scheduler"
	"github.com/LeventeLantos/future-messaging/internal/service"
	"github.com/LeventeLantos/future-messaging/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("future-messaging starting (addr=%s, interval=%s, batch=%d, workers=%d, redis=%v)",
		cfg.Server.Address,
		cfg.Sweep.Interval,
		cfg.Sweep.BatchSize,
		cfg.Sweep.Workers,
		cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("ping postgres: %v", err)
	}
	cancelPing()

	store, err := s3.New(s3.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		LinkTTL:   cfg.Storage.LinkTTL,
	})
	if err != nil {
		log.Fatalf("init blob storage: %v", err)
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureBucket(bucketCtx); err != nil {
		cancelBucket()
		log.Fatalf("ensure bucket: %v", err)
	}
	cancelBucket()

	smtp := mailer.NewSMTPMailer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.From,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	messages := repo.NewPostgresMessageRepo(db)
	profiles := repo.NewPostgresProfileRepo(db)

	sweeper := service.NewSweeper(messages, profiles, store, smtp, service.SweeperOptions{
		BatchSize:      cfg.Sweep.BatchSize,
		Workers:        cfg.Sweep.Workers,
		MessageTimeout: cfg.Sweep.MessageTimeout,
		StaleClaim:     cfg.Sweep.StaleClaim,
		Timezone:       cfg.Sweep.Timezone,
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		receipts := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		sweeper.WithHooks(receipts.StoreReceipt)
	}

	sched, err := scheduler.New(cfg.Sweep.Interval, func(ctx context.Context) {
		sweeper.Sweep(ctx)
	})
	if err != nil {
		log.Fatalf("init scheduler: %v", err)
	}
	sched.Start()

	handler := api.NewHandler(sched, messages)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	sched.Stop()

	slog.Info("bye")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
