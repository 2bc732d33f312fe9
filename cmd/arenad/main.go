package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/config"
	"github.com/siddkalani/decaychess/internal/dispatch"
	"github.com/siddkalani/decaychess/internal/gateway"
	"github.com/siddkalani/decaychess/internal/matchmaker"
	"github.com/siddkalani/decaychess/internal/store"
	"github.com/siddkalani/decaychess/internal/tournament"
	"github.com/siddkalani/decaychess/internal/users"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("parse redis url", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal("redis ping", zap.Error(err))
	}
	cancel()

	st := store.NewRedis(rdb)
	dir := users.NewInMemory()

	hub := gateway.NewHub(st, []byte(cfg.SigningSecret), log.Named("gateway"))
	mm := matchmaker.New(st, dir, hub, log.Named("matchmaker"))
	tm := tournament.New(st, dir, mm, log.Named("tournament"))
	disp := dispatch.New(st, hub, log.Named("dispatch"))
	disp.OnFinish = tm.OnSessionFinish
	hub.Bind(mm, tm, disp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go mm.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	disp.Wait()
}
