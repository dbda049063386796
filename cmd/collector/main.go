// collector-service
//
// Collects student job postings from external sources (REST APIs and scraped
// job boards), normalizes and validates them, deduplicates against stored
// records and upserts the survivors. Runs on a cron schedule per source and
// exposes a small HTTP surface for health checks and manual triggers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/collector"
	"studentjobs/collector-service/internal/config"
	"studentjobs/collector-service/internal/db"
	"studentjobs/collector-service/internal/dedupe"
	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/normalize"
	"studentjobs/collector-service/internal/scheduler"
	"studentjobs/collector-service/internal/source"
	"studentjobs/collector-service/internal/store"
	"studentjobs/collector-service/internal/structure"
	"studentjobs/collector-service/internal/validate"
)

const version = "1.0.0"

// runTimeout bounds a single scheduled collection run.
const runTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("postgres connection failed", "error", err)
	}
	defer pool.Close()
	log.Infow("postgres connected")

	// ── Redis ────────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis connection failed", "error", err)
	}
	defer rdb.Close()
	log.Infow("redis connected")

	// ── Pipeline ─────────────────────────────────────────────────────────────
	jobStore := store.NewPostgresJobStore(pool)
	resultLog := store.NewRedisResultLog(rdb, cfg.RedisKeyPrefix)
	fingerprints := store.NewRedisFingerprintStore(rdb, cfg.RedisKeyPrefix)
	notifier := store.NewLogNotifier(log)
	detector := structure.NewDetector(fingerprints, notifier, log)

	normalizer := normalize.New(log, normalize.WithBaseURLs(map[string]string{
		"platsbanken": "https://arbetsformedlingen.se/platsbanken/annonser",
	}))

	orch := collector.New(normalizer, validate.New(), dedupe.New(log), jobStore, resultLog, log)

	for _, sc := range cfg.Sources() {
		if !sc.Enabled {
			log.Infow("source disabled, skipping", "source", sc.ID)
			continue
		}
		client := source.NewClient(cfg.RequestTimeout, sc.RequestsPerMin, sc.Retry, log)
		var adapter source.Adapter
		switch sc.Kind {
		case model.KindAPI:
			adapter = source.NewAPIAdapter(sc, client, log)
		case model.KindScraper:
			adapter = source.NewScraperAdapter(sc, client, detector, log)
		default:
			log.Fatalw("unknown source kind", "source", sc.ID, "kind", sc.Kind)
		}
		if err := orch.RegisterSource(ctx, adapter); err != nil {
			log.Fatalw("source registration failed", "source", sc.ID, "error", err)
		}
	}

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(orch, runTimeout, log)
	orch.SetRescheduler(sched.ScheduleSource)
	for _, sc := range orch.Sources() {
		if err := sched.ScheduleSource(sc); err != nil {
			log.Fatalw("scheduling failed", "source", sc.ID, "error", err)
		}
	}
	sched.StartAll()
	defer sched.StopAll()

	// First collection right away rather than waiting out the first interval.
	go func() {
		runCtx, done := context.WithTimeout(ctx, runTimeout)
		defer done()
		orch.CollectFromAllSources(runCtx)
	}()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/collect/", triggerHandler(sched, log))
	mux.HandleFunc("/results/", resultsHandler(resultLog, log))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // manual triggers wait for the run
	}

	go func() {
		log.Infow("listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server error", "error", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown error", "error", err)
	}
	log.Infow("stopped")
}

// buildLogger selects JSON output in production, console in development.
func buildLogger(env string) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("collector-service"), nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "collector-service",
		"version": version,
	})
}

// resultHistory is the read side of the collection-run log.
type resultHistory interface {
	Recent(ctx context.Context, sourceID string, n int) ([]model.CollectionResult, error)
}

// defaultResultLimit caps GET /results responses unless ?limit= asks for less.
const defaultResultLimit = 20

// resultsHandler handles GET /results/{sourceID}: returns the most recent
// collection results for a source, newest first.
func resultsHandler(history resultHistory, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sourceID := strings.TrimPrefix(r.URL.Path, "/results/")
		if sourceID == "" || strings.Contains(sourceID, "/") {
			http.Error(w, "source id required", http.StatusBadRequest)
			return
		}

		limit := defaultResultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		results, err := history.Recent(r.Context(), sourceID, limit)
		if err != nil {
			log.Warnw("result history read failed", "source", sourceID, "error", err)
			http.Error(w, "result log unavailable", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}

// triggerHandler handles POST /collect/{sourceID}: runs a collection for one
// source immediately and returns its result. Concurrent triggers for the same
// source coalesce onto the in-flight run.
func triggerHandler(sched *scheduler.Scheduler, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sourceID := strings.TrimPrefix(r.URL.Path, "/collect/")
		if sourceID == "" || strings.Contains(sourceID, "/") {
			http.Error(w, "source id required", http.StatusBadRequest)
			return
		}

		result, err := sched.RunNow(r.Context(), sourceID)
		if err != nil {
			log.Warnw("manual collection failed", "source", sourceID, "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
