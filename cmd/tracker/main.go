// Package main runs the token acquisition tracker: an HTTP API over
// tracking sessions that poll Solana blocks, classify token acquisitions
// and expose progress, records and export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"solana-buy-tracker/internal/blocksource"
	"solana-buy-tracker/internal/events"
	"solana-buy-tracker/internal/export"
	"solana-buy-tracker/internal/observability"
	"solana-buy-tracker/internal/solana"
	"solana-buy-tracker/internal/storage"
	chstore "solana-buy-tracker/internal/storage/clickhouse"
	"solana-buy-tracker/internal/storage/memory"
	"solana-buy-tracker/internal/storage/migrations"
	pgstore "solana-buy-tracker/internal/storage/postgres"
	"solana-buy-tracker/internal/tracker"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	endpoints := flag.String("rpc-endpoints", os.Getenv("SOLANA_RPC_ENDPOINTS"), "Comma-separated Solana RPC HTTP endpoints, failover order")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Optional Solana WebSocket endpoint for slot notifications")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for record archival")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for record archival")
	useMemory := flag.Bool("use-memory", false, "Archive records in memory instead of a database")
	listenAddr := flag.String("listen-addr", ":8080", "HTTP API listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	rps := flag.Int("requests-per-second", 4, "Upstream request ceiling per sliding second")
	spacing := flag.Duration("request-spacing", 250*time.Millisecond, "Minimum gap between upstream requests")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "Live-tail poll interval")
	batchSize := flag.Int("backfill-batch", 20, "Backfill batch size in blocks")
	maxRetained := flag.Int("max-retained-records", 10000, "In-memory record cap per session before archive flush")

	flag.Parse()

	logger := log.New(os.Stdout, "[tracker] ", log.LstdFlags)

	if *endpoints == "" {
		logger.Fatal("--rpc-endpoints is required")
	}
	if !*useMemory && *postgresDSN == "" && *clickhouseDSN == "" {
		logger.Fatal("an archive store is required: --postgres-dsn, --clickhouse-dsn, or --use-memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := blocksource.NewEndpointPool(splitList(*endpoints))
	if err != nil {
		logger.Fatalf("endpoint pool: %v", err)
	}

	archive, closeArchive, err := openArchive(ctx, *useMemory, *postgresDSN, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("archive store: %v", err)
	}
	defer closeArchive()

	cfg := blocksource.DefaultConfig()
	cfg.RequestsPerSecond = *rps
	cfg.MinRequestSpacing = *spacing
	cfg.PollInterval = *pollInterval
	cfg.BatchSize = *batchSize

	sessionCfg := tracker.DefaultSessionConfig()
	sessionCfg.MaxRetainedRecords = *maxRetained

	metrics := observability.NewMetrics("")
	sink := events.MultiSink{
		events.NewLogSink(logger),
		observability.NewMetricsSink(metrics),
	}

	opts := []tracker.ManagerOption{
		tracker.WithArchiveStore(archive),
		tracker.WithEventSink(sink),
		tracker.WithLogger(logger),
		tracker.WithSessionConfig(sessionCfg),
	}

	var notifier *solana.SlotNotifier
	if *wsEndpoint != "" {
		notifier = solana.NewSlotNotifier(*wsEndpoint, nil, logger)
		notifier.Start(ctx)
		defer notifier.Close()

		// Sessions sharing the channel race for wakeups, which only
		// shortens someone's poll sleep; polling stays authoritative.
		opts = append(opts, tracker.WithSourceFactory(func() (tracker.BlockSource, error) {
			return blocksource.NewSource(cfg, pool,
				blocksource.WithLogger(logger),
				blocksource.WithEventSink(sink),
				blocksource.WithSlotNotifications(notifier.Slots()),
			)
		}))
	}

	manager, err := tracker.NewManager(cfg, pool, opts...)
	if err != nil {
		logger.Fatalf("manager: %v", err)
	}
	defer manager.StopAll()

	go serveMetrics(*metricsAddr, logger)

	api := &apiServer{manager: manager, logger: logger}
	server := &http.Server{Addr: *listenAddr, Handler: api.routes()}

	go func() {
		logger.Printf("HTTP API listening on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
}

// openArchive selects the archive store backend and runs its migrations.
func openArchive(ctx context.Context, useMemory bool, postgresDSN, clickhouseDSN string) (storage.AcquisitionStore, func(), error) {
	switch {
	case useMemory:
		return memory.NewAcquisitionStore(), func() {}, nil

	case postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return pgstore.NewAcquisitionStore(pool), pool.Close, nil

	default:
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return chstore.NewAcquisitionStore(conn), func() { conn.Close() }, nil
	}
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("metrics server: %v", err)
	}
}

// apiServer exposes the tracking surface over HTTP.
type apiServer struct {
	manager *tracker.Manager
	logger  *log.Logger
}

func (a *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/track", a.handleTrack)
	mux.HandleFunc("GET /api/progress", a.handleProgress)
	mux.HandleFunc("GET /api/records", a.handleRecords)
	mux.HandleFunc("GET /api/export", a.handleExport)
	mux.HandleFunc("POST /api/stop", a.handleStop)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// trackRequest is the body of POST /api/track.
type trackRequest struct {
	Token       string `json:"token"`
	StartHeight *int64 `json:"startHeight,omitempty"`
	TargetCount int64  `json:"targetCount"`
}

type trackResponse struct {
	Session string `json:"session"`
}

func (a *apiServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	handle, err := a.manager.StartTracking(r.Context(), req.Token, req.StartHeight, req.TargetCount)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidTokenIdentifier) {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, trackResponse{Session: handle})
}

func (a *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session")
	progress, err := a.manager.Progress(handle)
	if err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current":    progress.Current,
		"target":     progress.Target,
		"percentage": progress.Percentage,
		"isComplete": progress.IsComplete,
	})
}

func (a *apiServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session")
	records, err := a.manager.Records(handle)
	if err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleExport streams the flat-JSON interchange form, suitable for
// re-import.
func (a *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session")
	records, err := a.manager.Records(handle)
	if err != nil {
		a.sessionError(w, err)
		return
	}

	data, err := export.Marshal(records)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+handle+`-acquisitions.json"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session")
	if err := a.manager.StopTracking(handle); err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": handle, "state": "stopped"})
}

func (a *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session")
	status, err := a.manager.Status(handle)
	if err != nil {
		a.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *apiServer) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrSessionNotFound) {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	httpError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
