package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sokoledger/sokoledger/internal/api/handlers"
	"github.com/sokoledger/sokoledger/internal/api/middleware"
	"github.com/sokoledger/sokoledger/internal/archive"
	"github.com/sokoledger/sokoledger/internal/dedup"
	infraBQ "github.com/sokoledger/sokoledger/internal/infra/bigquery"
	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/jobs"
	"github.com/sokoledger/sokoledger/internal/jobs/inmemory"
	"github.com/sokoledger/sokoledger/internal/jobs/redisstore"
	"github.com/sokoledger/sokoledger/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		port      = flag.String("port", "8080", "HTTP server port")
		project   = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset   = flag.String("dataset", envOr("BQ_DATASET", "sokoledger"), "BigQuery dataset ID (or set BQ_DATASET env)")
		bucket    = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for raw upload archiving (or set GCS_BUCKET env)")
		redisAddr = flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address for durable dedup/status stores (or set REDIS_ADDR env)")
		currency  = flag.String("currency", envOr("CURRENCY", "KES"), "Deployment currency code")
		workers   = flag.Int("workers", 4, "Concurrent ingestion jobs")
		chunkSize = flag.Int("chunk-size", ingest.DefaultChunkSize, "Rows per warehouse write")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	if *project == "" {
		log.Fatal().Msg("BigQuery project is required (-project or BQ_PROJECT)")
	}

	// Warehouse sink
	txStore, err := infraBQ.NewTransactionStore(ctx, *project, *dataset, 30*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	// Dedup key set and job status store. With Redis both survive restarts
	// and are shared across instances; without it the in-memory fallbacks
	// are single-process only, which is fine for local development.
	var (
		keyStore dedup.KeyStore
		jobStore jobs.JobStore
	)
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", *redisAddr).Msg("Failed to connect to Redis")
		}
		keyStore = dedup.NewRedisKeyStore(client)
		jobStore = redisstore.NewStore(client, 0)
		log.Info().Str("addr", *redisAddr).Msg("Using Redis-backed dedup and job stores")
	} else {
		keyStore = dedup.NewMemoryKeyStore()
		jobStore = inmemory.NewStore()
		log.Warn().Msg("No Redis configured - dedup and job status are in-memory only and will not survive restarts")
	}

	// Raw upload archiving is optional
	var archiver *archive.Archiver
	if *bucket != "" {
		archiver, err = archive.New(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create upload archiver")
		}
		defer archiver.Close()
	} else {
		log.Warn().Msg("No GCS bucket configured - raw uploads will not be archived")
	}

	// Job queue and runner
	jobQueue := inmemory.NewQueue(100, *workers)
	runner := ingest.NewRunner(jobStore, jobQueue, keyStore, txStore, log, ingest.Config{
		Currency:  *currency,
		ChunkSize: *chunkSize,
	})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, runner.Process); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingestion workers")
	}
	log.Info().Int("workers", *workers).Msg("Ingestion workers started")

	// Initialize handlers
	ingestHandler := handlers.NewIngestHandler(runner, jobStore, archiver, log)
	transactionsHandler := handlers.NewTransactionsHandler(txStore, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ingest/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			ingestHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ingest/status/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/ingest/status/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			ingestHandler.Status(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ingest/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			ingestHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdown(server, jobQueue, cancelWorker, log)

	log.Info().Msg("Server exited")
}

func shutdown(server *http.Server, queue *inmemory.Queue, cancelWorker context.CancelFunc, log zerolog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the queue and wait for in-flight jobs before cancelling their
	// context; a cancelled context mid-job marks the job failed.
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
