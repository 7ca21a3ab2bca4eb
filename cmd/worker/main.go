package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sokoledger/sokoledger/internal/dedup"
	"github.com/sokoledger/sokoledger/internal/domain"
	infraBQ "github.com/sokoledger/sokoledger/internal/infra/bigquery"
	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/jobs"
	"github.com/sokoledger/sokoledger/internal/jobs/inmemory"
	"github.com/sokoledger/sokoledger/internal/jobs/redisstore"
	"github.com/sokoledger/sokoledger/internal/logger"
)

// The worker watches an inbox directory for CSV drops. Each file is submitted
// as an ingestion job and then moved to processed/ or failed/ next to the
// inbox, so a crash between poll cycles re-reads at most files that ingestion
// already handles idempotently.
func main() {
	var (
		inbox     = flag.String("inbox", "./inbox", "Directory to watch for CSV files")
		tenantID  = flag.String("tenant", os.Getenv("TENANT_ID"), "Tenant ID for ingested files (or set TENANT_ID env)")
		source    = flag.String("source", "generic", "Source type: generic, mobile_money or point_of_sale")
		interval  = flag.Duration("interval", 30*time.Second, "Poll interval")
		project   = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset   = flag.String("dataset", envOr("BQ_DATASET", "sokoledger"), "BigQuery dataset ID (or set BQ_DATASET env)")
		redisAddr = flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address (or set REDIS_ADDR env)")
		currency  = flag.String("currency", envOr("CURRENCY", "KES"), "Deployment currency code")
		workers   = flag.Int("workers", 2, "Concurrent ingestion jobs")
	)
	flag.Parse()

	log := logger.New()

	if *tenantID == "" {
		log.Fatal().Msg("Tenant ID is required (-tenant or TENANT_ID)")
	}
	if *project == "" {
		log.Fatal().Msg("BigQuery project is required (-project or BQ_PROJECT)")
	}

	sourceType, err := domain.ParseSourceType(*source)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid source type")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	txStore, err := infraBQ.NewTransactionStore(ctx, *project, *dataset, 30*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

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
	} else {
		keyStore = dedup.NewMemoryKeyStore()
		jobStore = inmemory.NewStore()
		log.Warn().Msg("No Redis configured - dedup state resets on restart")
	}

	jobQueue := inmemory.NewQueue(100, *workers)
	runner := ingest.NewRunner(jobStore, jobQueue, keyStore, txStore, log, ingest.Config{
		Currency: *currency,
	})

	if err := jobQueue.Start(ctx, runner.Process); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingestion workers")
	}

	processedDir := filepath.Join(*inbox, "processed")
	failedDir := filepath.Join(*inbox, "failed")
	for _, dir := range []string{*inbox, processedDir, failedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create directory")
		}
	}

	log.Info().
		Str("inbox", *inbox).
		Str("tenant_id", *tenantID).
		Str("source", string(sourceType)).
		Dur("interval", *interval).
		Msg("Worker started, watching inbox")

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		pollInbox(ctx, runner, log, *inbox, processedDir, failedDir, *tenantID, sourceType)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollInbox(ctx, runner, log, *inbox, processedDir, failedDir, *tenantID, sourceType)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	cancel()
	<-pollDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker exited")
}

func pollInbox(ctx context.Context, runner *ingest.Runner, log zerolog.Logger, inbox, processedDir, failedDir, tenantID string, source domain.SourceType) {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		log.Error().Err(err).Str("inbox", inbox).Msg("Failed to read inbox")
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}

		path := filepath.Join(inbox, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to read file")
			continue
		}

		job, err := runner.Submit(ctx, tenantID, source, raw)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("File rejected, moving to failed")
			moveFile(log, path, failedDir)
			continue
		}

		log.Info().
			Str("file", path).
			Str("job_id", job.JobID).
			Int("rows_submitted", job.RowsSubmitted).
			Msg("File submitted for ingestion")
		moveFile(log, path, processedDir)
	}
}

func moveFile(log zerolog.Logger, path, destDir string) {
	dest := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Error().Err(err).Str("file", path).Str("dest", dest).Msg("Failed to move file")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
