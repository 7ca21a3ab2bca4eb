package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sokoledger/sokoledger/internal/dedup"
	"github.com/sokoledger/sokoledger/internal/domain"
	infraBQ "github.com/sokoledger/sokoledger/internal/infra/bigquery"
	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/jobs/inmemory"
	"github.com/sokoledger/sokoledger/internal/logger"
)

// One-shot ingestion of a local CSV file, for sample loading and backfills.
func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	var (
		file      = flag.String("file", "", "Path to the CSV file to ingest")
		tenantID  = flag.String("tenant", os.Getenv("TENANT_ID"), "Tenant ID (or set TENANT_ID env)")
		source    = flag.String("source", "generic", "Source type: generic, mobile_money or point_of_sale")
		project   = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset   = flag.String("dataset", envOr("BQ_DATASET", "sokoledger"), "BigQuery dataset ID (or set BQ_DATASET env)")
		redisAddr = flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address for shared dedup state (optional)")
		currency  = flag.String("currency", envOr("CURRENCY", "KES"), "Deployment currency code")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}
	if *tenantID == "" {
		log.Fatal().Msg("Error: -tenant is required")
	}
	if *project == "" {
		log.Fatal().Msg("Error: -project is required")
	}

	sourceType, err := domain.ParseSourceType(*source)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid source type")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read file")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	txStore, err := infraBQ.NewTransactionStore(ctx, *project, *dataset, 30*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction store")
	}
	defer txStore.Close()

	// Without Redis the dedup set lives only for this run, so repeat
	// invocations against the same file will re-insert its rows.
	var keyStore dedup.KeyStore
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", *redisAddr).Msg("Failed to connect to Redis")
		}
		keyStore = dedup.NewRedisKeyStore(client)
	} else {
		keyStore = dedup.NewMemoryKeyStore()
		log.Warn().Msg("No Redis configured - duplicate suppression is limited to this run")
	}

	jobStore := inmemory.NewStore()
	runner := ingest.NewRunner(jobStore, nil, keyStore, txStore, log, ingest.Config{
		Currency: *currency,
	})

	log.Info().Str("file", *file).Str("tenant_id", *tenantID).Msg("Starting ingestion")

	job, err := runner.Run(ctx, *tenantID, sourceType, raw)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Ingestion completed: %d accepted, %d rejected, %d duplicate of %d submitted.\n",
		job.RowsAccepted, job.RowsRejected, job.RowsDuplicate, job.RowsSubmitted)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
