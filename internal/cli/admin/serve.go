package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/recall-labs/recallai/internal/api/handlers"
	"github.com/recall-labs/recallai/internal/config"
	"github.com/recall-labs/recallai/internal/database"
	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/embedding"
	"github.com/recall-labs/recallai/internal/jobs"
	recallopenai "github.com/recall-labs/recallai/internal/openai"
	"github.com/recall-labs/recallai/internal/repository"
	"github.com/recall-labs/recallai/internal/research"
	"github.com/recall-labs/recallai/internal/server"
	"github.com/recall-labs/recallai/internal/service"
	"github.com/recall-labs/recallai/internal/storage"
	"github.com/recall-labs/recallai/internal/store"
	"github.com/recall-labs/recallai/internal/telemetry"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the recall API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	var embedSvc *embedding.Service
	var llm service.LanguageModel
	if cfg.HasOpenAI() {
		embedClient := recallopenai.NewEmbeddingAdapter(cfg.OpenAIAPIKey, openai.EmbeddingModel(cfg.EmbeddingModel))
		embedSvc = embedding.NewService(embedClient, embedding.Config{
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
		})

		chatModel := cfg.ChatModel
		if chatModel == "" {
			chatModel = recallopenai.DefaultChatModel
		}
		llm = recallopenai.NewChatAdapter(cfg.OpenAIAPIKey, chatModel)
	} else {
		log.Println("OPENAI_API_KEY not set: generation disabled, search degrades to keyword matching")
		llm = &noOpLanguageModel{}
	}

	var storeEmbedder store.Embedder
	if embedSvc != nil {
		storeEmbedder = embedSvc
	}
	memories := store.NewChunkStore(store.Config{
		ChunkSourcePaths:   cfg.ChunkSourcePaths,
		EmbeddingsPath:     cfg.EmbeddingsPath,
		InteractionLogPath: cfg.InteractionLogPath,
		MinEmbeddingsWarn:  cfg.MinEmbeddingsWarn,
	}, storeEmbedder)
	defer memories.Close()

	var indexRepo *repository.ChunkIndexRepository
	var graph store.GraphEdgeWriter
	if cfg.HasDatabase() {
		if embedSvc != nil {
			if err := validateIndexDimensions(cfg.EmbeddingModel, cfg.EmbeddingDimensions); err != nil {
				return err
			}
		}
		pool, err := database.NewPool(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		log.Println("connected to database")

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		indexRepo = repository.NewChunkIndexRepository(pool)
		edgeRepo := repository.NewMemoryEdgeRepository(pool)
		graph = edgeRepo
		memories.SetGraphWriter(edgeRepo)
	}

	var backfillWorker *jobs.Worker
	if embedSvc != nil {
		processor := jobs.NewBackfillWorker(memories, embedSvc, jobs.DefaultBatchLimit)
		if indexRepo != nil {
			processor = processor.WithIndex(indexRepo)
		}
		backfillWorker = jobs.NewWorker(processor, 10*time.Second)
		go backfillWorker.Start(ctx)
		log.Println("embedding backfill worker started")
	}

	var pipelineEmbedder service.Embedder
	if embedSvc != nil {
		pipelineEmbedder = embedSvc
	} else {
		pipelineEmbedder = &noOpEmbedder{}
	}
	pipeline := service.NewContextPipeline(memories, pipelineEmbedder, llm)

	governance := research.NewModelGovernance(llm)
	orchestratorCfg := research.DefaultConfig()
	if cfg.ResearchTargetSources > 0 {
		orchestratorCfg.TargetSources = cfg.ResearchTargetSources
	}
	if cfg.ResearchBatchSize > 0 {
		orchestratorCfg.BatchSize = cfg.ResearchBatchSize
	}
	orchestrator := research.NewOrchestratorWithConfig(memories, governance, llm, graph, orchestratorCfg)

	var archiver handlers.WorkspaceArchiver
	if cfg.HasS3() {
		s3Client, err := storage.NewArchiveClient(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archiver = s3Client
	}

	routerCfg := server.RouterConfig{
		APIKey:          cfg.APIKey,
		MemoryHandler:   handlers.NewMemoryHandler(memories),
		AskHandler:      handlers.NewAskHandler(pipeline),
		ResearchHandler: handlers.NewResearchHandler(orchestrator, archiver),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// noOpLanguageModel rejects generation when no provider is configured.
type noOpLanguageModel struct{}

func (m *noOpLanguageModel) Generate(ctx context.Context, systemPrompt, userPrompt string, opts recallopenai.GenerateOptions) (string, error) {
	return "", domain.NewDomainError(domain.ErrCodeStageFailure, "language model not configured: OPENAI_API_KEY required")
}

// noOpEmbedder degrades salience scoring to lexical order.
type noOpEmbedder struct{}

func (e *noOpEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.NewDomainError(domain.ErrCodeStageFailure, "embedding provider not configured: OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", versionErr)
	}

	msg, err := migrationOutcome(upErr, versionErr, version, dirty)
	if err != nil {
		return err
	}
	log.Println(msg)

	return nil
}

// migrationOutcome reports the post-migration state. The up-to-date case comes
// from m.Up returning ErrNoChange; m.Version signals only a missing schema via
// ErrNilVersion.
func migrationOutcome(upErr, versionErr error, version uint, dirty bool) (string, error) {
	if versionErr == migrate.ErrNilVersion {
		return "migrations: database is up to date (no migrations applied)", nil
	}
	if dirty {
		return "", fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}
	if upErr == migrate.ErrNoChange {
		return fmt.Sprintf("migrations: database is up to date (version %d)", version), nil
	}
	return fmt.Sprintf("migrations: applied successfully (version %d)", version), nil
}

// indexVectorDimensions matches the vector column width declared in
// migrations/000001_init.up.sql. pgvector rejects other sizes at insert time,
// so a mismatch fails startup instead of the first index upsert.
const indexVectorDimensions = 1536

func validateIndexDimensions(model string, dimensions int) error {
	if dimensions <= 0 {
		dimensions = recallopenai.ModelDimensions(model)
	}
	if dimensions != indexVectorDimensions {
		return fmt.Errorf(
			"embedding dimension %d does not fit the vector(%d) index column; use a %d-dimension embedding model or unset DATABASE_URL",
			dimensions, indexVectorDimensions, indexVectorDimensions)
	}
	return nil
}
