// vectorizer-worker runs the queue-driven embedding pipeline: it polls
// vectorizers for pending queue rows and exposes the small HTTP surface
// an external timer and operator tooling use to trigger and manage them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/timescale/pgvectorizer/pkg/chunking"
	"github.com/timescale/pgvectorizer/pkg/config"
	"github.com/timescale/pgvectorizer/pkg/embedprovider"
	"github.com/timescale/pgvectorizer/pkg/formatting"
	"github.com/timescale/pgvectorizer/pkg/loader"
	"github.com/timescale/pgvectorizer/pkg/parsing"
	"github.com/timescale/pgvectorizer/pkg/provisioner"
	"github.com/timescale/pgvectorizer/pkg/queue"
	"github.com/timescale/pgvectorizer/pkg/registry"
	"github.com/timescale/pgvectorizer/pkg/secret"
	"github.com/timescale/pgvectorizer/pkg/vconfig"
	"github.com/timescale/pgvectorizer/pkg/vdb"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
	"github.com/timescale/pgvectorizer/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	// A create_vectorizer request with a misspelled top-level field (e.g.
	// "soruce_table") fails the bind instead of silently zero-valuing it.
	binding.EnableDecoderDisallowUnknownFields = true

	configPath := flag.String("config", getEnv("CONFIG_PATH", "./deploy/config"), "Path to configuration file or directory")
	flag.Parse()

	envPath := getEnv("ENV_FILE", "")
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("warning: could not load %s: %v", envPath, err)
		}
	}

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := vdb.NewClient(ctx, vdb.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	reg := registry.New(db.Pool)
	resolver := secret.NewSessionCache(secret.NewPostgresResolver(db.Pool))

	podID := getEnv("POD_ID", "vectorizer-worker")
	workerID, err := reg.Start(ctx, getVersion(), cfg.Queue.HeartbeatInterval)
	if err != nil {
		log.Fatalf("failed to register worker process: %v", err)
	}
	reporter := registry.NewWorkerReporter(reg, workerID)

	prune := registry.NewPruneService(db.Pool, cfg.Queue.OrphanThreshold*10, time.Hour)
	prune.Start(ctx)
	defer prune.Stop()

	runner := &passRunner{
		pool:     db.Pool,
		resolver: resolver,
		cfg:      cfg.Queue,
	}

	pool := queue.NewWorkerPool(podID, queue.Config{
		WorkerCount:        cfg.Queue.WorkerCount,
		BatchSize:          cfg.Queue.BatchSize,
		MaxRetries:         cfg.Queue.MaxRetries,
		PollInterval:       cfg.Queue.PollInterval,
		PollIntervalJitter: cfg.Queue.PollIntervalJitter,
		HeartbeatInterval:  cfg.Queue.HeartbeatInterval,
		EmbedConcurrency:   cfg.Queue.EmbedConcurrency,
	}, reg, runner, func(string) queue.ProgressReporter { return reporter })
	pool.Start(ctx)
	defer pool.Stop()

	prov := provisioner.New(db.Pool, db, provisioner.NoopScheduleRegistrar{}, cfg.Database.User)

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		status, err := db.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status.Status, "pool": pool.Health()})
	})

	router.POST("/vectorizers/:id/execute", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vectorizer id"})
			return
		}
		result, err := queue.ExecuteVectorizer(c.Request.Context(), reg, runner, id, queue.ExecuteOptions{
			BatchSize:  cfg.Queue.BatchSize,
			MaxRetries: cfg.Queue.MaxRetries,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/vectorizers", func(c *gin.Context) {
		var spec vectorizer.CreateVectorizerSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, warnings, err := prov.CreateVectorizer(c.Request.Context(), spec)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"vectorizer": v, "warnings": warnings})
	})

	router.DELETE("/vectorizers/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vectorizer id"})
			return
		}
		if err := prov.DropVectorizer(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		slog.Info("vectorizer-worker listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down vectorizer-worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func getVersion() string {
	return getEnv("VECTORIZER_WORKER_VERSION", version.Full())
}

// passRunner implements pkg/queue.PassRunner, building a Pass's provider
// set from a vectorizer's own config document at pass-construction time,
// since each vectorizer may name a different embedding backend.
type passRunner struct {
	pool     *pgxpool.Pool
	resolver *secret.SessionCache
	cfg      *config.QueueConfig
}

func (r *passRunner) NewPass(v *vectorizer.Vectorizer) (*queue.Pass, error) {
	apiKey, err := r.resolveEmbeddingKey(v.Config.Embedding)
	if err != nil {
		return nil, fmt.Errorf("resolving embedding api key: %w", err)
	}

	embedder, err := embedprovider.New(v.Config.Embedding, apiKey, http.DefaultClient, embedprovider.NewPgxBatchPool(r.pool))
	if err != nil {
		return nil, err
	}

	providers := queue.Providers{
		Loader:    loader.New(nil, 5*time.Minute),
		Parser:    parsing.New(),
		Chunker:   chunking.New(),
		Formatter: formatting.New(),
		Embedder:  embedder,
	}

	return queue.NewPassWithConcurrency(r.pool, v, providers, r.cfg.BatchSize, r.cfg.MaxRetries, r.cfg.EmbedConcurrency), nil
}

// resolveEmbeddingKey resolves the embedding provider's api key through
// the injected SecretResolver, keyed by the config's api_key_name with a
// per-implementation default secret name fallback (spec.md §6's
// SecretResolver.resolve(literal?, name?, default_name)).
func (r *passRunner) resolveEmbeddingKey(cfg vconfig.EmbeddingConfig) (string, error) {
	if cfg.Implementation == vconfig.EmbeddingOllama {
		return "", nil
	}
	defaultName := strings.ToUpper(string(cfg.Implementation)) + "_API_KEY"
	return r.resolver.Resolve(context.Background(), "", cfg.APIKeyName, defaultName)
}
