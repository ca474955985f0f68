// text-to-sql-agent exposes the iterative retrieval-and-tool-calling loop
// over the semantic catalog that turns a natural-language question into a
// validated SQL statement.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/timescale/pgvectorizer/pkg/agent"
	"github.com/timescale/pgvectorizer/pkg/catalog"
	"github.com/timescale/pgvectorizer/pkg/chatprovider"
	"github.com/timescale/pgvectorizer/pkg/config"
	"github.com/timescale/pgvectorizer/pkg/embedprovider"
	"github.com/timescale/pgvectorizer/pkg/secret"
	"github.com/timescale/pgvectorizer/pkg/sqlvalidator"
	"github.com/timescale/pgvectorizer/pkg/vconfig"
	"github.com/timescale/pgvectorizer/pkg/vdb"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

type askRequest struct {
	Question    string   `json:"question" binding:"required"`
	CatalogName string   `json:"catalog_name"`
	SearchPath  []string `json:"search_path"`
}

func main() {
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

	providerCfg, ok := cfg.LLMProviders[cfg.Agent.DefaultProvider]
	if !ok {
		log.Fatalf("no llm_providers entry named %q (agent.default_provider)", cfg.Agent.DefaultProvider)
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

	resolver := secret.NewSessionCache(secret.NewPostgresResolver(db.Pool))
	apiKey, err := resolver.Resolve(ctx, "", "", providerCfg.APIKeyEnv)
	if err != nil {
		log.Fatalf("failed to resolve chat provider api key: %v", err)
	}

	httpClient := &http.Client{Timeout: providerCfg.Timeout}
	if providerCfg.Timeout <= 0 {
		httpClient.Timeout = 60 * time.Second
	}
	chatClient, err := chatprovider.New(providerCfg.Provider, apiKey, providerCfg.BaseURL, httpClient)
	if err != nil {
		log.Fatalf("failed to build chat provider %q: %v", providerCfg.Provider, err)
	}

	embedCfg, ok := cfg.LLMProviders["embedding"]
	if !ok {
		log.Fatalf("no llm_providers entry named %q for catalog embedding", "embedding")
	}
	embedKey, err := resolver.Resolve(ctx, "", "", embedCfg.APIKeyEnv)
	if err != nil {
		log.Fatalf("failed to resolve embedding provider api key: %v", err)
	}
	embedder, err := embedprovider.New(vconfig.EmbeddingConfig{
		Implementation: vconfig.EmbeddingImplementation(embedCfg.Provider),
		Model:          embedCfg.Model,
		BaseURL:        embedCfg.BaseURL,
	}, embedKey, http.DefaultClient, nil)
	if err != nil {
		log.Fatalf("failed to build embedding provider: %v", err)
	}
	catalogEmbedder := embedprovider.CatalogAdapter{Provider: embedder}

	identifier := catalog.NewPgNativeIdentifier(db.Pool)
	cat := catalog.New(db.Pool, identifier, catalogEmbedder, embedCfg.Model)
	validator := sqlvalidator.New(db.Pool)

	loop := &agent.Loop{
		Retriever: agent.CatalogRetriever{Catalog: cat},
		Embedder:  catalogEmbedder,
		Chat:      chatClient,
		Validator: validator,
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		status, err := db.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status.Status})
	})

	router.POST("/ask", func(c *gin.Context) {
		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reqCtx, cancel := context.WithTimeout(c.Request.Context(), cfg.Agent.CallTimeout*time.Duration(cfg.Agent.MaxIterations))
		defer cancel()

		answer, err := loop.Run(reqCtx, agent.Request{
			Question:      req.Question,
			SearchPath:    req.SearchPath,
			EmbedModel:    embedCfg.Model,
			ChatModel:     providerCfg.Model,
			MaxIter:       cfg.Agent.MaxIterations,
			MaxResults:    cfg.Agent.MaxResults,
			MaxVectorDist: cfg.Agent.MaxVectorDist,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, answer)
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		slog.Info("text-to-sql-agent listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down text-to-sql-agent")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

