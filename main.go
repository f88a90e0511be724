package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"agentsandbox_back/agents"
	"agentsandbox_back/cache"
	"agentsandbox_back/llm"
	"agentsandbox_back/rag"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func corsConfig() cors.Config {
	origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS"))
	if origins == "" {
		origins = "http://localhost:3000"
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = strings.Split(origins, ",")
	for i := range cfg.AllowOrigins {
		cfg.AllowOrigins[i] = strings.TrimSpace(cfg.AllowOrigins[i])
	}
	cfg.AllowCredentials = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cfg
}

func main() {
	mustLoadEnv()

	db, err := agents.OpenDatabaseFromEnv()
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	embedClient, err := rag.NewEmbeddingClientFromEnv()
	if err != nil {
		log.Fatalf("configure embedding client: %v", err)
	}

	var store rag.Store
	if agents.IsPostgres() {
		pg, err := rag.NewPGStore(db, embedClient.Dimensions())
		if err != nil {
			log.Fatalf("configure vector store: %v", err)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate vector store: %v", err)
		}
		store = pg
	} else {
		// Without PostgreSQL there is no pgvector; vectors live in memory
		// and do not survive a restart.
		log.Printf("vector store: using in-memory store, knowledge bases are not persisted")
		store = rag.NewMemoryStore(embedClient.Dimensions())
	}

	var embedder rag.Embedder = embedClient
	if cache.Enabled() {
		redisClient, _ := cache.Client()
		embedder = rag.NewCachedEmbedder(embedClient, redisClient, embedClient.ModelID(), 0)
		log.Printf("embedding cache: redis enabled")
	}

	pipeline := rag.NewPipeline(embedder, store, rag.PipelineConfigFromEnv())

	chatClient, err := llm.NewChatClientFromEnv()
	if err != nil {
		log.Fatalf("configure chat client: %v", err)
	}

	r := gin.Default()
	r.Use(cors.New(corsConfig()))

	if _, err := agents.RegisterRoutes(r, db, store); err != nil {
		log.Fatalf("register agent routes: %v", err)
	}
	if _, err := rag.RegisterRoutes(r, pipeline); err != nil {
		log.Fatalf("register rag routes: %v", err)
	}
	if _, err := llm.RegisterRoutes(r, db, chatClient, pipeline); err != nil {
		log.Fatalf("register chat routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
