package main

import (
	"context"
	"log"
	"os"
	"time"

	"smartdesk/internal/api"
	"smartdesk/internal/auth"
	"smartdesk/internal/config"
	"smartdesk/internal/monitor"
	"smartdesk/internal/redis"
	"smartdesk/internal/service/ai"
	"smartdesk/internal/service/assistant"
	"smartdesk/internal/service/chat"
	"smartdesk/internal/service/search"
	"smartdesk/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("SMARTDESK_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("SMARTDESK_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	assistantService := assistant.NewService(db)
	authService := auth.NewService(db, rdb, 24*time.Hour)

	aiService, err := ai.NewService(context.Background(), cfg, cfg.Pipeline.Provider, cfg.Pipeline.Model)
	if err != nil {
		log.Fatalf("init ai service: %v", err)
	}
	searchService, err := search.NewService(cfg)
	if err != nil {
		log.Fatalf("init search service: %v", err)
	}

	pipeline := chat.NewPipeline(assistantService, aiService, searchService, cfg.Pipeline.PersistApologyReply)

	articleCache := monitor.NewArticleCache(rdb)
	newsMonitor := monitor.New(assistantService, searchService, articleCache, monitor.Options{
		Interval:   time.Duration(cfg.BasicConfig.NewsRefreshMinutes) * time.Minute,
		MinWorkers: cfg.BasicConfig.MinWorkers,
		MaxWorkers: cfg.BasicConfig.MaxWorkers,
		WorkerIdle: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	newsMonitor.Start()
	defer newsMonitor.Stop()

	handlers := api.NewHandler(assistantService, authService, pipeline, searchService, articleCache)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
