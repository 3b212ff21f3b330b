package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goodstewards/internal/config"
	"goodstewards/internal/handler"
	"goodstewards/internal/infrastructure/cache"
	"goodstewards/internal/infrastructure/database"
	"goodstewards/internal/infrastructure/extraction"
	"goodstewards/internal/infrastructure/mq"
	"goodstewards/internal/infrastructure/storage"
	"goodstewards/internal/job"
	"goodstewards/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)

	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	store, err := storage.NewLocalStore(cfg.Storage.BaseDir, cfg.Storage.BaseURL)
	if err != nil {
		log.Fatalf("failed to init image storage: %v", err)
	}

	extractor, err := extraction.NewGemini(cfg.Extraction.APIKey, cfg.Extraction.Model)
	if err != nil {
		log.Fatalf("failed to init extractor: %v", err)
	}
	defer extractor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	timeoutJob := job.NewProcessingTimeoutJob(db, cfg)
	go timeoutJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, store, extractor)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	log.Println("server stopped")
}
