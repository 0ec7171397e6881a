package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/prepview/backend/config"
	"github.com/prepview/backend/internal/api/handlers"
	"github.com/prepview/backend/internal/api/middleware"
	"github.com/prepview/backend/internal/api/routes"
	"github.com/prepview/backend/internal/cache"
	"github.com/prepview/backend/internal/logger"
	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/providers/analysis"
	"github.com/prepview/backend/internal/providers/call"
	"github.com/prepview/backend/internal/queue"
	mongorepo "github.com/prepview/backend/internal/repositories/mongo"
	pgrepo "github.com/prepview/backend/internal/repositories/postgres"
	"github.com/prepview/backend/internal/services"
	"github.com/prepview/backend/internal/storage"
	"github.com/prepview/backend/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()
	ctx := context.Background()

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	l.Info("PostgreSQL connected")

	// Init MongoDB (analysis diagnostics archive)
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	l.Info("MongoDB connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("Redis connected")

	// Repositories
	sessionRepo := pgrepo.NewSessionRepo(config.PostgresDB)
	recordingRepo := pgrepo.NewRecordingRepo(config.PostgresDB)
	feedbackRepo := pgrepo.NewFeedbackRepo(config.PostgresDB)
	artifactRepo := mongorepo.NewArtifactRepo(config.MongoDatabase(), 30*24*time.Hour)

	rcache := cache.NewRedisCache(config.RedisClient)
	q := queue.NewRedisQueue(config.RedisClient, "")

	// Providers
	callProvider, err := call.NewTavusFromEnv()
	if err != nil {
		log.Fatalf("call provider init error: %v", err)
	}
	defer callProvider.Close()

	analysisProvider, err := analysis.NewVertexGemini(ctx,
		os.Getenv("GCP_PROJECT_ID"),
		os.Getenv("GCP_LOCATION"),
		os.Getenv("ANALYSIS_MODEL"),
	)
	if err != nil {
		log.Fatalf("analysis provider init error: %v", err)
	}
	defer analysisProvider.Close()

	var archiver storage.Uploader
	if bucket := os.Getenv("RECORDINGS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		archiver = gcs
	}

	// Services
	governor := services.NewGovernor(time.Second, rcache, l)
	interviewSvc := services.NewInterviewService(sessionRepo, recordingRepo, feedbackRepo, callProvider, governor, l)
	governor.SetTimeoutFunc(func(ctx context.Context, sessionID string) {
		if _, err := interviewSvc.End(ctx, sessionID, models.EndCauseTimeout); err != nil {
			l.WithError(err).WithField("session_id", sessionID).Warn("timeout end failed")
		}
	})

	webhookSvc := services.NewWebhookService(
		sessionRepo, recordingRepo, interviewSvc,
		rcache, q, os.Getenv("WEBHOOK_SECRET"), l,
	)
	analysisSvc := services.NewAnalysisService(
		sessionRepo, recordingRepo, feedbackRepo, artifactRepo,
		analysisProvider, archiver, l,
	)

	// Analysis worker pool
	pool := &workers.AnalysisWorkerPool{
		Redis:    config.RedisClient,
		Analysis: analysisSvc,
		Logger:   l,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("worker pool start error: %v", err)
	}

	// Start Gin server
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Interview: handlers.NewInterviewHandler(interviewSvc, analysisSvc),
		Webhook:   handlers.NewWebhookHandler(webhookSvc),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
