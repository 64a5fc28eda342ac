package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/quizforge/backend/internal/api/handlers"
	"github.com/quizforge/backend/internal/cache/redis"
	"github.com/quizforge/backend/internal/generation"
	"github.com/quizforge/backend/internal/ingestion"
	"github.com/quizforge/backend/internal/llm"
	"github.com/quizforge/backend/internal/metrics"
	"github.com/quizforge/backend/internal/middleware/auth"
	"github.com/quizforge/backend/internal/middleware/ratelimit"
	"github.com/quizforge/backend/internal/middleware/security"
	"github.com/quizforge/backend/internal/middleware/validation"
	"github.com/quizforge/backend/internal/objectstore"
	"github.com/quizforge/backend/internal/ocr"
	"github.com/quizforge/backend/internal/quiz"
	"github.com/quizforge/backend/internal/retrieval"
	"github.com/quizforge/backend/internal/speech"
	"github.com/quizforge/backend/internal/storage/postgres"
	"github.com/quizforge/backend/pkg/config"
	appLogger "github.com/quizforge/backend/pkg/logger"
)

func main() {
	// Local development convenience; in deployment the environment is real.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting QuizForge API server")

	db, err := postgres.NewClient(cfg.Database.DSN, cfg.Database.EmbeddingDim)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	objects, err := objectstore.NewMinioStore(
		cfg.ObjectStore.Endpoint,
		cfg.ObjectStore.AccessKey,
		cfg.ObjectStore.SecretKey,
		cfg.ObjectStore.Bucket,
		cfg.ObjectStore.UseSSL,
	)
	if err != nil {
		appLogger.Fatal("Failed to connect to object storage", zap.Error(err))
	}

	// The embedding cache is an optimization; run without it when redis is
	// unreachable.
	var embeddingCache retrieval.EmbeddingCache
	cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
	} else {
		embeddingCache = cache
	}

	aiClient := llm.NewClient(cfg.AI)
	ocrClient := ocr.NewClient(cfg.OCR.Endpoint, cfg.OCR.APIKey, cfg.OCR.TimeoutSec)

	processor := ingestion.NewProcessor(db, objects, aiClient, ocrClient, cfg.Ingestion.MaxChunkSize, cfg.Ingestion.FallbackOverlap)
	assembler := retrieval.NewAssembler(db, aiClient, embeddingCache)
	generator := generation.NewGenerator(aiClient)
	speechService := speech.NewService(aiClient)
	quizService := quiz.NewService(db, assembler, generator)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(metrics.RequestTimer())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	app.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready"})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()

	api := app.Group("/api/v1")
	api.Use(auth.Middleware(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	}))
	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
	}))

	documentHandler := handlers.NewDocumentHandler(processor, db)
	quizHandler := handlers.NewQuizHandler(quizService)
	generationHandler := handlers.NewGenerationHandler(quizService)
	gradingHandler := handlers.NewGradingHandler(quizService)
	speechHandler := handlers.NewSpeechHandler(speechService)
	wsHandler := handlers.NewWebSocketHandler(quizService)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Get("/documents/download", documentHandler.DownloadDocument)
	api.Delete("/documents", documentHandler.DeleteDocument)

	api.Post("/quizzes", quizHandler.CreateQuiz)
	api.Get("/quizzes", quizHandler.ListQuizzes)
	api.Get("/quizzes/:id", quizHandler.GetQuiz)
	api.Delete("/quizzes/:id", quizHandler.DeleteQuiz)
	api.Post("/quizzes/:id/publish", quizHandler.PublishQuiz)
	api.Post("/quizzes/:id/archive", quizHandler.ArchiveQuiz)

	api.Post("/quizzes/:id/generate", generationHandler.GenerateQuestions)
	api.Post("/quizzes/:id/questions/promote", generationHandler.PromoteQuestions)
	api.Post("/quizzes/:id/questions/essay", generationHandler.AddEssayQuestion)
	api.Get("/quizzes/:id/questions", quizHandler.ListQuestions)
	api.Delete("/questions/:questionId", quizHandler.RemoveQuestion)

	api.Post("/quizzes/:id/submissions", quizHandler.SubmitAnswers)
	api.Get("/quizzes/:id/submissions", quizHandler.ListSubmissions)
	api.Get("/submissions/:submissionId", quizHandler.GetSubmission)
	api.Post("/submissions/:submissionId/answers/:answerId/suggest", gradingHandler.SuggestGrade)
	api.Post("/submissions/:submissionId/answers/:answerId/confirm", gradingHandler.ConfirmGrade)

	api.Post("/speech/transcriptions", speechHandler.Transcribe)
	api.Post("/speech/syntheses", speechHandler.Synthesize)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/grading", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
