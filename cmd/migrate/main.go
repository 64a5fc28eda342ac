package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/quizforge/backend/migrations"
	"github.com/quizforge/backend/pkg/config"
	appLogger "github.com/quizforge/backend/pkg/logger"
)

func main() {
	var command string
	flag.StringVar(&command, "command", "up", "goose command: up, down, status")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stdout"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		appLogger.Fatal("Failed to set dialect", zap.Error(err))
	}

	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	default:
		appLogger.Fatal("Unknown command", zap.String("command", command))
	}
	if err != nil {
		appLogger.Fatal("Migration failed", zap.String("command", command), zap.Error(err))
	}

	appLogger.Info("Migration complete", zap.String("command", command))
}
