package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/clinical-ai-assistant/internal/adapters/mcp"
	"github.com/kirillkom/clinical-ai-assistant/internal/bootstrap"
	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	// The protocol owns stdout, so logs go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))
	log.SetOutput(os.Stderr)

	app, err := bootstrap.NewQuery(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.RetrieveUC, app.AssessUC, app.DrugInfoUC, version)
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
