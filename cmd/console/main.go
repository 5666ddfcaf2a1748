package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/console"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	client := console.NewClient(cfg.APIBaseURL, cfg.APIKey)

	program := tea.NewProgram(console.New(client), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "console error: %v\n", err)
		os.Exit(1)
	}
}
