package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dashboardCfg := service.DashboardConfig{
		FMPAPIKey:       cfg.FMPAPIKey,
		ListenAddr:      cfg.ListenAddr,
		HistoryLimit:    cfg.HistoryLimit,
		LongAnchorDays:  cfg.LongAnchorDays,
		ShortAnchorDays: cfg.ShortAnchorDays,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		Cancel:          cancel,
	}
	dashboard, err := service.NewDashboard(&dashboardCfg)
	if err != nil {
		log.Printf("creating dashboard service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	dashboard.Run(ctx)
}
