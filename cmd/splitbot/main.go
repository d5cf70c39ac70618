package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/tanweijie/splitbot/internal/api"
	"github.com/tanweijie/splitbot/internal/bill"
	"github.com/tanweijie/splitbot/internal/bot"
	"github.com/tanweijie/splitbot/internal/config"
	"github.com/tanweijie/splitbot/internal/dispatch"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// All session state is in-memory and scoped to process uptime
	bills := bill.NewService()
	dispatcher := dispatch.New(bills)

	// Initialize Telegram bot
	telegramBot, err := bot.New(cfg.BotToken, bills, dispatcher)
	if err != nil {
		log.Fatalf("Failed to create telegram bot: %v", err)
	}

	// Initialize status API server
	apiServer := api.New(cfg, bills)

	// Start Telegram bot
	telegramBot.Start()
	defer telegramBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Errorf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
}
