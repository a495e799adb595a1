package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"cryptoBiasBot/config"
	"cryptoBiasBot/internal/adapters/binanceclient"
	"cryptoBiasBot/internal/adapters/logger"
	"cryptoBiasBot/internal/adapters/sqlite"
	"cryptoBiasBot/internal/adapters/telegram"
	"cryptoBiasBot/internal/engine"
	"cryptoBiasBot/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		appLogger = logger.NewZeroLogger(os.Stderr, cfg.LogLevel)
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Seed per-symbol presets into the config repository
	presets, err := config.LoadPresets(cfg.PresetsDir)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load coin presets")
		log.Fatalf("FATAL: Failed to load coin presets: %v", err)
	}
	configRepo := repo.Configs()
	for _, preset := range presets {
		if err := configRepo.Upsert(context.Background(), preset); err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to seed coin preset", map[string]interface{}{"symbol": preset.Symbol})
			log.Fatalf("FATAL: Failed to seed coin preset for %s: %v", preset.Symbol, err)
		}
	}
	appLogger.Info(context.Background(), "Coin presets seeded", map[string]interface{}{"count": len(presets)})

	// 5. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BookDepthLimit:       cfg.BookDepthLimit,
		BookWindowSize:       cfg.BookWindowSize,
		LiquidationRetention: cfg.LiquidationRetention,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 6. Initialize Notifier
	var notifier ports.Notifier = telegram.NewVoid()
	if cfg.TelegramToken != "" {
		notifier, err = telegram.New(telegram.Config{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		appLogger.Info(context.Background(), "Telegram notifier initialized")
	} else {
		appLogger.Info(context.Background(), "Telegram not configured, notifications disabled")
	}

	// 7. Initialize Engine
	biasEngine, err := engine.New(
		engine.Config{
			EvalInterval:      cfg.EvalInterval,
			FetchTimeout:      cfg.FetchTimeout,
			CandleLimit:       cfg.CandleLimit,
			HigherCandleLimit: cfg.HigherCandleLimit,
			QuoteAsset:        cfg.QuoteAsset,
			MaxCloseAttempts:  cfg.MaxCloseAttempts,
		},
		appLogger,
		binanceClient,
		binanceClient,
		configRepo,
		repo.Analyses(),
		repo.Positions(),
		notifier,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}
	appLogger.Info(context.Background(), "Engine initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. Start liquidation streams for the enabled symbols
	enabled, err := configRepo.FindEnabled(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load enabled symbols")
		log.Fatalf("FATAL: Failed to load enabled symbols: %v", err)
	}
	for _, coin := range enabled {
		binanceClient.StartLiquidationStream(ctx, coin.Symbol)
	}

	// 9. Start the Engine
	if err := biasEngine.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Engine exited with error")
		log.Fatalf("FATAL: Engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
