package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/invest_bot/config"
	"github.com/Fi44er/invest_bot/db"
	"github.com/Fi44er/invest_bot/internal/admin"
	"github.com/Fi44er/invest_bot/internal/bot"
	"github.com/Fi44er/invest_bot/internal/deposit"
	"github.com/Fi44er/invest_bot/internal/handler"
	"github.com/Fi44er/invest_bot/internal/repository"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/crypto/bcrypt"
)

const redisKeyPrefix = "invest:"

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		utils.InitLogger("info").Fatal("Failed to load config: ", err)
	}
	logger := utils.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer closeStore()

	rates := utils.NewRateService(cfg.RatesURL, cfg.CryptoRatesURL, logger)
	svc := service.NewService(store, logger, service.WithConverter(rates))
	sessions := session.NewRegistry(svc, store, bcrypt.DefaultCost, logger)
	svc.OnBalanceChange(sessions.SyncBalance)
	adminAuth := session.NewAdminManager(store, cfg.AdminEmail, cfg.AdminPasswordHash, logger)

	telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("Failed to create bot API: ", err)
	}
	logger.Infof("Authorized on account %s", telegramBot.Self.UserName)

	deposits := deposit.NewManager(deposit.Deps{
		Ledger: svc,
		Addresses: map[deposit.Method]string{
			deposit.MethodBitcoin:  cfg.BTCAddress,
			deposit.MethodEthereum: cfg.ETHAddress,
			deposit.MethodUSDT:     cfg.USDTAddress,
		},
		Sink:      bot.NewProofForwarder(telegramBot, svc, cfg.AdminChatID, logger),
		Converter: rates,
		Logger:    logger,
	})
	review := admin.NewReview(svc, logger)

	adminHandler := handler.NewAdminHandler(adminAuth, review, svc, handler.NewTokenIssuer(cfg.JWTSecret, 0), logger)
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(adminHandler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Infof("Starting admin API on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Admin API failed: %v", err)
			stop()
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := telegramBot.GetUpdatesChan(u)

	b := bot.NewBot(telegramBot, svc, review, sessions, deposits, cfg.AdminChatID, logger)
	b.Start(ctx, updates)

	logger.Info("Shutting down...")
	telegramBot.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Admin API forced to shutdown: %v", err)
	}
	logger.Info("Exited gracefully")
}

// openStore connects the configured record store backend.
func openStore(ctx context.Context, cfg config.Config, logger *utils.Logger) (service.BlobStore, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		database, err := db.ConnectDb(cfg.DB_URL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(database, true, logger); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := database.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewRepository(database, logger), closeFn, nil

	case config.StorageRedis:
		client, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisBlobRepository(client, redisKeyPrefix, logger), func() { _ = client.Close() }, nil

	case config.StorageMemory:
		logger.Warn("Using in-memory storage, records are lost on restart")
		return repository.NewMemoryBlobRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
}
