package main

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-reminder-bot/internal/adapters/telegram"
	"task-reminder-bot/internal/adapters/tracker"
	"task-reminder-bot/internal/infra/config"
	"task-reminder-bot/internal/infra/log"
	"task-reminder-bot/internal/usecase/broadcast"
	"task-reminder-bot/internal/usecase/directory"
)

// Разовая рассылка учётных данных всем подписанным пользователям.
func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	apiClient, err := tracker.New(tracker.Config{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		ServiceLogin:    cfg.API.ServiceLogin,
		ServicePassword: cfg.API.ServicePassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиент трекера")
	}
	dir := directory.New(apiClient, logger, cfg.Directory.RefreshInterval)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)
	svc := broadcast.NewService(dir, sender, logger, cfg.Broadcast.BatchSize)

	if _, err := svc.SendCredentials(context.Background(), true); err != nil {
		logger.Fatal().Err(err).Msg("рассылка учётных данных не выполнена")
	}
}
