package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/adapters/bot"
	"task-reminder-bot/internal/adapters/state"
	"task-reminder-bot/internal/adapters/telegram"
	"task-reminder-bot/internal/adapters/tracker"
	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/config"
	"task-reminder-bot/internal/infra/db"
	httpinfra "task-reminder-bot/internal/infra/http"
	"task-reminder-bot/internal/infra/log"
	"task-reminder-bot/internal/infra/metrics"
	"task-reminder-bot/internal/usecase/broadcast"
	"task-reminder-bot/internal/usecase/directory"
	"task-reminder-bot/internal/usecase/notifier"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	apiClient, err := tracker.New(tracker.Config{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		ServiceLogin:    cfg.API.ServiceLogin,
		ServicePassword: cfg.API.ServicePassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиент трекера")
	}

	ctx := context.Background()
	store, closeStore, err := buildStateStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключить журнал уведомлений")
	}
	defer closeStore()
	if err := store.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось инициализировать журнал уведомлений")
	}

	dir := directory.New(apiClient, logger, cfg.Directory.RefreshInterval)
	if _, err := dir.Refresh(ctx, true); err != nil {
		logger.Fatal().Err(err).Msg("не удалось загрузить каталог пользователей")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)
	handler := bot.NewHandler(botAPI, logger, dir, apiClient)

	notifierSvc := notifier.NewService(apiClient, dir, sender, store, logger, notifier.Config{
		PollInterval:        cfg.Notifier.PollInterval,
		DeadlineWindowHours: cfg.Notifier.DeadlineWindowHours,
		TaskURLTemplate:     cfg.Notifier.TaskURLTemplate,
		DailyReminderHour:   cfg.Notifier.DailyReminderHour,
		DailyReminderMinute: cfg.Notifier.DailyReminderMinute,
	})
	broadcastSvc := broadcast.NewService(dir, sender, logger, cfg.Broadcast.BatchSize)

	if cfg.Broadcast.ServerPort > 0 {
		srv := httpinfra.NewServer(logger)
		httpinfra.RegisterBroadcast(srv.Router, broadcastSvc, cfg.Broadcast.AccessToken, logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Broadcast.ServerPort)
			if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP сервер рассылок остановлен")
			}
		}()
	}

	updates := tgbotapi.NewUpdate(0)
	updates.Timeout = 30
	updatesCh := botAPI.GetUpdatesChan(updates)
	go func() {
		for upd := range updatesCh {
			handler.HandleUpdate(ctx, upd)
		}
	}()

	notifierSvc.Start(ctx)
	logger.Info().Msg("бот запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	botAPI.StopReceivingUpdates()
	notifierSvc.Stop()
}

func buildStateStore(cfg config.AppConfig, logger zerolog.Logger) (domain.StateStore, func(), error) {
	switch {
	case cfg.PGDSN != "":
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		return state.NewPostgresStore(pool, logger), pool.Close, nil
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return state.NewRedisStore(client, "task_notifier", logger), func() { _ = client.Close() }, nil
	default:
		return state.NewFileStore(cfg.Notifier.StatePath, logger), func() {}, nil
	}
}
