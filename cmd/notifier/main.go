package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/adapters/state"
	"task-reminder-bot/internal/adapters/telegram"
	"task-reminder-bot/internal/adapters/tracker"
	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/config"
	"task-reminder-bot/internal/infra/db"
	"task-reminder-bot/internal/infra/log"
	"task-reminder-bot/internal/infra/metrics"
	"task-reminder-bot/internal/usecase/directory"
	"task-reminder-bot/internal/usecase/notifier"
)

// Запускает нотификатор без обработки входящих команд бота.
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

	notifierSvc := notifier.NewService(apiClient, dir, sender, store, logger, notifier.Config{
		PollInterval:        cfg.Notifier.PollInterval,
		DeadlineWindowHours: cfg.Notifier.DeadlineWindowHours,
		TaskURLTemplate:     cfg.Notifier.TaskURLTemplate,
		DailyReminderHour:   cfg.Notifier.DailyReminderHour,
		DailyReminderMinute: cfg.Notifier.DailyReminderMinute,
	})

	notifierSvc.Start(ctx)
	logger.Info().Msg("автономный нотификатор запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
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
