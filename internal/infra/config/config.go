package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	Telegram struct {
		Token string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	} `envconfig:""`

	API struct {
		BaseURL         string `envconfig:"API_BASE_URL" default:"http://localhost:4000/api"`
		Token           string `envconfig:"API_TOKEN"`
		ServiceLogin    string `envconfig:"API_SERVICE_LOGIN"`
		ServicePassword string `envconfig:"API_SERVICE_PASSWORD"`
	} `envconfig:""`

	Directory struct {
		RefreshInterval time.Duration `envconfig:"USER_REFRESH_INTERVAL" default:"5m"`
	} `envconfig:""`

	Notifier struct {
		PollInterval        time.Duration `envconfig:"TASK_NOTIFIER_POLL_INTERVAL" default:"1m"`
		DeadlineWindowHours int           `envconfig:"TASK_DEADLINE_ALERT_WINDOW_HOURS" default:"24"`
		StatePath           string        `envconfig:"TASK_NOTIFIER_STATE_PATH" default:"data/bot-state.json"`
		DailyReminderHour   int           `envconfig:"DAILY_REMINDER_HOUR" default:"-1"`
		DailyReminderMinute int           `envconfig:"DAILY_REMINDER_MINUTE" default:"0"`
		TaskURLTemplate     string        `envconfig:"TASK_URL_TEMPLATE"`
	} `envconfig:""`

	Broadcast struct {
		BatchSize   int    `envconfig:"BROADCAST_BATCH_SIZE" default:"20"`
		ServerPort  int    `envconfig:"BROADCAST_SERVER_PORT"`
		AccessToken string `envconfig:"BROADCAST_ACCESS_TOKEN"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	PGDSN     string `envconfig:"PG_DSN"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
