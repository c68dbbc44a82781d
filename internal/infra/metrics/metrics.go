package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotifierTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_tick_seconds",
		Help:    "Длительность одного цикла нотификатора",
		Buckets: prometheus.DefBuckets,
	})
	NotifierTickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_tick_errors_total",
		Help: "Циклы нотификатора, завершившиеся ошибкой",
	})
	DeadlineNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_notifications_total",
		Help: "Отправленные напоминания о дедлайнах",
	})
	DailyDigestMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daily_digest_messages_total",
		Help: "Отправленные сообщения ежедневного дайджеста",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	BroadcastMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_messages_total",
		Help: "Сообщения рассылки по результату доставки",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NotifierTickSeconds,
		NotifierTickErrors,
		DeadlineNotificationsTotal,
		DailyDigestMessagesTotal,
		BotSendErrors,
		BroadcastMessagesTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
