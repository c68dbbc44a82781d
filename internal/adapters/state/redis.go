package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
)

// RedisStore хранит журнал уведомлений в Redis: хеш для дедлайнов и
// отдельный ключ для даты последнего дайджеста.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

var _ domain.StateStore = (*RedisStore)(nil)

// NewRedisStore создаёт журнал с указанным префиксом ключей.
func NewRedisStore(client *redis.Client, prefix string, log zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "task_notifier"
	}
	return &RedisStore{client: client, prefix: prefix, log: log}
}

func (s *RedisStore) deadlineKey() string {
	return s.prefix + ":deadline_reminders"
}

func (s *RedisStore) dailyKey() string {
	return s.prefix + ":last_daily_reminder"
}

// Init проверяет доступность Redis.
func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis недоступен: %w", err)
	}
	return nil
}

// WasDeadlineNotified истинно, если для задачи записан ровно этот дедлайн.
// Ошибка чтения трактуется как отсутствие записи.
func (s *RedisStore) WasDeadlineNotified(ctx context.Context, taskID, deadlineISO string) bool {
	if taskID == "" || deadlineISO == "" {
		return false
	}
	stored, err := s.client.HGet(ctx, s.deadlineKey(), taskID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("task_id", taskID).Msg("не удалось прочитать отметку дедлайна")
		}
		return false
	}
	return stored == deadlineISO
}

// MarkDeadlineNotified записывает дедлайн задачи.
func (s *RedisStore) MarkDeadlineNotified(ctx context.Context, taskID, deadlineISO string) error {
	if taskID == "" || deadlineISO == "" {
		return nil
	}
	if err := s.client.HSet(ctx, s.deadlineKey(), taskID, deadlineISO).Err(); err != nil {
		return fmt.Errorf("запись отметки дедлайна: %w", err)
	}
	return nil
}

// WasDailyReminderSent истинно, если дайджест за эту дату уже отправлялся.
func (s *RedisStore) WasDailyReminderSent(ctx context.Context, dateKey string) bool {
	if dateKey == "" {
		return false
	}
	stored, err := s.client.Get(ctx, s.dailyKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("не удалось прочитать дату дайджеста")
		}
		return false
	}
	return stored == dateKey
}

// MarkDailyReminderSent записывает дату дайджеста.
func (s *RedisStore) MarkDailyReminderSent(ctx context.Context, dateKey string) error {
	if dateKey == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.dailyKey(), dateKey, 0).Err(); err != nil {
		return fmt.Errorf("запись даты дайджеста: %w", err)
	}
	return nil
}
