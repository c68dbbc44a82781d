package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
)

// PostgresStore хранит журнал уведомлений в Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ domain.StateStore = (*PostgresStore)(nil)

// NewPostgresStore создаёт журнал на основе pgxpool.
func NewPostgresStore(pool *pgxpool.Pool, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log}
}

func (s *PostgresStore) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Init создаёт таблицы журнала, если их ещё нет.
func (s *PostgresStore) Init(ctx context.Context) error {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS deadline_reminders (
    task_id      TEXT PRIMARY KEY,
    deadline_iso TEXT NOT NULL,
    notified_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS daily_reminder (
    id        SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    sent_date TEXT NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("создание таблиц журнала: %w", err)
	}
	return nil
}

// WasDeadlineNotified истинно, если для задачи записан ровно этот дедлайн.
func (s *PostgresStore) WasDeadlineNotified(ctx context.Context, taskID, deadlineISO string) bool {
	if taskID == "" || deadlineISO == "" {
		return false
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	var stored string
	err := s.pool.QueryRow(ctx, `SELECT deadline_iso FROM deadline_reminders WHERE task_id = $1`, taskID).Scan(&stored)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Err(err).Str("task_id", taskID).Msg("не удалось прочитать отметку дедлайна")
		}
		return false
	}
	return stored == deadlineISO
}

// MarkDeadlineNotified записывает дедлайн задачи.
func (s *PostgresStore) MarkDeadlineNotified(ctx context.Context, taskID, deadlineISO string) error {
	if taskID == "" || deadlineISO == "" {
		return nil
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO deadline_reminders (task_id, deadline_iso, notified_at)
VALUES ($1, $2, now())
ON CONFLICT (task_id) DO UPDATE SET deadline_iso = EXCLUDED.deadline_iso, notified_at = now()`,
		taskID, deadlineISO)
	if err != nil {
		return fmt.Errorf("запись отметки дедлайна: %w", err)
	}
	return nil
}

// WasDailyReminderSent истинно, если дайджест за эту дату уже отправлялся.
func (s *PostgresStore) WasDailyReminderSent(ctx context.Context, dateKey string) bool {
	if dateKey == "" {
		return false
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	var stored string
	err := s.pool.QueryRow(ctx, `SELECT sent_date FROM daily_reminder WHERE id = 1`).Scan(&stored)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Err(err).Msg("не удалось прочитать дату дайджеста")
		}
		return false
	}
	return stored == dateKey
}

// MarkDailyReminderSent записывает дату дайджеста.
func (s *PostgresStore) MarkDailyReminderSent(ctx context.Context, dateKey string) error {
	if dateKey == "" {
		return nil
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO daily_reminder (id, sent_date) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET sent_date = EXCLUDED.sent_date`, dateKey)
	if err != nil {
		return fmt.Errorf("запись даты дайджеста: %w", err)
	}
	return nil
}
