package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
)

// ErrEmptyMessage возвращается до любых сетевых вызовов, если текст пуст.
var ErrEmptyMessage = errors.New("текст рассылки пуст")

// Directory — часть каталога пользователей, нужная рассылке.
type Directory interface {
	Refresh(ctx context.Context, force bool) ([]domain.User, error)
	OptedInUsers() []domain.User
}

// Result содержит итог рассылки.
type Result struct {
	ID    string `json:"id"`
	Sent  int    `json:"sent"`
	Total int    `json:"total"`
}

// Service выполняет разовые рассылки по согласившимся пользователям.
// Ошибка доставки одному получателю не прерывает остальных.
type Service struct {
	directory Directory
	sender    domain.ChatSender
	log       zerolog.Logger
	batchSize int
	pause     time.Duration

	// sleep подменяется в тестах.
	sleep func(time.Duration)
}

// NewService создаёт сервис рассылок. После каждых batchSize успешных
// отправок выдерживается пауза, чтобы не упереться в лимиты Telegram.
func NewService(dir Directory, sender domain.ChatSender, log zerolog.Logger, batchSize int) *Service {
	return &Service{
		directory: dir,
		sender:    sender,
		log:       log,
		batchSize: batchSize,
		pause:     time.Second,
		sleep:     time.Sleep,
	}
}

// Send рассылает сообщение. Непустой список логинов ограничивает получателей.
func (s *Service) Send(ctx context.Context, message string, logins []string, mode domain.ParseMode) (Result, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	filter := make(map[string]struct{})
	for _, login := range logins {
		if normalized := domain.NormalizeLogin(login); normalized != "" {
			filter[normalized] = struct{}{}
		}
	}

	if _, err := s.directory.Refresh(ctx, true); err != nil {
		return Result{}, fmt.Errorf("обновление каталога: %w", err)
	}
	optedIn := s.directory.OptedInUsers()
	var recipients []domain.User
	for _, user := range optedIn {
		if len(filter) > 0 {
			if _, ok := filter[domain.NormalizeLogin(user.Login)]; !ok {
				continue
			}
		}
		recipients = append(recipients, user)
	}

	result := Result{ID: uuid.NewString(), Total: len(recipients)}
	if len(recipients) == 0 {
		s.log.Warn().Str("broadcast_id", result.ID).Msg("под фильтры рассылки не попал ни один получатель")
		return result, nil
	}

	for _, user := range recipients {
		if err := s.sender.SendMessage(ctx, user.TelegramChatID, text, mode); err != nil {
			metrics.BroadcastMessagesTotal.WithLabelValues("error").Inc()
			s.log.Error().Err(err).Str("login", user.Login).Msg("не удалось доставить рассылку")
			continue
		}
		metrics.BroadcastMessagesTotal.WithLabelValues("success").Inc()
		s.log.Info().Str("login", user.Login).Msg("рассылка доставлена")
		result.Sent++
		if s.batchSize > 0 && result.Sent%s.batchSize == 0 {
			s.sleep(s.pause)
		}
	}

	s.log.Info().
		Str("broadcast_id", result.ID).
		Int("sent", result.Sent).
		Int("total", result.Total).
		Msg("рассылка завершена")
	return result, nil
}
