package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
)

// Sender реализует domain.ChatSender поверх Bot API. Длинные сообщения
// разрезаются по границам строк под лимит Telegram.
type Sender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.ChatSender = (*Sender)(nil)

// NewSender создаёт транспорт.
func NewSender(bot *tgbotapi.BotAPI, log zerolog.Logger) *Sender {
	return &Sender{bot: bot, log: log}
}

// SendMessage отправляет текст в чат, при необходимости несколькими частями.
func (s *Sender) SendMessage(ctx context.Context, chatID string, text string, mode domain.ParseMode) error {
	id, err := strconv.ParseInt(domain.NormalizeChatID(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный идентификатор чата %q: %w", chatID, err)
	}
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(id, part)
		if mode != domain.ParseModeNone {
			msg.ParseMode = string(mode)
		}
		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", chatID, start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return fmt.Errorf("отправка сообщения: %w", err)
		}
	}
	return nil
}
