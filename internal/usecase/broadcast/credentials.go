package broadcast

import (
	"context"
	"fmt"
	"html"
	"strings"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
)

// CredentialReport содержит итог рассылки учётных данных.
type CredentialReport struct {
	Sent    int
	Skipped int
	Total   int
}

// SendCredentials рассылает каждому согласившемуся пользователю его логин и
// пароль. Пользователи без логина, пароля или чата пропускаются с подсчётом.
func (s *Service) SendCredentials(ctx context.Context, forceRefresh bool) (CredentialReport, error) {
	if forceRefresh {
		if _, err := s.directory.Refresh(ctx, true); err != nil {
			return CredentialReport{}, fmt.Errorf("обновление каталога: %w", err)
		}
	}
	recipients := s.directory.OptedInUsers()
	if len(recipients) == 0 {
		s.log.Warn().Msg("никто не подписан на уведомления — рассылка учётных данных пропущена")
		return CredentialReport{}, nil
	}

	report := CredentialReport{Total: len(recipients)}
	for _, user := range recipients {
		login := strings.TrimSpace(user.Login)
		password := strings.TrimSpace(user.Password)
		chatID := domain.NormalizeChatID(user.TelegramChatID)
		if login == "" || password == "" || chatID == "" {
			report.Skipped++
			s.log.Warn().
				Str("login", user.Login).
				Bool("has_login", login != "").
				Bool("has_password", password != "").
				Bool("has_chat_id", chatID != "").
				Msg("пользователь пропущен: нет логина, пароля или чата")
			continue
		}
		message := buildCredentialMessage(login, password)
		if err := s.sender.SendMessage(ctx, chatID, message, domain.ParseModeHTML); err != nil {
			metrics.BroadcastMessagesTotal.WithLabelValues("error").Inc()
			s.log.Error().Err(err).Str("login", user.Login).Msg("не удалось отправить учётные данные")
			continue
		}
		metrics.BroadcastMessagesTotal.WithLabelValues("success").Inc()
		s.log.Info().Str("login", user.Login).Msg("учётные данные доставлены")
		report.Sent++
		if s.batchSize > 0 && report.Sent%s.batchSize == 0 {
			s.sleep(s.pause)
		}
	}

	s.log.Info().
		Int("sent", report.Sent).
		Int("skipped", report.Skipped).
		Int("total", report.Total).
		Msg("рассылка учётных данных завершена")
	return report, nil
}

func buildCredentialMessage(login, password string) string {
	lines := []string{
		"<b>‼️ Системное уведомление</b>",
		"",
		"Вот твои секретные данные для входа в нашу систему. Сохрани или закрепи это сообщение.",
		"",
		"<b>Логин:</b> " + html.EscapeString(login),
		"<b>Пароль:</b> <tg-spoiler>" + html.EscapeString(password) + "</tg-spoiler>",
		"",
		"Удачной работы! По вопросам пиши администратору 🤖",
	}
	return strings.Join(lines, "\n")
}
