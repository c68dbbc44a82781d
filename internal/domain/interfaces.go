package domain

import "context"

// TrackerAPI описывает клиент API трекера задач.
type TrackerAPI interface {
	FetchUsers(ctx context.Context) ([]User, error)
	FetchTasks(ctx context.Context) ([]Task, error)
	// UpdateUserTelegram отправляет частичное обновление Telegram-полей пользователя.
	// Значение nil в diff очищает поле на стороне API.
	UpdateUserTelegram(ctx context.Context, userID string, diff map[string]any) (User, error)
}

// ChatSender отправляет сообщение в чат.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID string, text string, mode ParseMode) error
}

// StateStore хранит отметки об уже отправленных уведомлениях.
// Запись считается зафиксированной только после успешного возврата Mark*.
type StateStore interface {
	Init(ctx context.Context) error
	WasDeadlineNotified(ctx context.Context, taskID, deadlineISO string) bool
	MarkDeadlineNotified(ctx context.Context, taskID, deadlineISO string) error
	WasDailyReminderSent(ctx context.Context, dateKey string) bool
	MarkDailyReminderSent(ctx context.Context, dateKey string) error
}
