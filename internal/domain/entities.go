package domain

import "strings"

// User описывает пользователя трекера с привязкой Telegram.
type User struct {
	ID               string `json:"id"`
	Login            string `json:"login"`
	Email            string `json:"email,omitempty"`
	Password         string `json:"password,omitempty"`
	TelegramUsername string `json:"telegramUsername,omitempty"`
	TelegramChatID   string `json:"telegramChatId,omitempty"`
	TelegramOptIn    bool   `json:"telegramOptIn,omitempty"`
}

// Assignee описывает исполнителя задачи.
type Assignee struct {
	Login string `json:"login"`
}

// Task представляет задачу трекера. Дедлайн хранится строкой ISO-8601,
// пустая строка означает отсутствие дедлайна.
type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Status           string     `json:"status,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	Deadline         string     `json:"deadline,omitempty"`
	Responsible      string     `json:"responsible,omitempty"`
	ResponsibleLogin string     `json:"responsibleLogin,omitempty"`
	AssigneeLogins   []string   `json:"assigneeLogins,omitempty"`
	Assignees        []Assignee `json:"assignees,omitempty"`
}

// ParseMode задаёт режим разметки исходящего сообщения.
type ParseMode string

const (
	// ParseModeNone — обычный текст без разметки.
	ParseModeNone ParseMode = ""
	// ParseModeHTML — HTML-разметка Telegram.
	ParseModeHTML ParseMode = "HTML"
	// ParseModeMarkdown — устаревший Markdown Telegram.
	ParseModeMarkdown ParseMode = "Markdown"
	// ParseModeMarkdownV2 — MarkdownV2 Telegram.
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// NormalizeParseMode приводит пользовательский ввод к одному из поддерживаемых режимов.
func NormalizeParseMode(raw string) (ParseMode, bool) {
	switch {
	case strings.TrimSpace(raw) == "":
		return ParseModeNone, true
	case strings.EqualFold(raw, "html"):
		return ParseModeHTML, true
	case strings.EqualFold(raw, "markdown"):
		return ParseModeMarkdown, true
	case strings.EqualFold(raw, "markdownv2"):
		return ParseModeMarkdownV2, true
	}
	return ParseModeNone, false
}
