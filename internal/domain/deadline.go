package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Форматы, в которых трекер присылает дедлайны.
var deadlineLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeLogin приводит логин к каноническому виду для индексов и сравнения.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// NormalizeChatID убирает пробелы вокруг идентификатора чата. Пустая строка
// означает, что чат не привязан.
func NormalizeChatID(chatID string) string {
	return strings.TrimSpace(chatID)
}

// ParseDeadline разбирает строку дедлайна. Второе значение false, если
// дедлайн отсутствует или не разбирается.
func ParseDeadline(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DeadlineISO возвращает каноническую строку дедлайна для журнала уведомлений.
func DeadlineISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// DeadlineWithinWindow сообщает, попадает ли дедлайн в окно упреждения.
// Дедлайн строго в прошлом исключается, дедлайн ровно сейчас входит в окно.
func DeadlineWithinWindow(deadline time.Time, windowHours int, now time.Time) bool {
	if deadline.Before(now) {
		return false
	}
	if windowHours < 0 {
		windowHours = 0
	}
	return deadline.Sub(now) <= time.Duration(windowHours)*time.Hour
}

// DeadlineOnDate сообщает, приходится ли дедлайн на тот же календарный день.
func DeadlineOnDate(raw string, reference time.Time) bool {
	deadline, ok := ParseDeadline(raw)
	if !ok {
		return false
	}
	deadline = deadline.In(reference.Location())
	y1, m1, d1 := deadline.Date()
	y2, m2, d2 := reference.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DateKey возвращает ключ календарной даты в локальном времени.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// FormatDeadline возвращает человекочитаемую дату дедлайна с относительной фразой.
func FormatDeadline(deadline time.Time, now time.Time) string {
	local := deadline.In(now.Location())
	absolute := fmt.Sprintf("%02d %s %d %02d:%02d",
		local.Day(), monthsGenitive[local.Month()-1], local.Year(), local.Hour(), local.Minute())
	return fmt.Sprintf("%s (%s)", absolute, relativePhrase(deadline, now))
}

// FormatDeadlineString форматирует сырой дедлайн, подставляя заглушку при отсутствии.
func FormatDeadlineString(raw string, now time.Time) string {
	deadline, ok := ParseDeadline(raw)
	if !ok {
		return "не указан"
	}
	return FormatDeadline(deadline, now)
}

func relativePhrase(target, now time.Time) string {
	diff := target.Sub(now)
	past := diff < 0
	if past {
		diff = -diff
	}

	var amount int
	var one, few, many string
	switch {
	case diff < time.Minute:
		amount = int(math.Round(diff.Seconds()))
		one, few, many = "секунда", "секунды", "секунд"
	case diff < time.Hour:
		amount = int(math.Round(diff.Minutes()))
		one, few, many = "минута", "минуты", "минут"
	case diff < 24*time.Hour:
		amount = int(math.Round(diff.Hours()))
		one, few, many = "час", "часа", "часов"
	case diff < 30*24*time.Hour:
		amount = int(math.Round(diff.Hours() / 24))
		one, few, many = "день", "дня", "дней"
	case diff < 365*24*time.Hour:
		amount = int(math.Round(diff.Hours() / 24 / 30))
		one, few, many = "месяц", "месяца", "месяцев"
	default:
		amount = int(math.Round(diff.Hours() / 24 / 365))
		one, few, many = "год", "года", "лет"
	}
	if amount < 1 {
		amount = 1
	}

	unit := pluralRu(amount, one, few, many)
	if past {
		return fmt.Sprintf("%d %s назад", amount, unit)
	}
	return fmt.Sprintf("через %d %s", amount, unit)
}

func pluralRu(n int, one, few, many string) string {
	mod100 := n % 100
	if mod100 >= 11 && mod100 <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}

// TaskLoginCandidates собирает все логины исполнителей задачи: множественные
// поля разных вариантов API сводятся в один нормализованный набор без дублей.
func TaskLoginCandidates(task Task) []string {
	seen := make(map[string]struct{})
	var logins []string
	collect := func(raw string) {
		normalized := NormalizeLogin(raw)
		if normalized == "" {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		logins = append(logins, normalized)
	}
	for _, login := range task.AssigneeLogins {
		collect(login)
	}
	for _, assignee := range task.Assignees {
		collect(assignee.Login)
	}
	collect(task.ResponsibleLogin)
	collect(task.Responsible)
	return logins
}

// TasksForLogin возвращает задачи, где логин указан среди исполнителей.
func TasksForLogin(tasks []Task, login string) []Task {
	normalized := NormalizeLogin(login)
	if normalized == "" {
		return nil
	}
	var matched []Task
	for _, task := range tasks {
		for _, candidate := range TaskLoginCandidates(task) {
			if candidate == normalized {
				matched = append(matched, task)
				break
			}
		}
	}
	return matched
}

// TaskSummary строит краткий текстовый блок по задаче для списка /tasks.
func TaskSummary(task Task, now time.Time) string {
	title := task.Title
	if title == "" {
		title = "Задача без названия"
	}
	parts := []string{"📝 " + title}
	if task.Status != "" {
		parts = append(parts, "  Статус: "+task.Status)
	}
	if task.Deadline != "" {
		parts = append(parts, "  Дедлайн: "+FormatDeadlineString(task.Deadline, now))
	}
	if task.Priority != "" {
		parts = append(parts, "  Приоритет: "+task.Priority)
	}
	return strings.Join(parts, "\n")
}

// BuildTaskURL подставляет идентификатор задачи в шаблон ссылки.
func BuildTaskURL(template, taskID string) string {
	if template == "" || taskID == "" {
		return ""
	}
	return strings.ReplaceAll(template, ":id", url.QueryEscape(taskID))
}
