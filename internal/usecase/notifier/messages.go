package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"task-reminder-bot/internal/domain"
)

// composeDeadlineMessage строит разовое напоминание о задаче.
// Результат детерминирован для пары (задача, момент времени).
func composeDeadlineMessage(task domain.Task, deadline time.Time, now time.Time, urlTemplate string) string {
	title := task.Title
	if title == "" {
		title = "Без названия"
	}
	lines := []string{
		"⚠️ Напоминание о задаче",
		"Название: " + title,
		"Дедлайн: " + domain.FormatDeadline(deadline, now),
	}
	if task.Status != "" {
		lines = append(lines, "Статус: "+task.Status)
	}
	if task.Priority != "" {
		lines = append(lines, "Приоритет: "+task.Priority)
	}
	if url := domain.BuildTaskURL(urlTemplate, task.ID); url != "" {
		lines = append(lines, "Ссылка: "+url)
	}
	return strings.Join(lines, "\n")
}

// composeDailyReminderMessage строит дайджест задач на сегодня.
// Задачи сортируются по дедлайну по возрастанию, неразбираемые — в конец.
func composeDailyReminderMessage(tasks []domain.Task, now time.Time, urlTemplate string) string {
	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return deadlineSortKey(sorted[i]).Before(deadlineSortKey(sorted[j]))
	})

	lines := []string{
		"Привет!",
		"У тебя сегодня дедлайн по задачам:",
		"",
	}
	for i, task := range sorted {
		title := task.Title
		if title == "" {
			title = "Без названия"
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, title))
		lines = append(lines, "   Дедлайн: "+domain.FormatDeadlineString(task.Deadline, now))
		if url := domain.BuildTaskURL(urlTemplate, task.ID); url != "" {
			lines = append(lines, "   "+url)
		}
	}
	return strings.Join(lines, "\n")
}

var deadlineSortMax = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

func deadlineSortKey(task domain.Task) time.Time {
	deadline, ok := domain.ParseDeadline(task.Deadline)
	if !ok {
		return deadlineSortMax
	}
	return deadline
}
