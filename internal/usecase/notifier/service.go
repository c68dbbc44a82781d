package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
)

// UserDirectory — часть каталога пользователей, нужная нотификатору.
type UserDirectory interface {
	Refresh(ctx context.Context, force bool) ([]domain.User, error)
	UserByLogin(login string) (domain.User, bool)
}

// Config задаёт параметры нотификатора.
type Config struct {
	PollInterval        time.Duration
	DeadlineWindowHours int
	TaskURLTemplate     string
	// DailyReminderHour вне диапазона 0..23 отключает ежедневный дайджест.
	DailyReminderHour   int
	DailyReminderMinute int
}

// Service — планировщик напоминаний: периодически опрашивает трекер,
// сверяет дедлайны с журналом и рассылает уведомления.
type Service struct {
	api       domain.TrackerAPI
	directory UserDirectory
	sender    domain.ChatSender
	store     domain.StateStore
	log       zerolog.Logger
	cfg       Config

	// now подменяется в тестах.
	now func() time.Time

	mu       sync.Mutex
	inFlight chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService создаёт нотификатор. Час дайджеста вне 0..23 отключает
// ежедневный проход, минута вне 0..59 заменяется нулём.
func NewService(api domain.TrackerAPI, dir UserDirectory, sender domain.ChatSender, store domain.StateStore, log zerolog.Logger, cfg Config) *Service {
	if cfg.DailyReminderHour < 0 || cfg.DailyReminderHour > 23 {
		cfg.DailyReminderHour = -1
	}
	if cfg.DailyReminderMinute < 0 || cfg.DailyReminderMinute > 59 {
		cfg.DailyReminderMinute = 0
	}
	if cfg.DeadlineWindowHours < 0 {
		cfg.DeadlineWindowHours = 0
	}
	return &Service{
		api:       api,
		directory: dir,
		sender:    sender,
		store:     store,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start запускает цикл опроса: немедленный тик и далее по интервалу.
// Нулевой интервал отключает нотификатор.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.PollInterval <= 0 {
		s.log.Info().Msg("нотификатор отключён (интервал равен 0)")
		return
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.log.Info().
		Dur("interval", s.cfg.PollInterval).
		Int("window_hours", s.cfg.DeadlineWindowHours).
		Msg("нотификатор запущен")

	go func() {
		defer close(doneCh)
		s.Tick(ctx)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop останавливает таймер и дожидается завершения текущего тика.
func (s *Service) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// Tick выполняет один цикл. Если цикл уже идёт, вызов дожидается его
// завершения и не запускает второй параллельно.
func (s *Service) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight != nil {
		inFlight := s.inFlight
		s.mu.Unlock()
		<-inFlight
		return
	}
	inFlight := make(chan struct{})
	s.inFlight = inFlight
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = nil
		s.mu.Unlock()
		close(inFlight)
	}()

	start := time.Now()
	err := s.processTick(ctx)
	metrics.NotifierTickSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NotifierTickErrors.Inc()
		s.log.Error().Err(err).Msg("цикл нотификатора завершился ошибкой")
	}
}

// processTick: принудительное обновление каталога, выборка задач,
// дайджест за сегодня, затем проход по дедлайнам.
func (s *Service) processTick(ctx context.Context) error {
	if _, err := s.directory.Refresh(ctx, true); err != nil {
		return fmt.Errorf("обновление каталога: %w", err)
	}
	tasks, err := s.api.FetchTasks(ctx)
	if err != nil {
		return fmt.Errorf("получение задач: %w", err)
	}
	now := s.now()
	s.maybeSendDailyReminders(ctx, tasks, now)
	for _, task := range tasks {
		s.handleTask(ctx, task, now)
	}
	return nil
}

// handleTask отправляет разовое напоминание о приближающемся дедлайне.
// Отметка в журнале пишется строго после успешной отправки.
func (s *Service) handleTask(ctx context.Context, task domain.Task, now time.Time) {
	deadline, ok := domain.ParseDeadline(task.Deadline)
	if !ok {
		return
	}
	if !domain.DeadlineWithinWindow(deadline, s.cfg.DeadlineWindowHours, now) {
		return
	}
	deadlineISO := domain.DeadlineISO(deadline)
	if s.store.WasDeadlineNotified(ctx, task.ID, deadlineISO) {
		return
	}
	recipients := s.resolveRecipients(task)
	if len(recipients) == 0 {
		return
	}

	message := composeDeadlineMessage(task, deadline, now, s.cfg.TaskURLTemplate)
	sent := false
	for _, user := range recipients {
		if err := s.sender.SendMessage(ctx, user.TelegramChatID, message, domain.ParseModeNone); err != nil {
			s.log.Error().Err(err).
				Str("task_id", task.ID).
				Str("login", user.Login).
				Msg("не удалось отправить напоминание о дедлайне")
			continue
		}
		metrics.DeadlineNotificationsTotal.Inc()
		sent = true
		s.log.Info().
			Str("task_id", task.ID).
			Str("login", user.Login).
			Str("deadline", deadlineISO).
			Msg("напоминание о дедлайне отправлено")
	}
	if !sent {
		return
	}
	if err := s.store.MarkDeadlineNotified(ctx, task.ID, deadlineISO); err != nil {
		s.log.Error().Err(err).Str("task_id", task.ID).Msg("не удалось записать отметку в журнал")
	}
}

// resolveRecipients возвращает исполнителей задачи, согласившихся на
// уведомления и привязавших чат.
func (s *Service) resolveRecipients(task domain.Task) []domain.User {
	var recipients []domain.User
	for _, login := range domain.TaskLoginCandidates(task) {
		user, ok := s.directory.UserByLogin(login)
		if !ok || !user.TelegramOptIn || domain.NormalizeChatID(user.TelegramChatID) == "" {
			continue
		}
		recipients = append(recipients, user)
	}
	return recipients
}

// maybeSendDailyReminders рассылает дайджест задач с дедлайном сегодня.
// Дата помечается отправленной даже без получателей, чтобы тихий день
// не перепроверялся каждый тик.
func (s *Service) maybeSendDailyReminders(ctx context.Context, tasks []domain.Task, now time.Time) {
	if s.cfg.DailyReminderHour < 0 {
		return
	}
	if !s.reachedDailyReminderTime(now) {
		return
	}
	dateKey := domain.DateKey(now)
	if s.store.WasDailyReminderSent(ctx, dateKey) {
		return
	}

	recipients := s.collectDailyRecipients(tasks, now)
	if len(recipients) == 0 {
		if err := s.store.MarkDailyReminderSent(ctx, dateKey); err != nil {
			s.log.Error().Err(err).Str("date", dateKey).Msg("не удалось записать дату дайджеста")
			return
		}
		s.log.Info().Str("date", dateKey).Msg("дайджест пропущен: сегодня нет дедлайнов")
		return
	}

	for _, recipient := range recipients {
		message := composeDailyReminderMessage(recipient.Tasks, now, s.cfg.TaskURLTemplate)
		if err := s.sender.SendMessage(ctx, recipient.User.TelegramChatID, message, domain.ParseModeNone); err != nil {
			s.log.Error().Err(err).Str("login", recipient.User.Login).Msg("не удалось отправить дайджест")
			continue
		}
		metrics.DailyDigestMessagesTotal.Inc()
	}
	if err := s.store.MarkDailyReminderSent(ctx, dateKey); err != nil {
		s.log.Error().Err(err).Str("date", dateKey).Msg("не удалось записать дату дайджеста")
		return
	}
	s.log.Info().Str("date", dateKey).Int("recipients", len(recipients)).Msg("ежедневный дайджест отправлен")
}

func (s *Service) reachedDailyReminderTime(now time.Time) bool {
	target := time.Date(now.Year(), now.Month(), now.Day(),
		s.cfg.DailyReminderHour, s.cfg.DailyReminderMinute, 0, 0, now.Location())
	return !now.Before(target)
}

type dailyRecipient struct {
	User  domain.User
	Tasks []domain.Task
}

// collectDailyRecipients группирует сегодняшние задачи по логинам
// исполнителей. Группы без доступного получателя молча отбрасываются.
func (s *Service) collectDailyRecipients(tasks []domain.Task, now time.Time) []dailyRecipient {
	grouped := make(map[string][]domain.Task)
	var order []string
	for _, task := range tasks {
		if task.Deadline == "" || !domain.DeadlineOnDate(task.Deadline, now) {
			continue
		}
		for _, login := range domain.TaskLoginCandidates(task) {
			if _, ok := grouped[login]; !ok {
				order = append(order, login)
			}
			grouped[login] = append(grouped[login], task)
		}
	}

	var recipients []dailyRecipient
	for _, login := range order {
		user, ok := s.directory.UserByLogin(login)
		if !ok || !user.TelegramOptIn || domain.NormalizeChatID(user.TelegramChatID) == "" {
			continue
		}
		recipients = append(recipients, dailyRecipient{User: user, Tasks: grouped[login]})
	}
	return recipients
}
