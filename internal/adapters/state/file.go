package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
)

// document — структура файла состояния. Файл перезаписывается целиком
// при каждой мутации.
type document struct {
	DeadlineReminders     map[string]string `json:"deadlineReminders"`
	LastDailyReminderDate string            `json:"lastDailyReminderDate"`
}

// FileStore хранит журнал уведомлений в одном JSON-файле.
type FileStore struct {
	path string
	log  zerolog.Logger

	mu    sync.Mutex
	state document
}

var _ domain.StateStore = (*FileStore)(nil)

// NewFileStore создаёт файловый журнал по указанному пути.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Init загружает состояние с диска. Отсутствующий или повреждённый файл
// заменяется пустым состоянием, которое сразу сохраняется.
func (s *FileStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("не удалось прочитать состояние, начинаем с пустого")
		}
		s.state = document{}
		s.normalize()
		return s.persist()
	}
	if err := json.Unmarshal(raw, &s.state); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("состояние повреждено, начинаем с пустого")
		s.state = document{}
		s.normalize()
		return s.persist()
	}
	s.normalize()
	return nil
}

func (s *FileStore) normalize() {
	if s.state.DeadlineReminders == nil {
		s.state.DeadlineReminders = make(map[string]string)
	}
}

func (s *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, payload, 0o644)
}

// WasDeadlineNotified истинно, если для задачи записан ровно этот дедлайн.
func (s *FileStore) WasDeadlineNotified(ctx context.Context, taskID, deadlineISO string) bool {
	if taskID == "" || deadlineISO == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeadlineReminders[taskID] == deadlineISO
}

// MarkDeadlineNotified записывает дедлайн задачи и синхронно сохраняет файл.
func (s *FileStore) MarkDeadlineNotified(ctx context.Context, taskID, deadlineISO string) error {
	if taskID == "" || deadlineISO == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DeadlineReminders[taskID] = deadlineISO
	return s.persist()
}

// WasDailyReminderSent истинно, если дайджест за эту дату уже отправлялся.
func (s *FileStore) WasDailyReminderSent(ctx context.Context, dateKey string) bool {
	if dateKey == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastDailyReminderDate == dateKey
}

// MarkDailyReminderSent записывает дату дайджеста и синхронно сохраняет файл.
func (s *FileStore) MarkDailyReminderSent(ctx context.Context, dateKey string) error {
	if dateKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastDailyReminderDate = dateKey
	return s.persist()
}
