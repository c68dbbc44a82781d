package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"task-reminder-bot/internal/domain"
)

// LinkStatus описывает результат операции привязки или отписки.
type LinkStatus string

const (
	// StatusLinked — привязка создана или обновлена.
	StatusLinked LinkStatus = "linked"
	// StatusAlreadyLinked — данные уже актуальны, запрос к API не выполнялся.
	StatusAlreadyLinked LinkStatus = "already_linked"
	// StatusNotFound — пользователь с таким логином не найден.
	StatusNotFound LinkStatus = "not_found"
	// StatusInvalidUsername — пустой или некорректный логин.
	StatusInvalidUsername LinkStatus = "invalid_username"
	// StatusInvalidChat — пустой идентификатор чата.
	StatusInvalidChat LinkStatus = "invalid_chat"
	// StatusOptedOut — уведомления отключены, чат отвязан.
	StatusOptedOut LinkStatus = "opted_out"
	// StatusNotLinked — по этому чату нет привязанного пользователя.
	StatusNotLinked LinkStatus = "not_linked"
	// StatusAlreadyDisabled — уведомления и так были отключены.
	StatusAlreadyDisabled LinkStatus = "already_disabled"
)

// LinkResult возвращается операциями привязки.
type LinkResult struct {
	Status LinkStatus
	User   domain.User
}

// Directory — обновляемый кэш пользователей с тремя индексами:
// по id, по нормализованному логину и по идентификатору чата.
type Directory struct {
	api             domain.TrackerAPI
	log             zerolog.Logger
	refreshInterval time.Duration

	group singleflight.Group

	mu          sync.RWMutex
	usersByID   map[string]*domain.User
	loginIndex  map[string]*domain.User
	chatIndex   map[string]*domain.User
	lastRefresh time.Time
}

// New создаёт каталог пользователей.
func New(api domain.TrackerAPI, log zerolog.Logger, refreshInterval time.Duration) *Directory {
	return &Directory{
		api:             api,
		log:             log,
		refreshInterval: refreshInterval,
		usersByID:       make(map[string]*domain.User),
		loginIndex:      make(map[string]*domain.User),
		chatIndex:       make(map[string]*domain.User),
	}
}

// Refresh обновляет кэш из API. Без force и в пределах интервала возвращает
// текущий снимок без сетевого вызова. Конкурентные вызовы разделяют один
// запрос к API. При ошибке прежний кэш сохраняется.
func (d *Directory) Refresh(ctx context.Context, force bool) ([]domain.User, error) {
	if !force {
		d.mu.RLock()
		fresh := !d.lastRefresh.IsZero() && time.Since(d.lastRefresh) < d.refreshInterval
		d.mu.RUnlock()
		if fresh {
			return d.AllUsers(), nil
		}
	}
	result, err, _ := d.group.Do("refresh", func() (any, error) {
		users, err := d.api.FetchUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение пользователей: %w", err)
		}
		d.rebuild(users)
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	users, _ := result.([]domain.User)
	return users, nil
}

func (d *Directory) rebuild(users []domain.User) {
	usersByID := make(map[string]*domain.User, len(users))
	loginIndex := make(map[string]*domain.User, len(users))
	chatIndex := make(map[string]*domain.User)
	for i := range users {
		user := users[i]
		record := &user
		usersByID[user.ID] = record
		if key := domain.NormalizeLogin(user.Login); key != "" {
			loginIndex[key] = record
		}
		if key := domain.NormalizeChatID(user.TelegramChatID); key != "" {
			chatIndex[key] = record
		}
	}

	d.mu.Lock()
	d.usersByID = usersByID
	d.loginIndex = loginIndex
	d.chatIndex = chatIndex
	d.lastRefresh = time.Now()
	d.mu.Unlock()
}

// updateCache вносит одну запись в индексы. Прежние слоты логина и чата
// удаляются только если всё ещё указывают на этот же id: это защищает от
// гонки, когда слот уже перезаписан другим обновлением.
func (d *Directory) updateCache(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if previous, ok := d.usersByID[user.ID]; ok {
		if prevLogin := domain.NormalizeLogin(previous.Login); prevLogin != "" {
			if existing, ok := d.loginIndex[prevLogin]; ok && existing.ID == user.ID {
				delete(d.loginIndex, prevLogin)
			}
		}
		if prevChat := domain.NormalizeChatID(previous.TelegramChatID); prevChat != "" {
			if existing, ok := d.chatIndex[prevChat]; ok && existing.ID == user.ID {
				delete(d.chatIndex, prevChat)
			}
		}
	}

	record := &user
	d.usersByID[user.ID] = record
	if key := domain.NormalizeLogin(user.Login); key != "" {
		d.loginIndex[key] = record
	}
	if key := domain.NormalizeChatID(user.TelegramChatID); key != "" {
		d.chatIndex[key] = record
	}
}

// AllUsers возвращает снимок всех пользователей кэша.
func (d *Directory) AllUsers() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]domain.User, 0, len(d.usersByID))
	for _, user := range d.usersByID {
		users = append(users, *user)
	}
	return users
}

// UserByLogin ищет пользователя по нормализованному логину.
func (d *Directory) UserByLogin(login string) (domain.User, bool) {
	key := domain.NormalizeLogin(login)
	if key == "" {
		return domain.User{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.loginIndex[key]
	if !ok {
		return domain.User{}, false
	}
	return *user, true
}

// UserByChatID ищет пользователя по идентификатору чата.
func (d *Directory) UserByChatID(chatID string) (domain.User, bool) {
	key := domain.NormalizeChatID(chatID)
	if key == "" {
		return domain.User{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.chatIndex[key]
	if !ok {
		return domain.User{}, false
	}
	return *user, true
}

// OptedInUsers возвращает пользователей с включёнными уведомлениями и
// привязанным чатом. Оба условия обязательны: согласие без чата не действует.
func (d *Directory) OptedInUsers() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var users []domain.User
	for _, user := range d.usersByID {
		if user.TelegramOptIn && domain.NormalizeChatID(user.TelegramChatID) != "" {
			users = append(users, *user)
		}
	}
	return users
}

// SyncTelegramLink привязывает чат к пользователю по логину. Операция
// идемпотентна: при отсутствии изменений API не вызывается.
func (d *Directory) SyncTelegramLink(ctx context.Context, username, chatID string, optIn bool) (LinkResult, error) {
	loginKey := domain.NormalizeLogin(username)
	if loginKey == "" {
		return LinkResult{Status: StatusInvalidUsername}, nil
	}
	if _, err := d.Refresh(ctx, true); err != nil {
		return LinkResult{}, err
	}
	user, ok := d.UserByLogin(loginKey)
	if !ok {
		return LinkResult{Status: StatusNotFound}, nil
	}
	chatValue := domain.NormalizeChatID(chatID)
	if chatValue == "" {
		return LinkResult{Status: StatusInvalidChat}, nil
	}

	diff := make(map[string]any)
	if user.TelegramUsername != username {
		diff["username"] = username
	}
	if user.TelegramChatID != chatValue {
		diff["chatId"] = chatValue
	}
	if optIn && !user.TelegramOptIn {
		diff["optIn"] = true
	}
	if len(diff) == 0 {
		return LinkResult{Status: StatusAlreadyLinked, User: user}, nil
	}

	updated, err := d.api.UpdateUserTelegram(ctx, user.ID, diff)
	if err != nil {
		return LinkResult{}, fmt.Errorf("обновление Telegram-данных: %w", err)
	}
	d.updateCache(updated)
	d.log.Info().Str("login", updated.Login).Msg("Telegram-чат привязан")
	return LinkResult{Status: StatusLinked, User: updated}, nil
}

// OptOutByChatID отключает уведомления и отвязывает чат.
func (d *Directory) OptOutByChatID(ctx context.Context, chatID string) (LinkResult, error) {
	user, ok := d.UserByChatID(chatID)
	if !ok {
		return LinkResult{Status: StatusNotLinked}, nil
	}

	diff := make(map[string]any)
	if user.TelegramChatID != "" {
		diff["chatId"] = nil
	}
	if user.TelegramOptIn {
		diff["optIn"] = false
	}
	if len(diff) == 0 {
		return LinkResult{Status: StatusAlreadyDisabled}, nil
	}

	updated, err := d.api.UpdateUserTelegram(ctx, user.ID, diff)
	if err != nil {
		return LinkResult{}, fmt.Errorf("отключение уведомлений: %w", err)
	}
	d.updateCache(updated)
	d.log.Info().Str("login", updated.Login).Msg("уведомления Telegram отключены")
	return LinkResult{Status: StatusOptedOut, User: updated}, nil
}
