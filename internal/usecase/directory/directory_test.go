package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
)

type trackerStub struct {
	mu         sync.Mutex
	users      []domain.User
	fetchErr   error
	fetchCalls int32
	fetchGate  chan struct{}
	updates    []map[string]any
	updated    domain.User
	updateErr  error
}

func (s *trackerStub) FetchUsers(ctx context.Context) ([]domain.User, error) {
	atomic.AddInt32(&s.fetchCalls, 1)
	if s.fetchGate != nil {
		<-s.fetchGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	users := make([]domain.User, len(s.users))
	copy(users, s.users)
	return users, nil
}

func (s *trackerStub) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	return nil, nil
}

func (s *trackerStub) UpdateUserTelegram(ctx context.Context, userID string, diff map[string]any) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, diff)
	if s.updateErr != nil {
		return domain.User{}, s.updateErr
	}
	return s.updated, nil
}

func (s *trackerStub) calls() int32 {
	return atomic.LoadInt32(&s.fetchCalls)
}

func newTestDirectory(api domain.TrackerAPI, interval time.Duration) *Directory {
	return New(api, zerolog.Nop(), interval)
}

func TestRefreshCachesWithinInterval(t *testing.T) {
	stub := &trackerStub{users: []domain.User{{ID: "u1", Login: "alice"}}}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()

	if _, err := dir.Refresh(ctx, false); err != nil {
		t.Fatalf("первое обновление упало: %v", err)
	}
	if _, err := dir.Refresh(ctx, false); err != nil {
		t.Fatalf("повторное обновление упало: %v", err)
	}
	if got := stub.calls(); got != 1 {
		t.Fatalf("ожидали 1 вызов API внутри интервала, получили %d", got)
	}

	if _, err := dir.Refresh(ctx, true); err != nil {
		t.Fatalf("принудительное обновление упало: %v", err)
	}
	if got := stub.calls(); got != 2 {
		t.Fatalf("принудительное обновление должно звать API, вызовов %d", got)
	}
}

func TestRefreshSharesConcurrentCalls(t *testing.T) {
	stub := &trackerStub{
		users:     []domain.User{{ID: "u1", Login: "alice"}},
		fetchGate: make(chan struct{}),
	}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.Refresh(ctx, true); err != nil {
				t.Errorf("обновление упало: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(stub.fetchGate)
	wg.Wait()

	if got := stub.calls(); got != 1 {
		t.Fatalf("конкурентные обновления должны делить один запрос, вызовов %d", got)
	}
}

func TestRefreshErrorKeepsCache(t *testing.T) {
	stub := &trackerStub{users: []domain.User{{ID: "u1", Login: "alice"}}}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()

	if _, err := dir.Refresh(ctx, true); err != nil {
		t.Fatalf("первое обновление упало: %v", err)
	}

	stub.mu.Lock()
	stub.fetchErr = errors.New("api недоступен")
	stub.mu.Unlock()

	if _, err := dir.Refresh(ctx, true); err == nil {
		t.Fatalf("ожидали ошибку обновления")
	}
	if _, ok := dir.UserByLogin("alice"); !ok {
		t.Fatalf("старый кэш должен сохраниться после ошибки")
	}
}

func TestUserLookupNormalizesKeys(t *testing.T) {
	stub := &trackerStub{users: []domain.User{
		{ID: "u1", Login: "Alice", TelegramChatID: " 100 "},
	}}
	dir := newTestDirectory(stub, time.Hour)
	if _, err := dir.Refresh(context.Background(), true); err != nil {
		t.Fatalf("обновление упало: %v", err)
	}

	if _, ok := dir.UserByLogin("  ALICE "); !ok {
		t.Fatalf("логин должен находиться без учёта регистра и пробелов")
	}
	if _, ok := dir.UserByChatID("100"); !ok {
		t.Fatalf("чат должен находиться после нормализации")
	}
	if _, ok := dir.UserByLogin(""); ok {
		t.Fatalf("пустой логин не должен находиться")
	}
}

func TestOptedInUsersRequiresChat(t *testing.T) {
	stub := &trackerStub{users: []domain.User{
		{ID: "u1", Login: "alice", TelegramChatID: "100", TelegramOptIn: true},
		{ID: "u2", Login: "bob", TelegramOptIn: true},
		{ID: "u3", Login: "carol", TelegramChatID: "300"},
	}}
	dir := newTestDirectory(stub, time.Hour)
	if _, err := dir.Refresh(context.Background(), true); err != nil {
		t.Fatalf("обновление упало: %v", err)
	}

	got := dir.OptedInUsers()
	if len(got) != 1 || got[0].Login != "alice" {
		t.Fatalf("ожидали только alice, получили %v", got)
	}
}

func TestSyncTelegramLinkUpdatesIndexes(t *testing.T) {
	stub := &trackerStub{users: []domain.User{
		{ID: "u1", Login: "alice", TelegramUsername: "alice", TelegramChatID: "100", TelegramOptIn: true},
	}}
	stub.updated = domain.User{
		ID: "u1", Login: "alice", TelegramUsername: "alice", TelegramChatID: "200", TelegramOptIn: true,
	}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()
	if _, err := dir.Refresh(ctx, true); err != nil {
		t.Fatalf("обновление упало: %v", err)
	}

	result, err := dir.SyncTelegramLink(ctx, "alice", "200", true)
	if err != nil {
		t.Fatalf("привязка упала: %v", err)
	}
	if result.Status != StatusLinked {
		t.Fatalf("ожидали статус linked, получили %q", result.Status)
	}
	if len(stub.updates) != 1 {
		t.Fatalf("ожидали один вызов обновления, получили %d", len(stub.updates))
	}
	if _, ok := dir.UserByChatID("100"); ok {
		t.Fatalf("старый чат должен быть вытеснен из индекса")
	}
	if user, ok := dir.UserByChatID("200"); !ok || user.ID != "u1" {
		t.Fatalf("новый чат должен указывать на пользователя")
	}
}

func TestSyncTelegramLinkIdempotent(t *testing.T) {
	stub := &trackerStub{users: []domain.User{
		{ID: "u1", Login: "alice", TelegramUsername: "alice", TelegramChatID: "100", TelegramOptIn: true},
	}}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()

	result, err := dir.SyncTelegramLink(ctx, "alice", "100", true)
	if err != nil {
		t.Fatalf("привязка упала: %v", err)
	}
	if result.Status != StatusAlreadyLinked {
		t.Fatalf("ожидали статус already_linked, получили %q", result.Status)
	}
	if len(stub.updates) != 0 {
		t.Fatalf("без изменений API вызываться не должен")
	}
}

func TestSyncTelegramLinkValidation(t *testing.T) {
	stub := &trackerStub{users: []domain.User{{ID: "u1", Login: "alice"}}}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()

	result, err := dir.SyncTelegramLink(ctx, "  ", "100", true)
	if err != nil || result.Status != StatusInvalidUsername {
		t.Fatalf("ожидали invalid_username, получили %q (%v)", result.Status, err)
	}
	result, err = dir.SyncTelegramLink(ctx, "bob", "100", true)
	if err != nil || result.Status != StatusNotFound {
		t.Fatalf("ожидали not_found, получили %q (%v)", result.Status, err)
	}
	result, err = dir.SyncTelegramLink(ctx, "alice", "  ", true)
	if err != nil || result.Status != StatusInvalidChat {
		t.Fatalf("ожидали invalid_chat, получили %q (%v)", result.Status, err)
	}
}

func TestOptOutByChatID(t *testing.T) {
	stub := &trackerStub{users: []domain.User{
		{ID: "u1", Login: "alice", TelegramChatID: "100", TelegramOptIn: true},
	}}
	stub.updated = domain.User{ID: "u1", Login: "alice"}
	dir := newTestDirectory(stub, time.Hour)
	ctx := context.Background()
	if _, err := dir.Refresh(ctx, true); err != nil {
		t.Fatalf("обновление упало: %v", err)
	}

	result, err := dir.OptOutByChatID(ctx, "100")
	if err != nil {
		t.Fatalf("отписка упала: %v", err)
	}
	if result.Status != StatusOptedOut {
		t.Fatalf("ожидали статус opted_out, получили %q", result.Status)
	}
	if len(stub.updates) != 1 {
		t.Fatalf("ожидали один вызов обновления, получили %d", len(stub.updates))
	}
	diff := stub.updates[0]
	if value, ok := diff["chatId"]; !ok || value != nil {
		t.Fatalf("ожидали chatId=null в обновлении, получили %v", diff)
	}
	if value, ok := diff["optIn"]; !ok || value != false {
		t.Fatalf("ожидали optIn=false в обновлении, получили %v", diff)
	}
	if _, ok := dir.UserByChatID("100"); ok {
		t.Fatalf("чат должен быть удалён из индекса")
	}

	result, err = dir.OptOutByChatID(ctx, "999")
	if err != nil || result.Status != StatusNotLinked {
		t.Fatalf("ожидали not_linked, получили %q (%v)", result.Status, err)
	}
}
