package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	client, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("создание клиента упало: %v", err)
	}
	return client
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://api"}, zerolog.Nop()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("без учётных данных ожидали ErrNoCredentials, получили %v", err)
	}
	if _, err := New(Config{BaseURL: "http://api", Token: "t"}, zerolog.Nop()); err != nil {
		t.Fatalf("статического токена достаточно: %v", err)
	}
	if _, err := New(Config{BaseURL: "http://api", ServiceLogin: "svc", ServicePassword: "pw"}, zerolog.Nop()); err != nil {
		t.Fatalf("сервисной учётки достаточно: %v", err)
	}
}

func TestFetchUsersLogsInAndRetriesOn401(t *testing.T) {
	var logins int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("логин должен быть POST, получили %s", r.Method)
		}
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("тело логина не разбирается: %v", err)
		}
		if creds["login"] != "svc" || creds["password"] != "pw" {
			t.Errorf("неожиданные учётные данные: %v", creds)
		}
		n := atomic.AddInt32(&logins, 1)
		token := "token-1"
		if n > 1 {
			token = "token-2"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"user":  map[string]string{"login": "svc"},
		})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		// Первый токен считается протухшим.
		if r.Header.Get("Authorization") != "Bearer token-2" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "токен истёк"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{{"id": "u1", "login": "alice"}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL, Config{ServiceLogin: "svc", ServicePassword: "pw"})
	users, err := client.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("после повторного логина запрос должен пройти: %v", err)
	}
	if len(users) != 1 || users[0].Login != "alice" {
		t.Fatalf("неожиданный список пользователей: %v", users)
	}
	if got := atomic.LoadInt32(&logins); got != 2 {
		t.Fatalf("ожидали ровно два логина (первичный и повторный), получили %d", got)
	}
}

func TestStaticTokenDoesNotRetryOn401(t *testing.T) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL, Config{Token: "static"})
	_, err := client.FetchUsers(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("ожидали APIError со статусом 401, получили %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("при статическом токене повторов быть не должно, запросов %d", got)
	}
}

func TestAPIErrorPreservesStatusAndMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "база недоступна"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL, Config{Token: "static"})
	_, err := client.FetchTasks(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидали APIError, получили %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "база недоступна" {
		t.Fatalf("статус и сообщение должны сохраняться: %+v", apiErr)
	}
}

func TestFetchTasksAcceptsBothShapes(t *testing.T) {
	payloads := map[string]string{
		"/bare":    `[{"id":"T1","title":"Задача"}]`,
		"/wrapped": `{"tasks":[{"id":"T1","title":"Задача"}]}`,
	}
	for name, payload := range payloads {
		payload := payload
		mux := http.NewServeMux()
		mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		})
		srv := httptest.NewServer(mux)

		client := newTestClient(t, srv.URL, Config{Token: "static"})
		tasks, err := client.FetchTasks(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("формат %s не разобрался: %v", name, err)
		}
		if len(tasks) != 1 || tasks[0].ID != "T1" {
			t.Fatalf("формат %s дал неожиданный результат: %v", name, tasks)
		}
	}
}

func TestUpdateUserTelegramSendsDiff(t *testing.T) {
	var received map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/users/u1/telegram", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("ожидали PUT, получили %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("тело не разбирается: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "u1", "login": "alice", "telegramChatId": "200"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL, Config{Token: "static"})
	updated, err := client.UpdateUserTelegram(context.Background(), "u1", map[string]any{
		"chatId": "200",
		"optIn":  true,
	})
	if err != nil {
		t.Fatalf("обновление упало: %v", err)
	}
	if updated.TelegramChatID != "200" {
		t.Fatalf("ответ сервера должен возвращаться вызывающему: %+v", updated)
	}
	if received["chatId"] != "200" || received["optIn"] != true {
		t.Fatalf("diff дошёл не полностью: %v", received)
	}

	if _, err := client.UpdateUserTelegram(context.Background(), "", nil); err == nil {
		t.Fatalf("пустой id пользователя должен отклоняться")
	}
}
