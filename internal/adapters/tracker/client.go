package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
)

// ErrNoCredentials возвращается, если не заданы ни токен, ни сервисная учётка.
var ErrNoCredentials = errors.New("не заданы API_TOKEN или API_SERVICE_LOGIN/API_SERVICE_PASSWORD")

// APIError сохраняет HTTP-статус неуспешного запроса к трекеру.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api трекера вернул статус %d", e.Status)
	}
	return fmt.Sprintf("api трекера вернул статус %d: %s", e.Status, e.Message)
}

// Config задаёт параметры клиента трекера.
type Config struct {
	BaseURL         string
	Token           string
	ServiceLogin    string
	ServicePassword string
	Timeout         time.Duration
}

// Client реализует domain.TrackerAPI поверх HTTP API трекера.
// При статическом токене повторная аутентификация не выполняется;
// при сервисной учётке ответ 401 приводит ровно к одному повторному логину.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger

	mu    sync.Mutex
	token string
}

var _ domain.TrackerAPI = (*Client)(nil)

// New создаёт клиент. Отсутствие учётных данных — ошибка конфигурации.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Token == "" && (cfg.ServiceLogin == "" || cfg.ServicePassword == "") {
		return nil, ErrNoCredentials
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		token:      cfg.Token,
	}, nil
}

// SetHTTPClient подменяет HTTP-клиент (используется в тестах).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.cfg.ServiceLogin == "" || c.cfg.ServicePassword == "" {
		return "", ErrNoCredentials
	}
	payload, err := json.Marshal(map[string]string{
		"login":    c.cfg.ServiceLogin,
		"password": c.cfg.ServicePassword,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("создание запроса логина: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("tracker_api", "login", "/auth/login", start, err)
	if err != nil {
		return "", fmt.Errorf("логин в api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", readAPIError(resp)
	}
	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("разбор ответа логина: %w", err)
	}
	if decoded.Token == "" {
		return "", errors.New("логин прошёл, но токен в ответе отсутствует")
	}
	c.log.Info().Str("user", decoded.User.Login).Msg("аутентификация в api трекера")
	return decoded.Token, nil
}

func (c *Client) ensureAuth(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) reauth(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body any, out any) error {
	token, err := c.ensureAuth(ctx)
	if err != nil {
		return err
	}
	err = c.doOnce(ctx, method, endpoint, body, token, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && c.cfg.Token == "" {
		c.log.Warn().Msg("токен api истёк, повторная аутентификация")
		token, loginErr := c.reauth(ctx)
		if loginErr != nil {
			return loginErr
		}
		return c.doOnce(ctx, method, endpoint, body, token, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body any, token string, out any) error {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, buf)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("tracker_api", strings.ToLower(method), endpoint, start, err)
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("разбор ответа %s %s: %w", method, endpoint, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := ""
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err == nil {
			message = decoded.Message
			if message == "" {
				message = decoded.Error
			}
		}
		if message == "" {
			message = strings.TrimSpace(string(data))
		}
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}

// FetchUsers возвращает полный список пользователей трекера.
func (c *Client) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var decoded struct {
		Users []domain.User `json:"users"`
	}
	if err := c.request(ctx, http.MethodGet, "/users", nil, &decoded); err != nil {
		return nil, err
	}
	return decoded.Users, nil
}

// FetchTasks возвращает текущие задачи. API отдаёт либо голый массив,
// либо объект {"tasks": [...]}.
func (c *Client) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, "/tasks", nil, &raw); err != nil {
		return nil, err
	}
	var tasks []domain.Task
	if err := json.Unmarshal(raw, &tasks); err == nil {
		return tasks, nil
	}
	var wrapped struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("разбор списка задач: %w", err)
	}
	return wrapped.Tasks, nil
}

// UpdateUserTelegram отправляет частичное обновление Telegram-полей пользователя.
func (c *Client) UpdateUserTelegram(ctx context.Context, userID string, diff map[string]any) (domain.User, error) {
	if userID == "" {
		return domain.User{}, errors.New("для обновления Telegram нужен id пользователя")
	}
	var decoded struct {
		User domain.User `json:"user"`
	}
	endpoint := fmt.Sprintf("/users/%s/telegram", userID)
	if err := c.request(ctx, http.MethodPut, endpoint, diff, &decoded); err != nil {
		return domain.User{}, err
	}
	return decoded.User, nil
}
