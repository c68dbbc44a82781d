package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/usecase/broadcast"
)

const maxBroadcastBody = 1 << 20

type broadcastRequest struct {
	Message   string   `json:"message"`
	Logins    []string `json:"logins"`
	ParseMode string   `json:"parseMode"`
}

// RegisterBroadcast подключает эндпоинт разовой рассылки. При заданном токене
// доступ проверяется по заголовку Authorization (Bearer) или X-API-Key.
func RegisterBroadcast(r chi.Router, svc *broadcast.Service, accessToken string, log zerolog.Logger) {
	r.Post("/broadcast", func(w http.ResponseWriter, req *http.Request) {
		if !authorized(req, accessToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		var payload broadcastRequest
		body := http.MaxBytesReader(w, req.Body, maxBroadcastBody)
		if err := json.NewDecoder(body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "некорректный JSON"})
			return
		}
		mode, ok := domain.NormalizeParseMode(payload.ParseMode)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "неизвестный режим разметки"})
			return
		}
		result, err := svc.Send(req.Context(), payload.Message, payload.Logins, mode)
		if err != nil {
			if errors.Is(err, broadcast.ErrEmptyMessage) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			log.Error().Err(err).Msg("рассылка завершилась ошибкой")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "рассылка не выполнена"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"id":     result.ID,
			"sent":   result.Sent,
			"total":  result.Total,
		})
	})
}

func authorized(req *http.Request, token string) bool {
	if token == "" {
		return true
	}
	auth := req.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):]) == token
	}
	if key := strings.TrimSpace(req.Header.Get("X-API-Key")); key != "" {
		return key == token
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
