package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"task-reminder-bot/internal/adapters/telegram"
	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/metrics"
	"task-reminder-bot/internal/usecase/directory"
)

// chunkLimit — порог разбиения длинных ответов (список задач).
const chunkLimit = 3500

// command — закрытый набор входящих команд бота.
type command int

const (
	cmdPlainText command = iota
	cmdStart
	cmdStop
	cmdTasks
	cmdHelp
	cmdUnknown
)

func parseCommand(text string) command {
	switch {
	case !strings.HasPrefix(text, "/"):
		return cmdPlainText
	case strings.HasPrefix(text, "/start"):
		return cmdStart
	case strings.HasPrefix(text, "/stop"):
		return cmdStop
	case strings.HasPrefix(text, "/tasks"):
		return cmdTasks
	case strings.HasPrefix(text, "/help"):
		return cmdHelp
	}
	return cmdUnknown
}

// Handler обслуживает входящие сообщения бота.
type Handler struct {
	bot       *tgbotapi.BotAPI
	log       zerolog.Logger
	directory *directory.Directory
	api       domain.TrackerAPI
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, dir *directory.Directory, api domain.TrackerAPI) *Handler {
	return &Handler{bot: bot, log: log, directory: dir, api: api}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	text := strings.TrimSpace(msg.Text)
	switch parseCommand(text) {
	case cmdStart:
		h.handleStart(ctx, msg)
	case cmdStop:
		h.handleStop(ctx, msg.Chat.ID)
	case cmdTasks:
		h.handleTasks(ctx, msg)
	case cmdHelp:
		h.handleHelp(msg.Chat.ID)
	case cmdPlainText:
		if text != "" {
			h.reply(msg.Chat.ID, "Я понимаю команды /start, /tasks, /stop и /help.")
		}
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.UserName == "" {
		h.reply(msg.Chat.ID, "У вас не заполнен username в Telegram. Установите его в настройках и повторите /start.")
		return
	}
	username := msg.From.UserName
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	result, err := h.directory.SyncTelegramLink(ctx, username, chatID, true)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("не удалось привязать Telegram-чат")
		h.reply(msg.Chat.ID, "Произошла ошибка при привязке. Повторите попытку позже.")
		return
	}
	switch result.Status {
	case directory.StatusLinked, directory.StatusAlreadyLinked:
		h.reply(msg.Chat.ID, "Связь с аккаунтом подтверждена. Я буду присылать вам напоминания по задачам. Команда /tasks покажет ваши текущие задачи.")
	case directory.StatusNotFound:
		h.reply(msg.Chat.ID, fmt.Sprintf("Не нашёл пользователя с логином %s. Убедитесь, что логин в приложении совпадает с Telegram username.", username))
	default:
		h.reply(msg.Chat.ID, "Не удалось обновить Telegram данные. Попробуйте позже.")
	}
}

func (h *Handler) handleStop(ctx context.Context, chatID int64) {
	result, err := h.directory.OptOutByChatID(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось отключить уведомления")
		h.reply(chatID, "Не удалось отключить уведомления. Попробуйте позже.")
		return
	}
	if result.Status == directory.StatusOptedOut {
		h.reply(chatID, "Уведомления отключены. Чтобы вернуться — отправьте /start.")
		return
	}
	h.reply(chatID, "У вас и так не было активных уведомлений.")
}

func (h *Handler) handleTasks(ctx context.Context, msg *tgbotapi.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	user, ok := h.directory.UserByChatID(chatID)
	if !ok && msg.From != nil {
		user, ok = h.directory.UserByLogin(msg.From.UserName)
	}
	if !ok {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя. Отправьте /start для привязки.")
		return
	}
	tasks, err := h.api.FetchTasks(ctx)
	if err != nil {
		h.log.Error().Err(err).Str("login", user.Login).Msg("не удалось загрузить задачи пользователя")
		h.reply(msg.Chat.ID, "Не удалось загрузить задачи. Попробуйте позже.")
		return
	}
	myTasks := domain.TasksForLogin(tasks, user.Login)
	if len(myTasks) == 0 {
		h.reply(msg.Chat.ID, "На вас пока нет задач. Хорошего дня!")
		return
	}
	now := time.Now()
	lines := []string{"Ваши задачи:", ""}
	for _, task := range myTasks {
		lines = append(lines, domain.TaskSummary(task, now))
	}
	h.reply(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handler) handleHelp(chatID int64) {
	h.reply(chatID, strings.Join([]string{
		"Доступные команды:",
		"/start — привязать аккаунт и включить уведомления",
		"/tasks — показать задачи, где вы указаны ответственным",
		"/stop — отключить уведомления",
		"/help — эта подсказка",
	}, "\n"))
}

func (h *Handler) reply(chatID int64, text string) {
	parts := telegram.SplitMessageLimit(text, chunkLimit)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}
