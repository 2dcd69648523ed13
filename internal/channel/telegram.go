package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"guestdesk/internal/domain"
	"guestdesk/internal/metrics"
	"guestdesk/internal/notify"
	"guestdesk/internal/operator"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel for Telegram. One bot serves both
// sides: guests write to it like any support chat, while registered
// operators use the same bot to receive alerts, claim conversations, and
// reply. A sender whose chat id matches an active operator is routed to the
// desk instead of the message bus.
type Telegram struct {
	token string

	bot        *tgbotapi.BotAPI
	bus        domain.MessageBus
	store      domain.Store
	desk       *operator.Desk
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

type TelegramConfig struct {
	Token      string
	Store      domain.Store
	Desk       *operator.Desk
	Dispatcher *notify.Dispatcher
	Logger     *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:      cfg.Token,
		store:      cfg.Store,
		desk:       cfg.Desk,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// SetDispatcher breaks the construction cycle: the dispatcher needs the
// channel as its alert sender, the channel needs the dispatcher for history
// requests.
func (t *Telegram) SetDispatcher(d *notify.Dispatcher) { t.dispatcher = d }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ExternalID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ExternalID, "err", err)
			metrics.SendFailures.Inc()
			return
		}
		t.sendMessage(chatID, msg.Text)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop shuts down the Telegram bot.
// Note: StopReceivingUpdates is already called when ctx is cancelled in Start().
// Calling it twice panics, so Stop() is a no-op.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendMessage(id, text)
	return nil
}

// SendAlert implements notify.AlertSender: an operator notification with
// optional inline action buttons.
func (t *Telegram) SendAlert(ctx context.Context, chatID string, text string, actions []notify.Action) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid operator chat ID: %w", err)
	}

	msg := tgbotapi.NewMessage(id, text)
	if len(actions) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
		for _, a := range actions {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	op, err := t.store.OperatorByChatID(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		t.logger.Error("operator lookup failed", "chat_id", chatID, "err", err)
		return
	}
	if op != nil && op.IsActive {
		t.handleOperatorMessage(ctx, chatID, op.ID, update.Message)
		return
	}

	t.handleGuestMessage(chatID, update.Message)
}

func (t *Telegram) handleGuestMessage(chatID int64, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			// First contact is greeted by the router once the first real
			// message arrives, so /start needs no reply of its own.
			return
		default:
			t.sendMessage(chatID, "Просто напишите ваш вопрос, и я помогу.")
			return
		}
	}

	t.logger.Info("telegram guest message received",
		"chat_id", chatID,
		"text_len", len(msg.Text),
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	t.bus.Publish(domain.InboundMessage{
		Channel:     domain.ChannelTelegram,
		ExternalID:  strconv.FormatInt(chatID, 10),
		DisplayName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		Username:    msg.From.UserName,
		Text:        strings.TrimSpace(msg.Text),
		Timestamp:   time.Unix(int64(msg.Date), 0),
	})
}

func (t *Telegram) handleOperatorMessage(ctx context.Context, chatID, operatorID int64, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		t.handleOperatorCommand(ctx, chatID, operatorID, msg.Command())
		return
	}

	if err := t.desk.Reply(ctx, operatorID, strings.TrimSpace(msg.Text)); err != nil {
		t.logger.Warn("operator reply failed", "operator", operatorID, "err", err)
		t.sendMessage(chatID, "Нет активного диалога. Возьмите диалог кнопкой в уведомлении.")
	}
}

func (t *Telegram) handleOperatorCommand(ctx context.Context, chatID, operatorID int64, cmd string) {
	switch cmd {
	case "finish":
		entry, err := t.desk.Finish(ctx, operatorID)
		if err != nil {
			t.sendMessage(chatID, "Нет активного диалога.")
			return
		}
		if entry != nil {
			t.sendMessage(chatID, fmt.Sprintf("Диалог закрыт. Ответ сохранён в базу знаний (#%d).", entry.ID))
		} else {
			t.sendMessage(chatID, "Диалог закрыт.")
		}
	case "cancel":
		if err := t.desk.Cancel(ctx, operatorID); err != nil {
			t.sendMessage(chatID, "Нет активного диалога.")
			return
		}
		t.sendMessage(chatID, "Диалог закрыт без сохранения.")
	case "save":
		entry, err := t.desk.SaveToKnowledge(ctx, operatorID)
		if err != nil {
			t.sendMessage(chatID, "Нечего сохранять: нужен ваш ответ на вопрос гостя.")
			return
		}
		t.sendMessage(chatID, fmt.Sprintf("Сохранено в базу знаний (#%d).", entry.ID))
	case "status":
		if convID, ok := t.desk.Current(operatorID); ok {
			t.sendMessage(chatID, fmt.Sprintf("Вы ведёте диалог #%d.\n/finish — закрыть, /cancel — закрыть без сохранения.", convID))
		} else {
			t.sendMessage(chatID, "Активного диалога нет.")
		}
	case "help", "start":
		t.sendMessage(chatID, "Команды оператора:\n/status — текущий диалог\n/finish — закрыть диалог (с автосохранением ответа)\n/cancel — закрыть без сохранения\n/save — сохранить последний ответ в базу знаний")
	default:
		t.sendMessage(chatID, "Неизвестная команда. /help — список команд.")
	}
}

func (t *Telegram) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	callback := tgbotapi.NewCallback(cq.ID, "")
	_, _ = t.bot.Request(callback)

	op, err := t.store.OperatorByChatID(ctx, strconv.FormatInt(chatID, 10))
	if err != nil || op == nil || !op.IsActive {
		t.logger.Warn("callback from non-operator chat", "chat_id", chatID, "err", err)
		return
	}

	action, rest, ok := strings.Cut(cq.Data, ":")
	if !ok {
		return
	}
	convID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return
	}

	switch action {
	case "take":
		taken, err := t.desk.Take(ctx, convID, op.ID)
		if err != nil {
			t.logger.Error("take failed", "conversation", convID, "operator", op.ID, "err", err)
			t.sendMessage(chatID, "Не удалось взять диалог, попробуйте ещё раз.")
			return
		}
		if !taken {
			t.sendMessage(chatID, fmt.Sprintf("Диалог #%d уже взят другим оператором.", convID))
			return
		}
		t.sendMessage(chatID, fmt.Sprintf("Вы взяли диалог #%d. Пишите сюда, гость получит ваши сообщения.\n/finish — закрыть диалог.", convID))
	case "history":
		if err := t.dispatcher.SendHistory(ctx, strconv.FormatInt(chatID, 10), convID); err != nil {
			t.logger.Warn("history send failed", "conversation", convID, "err", err)
		}
	}
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring a
// newline in the back half of the window and otherwise cutting on a rune
// boundary so multibyte text never splits mid-character.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
				for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
					cutAt--
				}
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// sendChunk sends a single message chunk with retry and rate limit handling.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		metrics.SendFailures.Inc()
		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
