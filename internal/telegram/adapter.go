// Package telegram forwards prompts to a Telegram chat and accepts /start,
// /stop and /status commands from that chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/promptline/internal/session"
)

const maxTelegramMessage = 4096

// Control is the part of the session controller the bot drives.
type Control interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() session.Status
}

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter bridges one Telegram chat to the session controller.
type Adapter struct {
	bot     botAPI
	chatID  int64
	control Control
}

// New connects to the Bot API. control may be nil when the adapter is only
// used for delivery.
func New(token string, chatID int64, control Control) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot, chatID: chatID, control: control}, nil
}

// Send delivers text to the configured chat. It satisfies delivery.Sender.
func (a *Adapter) Send(_ context.Context, text string) error {
	return a.sendResponse(a.chatID, text)
}

// Start long-polls for updates until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != a.chatID {
		slog.Warn("ignoring message from unknown chat", "chat_id", chatID(msg))
		return
	}
	if !msg.IsCommand() {
		a.reply(msg.Chat.ID, "Available commands: /start, /stop, /status")
		return
	}
	a.handleCommand(ctx, msg)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	id := msg.Chat.ID
	if a.control == nil {
		a.reply(id, "Session control is not enabled.")
		return
	}

	switch msg.Command() {
	case "start":
		if err := a.control.Start(ctx); err != nil {
			a.reply(id, session.UserMessage(err))
			return
		}
		a.reply(id, "Prompt session started!")

	case "stop":
		if a.control.Status().State == session.Idle {
			a.reply(id, "No session is running.")
			return
		}
		if err := a.control.Stop(ctx); err != nil {
			a.reply(id, "Error stopping session")
			return
		}
		a.reply(id, "Session ended")

	case "status":
		a.reply(id, formatStatus(a.control.Status()))

	default:
		a.reply(id, "Unknown command. Available: /start, /stop, /status")
	}
}

func formatStatus(st session.Status) string {
	if st.State == session.Idle {
		return "Session: idle"
	}
	return fmt.Sprintf("Session: %s (%s)\nPrompts: %d", st.State, st.SessionID, st.Rendered)
}

func (a *Adapter) reply(chatID int64, text string) {
	if err := a.sendResponse(chatID, text); err != nil {
		slog.Error("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

// sendResponse sends text in parts, retrying each part without Markdown when
// Telegram rejects the formatting.
func (a *Adapter) sendResponse(chatID int64, text string) error {
	var errs []error
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				errs = append(errs, fmt.Errorf("send message: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func chatID(msg *tgbotapi.Message) int64 {
	if msg.Chat == nil {
		return 0
	}
	return msg.Chat.ID
}
