package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/session"
)

type sent struct {
	chatID    int64
	text      string
	parseMode string
}

type fakeBot struct {
	sent         []sent
	rejectFormat bool
	fail         bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if b.fail {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	if b.rejectFormat && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, sent{chatID: msg.ChatID, text: msg.Text, parseMode: msg.ParseMode})
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (b *fakeBot) StopReceivingUpdates() {}

func (b *fakeBot) last(t *testing.T) sent {
	t.Helper()
	if len(b.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return b.sent[len(b.sent)-1]
}

type fakeControl struct {
	status   session.Status
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (c *fakeControl) Start(context.Context) error {
	c.starts++
	if c.startErr == nil {
		c.status.State = session.Active
	}
	return c.startErr
}

func (c *fakeControl) Stop(context.Context) error {
	c.stops++
	if c.stopErr == nil {
		c.status.State = session.Idle
	}
	return c.stopErr
}

func (c *fakeControl) Status() session.Status { return c.status }

func command(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(text)},
		},
	}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 || parts[0] != short {
		t.Fatalf("expected [%q], got %q", short, parts)
	}

	parts = splitMessage(strings.Repeat("a", 5000))
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSendUsesMarkdown(t *testing.T) {
	bot := &fakeBot{}
	a := &Adapter{bot: bot, chatID: 42}

	if err := a.Send(context.Background(), "Prompt #1\n\nWrite about *rain*."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := bot.last(t)
	if got.chatID != 42 || got.parseMode != tgbotapi.ModeMarkdown {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestSendFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{rejectFormat: true}
	a := &Adapter{bot: bot, chatID: 42}

	if err := a.Send(context.Background(), "unbalanced *markdown"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := bot.last(t); got.parseMode != "" {
		t.Errorf("expected plain text retry, got parse mode %q", got.parseMode)
	}
}

func TestSendReportsFailure(t *testing.T) {
	a := &Adapter{bot: &fakeBot{fail: true}, chatID: 42}
	if err := a.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartCommand(t *testing.T) {
	bot := &fakeBot{}
	ctrl := &fakeControl{}
	a := &Adapter{bot: bot, chatID: 42, control: ctrl}

	a.handleMessage(context.Background(), command(42, "/start"))
	if ctrl.starts != 1 {
		t.Fatalf("expected 1 start, got %d", ctrl.starts)
	}
	if got := bot.last(t).text; got != "Prompt session started!" {
		t.Errorf("unexpected reply %q", got)
	}

	ctrl.startErr = configstore.ErrThemeRequired
	ctrl.status.State = session.Idle
	a.handleMessage(context.Background(), command(42, "/start"))
	if got := bot.last(t).text; got != "Please define a theme first" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestStopCommand(t *testing.T) {
	bot := &fakeBot{}
	ctrl := &fakeControl{}
	a := &Adapter{bot: bot, chatID: 42, control: ctrl}

	a.handleMessage(context.Background(), command(42, "/stop"))
	if ctrl.stops != 0 {
		t.Error("stop sent without a running session")
	}
	if got := bot.last(t).text; got != "No session is running." {
		t.Errorf("unexpected reply %q", got)
	}

	ctrl.status.State = session.Active
	a.handleMessage(context.Background(), command(42, "/stop"))
	if got := bot.last(t).text; got != "Session ended" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestStatusCommand(t *testing.T) {
	bot := &fakeBot{}
	ctrl := &fakeControl{status: session.Status{State: session.Active, SessionID: "1700000000.000000", Rendered: 3}}
	a := &Adapter{bot: bot, chatID: 42, control: ctrl}

	a.handleMessage(context.Background(), command(42, "/status"))
	want := "Session: active (1700000000.000000)\nPrompts: 3"
	if got := bot.last(t).text; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestIgnoresOtherChats(t *testing.T) {
	bot := &fakeBot{}
	ctrl := &fakeControl{}
	a := &Adapter{bot: bot, chatID: 42, control: ctrl}

	a.handleMessage(context.Background(), command(7, "/start"))
	if ctrl.starts != 0 || len(bot.sent) != 0 {
		t.Errorf("message from another chat was handled: starts=%d sent=%d", ctrl.starts, len(bot.sent))
	}
}

func TestUnknownCommand(t *testing.T) {
	bot := &fakeBot{}
	a := &Adapter{bot: bot, chatID: 42, control: &fakeControl{}}

	a.handleMessage(context.Background(), command(42, "/new"))
	if got := bot.last(t).text; !strings.HasPrefix(got, "Unknown command") {
		t.Errorf("unexpected reply %q", got)
	}
}
