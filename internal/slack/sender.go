// Package slack forwards prompts to Slack, through an incoming webhook or a
// bot token and channel.
package slack

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

const defaultChannel = "#general"

// Poster is the subset of *slack.Client used for bot-token delivery.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// WebhookSender posts to an incoming webhook URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender uses http.DefaultClient when client is nil.
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{url: url, client: client}
}

func (s *WebhookSender) Send(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, msg); err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}

// BotSender posts as a bot user to one channel.
type BotSender struct {
	client  Poster
	channel string
}

// NewBotSender creates a Slack API client for token.
func NewBotSender(token, channel string) *BotSender {
	return newBotSender(slack.New(token), channel)
}

func newBotSender(client Poster, channel string) *BotSender {
	if channel == "" {
		channel = defaultChannel
	}
	return &BotSender{client: client, channel: channel}
}

func (s *BotSender) Send(ctx context.Context, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post message to %s: %w", s.channel, err)
	}
	return nil
}
