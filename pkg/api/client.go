package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/promptline/internal/types"
)

const userAgent = "promptline/1.0"

// Client implements types.Backend over HTTP.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// New creates a backend client with the given configuration.
func New(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) GetCharacter(ctx context.Context) (*types.Character, error) {
	var character types.Character
	if err := c.do(ctx, http.MethodGet, "/character", nil, &character); err != nil {
		return nil, err
	}
	return &character, nil
}

func (c *Client) SaveCharacter(ctx context.Context, character types.Character) error {
	return c.do(ctx, http.MethodPost, "/character", character, nil)
}

func (c *Client) GetTheme(ctx context.Context) (*types.Theme, error) {
	var theme types.Theme
	if err := c.do(ctx, http.MethodGet, "/theme", nil, &theme); err != nil {
		return nil, err
	}
	return &theme, nil
}

func (c *Client) SaveTheme(ctx context.Context, theme types.Theme) error {
	return c.do(ctx, http.MethodPost, "/theme", theme, nil)
}

// GetSettings fills fields the backend leaves unset with DefaultSettings.
func (c *Client) GetSettings(ctx context.Context) (*types.Settings, error) {
	settings := types.DefaultSettings()
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (c *Client) SaveSettings(ctx context.Context, settings types.Settings) error {
	return c.do(ctx, http.MethodPost, "/settings", settings, nil)
}

func (c *Client) StartSession(ctx context.Context, req types.StartRequest) (types.SessionID, error) {
	var resp types.StartResponse
	if err := c.do(ctx, http.MethodPost, "/start_session", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("start session: backend returned an empty session id")
	}
	return resp.SessionID, nil
}

func (c *Client) StopSession(ctx context.Context, id types.SessionID) error {
	return c.do(ctx, http.MethodPost, "/stop_session/"+url.PathEscape(string(id)), nil, nil)
}

func (c *Client) FetchPrompts(ctx context.Context, id types.SessionID, lastSeen int) (*types.PromptBatch, error) {
	path := "/prompts/" + url.PathEscape(string(id)) + "?last_seen=" + strconv.Itoa(lastSeen)
	var batch types.PromptBatch
	if err := c.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// do sends one JSON request. A nil in sends no body; a nil out discards the
// response body after the status check.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", string(types.NewRequestID()))
	if c.config.ClientID != "" {
		req.Header.Set("X-Client-ID", string(c.config.ClientID))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
