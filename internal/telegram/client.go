// Package telegram is a minimal Telegram Bot API client covering the calls
// this bot needs: sending and editing messages with inline keyboards,
// answering callback queries, downloading voice files and registering the
// webhook. Everything else the Bot API offers is deliberately not wrapped.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production Bot API endpoint. Tests point the client
// at an httptest server instead.
const DefaultBaseURL = "https://api.telegram.org"

// maxDownloadBytes caps voice file downloads. Telegram voice notes are OGG
// Opus and a one-sentence recording stays well under this.
const maxDownloadBytes = 20 << 20

// apiResponse is the standard Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Client is an HTTP client for the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom API endpoint.
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

// call POSTs a JSON payload to a Bot API method and unmarshals the result
// into out (which may be nil when the result is not needed).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshalling %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: reading %s response: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("telegram: decoding %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s failed (status %d): %s", method, resp.StatusCode, env.Description)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: decoding %s result: %w", method, err)
		}
	}
	return nil
}

// sendMessageRequest is the payload for sendMessage.
type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

// Send delivers a new message to the chat, optionally with an inline
// keyboard, and returns the new message's ID.
func (c *Client) Send(ctx context.Context, chatID int64, text string, kb *InlineKeyboard) (int, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "Markdown",
		ReplyMarkup: kb,
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// editMessageRequest is the payload for editMessageText.
type editMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Edit replaces the text of an existing message in place. This also removes
// any inline keyboard attached to it, which is how button presses are
// acknowledged.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	return c.call(ctx, "editMessageText", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: "Markdown",
	}, nil)
}

// AnswerCallback acknowledges a callback query so the client stops showing
// its progress spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]string{
		"callback_query_id": callbackID,
	}, nil)
}

// file is the result of getFile.
type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// Fetch downloads the bytes of a file by its Bot API file ID. This is the
// two-step getFile + file download dance the Bot API requires.
func (c *Client) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	var f file
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram: getFile returned no file path for %s", fileID)
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: creating download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram: reading file body: %w", err)
	}
	return data, nil
}

// SetWebhook registers the public callback URL with Telegram so updates are
// pushed instead of polled. Best effort: the caller decides whether a
// failure is fatal.
func (c *Client) SetWebhook(ctx context.Context, webhookURL string) error {
	if _, err := url.Parse(webhookURL); err != nil {
		return fmt.Errorf("telegram: invalid webhook url: %w", err)
	}
	return c.call(ctx, "setWebhook", map[string]string{"url": webhookURL}, nil)
}
