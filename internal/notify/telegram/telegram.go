package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultAPIBase = "https://api.telegram.org"

// Client sends messages via the Telegram Bot API.
type Client struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
}

// New creates a Telegram notifier. Returns nil if token or chatID is empty.
func New(botToken, chatID string) *Client {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &Client{
		apiBase:    defaultAPIBase,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{},
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

const maxMessageLen = 4096

// Send delivers the messages in order. Consecutive messages are packed into
// one Telegram message while they fit in 4096 characters; a message is only
// split when it is longer than that on its own.
func (c *Client) Send(ctx context.Context, messages []string) error {
	chunks := packMessages(messages, maxMessageLen)
	for i, chunk := range chunks {
		if err := c.sendRaw(ctx, chunk); err != nil {
			return fmt.Errorf("message %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// packMessages joins messages with blank lines into chunks of at most maxLen.
func packMessages(messages []string, maxLen int) []string {
	var (
		chunks []string
		cur    string
	)
	for _, m := range messages {
		if m == "" {
			continue
		}
		if len(m) > maxLen {
			if cur != "" {
				chunks = append(chunks, cur)
				cur = ""
			}
			chunks = append(chunks, splitMessage(m, maxLen)...)
			continue
		}
		switch {
		case cur == "":
			cur = m
		case len(cur)+2+len(m) <= maxLen:
			cur += "\n\n" + m
		default:
			chunks = append(chunks, cur)
			cur = m
		}
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

func (c *Client) sendRaw(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var apiResp apiResponse
		json.Unmarshal(respBody, &apiResp)
		return fmt.Errorf("telegram API %d: %s", resp.StatusCode, apiResp.Description)
	}
	return nil
}

// splitMessage breaks text into chunks of at most maxLen characters,
// splitting on paragraph boundaries ("\n\n") when possible.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Find a split point at a paragraph boundary
		cut := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n\n"); idx > 0 {
			cut = idx
		} else if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cut = idx
		}

		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return chunks
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
