package queues

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultTelegramURL = "https://api.telegram.org"

var ErrNoChatID = errors.New("no telegram chat id for recipient")

// TelegramNotifier sends notifications through the Telegram Bot API. The
// recipient address is used as chat id, falling back to the default chat.
type TelegramNotifier struct {
	baseURL       string
	token         string
	defaultChatID string
	client        *http.Client
}

func NewTelegramNotifier(baseURL, token, defaultChatID string, client *http.Client) *TelegramNotifier {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &TelegramNotifier{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		defaultChatID: defaultChatID,
		client:        client,
	}
}

func (n *TelegramNotifier) Name() string {
	return "telegram"
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (n *TelegramNotifier) Notify(ctx context.Context, notification Notification) error {
	chatID := notification.Recipient
	if chatID == "" {
		chatID = n.defaultChatID
	}

	if chatID == "" {
		return fmt.Errorf("%w: role %s", ErrNoChatID, notification.Role)
	}

	body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: notification.Message})
	if err != nil {
		return err
	}

	url := n.baseURL + "/bot" + n.token + "/sendMessage"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var decoded telegramResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !decoded.OK {
		return fmt.Errorf("telegram rejected message: status %d: %s", resp.StatusCode, decoded.Description)
	}

	return nil
}
