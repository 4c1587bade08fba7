package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cardio-ai/triage/internal/shared/config"
	"github.com/cardio-ai/triage/internal/shared/errors"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramClient sends Markdown messages to the doctor's chat via the Bot API.
type TelegramClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     int64
}

func NewTelegramClient(cfg config.TelegramConfig) *TelegramClient {
	return &TelegramClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    telegramAPIBase,
		token:      cfg.BotToken,
		chatID:     cfg.DoctorChatID,
	}
}

func (t *TelegramClient) SendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return errors.Wrap(err, "marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send telegram message")
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "decode telegram response")
	}
	if !result.OK {
		return errors.Internal(fmt.Errorf("telegram api: %s", result.Description))
	}
	return nil
}
