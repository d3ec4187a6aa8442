package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// Telegram 把运维告警推送到指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	client   *resty.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return newTelegram(telegramAPI, botToken, chatID)
}

func newTelegram(baseURL, botToken, chatID string) *Telegram {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= 500
		})
	return &Telegram{BotToken: botToken, ChatID: chatID, client: client}
}

// SendText 发送 Markdown 文本，5xx 与网络错误最多重试 2 次。
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	resp, err := t.client.R().
		SetBody(map[string]any{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/bot" + t.BotToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram status=%d", resp.StatusCode())
	}
	return nil
}
