package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 机器人 webhook 的发送超时。
const webhookTimeout = 10 * time.Second

type webhookClient struct {
	url        string
	httpClient *http.Client
}

func newWebhookClient(url string) webhookClient {
	return webhookClient{url: url, httpClient: &http.Client{Timeout: webhookTimeout}}
}

func (c webhookClient) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("编码 webhook 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送 webhook 失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook 返回 %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// DingTalkWebhook 通过钉钉机器人 webhook 发送文本消息。
type DingTalkWebhook struct {
	client webhookClient
}

// NewDingTalkWebhook 创建一个钉钉 webhook 发送器。
func NewDingTalkWebhook(url string) *DingTalkWebhook {
	return &DingTalkWebhook{client: newWebhookClient(url)}
}

// Send 实现 DingTalkSender。
func (w *DingTalkWebhook) Send(ctx context.Context, content string) error {
	return w.client.post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

// SlackWebhook 通过 Slack incoming webhook 发送消息。
type SlackWebhook struct {
	client webhookClient
}

// NewSlackWebhook 创建一个 Slack webhook 发送器。
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{client: newWebhookClient(url)}
}

// Send 实现 SlackSender。
func (w *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	return w.client.post(ctx, map[string]string{
		"channel": channel,
		"text":    content,
	})
}

var (
	_ DingTalkSender = (*DingTalkWebhook)(nil)
	_ SlackSender    = (*SlackWebhook)(nil)
)
