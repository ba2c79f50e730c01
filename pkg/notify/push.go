package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PushConfig holds settings for the push gateway.
type PushConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// PushSender posts messages to an HTTP push gateway. The request shape
// follows the Pushover message API: a form POST with token, recipient
// key, title, and message.
type PushSender struct {
	cfg    PushConfig
	client *http.Client
}

func NewPushSender(cfg PushConfig) *PushSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return Terminal(ErrNoRecipient)
	}

	form := url.Values{}
	form.Set("token", s.cfg.Token)
	form.Set("user", msg.Recipient)
	form.Set("title", msg.Subject)
	form.Set("message", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Terminal(fmt.Errorf("building push request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return Retryable(fmt.Errorf("push request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	sendErr := fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return Retryable(sendErr)
	default:
		return Terminal(sendErr)
	}
}
