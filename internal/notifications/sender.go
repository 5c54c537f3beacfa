package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gikundiro/fanpay-backend/pkg/config"
)

// Message is one outbound SMS to a payer.
type Message struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPSender posts messages to the SMS provider's JSON endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPSender(cfg config.NotificationsConfig) (*HTTPSender, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("notification endpoint is required")
	}
	return &HTTPSender{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("notification provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
