package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers a message to a chat recipient. Delivery is best
// effort: callers log failures and move on, they never retry here and
// never roll back state on a failed send.
type Notifier interface {
	Notify(ctx context.Context, recipientID, message string) error
}

// New selects a provider by name. Unknown names fall back to the log
// provider so a misconfigured gateway degrades loudly but safely.
func New(provider, webhookURL, webhookToken string, timeout time.Duration, logger *zap.Logger) Notifier {
	switch provider {
	case "webhook":
		if webhookURL == "" {
			logger.Warn("notify provider is webhook but NOTIFY_WEBHOOK_URL is empty, falling back to log")
			return NewLog(logger)
		}
		return NewWebhook(webhookURL, webhookToken, timeout)
	case "", "log":
		return NewLog(logger)
	default:
		logger.Warn("unknown notify provider, falling back to log", zap.String("provider", provider))
		return NewLog(logger)
	}
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLog returns a notifier that only logs. Used in development and as
// the fallback when no delivery channel is configured.
func NewLog(logger *zap.Logger) Notifier {
	return logNotifier{logger: logger}
}

func (n logNotifier) Notify(_ context.Context, recipientID, message string) error {
	n.logger.Info("notify", zap.String("recipient", recipientID), zap.String("message", message))
	return nil
}

type webhookNotifier struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhook returns a notifier that POSTs messages to the chat layer's
// delivery endpoint. The client timeout bounds every send so a slow
// gateway cannot stall the state machine.
func NewWebhook(url, token string, timeout time.Duration) Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &webhookNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

func (n *webhookNotifier) Notify(ctx context.Context, recipientID, message string) error {
	body, err := json.Marshal(webhookPayload{RecipientID: recipientID, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook: %w", errors.New(resp.Status))
	}
	return nil
}
