package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/infra/config"
	"github.com/jbleroy75/boisson-api/internal/infra/logger"
)

const sendTimeout = 10 * time.Second

// ResendClient delivers transactional email through the Resend HTTP API.
type ResendClient struct {
	baseURL string
	apiKey  string
	from    string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewResendClient constructs a Resend-backed notifier.
func NewResendClient(cfg config.EmailSettings, log *zap.Logger) *ResendClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResendClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		httpc:   &http.Client{Timeout: sendTimeout},
		logger:  log,
	}
}

// sendEmailRequest matches the Resend send email API request body.
type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// SendPasswordResetEmail delivers the reset link to the account address.
func (c *ResendClient) SendPasswordResetEmail(ctx context.Context, msg port.PasswordResetEmail) error {
	greeting := "Hello"
	if msg.Name != "" {
		greeting = fmt.Sprintf("Hello %s", msg.Name)
	}

	body := sendEmailRequest{
		From:    c.from,
		To:      []string{msg.Email},
		Subject: "Reset your Boisson password",
		Text: fmt.Sprintf(
			"%s,\n\nWe received a request to reset your password. The link below is valid for one hour and can be used once:\n\n%s\n\nIf you did not ask for this, you can ignore this email.\n",
			greeting, msg.ResetURL,
		),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode, string(detail))
	}

	c.logger.Info("password reset email dispatched", zap.String("email", logger.MaskEmail(msg.Email)))
	return nil
}

var _ port.Notifier = (*ResendClient)(nil)

// LoggingNotifier records deliveries for observability without sending them.
// Used in development environments without an API key.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier backed by structured logging.
func NewLoggingNotifier(log *zap.Logger) *LoggingNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingNotifier{logger: log}
}

// SendPasswordResetEmail logs the delivery instead of performing it.
func (n *LoggingNotifier) SendPasswordResetEmail(_ context.Context, msg port.PasswordResetEmail) error {
	n.logger.Info("dispatch password reset email",
		zap.String("email", logger.MaskEmail(msg.Email)),
		zap.String("reset_url", msg.ResetURL),
	)
	return nil
}

var _ port.Notifier = (*LoggingNotifier)(nil)
