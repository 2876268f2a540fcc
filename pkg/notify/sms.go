package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://sms.drinkrun.app/v1"
	requestBodyReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("sms api key is required")

// SMSClient sends transactional text messages to customers and drivers.
type SMSClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sender     string
}

// Option configures optional client behavior.
type Option func(*SMSClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *SMSClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured SMS base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *SMSClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithSender overrides the sender ID stamped on outgoing messages.
func WithSender(sender string) Option {
	return func(c *SMSClient) {
		trimmed := strings.TrimSpace(sender)
		if trimmed != "" {
			c.sender = trimmed
		}
	}
}

// NewSMSClient builds the SMS client given an API key.
func NewSMSClient(apiKey string, opts ...Option) (*SMSClient, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &SMSClient{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		sender:     "DRINKRUN",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Send delivers a single text message. Failures are returned but callers
// treat SMS as best-effort and never roll back on them.
func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "sms client not configured")
	}
	if strings.TrimSpace(phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}
	if strings.TrimSpace(message) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	payload, err := json.Marshal(sendRequest{To: phone, From: c.sender, Message: message})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal sms request")
	}

	endpoint := fmt.Sprintf("%s/messages", strings.TrimRight(c.baseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build sms request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute sms request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "sms request failed")
	}

	return nil
}
