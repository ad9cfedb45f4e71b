package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
)

const (
	defaultSendTimeout   = 10 * time.Second
	defaultHealthTimeout = 2 * time.Second
	maxBodyBytes         = 64 << 10
)

// WebhookClient posts send requests to an HTTP gateway endpoint.
type WebhookClient struct {
	baseURL     string
	apiKey      string
	sendTimeout time.Duration
	httpClient  *http.Client
}

// NewWebhookClient creates a client for the gateway at baseURL. sendTimeout
// bounds a single send when the caller's context carries no deadline.
func NewWebhookClient(baseURL, apiKey string, sendTimeout time.Duration) *WebhookClient {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &WebhookClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		sendTimeout: sendTimeout,
		httpClient: &http.Client{
			Timeout: sendTimeout + time.Second,
		},
	}
}

// withTimeout wraps the context with a timeout if it doesn't already have one.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (c *WebhookClient) setHeaders(req *http.Request, token string) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if token != "" {
		req.Header.Set("x-device-token", token)
	}
}

// Send implements Client.Send by posting a JSON payload to {baseURL}/send.
func (c *WebhookClient) Send(ctx context.Context, dev *device.Device, recipient, content, mediaURL string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.sendTimeout)
	defer cancel()

	payload := request.GatewaySendRequest{
		Device:   dev.Token,
		To:       recipient,
		Content:  content,
		MediaURL: mediaURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, dev.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", &TransportError{Err: fmt.Errorf("request timeout or canceled: %w", err)}
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed response.GatewaySendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}

	id := parsed.ProviderID()
	if id == "" {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: errors.New("response missing message id")}
	}
	return id, nil
}

// Health implements Client.Health with a GET on {baseURL}/health.
func (c *WebhookClient) Health(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health: failed to create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health: non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check: WebhookClient satisfies the Client interface.
var _ Client = (*WebhookClient)(nil)
