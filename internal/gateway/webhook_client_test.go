package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice() *device.Device {
	return &device.Device{ID: uuid.New(), Name: "front-desk", Token: "tok-1", Status: device.StatusConnected}
}

func TestWebhookClient_SendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "tok-1", r.Header.Get("x-device-token"))

		var body request.GatewaySendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "6281234567890", body.To)
		assert.Equal(t, "hello", body.Content)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Accepted","messageId":"abc123"}`))
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL, "key", time.Second)
	id, err := c.Send(context.Background(), testDevice(), "6281234567890", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestWebhookClient_SendAcceptsIDField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"wamid.1"}`))
	}))
	defer srv.Close()

	id, err := NewWebhookClient(srv.URL, "", time.Second).Send(context.Background(), testDevice(), "1", "x", "")
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)
}

func TestWebhookClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryable   bool
		deviceFault bool
	}{
		{"bad request is terminal", http.StatusBadRequest, false, false},
		{"unprocessable is terminal", http.StatusUnprocessableEntity, false, false},
		{"unauthorized is device fault", http.StatusUnauthorized, true, true},
		{"gone is device fault", http.StatusGone, true, true},
		{"rate limited is retryable", http.StatusTooManyRequests, true, false},
		{"server error is retryable", http.StatusBadGateway, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewWebhookClient(srv.URL, "", time.Second).Send(context.Background(), testDevice(), "1", "x", "")
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.deviceFault, IsDeviceFault(err))
			assert.Equal(t, !tt.retryable, IsValidation(err))
		})
	}
}

func TestWebhookClient_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewWebhookClient(srv.URL, "", 20*time.Millisecond).Send(context.Background(), testDevice(), "1", "x", "")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestWebhookClient_MissingIDIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewWebhookClient(srv.URL, "", time.Second).Send(context.Background(), testDevice(), "1", "x", "")
	assert.True(t, IsRetryable(err))
}

func TestWebhookClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	assert.NoError(t, NewWebhookClient(srv.URL, "", time.Second).Health(context.Background()))
}

type countingClient struct {
	calls int32
	err   error
}

func (c *countingClient) Send(context.Context, *device.Device, string, string, string) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return "", c.err
	}
	return "id", nil
}

func (c *countingClient) Health(context.Context) error { return nil }

func TestBreakerClient_OpensPerDevice(t *testing.T) {
	inner := &countingClient{err: &TransportError{StatusCode: 503, Err: errors.New("down")}}
	b := NewBreakerClient(inner, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	dev := testDevice()
	for i := 0; i < 2; i++ {
		_, err := b.Send(context.Background(), dev, "1", "x", "")
		assert.True(t, IsRetryable(err))
	}

	_, err := b.Send(context.Background(), dev, "1", "x", "")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))

	// Another device has its own breaker.
	_, err = b.Send(context.Background(), testDevice(), "1", "x", "")
	assert.NotErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerClient_ValidationDoesNotTrip(t *testing.T) {
	inner := &countingClient{err: &ValidationError{StatusCode: 400, Body: "bad number"}}
	b := NewBreakerClient(inner, BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute})

	dev := testDevice()
	for i := 0; i < 3; i++ {
		_, err := b.Send(context.Background(), dev, "1", "x", "")
		assert.True(t, IsValidation(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}
