package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultSendTimeout bounds one delivery attempt end to end. Subscribers
// that cannot respond within it count as failed.
const DefaultSendTimeout = 10 * time.Second

// SendResult captures the outcome of a single delivery attempt.
type SendResult struct {
	StatusCode int
	Success    bool
	Duration   time.Duration
	Err        error
}

// Sender performs single HTTP delivery attempts. Retry scheduling lives in
// the Worker, which persists retry state between attempts; the Sender itself
// never retries.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient replaces the pooled default client, for tests or custom
// transports.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithSendTimeout bounds each attempt.
func WithSendTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSender creates a Sender with a pooled HTTP client.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send POSTs the payload to the subscription's endpoint, signed with its
// secret. Success is any 2xx status within the timeout.
func (s *Sender) Send(ctx context.Context, sub Subscription, payload []byte) SendResult {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return SendResult{Duration: time.Since(start), Err: fmt.Errorf("%w: building request: %v", ErrDelivery, err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "eventsync-webhook/1.0")

	sig, err := Sign(sub.Secret, payload, start)
	if err != nil {
		return SendResult{Duration: time.Since(start), Err: fmt.Errorf("%w: signing payload: %v", ErrDelivery, err)}
	}
	for k, v := range sig.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{Duration: time.Since(start), Err: fmt.Errorf("%w: %v", ErrDelivery, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	result := SendResult{
		StatusCode: resp.StatusCode,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		Duration:   time.Since(start),
	}
	if !result.Success {
		// Keep a sanitized slice of the response for the audit row.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := strings.ReplaceAll(string(body), "\n", " ")
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		result.Err = fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, msg)
	}
	return result
}
