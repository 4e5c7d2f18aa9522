package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/event"
)

const (
	// SecretBytes is how much entropy a generated subscription secret holds.
	SecretBytes = 32

	// DefaultMaxRetries is the total delivery attempts per event before the
	// delivery is abandoned.
	DefaultMaxRetries = 5

	// DefaultBackoffBase seeds the exponential retry schedule.
	DefaultBackoffBase = time.Second

	// DefaultFailureCeiling is how many consecutive failed attempts
	// deactivate a subscription.
	DefaultFailureCeiling = 100
)

// Subscription is an app's request to receive matching events over HTTPS.
type Subscription struct {
	ID                  uuid.UUID     `json:"id"`
	AppID               string        `json:"app_id"`
	URL                 string        `json:"url"`
	Secret              string        `json:"-"`
	Patterns            []string      `json:"patterns"`
	Active              bool          `json:"active"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalDeliveries     int64         `json:"total_deliveries"`
	TotalFailures       int64         `json:"total_failures"`
	MaxRetries          int           `json:"max_retries"`
	BackoffBase         time.Duration `json:"backoff_base"`
	CreatedAt           time.Time     `json:"created_at"`
	DisabledAt          *time.Time    `json:"disabled_at,omitempty"`
}

// NewSecret returns a hex-encoded secret with SecretBytes of entropy.
func NewSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhook: generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Validate checks endpoint and pattern constraints. Plain HTTP endpoints
// are rejected so secrets and payloads never travel unencrypted.
func (s Subscription) Validate() error {
	if s.AppID == "" {
		return fmt.Errorf("%w: app id is required", ErrValidation)
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrValidation, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: url must use https", ErrValidation)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url host is required", ErrValidation)
	}

	if len(s.Patterns) == 0 {
		return fmt.Errorf("%w: at least one event pattern is required", ErrValidation)
	}
	for _, p := range s.Patterns {
		if !event.ValidPattern(p) {
			return fmt.Errorf("%w: invalid event pattern %q", ErrValidation, p)
		}
	}
	return nil
}

// Matches reports whether the subscription wants events with the given key.
func (s Subscription) Matches(key string) bool {
	return event.MatchAny(s.Patterns, key)
}
