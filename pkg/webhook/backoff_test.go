package webhook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oriva/eventsync/pkg/webhook"
)

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	b := webhook.Backoff{Base: time.Second}

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 1*time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 8*time.Second, b.Delay(4))
}

func TestBackoff_Cap(t *testing.T) {
	t.Parallel()

	b := webhook.Backoff{Base: time.Second, Max: 5 * time.Second}
	assert.Equal(t, 5*time.Second, b.Delay(10))

	// The default cap applies when Max is unset.
	wide := webhook.Backoff{Base: time.Minute}
	assert.Equal(t, webhook.DefaultMaxBackoff, wide.Delay(20))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	t.Parallel()

	b := webhook.Backoff{Base: time.Second, Jitter: 0.2}
	for range 50 {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, time.Duration(float64(2*time.Second)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(2*time.Second)*1.2))
	}
}
