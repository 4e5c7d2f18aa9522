package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oriva/eventsync/pkg/event"
)

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"notification.created", "notification.created", true},
		{"notification.*", "notification.created", true},
		{"notification.*", "notification.dismissed", true},
		{"notification.*", "user.login", false},
		{"*.created", "notification.created", true},
		{"*.created", "session.created", true},
		{"*.*", "transaction.completed", true},
		{"notification.created", "notification.dismissed", false},
		// Segment counts must agree; "*" never spans a dot.
		{"notification.*", "notification", false},
		{"*", "notification.created", false},
		{"", "notification.created", false},
		{"notification.*", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, event.MatchPattern(tt.pattern, tt.key))
		})
	}
}

func TestMatchAny(t *testing.T) {
	t.Parallel()

	patterns := []string{"notification.*", "user.login"}

	assert.True(t, event.MatchAny(patterns, "notification.expired"))
	assert.True(t, event.MatchAny(patterns, "user.login"))
	assert.False(t, event.MatchAny(patterns, "user.logout"))
	assert.False(t, event.MatchAny(nil, "notification.created"))
}

func TestValidPattern(t *testing.T) {
	t.Parallel()

	assert.True(t, event.ValidPattern("notification.*"))
	assert.True(t, event.ValidPattern("*.*"))
	assert.True(t, event.ValidPattern("session.expired"))
	assert.False(t, event.ValidPattern(""))
	assert.False(t, event.ValidPattern("Notification.*"))
	assert.False(t, event.ValidPattern("notification..created"))
	assert.False(t, event.ValidPattern("notif*.created"))
}
