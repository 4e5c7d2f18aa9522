package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Signature header names sent with every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// DefaultSignatureMaxAge is how old a signed payload may be before Verify
// rejects it as a replay.
const DefaultSignatureMaxAge = 5 * time.Minute

// Signature authenticates a delivery. The timestamp is bound into the MAC
// so a captured payload cannot be replayed outside the acceptance window.
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Headers returns the signature as HTTP header pairs.
func (s Signature) Headers() map[string]string {
	return map[string]string{
		HeaderSignature: s.Value,
		HeaderTimestamp: strconv.FormatInt(s.Timestamp, 10),
		HeaderID:        s.ID,
	}
}

// Sign computes HMAC-SHA256(secret, timestamp + "." + payload) with a fresh
// delivery id.
func Sign(secret string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, fmt.Errorf("%w: secret is required", ErrValidation)
	}
	if len(payload) == 0 {
		return Signature{}, fmt.Errorf("%w: payload is empty", ErrValidation)
	}

	ts := at.Unix()
	return Signature{
		Value:     computeMAC(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.New().String(),
	}, nil
}

// Verify checks a received signature. maxAge bounds the replay window; zero
// disables the age check.
func Verify(secret string, payload []byte, sig Signature, maxAge time.Duration) error {
	if secret == "" || sig.Value == "" {
		return fmt.Errorf("%w: missing secret or signature", ErrInvalidSignature)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(sig.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp too old (%s)", ErrInvalidSignature, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrInvalidSignature)
		}
	}

	expected := computeMAC(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return fmt.Errorf("%w: payload does not match", ErrInvalidSignature)
	}
	return nil
}

func computeMAC(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", timestamp, payload)
	return hex.EncodeToString(h.Sum(nil))
}
