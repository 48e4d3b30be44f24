package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAndParseEvent(t *testing.T) {
	const secret = "whsec_test"
	client := NewClient(Config{
		APIBase:       "https://provider.example",
		SecretKey:     "sk_test",
		WebhookSecret: secret,
		Tolerance:     5 * time.Minute,
	})

	now := time.Unix(1700000000, 0)
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_123",
			"payment_status": "paid",
			"client_reference_id": "ref-abc"
		}}
	}`)

	t.Run("valid signature", func(t *testing.T) {
		sig := signPayload(secret, now.Unix(), payload)
		header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

		event, err := client.VerifyAndParseEvent(payload, header, now)
		require.NoError(t, err)
		assert.Equal(t, EventSessionCompleted, event.Type)
		assert.Equal(t, "cs_123", event.Session.ID)
		assert.Equal(t, "ref-abc", event.Session.ClientReference)
		assert.True(t, event.Session.Paid())
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := signPayload(secret, now.Unix(), payload)
		header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] = 'x'

		_, err := client.VerifyAndParseEvent(tampered, header, now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := signPayload("whsec_other", now.Unix(), payload)
		header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

		_, err := client.VerifyAndParseEvent(payload, header, now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := now.Add(-time.Hour)
		sig := signPayload(secret, old.Unix(), payload)
		header := fmt.Sprintf("t=%d,v1=%s", old.Unix(), sig)

		_, err := client.VerifyAndParseEvent(payload, header, now)
		assert.ErrorIs(t, err, ErrStaleTimestamp)
	})

	t.Run("second v1 signature accepted", func(t *testing.T) {
		sig := signPayload(secret, now.Unix(), payload)
		header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "deadbeef", sig)

		_, err := client.VerifyAndParseEvent(payload, header, now)
		assert.NoError(t, err)
	})

	t.Run("malformed header", func(t *testing.T) {
		_, err := client.VerifyAndParseEvent(payload, "nonsense", now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestParseSignatureHeader(t *testing.T) {
	ts, sigs, err := parseSignatureHeader("t=1700000000, v1=aa11, v1=bb22")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, []string{"aa11", "bb22"}, sigs)

	_, _, err = parseSignatureHeader("v1=aa11")
	assert.Error(t, err)

	_, _, err = parseSignatureHeader("t=notanumber,v1=aa11")
	assert.Error(t, err)
}
