package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature   = errors.New("webhook signature verification failed")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

// Event is a verified webhook notification from the provider.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Session Session
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Session `json:"object"`
	} `json:"data"`
}

// VerifyAndParseEvent checks the signed event header against the payload
// and, only if the signature holds, decodes the event. The header carries
// a unix timestamp and one or more HMAC-SHA256 signatures over
// "<timestamp>.<payload>".
func (c *Client) VerifyAndParseEvent(payload []byte, sigHeader string, now time.Time) (*Event, error) {
	if c.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > c.cfg.Tolerance || age < -c.cfg.Tolerance {
		return nil, ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	verified := false
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrBadSignature
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("parsing webhook payload: %w", err)
	}

	return &Event{
		ID:      envelope.ID,
		Type:    envelope.Type,
		Session: envelope.Data.Object,
	}, nil
}

// parseSignatureHeader splits "t=1700000000,v1=abcd,v1=ef01" into the
// timestamp and candidate signatures.
func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64 = -1
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case signatureHeaderTimestamp:
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrBadSignature)
			}
			timestamp = ts
		case signatureHeaderV1:
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed header", ErrBadSignature)
	}
	return timestamp, signatures, nil
}
