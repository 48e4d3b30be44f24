// Package mailer sends transactional mail through an HTTP mail provider.
// Delivery is strictly best-effort: registration and finalization must
// never fail because an email did not go out, so callers log and move on.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ohana-reunion/backend/config"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
	From    string `json:"from"`
}

type Mailer struct {
	cfg  config.MailConfig
	http *http.Client
}

func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send delivers one message. When the mailer is disabled or unconfigured
// it logs the message instead of failing, so local environments work
// without credentials.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled || m.cfg.APIKey == "" || m.cfg.APIURL == "" {
		logrus.WithFields(logrus.Fields{
			"to":      msg.To,
			"subject": msg.Subject,
		}).Info("mail disabled, skipping send")
		return nil
	}

	msg.From = m.cfg.From

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
