// Package notify sends transactional email through a Resend-compatible
// HTTP API. Alerts are fire-and-forget: a delivery failure is logged
// and never surfaced to the caller's control flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/syncerr"
)

const defaultEndpoint = "https://api.resend.com/emails"

const appName = "CraftSight"

const errorSnippetLimit = 300

// Mailer posts emails to the provider. A Mailer with an empty API key
// is a no-op.
type Mailer struct {
	apiKey    string
	fromEmail string
	endpoint  string
	http      *http.Client
}

// New creates a Mailer. apiKey may be empty to disable sending.
func New(apiKey, fromEmail string) *Mailer {
	return &Mailer{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		endpoint:  defaultEndpoint,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// SyncFailure alerts a tenant that one of their sync jobs failed.
func (m *Mailer) SyncFailure(ctx context.Context, toEmail, jobType, errMsg string) {
	platform := jobType
	if i := strings.IndexByte(jobType, '_'); i > 0 {
		platform = jobType[:i]
	}
	platform = strings.ToUpper(platform[:1]) + platform[1:]

	errMsg = syncerr.Clip(errMsg, errorSnippetLimit)

	subject := fmt.Sprintf("[%s] %s sync failed", appName, platform)
	html := fmt.Sprintf(
		`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Sync Failure Alert</h2>
  <p>Your <strong>%s</strong> sync job (<code>%s</code>) failed.</p>
  <p style="color: #991b1b;"><strong>Error:</strong> %s</p>
  <p>We'll automatically retry on the next scheduled sync. If this persists,
  check your platform connection in Settings.</p>
</div>`, platform, jobType, errMsg)

	m.send(ctx, toEmail, subject, html)
}

// send posts one email, logging rather than returning failures.
func (m *Mailer) send(ctx context.Context, toEmail, subject, html string) {
	if m.apiKey == "" {
		log.Warn().Msg("notification api key not set, skipping email")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"from":    m.fromEmail,
		"to":      []string{toEmail},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		log.Error().Err(err).Msg("encode email payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("build email request")
		return
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("to", toEmail).Msg("email send failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().Int("status", resp.StatusCode).Str("to", toEmail).
			Str("body", string(body)).Msg("email provider rejected message")
		return
	}
	log.Info().Str("to", toEmail).Str("subject", subject).Msg("sent email alert")
}
