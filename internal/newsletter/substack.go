package newsletter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/craftsight/syncengine/internal/httpx"
	"github.com/craftsight/syncengine/internal/syncerr"
)

// Substack has no official API. Forwarding posts to the same endpoint
// the publication's own signup form uses, so the subscriber gets
// Substack's double opt-in confirmation email. There is no
// programmatic unsubscribe; removals are flagged for manual handling.

const substackRetries = 2

const detailLimit = 200

// ForwardResult is the outcome of one subscribe forward.
type ForwardResult struct {
	Success    bool
	StatusCode int
	Detail     string
}

// Substack posts subscribers to the publication's free-subscribe
// endpoint, throttled to one request per second.
type Substack struct {
	publicationURL string
	limiter        *rate.Limiter
	http           *httpx.Client
}

// NewSubstack creates a forwarder for the publication URL
// (e.g. https://yourpub.substack.com).
func NewSubstack(publicationURL string) *Substack {
	client := httpx.New()
	client.MaxRetries = substackRetries
	return &Substack{
		publicationURL: strings.TrimRight(publicationURL, "/"),
		limiter:        rate.NewLimiter(rate.Limit(1), 1),
		http:           client,
	}
}

// Subscribe forwards one email. Rate limits from Substack come back as
// a non-success result rather than an error so the caller can park the
// subscriber for the retry job.
func (s *Substack) Subscribe(ctx context.Context, email string) ForwardResult {
	if s.publicationURL == "" {
		return ForwardResult{StatusCode: 0, Detail: "substack publication URL not configured"}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return ForwardResult{StatusCode: 0, Detail: "cancelled while throttled: " + err.Error()}
	}

	payload, err := json.Marshal(map[string]string{
		"email":     email,
		"first_url": s.publicationURL,
	})
	if err != nil {
		return ForwardResult{StatusCode: 0, Detail: "encode payload: " + err.Error()}
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "CraftSight-Newsletter-Sync/1.0")

	resp, err := s.http.Request(ctx, http.MethodPost, s.publicationURL+"/api/v1/free", headers, payload)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("substack subscribe transport failure")
		return ForwardResult{StatusCode: 0, Detail: truncateDetail("HTTP error: " + err.Error())}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusOK:
		log.Info().Str("email", email).Msg("substack subscribe sent")
		return ForwardResult{Success: true, StatusCode: 200, Detail: "confirmation email sent by Substack"}
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warn().Str("email", email).Msg("substack rate limited subscribe")
		return ForwardResult{StatusCode: 429, Detail: "rate limited by Substack, will retry"}
	default:
		log.Warn().Int("status", resp.StatusCode).Str("email", email).Msg("substack subscribe rejected")
		return ForwardResult{
			StatusCode: resp.StatusCode,
			Detail:     truncateDetail(fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, body)),
		}
	}
}

func truncateDetail(s string) string {
	return syncerr.Clip(s, detailLimit)
}
