// Package newsletter moves subscribers from Beehiiv to Substack:
// webhook handlers for live events, a retry job for failed forwards,
// and a nightly reconciliation diff.
package newsletter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/httpx"
	"github.com/craftsight/syncengine/internal/syncerr"
)

const beehiivBaseURL = "https://api.beehiiv.com/v2"

const beehiivPageLimit = 100

// UpstreamSubscriber is one Beehiiv subscriber record.
type UpstreamSubscriber struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
	Tags    []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// TagNames flattens the tag objects to their names.
func (s UpstreamSubscriber) TagNames() []string {
	names := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Beehiiv is the upstream publication client.
type Beehiiv struct {
	apiKey        string
	publicationID string
	webhookSecret string
	baseURL       string
	http          *httpx.Client
}

// NewBeehiiv creates a client scoped to one publication.
func NewBeehiiv(apiKey, publicationID, webhookSecret string) *Beehiiv {
	return &Beehiiv{
		apiKey:        apiKey,
		publicationID: publicationID,
		webhookSecret: webhookSecret,
		baseURL:       beehiivBaseURL,
		http:          httpx.New(),
	}
}

// VerifySignature checks the X-Beehiiv-Signature HMAC-SHA256 hex
// digest over the raw body. With no secret configured every payload
// passes, for local development only.
func (b *Beehiiv) VerifySignature(payload []byte, signature string) bool {
	if b.webhookSecret == "" {
		log.Warn().Msg("webhook secret not set, skipping signature verification")
		return true
	}

	mac := hmac.New(sha256.New, []byte(b.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type subscriptionsPage struct {
	Data         []UpstreamSubscriber `json:"data"`
	TotalResults int                  `json:"total_results"`
}

// ActiveSubscribers pages through every active subscriber, for the
// reconciliation diff. Beehiiv paginates by page number against a
// total_results count.
func (b *Beehiiv) ActiveSubscribers(ctx context.Context) ([]UpstreamSubscriber, error) {
	var all []UpstreamSubscriber
	page := 1

	for {
		q := url.Values{
			"status":   {"active"},
			"limit":    {fmt.Sprint(beehiivPageLimit)},
			"page":     {fmt.Sprint(page)},
			"expand[]": {"tags"},
		}
		u := fmt.Sprintf("%s/publications/%s/subscriptions?%s", b.baseURL, b.publicationID, q.Encode())

		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+b.apiKey)
		headers.Set("Content-Type", "application/json")

		resp, err := b.http.Request(ctx, http.MethodGet, u, headers, nil)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read beehiiv response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &syncerr.UpstreamError{Platform: "beehiiv", Status: resp.StatusCode, Body: string(body)}
		}

		var p subscriptionsPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode beehiiv subscriptions: %w", err)
		}
		if len(p.Data) == 0 {
			return all, nil
		}

		all = append(all, p.Data...)
		if len(all) >= p.TotalResults {
			return all, nil
		}
		page++
	}
}
