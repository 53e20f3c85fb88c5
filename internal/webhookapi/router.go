// Package webhookapi is the inbound HTTP surface: health, webhook
// listing, and the Beehiiv subscriber webhook.
package webhookapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/craftsight/syncengine/internal/newsletter"
)

const maxWebhookBody = 1 << 20

// Verifier checks webhook signatures. *newsletter.Beehiiv satisfies it.
type Verifier interface {
	VerifySignature(payload []byte, signature string) bool
}

// Server holds dependencies for the webhook handlers.
type Server struct {
	Syncer   *newsletter.Syncer
	Verifier Verifier
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// Routes creates the HTTP router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	r.Get("/webhooks", s.ListWebhooks)
	r.Post("/beehiiv-subscriber-webhook", s.BeehiivWebhook)

	log.Info().Msg("HTTP routes registered")
	return r
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListWebhooks enumerates the registered webhook endpoints.
func (s *Server) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": []map[string]string{
			{
				"path":   "/beehiiv-subscriber-webhook",
				"method": "POST",
				"events": "subscriber.created, subscriber.unsubscribed, subscriber.deleted",
			},
		},
	})
}

// BeehiivWebhook verifies and dispatches one subscriber event.
func (s *Server) BeehiivWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if !s.Verifier.VerifySignature(body, r.Header.Get("X-Beehiiv-Signature")) {
		log.Warn().Msg("webhook signature mismatch, rejecting")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var ev newsletter.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	switch ev.Event {
	case "subscriber.created":
		status, err := s.Syncer.HandleNewSubscriber(r.Context(), ev)
		if err != nil {
			s.eventError(w, ev.Event, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":          "processed",
			"event":           ev.Event,
			"substack_status": status,
		})

	case "subscriber.unsubscribed", "subscriber.deleted":
		if err := s.Syncer.HandleUnsubscribe(r.Context(), ev); err != nil {
			s.eventError(w, ev.Event, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "processed",
			"event":  ev.Event,
		})

	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"event":  ev.Event,
			"detail": "unhandled event type",
		})
	}
}

func (s *Server) eventError(w http.ResponseWriter, event string, err error) {
	if errors.Is(err, newsletter.ErrNoEmail) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "event": event})
		return
	}
	log.Error().Err(err).Str("event", event).Msg("webhook event processing failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed", "event": event})
}
