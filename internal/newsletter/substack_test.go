package newsletter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstackSubscribe(t *testing.T) {
	var got struct {
		Email    string `json:"email"`
		FirstURL string `json:"first_url"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/free", r.URL.Path)
		require.Equal(t, "CraftSight-Newsletter-Sync/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSubstack(srv.URL)
	result := s.Subscribe(context.Background(), "reader@example.com")

	assert.True(t, result.Success)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "reader@example.com", got.Email)
	assert.Equal(t, srv.URL, got.FirstURL)
}

func TestSubstackSubscribeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSubstack(srv.URL)
	s.http.MaxRetries = 0

	result := s.Subscribe(context.Background(), "reader@example.com")
	assert.False(t, result.Success)
	assert.Equal(t, 429, result.StatusCode)
	assert.Contains(t, result.Detail, "rate limited")
}

func TestSubstackSubscribeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSubstack(srv.URL)
	result := s.Subscribe(context.Background(), "reader@example.com")

	assert.False(t, result.Success)
	assert.Equal(t, 403, result.StatusCode)
	assert.Contains(t, result.Detail, "403")
}

func TestSubstackSubscribeUnconfigured(t *testing.T) {
	s := NewSubstack("")
	result := s.Subscribe(context.Background(), "reader@example.com")

	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "not configured")
}

func TestSubstackTrailingSlashTrimmed(t *testing.T) {
	s := NewSubstack("https://pub.substack.com/")
	assert.Equal(t, "https://pub.substack.com", s.publicationURL)
}

func TestTruncateDetail(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, truncateDetail(long), detailLimit)
	assert.Equal(t, "short", truncateDetail("short"))

	multi := strings.Repeat("ü", 150)
	assert.True(t, utf8.ValidString(truncateDetail(multi)), "truncation split a multi-byte rune")
}
