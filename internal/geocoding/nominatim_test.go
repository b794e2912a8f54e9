package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "geocode.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestGeocode(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "Lisbon", r.URL.Query().Get("city"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"38.7223","lon":"-9.1393"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, newTestCache(t), zerolog.Nop())

	lat, lng, err := client.Geocode(context.Background(), "Lisbon", "Lisboa", "Portugal")
	require.NoError(t, err)
	assert.InDelta(t, 38.7223, lat, 1e-6)
	assert.InDelta(t, -9.1393, lng, 1e-6)

	// Second call is served from cache.
	_, _, err = client.Geocode(context.Background(), "Lisbon", "Lisboa", "Portugal")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGeocodeNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	_, _, err := client.Geocode(context.Background(), "Nowhere", "", "Atlantis")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestGeocodeUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	_, _, err := client.Geocode(context.Background(), "Lisbon", "Lisboa", "Portugal")
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	cache := newTestCache(t)

	_, _, ok, err := cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put("Lisbon, Lisboa, Portugal", 38.7, -9.1))
	lat, lng, ok, err := cache.Get("Lisbon, Lisboa, Portugal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 38.7, lat, 1e-9)
	assert.InDelta(t, -9.1, lng, 1e-9)

	// Upsert overwrites.
	require.NoError(t, cache.Put("Lisbon, Lisboa, Portugal", 40.0, -8.0))
	lat, _, ok, err = cache.Get("Lisbon, Lisboa, Portugal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 40.0, lat, 1e-9)
}
