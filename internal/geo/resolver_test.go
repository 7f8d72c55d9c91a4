package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100-0001", r.URL.Query().Get("q"))
		assert.Equal(t, "JP", r.URL.Query().Get("countrycodes"))
		_, _ = w.Write([]byte(`[{"lat":"35.685","lon":"139.753","address":{"country_code":"jp"}}]`))
	}))
	defer srv.Close()

	r := NewResolver(Config{Endpoint: srv.URL, Bias: "JP"}, nil)
	res := r.Resolve(context.Background(), "100-0001")

	require.NotNil(t, res.Coordinates)
	assert.InDelta(t, 139.753, res.Coordinates.Lon, 1e-9)
	assert.InDelta(t, 35.685, res.Coordinates.Lat, 1e-9)
	assert.Equal(t, "jp", res.CountryCode)
}

func TestResolver_EmptyResultFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewResolver(Config{Endpoint: srv.URL, Bias: "JP"}, nil)
	res := r.Resolve(context.Background(), "nowhere")

	assert.Nil(t, res.Coordinates)
	assert.Equal(t, "JP", res.CountryCode)
}

func TestResolver_TimeoutFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewResolver(Config{Endpoint: srv.URL, Bias: "US", Timeout: 50 * time.Millisecond}, nil)
	res := r.Resolve(context.Background(), "somewhere slow")

	assert.Nil(t, res.Coordinates)
	assert.Equal(t, "US", res.CountryCode)
}

func TestResolver_ProviderErrorFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver(Config{Endpoint: srv.URL, Bias: "JP"}, nil)
	res := r.Resolve(context.Background(), "anywhere")

	assert.Nil(t, res.Coordinates)
	assert.Equal(t, "JP", res.CountryCode)
}

func TestResolver_EmptyQueryFallsBack(t *testing.T) {
	t.Parallel()

	r := NewResolver(Config{Endpoint: "http://127.0.0.1:0", Bias: "JP"}, nil)
	res := r.Resolve(context.Background(), "")

	assert.Nil(t, res.Coordinates)
	assert.Equal(t, "JP", res.CountryCode)
}
