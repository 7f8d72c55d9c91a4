// Package geo resolves free-text location queries to coordinates and a
// country code using a Nominatim-style search endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prodexio/prodex/internal/profile"
)

// Result carries the resolution outcome. Coordinates is nil on the degraded
// path; CountryCode always holds a usable value for phone formatting.
type Result struct {
	Coordinates *profile.Coordinates
	CountryCode string
}

// Config controls the resolver.
type Config struct {
	// Endpoint is the Nominatim search URL.
	Endpoint string
	// Bias is the default ISO country code returned when resolution fails
	// and passed to the provider as a country filter.
	Bias string
	// Timeout bounds each lookup; expired lookups degrade silently.
	Timeout time.Duration
	// RatePerSecond throttles provider calls. Zero means unlimited.
	RatePerSecond float64
}

// Resolver queries the geocoding provider. Construct one per worker and pass
// it to the pipeline; the underlying HTTP client is established lazily on
// first use so idle workers pay no setup cost.
type Resolver struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter

	once   sync.Once
	client *http.Client
}

// NewResolver builds a Resolver. A nil logger disables logging.
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Resolver{cfg: cfg, logger: logger, limiter: limiter}
}

type place struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Resolve looks up query with a bounded timeout. On timeout, provider error,
// or an empty result it returns no coordinates plus the configured bias; the
// degraded path is silent by design and never surfaces an error. On success
// the provider's country code is returned, which may differ from the bias.
func (r *Resolver) Resolve(ctx context.Context, query string) Result {
	fallback := Result{CountryCode: r.cfg.Bias}
	if query == "" {
		return fallback
	}

	r.once.Do(func() {
		r.client = &http.Client{Timeout: r.cfg.Timeout}
	})

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fallback
		}
	}

	pl, err := r.lookup(ctx, query)
	if err != nil {
		r.logger.Debug("geo lookup degraded", zap.String("query", query), zap.Error(err))
		return fallback
	}
	if pl == nil {
		return fallback
	}

	lat, latErr := strconv.ParseFloat(pl.Lat, 64)
	lon, lonErr := strconv.ParseFloat(pl.Lon, 64)
	if latErr != nil || lonErr != nil {
		return fallback
	}

	res := Result{
		Coordinates: &profile.Coordinates{Lon: lon, Lat: lat},
		CountryCode: pl.Address.CountryCode,
	}
	if res.CountryCode == "" {
		res.CountryCode = r.cfg.Bias
	}
	return res
}

func (r *Resolver) lookup(ctx context.Context, query string) (*place, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if r.cfg.Bias != "" {
		params.Set("countrycodes", r.cfg.Bias)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}
