// Package fetch implements the HTTP fetch engine on top of gocolly. It owns
// retries, backoff, and the proxy endpoint; callers only supply URLs and
// headers.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gocolly/colly/v2"
)

// Request describes a single fetch. Headers are added verbatim to the
// outgoing request.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the completed fetch result.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher is the engine contract consumed by the extraction pipelines.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent  string
	ProxyAddr  string
	Timeout    time.Duration
	MaxRetries int
}

// Colly implements Fetcher using a colly collector. One Colly instance is
// owned by one worker; the retry counter is not shared across workers.
type Colly struct {
	cfg           Config
	baseCollector *colly.Collector
	retries       atomic.Int64
}

// New builds a Colly fetcher. The proxy endpoint, when set, is applied to
// every request.
func New(cfg Config) (*Colly, error) {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Retries re-visit the same URL; the dedup cache must not block them.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	if cfg.ProxyAddr != "" {
		if err := c.SetProxy(cfg.ProxyAddr); err != nil {
			return nil, fmt.Errorf("set proxy %q: %w", cfg.ProxyAddr, err)
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Colly{cfg: cfg, baseCollector: c}, nil
}

// Fetch executes a single HTTP GET, retrying transient failures with backoff.
// Each retry beyond the first attempt increments the Retries counter.
func (f *Colly) Fetch(ctx context.Context, req Request) (Response, error) {
	attempts := uint(f.cfg.MaxRetries + 1)
	if attempts == 0 {
		attempts = 1
	}

	var resp Response
	err := retry.Do(
		func() error {
			var attemptErr error
			resp, attemptErr = f.fetchOnce(ctx, req)
			return attemptErr
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(250*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.OnRetry(func(_ uint, _ error) {
			f.retries.Add(1)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}

// Retries reports how many retry attempts this fetcher has issued so far.
func (f *Colly) Retries() int64 {
	return f.retries.Load()
}

func (f *Colly) fetchOnce(ctx context.Context, req Request) (Response, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	start := time.Now()
	var (
		resp     Response
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		resp = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Response{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return Response{}, fmt.Errorf("response failed: %w", fetchErr)
		}
		return resp, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
