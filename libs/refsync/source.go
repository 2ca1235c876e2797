package refsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Source lists the producer's current snapshots as raw items.
type Source interface {
	Fetch(ctx context.Context) ([]json.RawMessage, error)
}

// TokenFunc returns the bearer token for one request.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPSource reads a snapshot endpoint that returns a JSON array of items.
type HTTPSource struct {
	url     string
	client  *http.Client
	token   TokenFunc
	limiter *rate.Limiter
}

type HTTPSourceConfig struct {
	URL     string
	Timeout time.Duration
	Token   TokenFunc
	// RequestsPerSecond caps calls against the producer. Zero means unlimited.
	RequestsPerSecond float64
	Client            *http.Client
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPSource{url: cfg.URL, client: client, token: cfg.Token, limiter: limiter}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != nil {
		tok, err := s.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode snapshot list: %w", err)
	}
	return items, nil
}
