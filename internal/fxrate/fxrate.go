// Package fxrate retrieves JPY exchange rates for the supported marketplace
// countries and caches them in Redis.
package fxrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRatesURL = "https://open.er-api.com/v6/latest/JPY"
	cacheKey        = "fxrate:jpy"
	// Matches the 30-minute refresh cadence.
	cacheTTL       = 30 * time.Minute
	requestTimeout = 10 * time.Second
)

// Rates holds JPY per one unit of each supported currency.
type Rates struct {
	USDJPY float64 `json:"usdjpy"`
	CADJPY float64 `json:"cadjpy"`
	MXNJPY float64 `json:"mxnjpy"`
}

// ForCountry returns the JPY-per-unit rate for a marketplace country.
func (r Rates) ForCountry(country string) (float64, bool) {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "US":
		return r.USDJPY, r.USDJPY > 0
	case "CA":
		return r.CADJPY, r.CADJPY > 0
	case "MX":
		return r.MXNJPY, r.MXNJPY > 0
	}
	return 0, false
}

// Client fetches rates from the public API, preferring the Redis cache when
// one is configured.
type Client struct {
	http   *http.Client
	redis  *redis.Client
	logger *slog.Logger
	url    string
	ttl    time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithURL overrides the rates endpoint, for tests.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// NewClient creates a rates client. redisClient may be nil, in which case
// every Fetch hits the API directly.
func NewClient(redisClient *redis.Client, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: requestTimeout},
		redis:  redisClient,
		logger: logger.With("component", "fxrate"),
		url:    defaultRatesURL,
		ttl:    cacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Fetch returns current JPY-per-unit rates. Cached rates are served when
// fresh; a successful API fetch refreshes the cache.
func (c *Client) Fetch(ctx context.Context) (*Rates, error) {
	if cached := c.fromCache(ctx); cached != nil {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates endpoint returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rates response: %w", err)
	}

	usd := body.Rates["USD"]
	cad := body.Rates["CAD"]
	mxn := body.Rates["MXN"]
	if usd <= 0 || cad <= 0 || mxn <= 0 {
		return nil, fmt.Errorf("rates response missing USD/CAD/MXN")
	}

	// The API quotes units per JPY; invert to JPY per unit.
	rates := &Rates{
		USDJPY: 1.0 / usd,
		CADJPY: 1.0 / cad,
		MXNJPY: 1.0 / mxn,
	}
	c.toCache(ctx, rates)
	return rates, nil
}

func (c *Client) fromCache(ctx context.Context) *Rates {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return nil
	}
	var rates Rates
	if err := json.Unmarshal(raw, &rates); err != nil {
		c.logger.Warn("discarding malformed cached rates", "error", err)
		return nil
	}
	return &rates
}

func (c *Client) toCache(ctx context.Context, rates *Rates) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache rates", "error", err)
	}
}

// Holder is the shared current-rates slot refreshed by the cron job and read
// by request handlers.
type Holder struct {
	mu    sync.RWMutex
	rates *Rates
}

// Set replaces the current rates.
func (h *Holder) Set(r *Rates) {
	h.mu.Lock()
	h.rates = r
	h.mu.Unlock()
}

// Get returns the current rates, or nil when none have been fetched yet.
func (h *Holder) Get() *Rates {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rates
}
