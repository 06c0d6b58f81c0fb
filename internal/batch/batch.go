// Package batch runs random-sample evaluations over a loaded listing file.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sellerforge/listing-checker/internal/decision"
	"github.com/sellerforge/listing-checker/internal/fetch"
	"github.com/sellerforge/listing-checker/internal/ratelimit"
	"github.com/sellerforge/listing-checker/internal/rows"
	"github.com/sellerforge/listing-checker/internal/sku"
)

// DefaultFetchTimeout is the hard deadline for one page fetch. A fetch that
// overruns it is recorded as SKIP; its eventual result is dropped by token.
const DefaultFetchTimeout = 60 * time.Second

// Summary aggregates one finished run. Skipped rows count toward neither
// kept nor deleted.
type Summary struct {
	Total   int `json:"total"`
	Kept    int `json:"kept"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

// Result is the full outcome of one batch run. RemovalRows holds the
// 1-based source-file positions of every DELETE verdict.
type Result struct {
	Records     []decision.Record
	RemovalRows []int
	Summary     Summary
}

// Controller drives one batch at a time through the fetch worker.
type Controller struct {
	worker  *fetch.Worker
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
	timeout time.Duration
	rng     *rand.Rand
	now     func() time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithFetchTimeout overrides the per-fetch hard deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithRand fixes the sampling source, for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// WithClock fixes the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRateLimiter sets the pacing between consecutive fetches.
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(c *Controller) { c.limiter = l }
}

func New(worker *fetch.Worker, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		worker:  worker,
		limiter: ratelimit.NewSimpleRateLimiter(100*time.Millisecond, 400*time.Millisecond),
		logger:  logger.With("component", "batch"),
		timeout: DefaultFetchTimeout,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func validate(cfg decision.CountryConfig, sampleSize int) error {
	if cfg.FXJPYPerUnit <= 0 {
		return fmt.Errorf("fx rate for %s is missing or invalid", cfg.Country)
	}
	if !cfg.Tolerance.Valid() {
		return fmt.Errorf("tolerance rule for %s is incomplete", cfg.Country)
	}
	if cfg.BuyMismatchYen < 0 {
		return fmt.Errorf("buy-mismatch threshold must be non-negative")
	}
	if cfg.CustomsFixedYen < 0 {
		return fmt.Errorf("customs fixed fee must be non-negative")
	}
	if sampleSize <= 0 {
		return fmt.Errorf("sample size must be positive")
	}
	return nil
}

// Run evaluates a uniform random sample of up to sampleSize rows with a
// structurally valid product code. Rows whose fetch fails or times out are
// recorded as SKIP and the run continues; cancelling ctx aborts the run and
// returns the records produced so far alongside the error.
func (c *Controller) Run(ctx context.Context, all []rows.ListingRow, cfg decision.CountryConfig, sampleSize int) (*Result, error) {
	if err := validate(cfg, sampleSize); err != nil {
		return nil, err
	}

	var eligible []rows.ListingRow
	for _, r := range all {
		if r.HasValidASIN() {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no rows with a valid product code")
	}

	k := sampleSize
	if k > len(eligible) {
		k = len(eligible)
	}
	sample := make([]rows.ListingRow, 0, k)
	for _, idx := range c.rng.Perm(len(eligible))[:k] {
		sample = append(sample, eligible[idx])
	}

	c.logger.Info("batch started", "country", cfg.Country, "sample", k, "eligible", len(eligible))

	res := &Result{}
	for _, row := range sample {
		if err := ctx.Err(); err != nil {
			c.summarize(res)
			return res, fmt.Errorf("batch aborted: %w", err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			c.summarize(res)
			return res, fmt.Errorf("batch aborted: %w", err)
		}

		rec := c.evaluateRow(ctx, row, cfg)
		res.Records = append(res.Records, rec)
		if rec.Decision == decision.VerdictDelete {
			res.RemovalRows = append(res.RemovalRows, row.Position)
		}
		c.logger.Info("row evaluated",
			"row", row.Position, "asin", row.ASIN,
			"decision", string(rec.Decision), "reason", string(rec.Reason))
	}

	c.summarize(res)
	c.logger.Info("batch finished",
		"total", res.Summary.Total, "kept", res.Summary.Kept,
		"deleted", res.Summary.Deleted, "skipped", res.Summary.Skipped)
	return res, nil
}

func (c *Controller) evaluateRow(ctx context.Context, row rows.ListingRow, cfg decision.CountryConfig) decision.Record {
	id := sku.Decode(row.SKU, cfg.Country)
	rowData := decision.RowData{
		Position:            row.Position,
		SKU:                 row.SKU,
		ASIN:                row.ASIN,
		ListingPriceForeign: row.PriceForeign,
	}

	token := c.worker.NextToken()
	c.worker.Fetch(fetch.Task{ASIN: row.ASIN, Token: token, SKUCostYen: id.CostYen})

	res, err := c.worker.Await(ctx, token, c.timeout)
	if err != nil {
		c.logger.Warn("fetch did not complete", "asin", row.ASIN, "error", err)
		return decision.SkipRecord(rowData, cfg, id, "timeout:"+err.Error(), c.now())
	}
	if !res.OK {
		return decision.SkipRecord(rowData, cfg, id, res.Trace, c.now())
	}

	return decision.Decide(decision.Input{
		Row:        rowData,
		Identifier: id,
		Signals:    res.Signals,
		Config:     cfg,
		Now:        c.now(),
	})
}

func (c *Controller) summarize(res *Result) {
	s := Summary{Total: len(res.Records)}
	for _, rec := range res.Records {
		switch rec.Decision {
		case decision.VerdictKeep:
			s.Kept++
		case decision.VerdictDelete:
			s.Deleted++
		case decision.VerdictSkip:
			s.Skipped++
		}
	}
	res.Summary = s
}
