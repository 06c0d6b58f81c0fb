package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sellerforge/listing-checker/internal/extract"
)

// ErrTimeout is returned by Await when no result arrives within the deadline.
var ErrTimeout = errors.New("fetch timed out")

// Fetcher retrieves the signals for one listing. Implemented by Session;
// tests substitute stubs.
type Fetcher interface {
	FetchListing(asin string) (extract.Signals, error)
	Close() error
}

// Factory creates a Fetcher with the requested headless mode. The worker
// calls it lazily on the first fetch and again after a mode change.
type Factory func(headless bool) (Fetcher, error)

// Task asks the worker to retrieve signals for one listing row.
type Task struct {
	ASIN       string
	Token      int64
	SKUCostYen *float64
}

// Result is the worker's reply to one Task. Requesters must discard results
// whose token does not match their outstanding request.
type Result struct {
	Token   int64
	ASIN    string
	OK      bool
	Signals extract.Signals
	Trace   string
}

type request interface{ isRequest() }

type fetchRequest struct{ task Task }
type setHeadlessRequest struct{ headless bool }
type stopRequest struct{}

func (fetchRequest) isRequest()       {}
func (setHeadlessRequest) isRequest() {}
func (stopRequest) isRequest()        {}

// Worker owns the browser session and serializes every fetch onto one
// goroutine. Requests arrive on a single channel as a tagged union; results
// leave on the result channel carrying the request token.
type Worker struct {
	factory  Factory
	requests chan request
	results  chan Result
	headless bool
	fetcher  Fetcher
	token    atomic.Int64
	logger   *slog.Logger
}

func NewWorker(factory Factory, headless bool, logger *slog.Logger) *Worker {
	return &Worker{
		factory:  factory,
		requests: make(chan request, 64),
		results:  make(chan Result, 64),
		headless: headless,
		logger:   logger.With("component", "fetch-worker"),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	go w.run()
}

// NextToken issues a fresh, strictly increasing request token.
func (w *Worker) NextToken() int64 {
	return w.token.Add(1)
}

// Fetch enqueues a fetch request.
func (w *Worker) Fetch(task Task) {
	w.requests <- fetchRequest{task: task}
}

// SetHeadless requests a headless-mode change. The current browser session
// is torn down and a new one is created lazily on the next fetch.
func (w *Worker) SetHeadless(headless bool) {
	w.requests <- setHeadlessRequest{headless: headless}
}

// Stop asks the worker to shut down after the requests already queued.
func (w *Worker) Stop() {
	w.requests <- stopRequest{}
}

// Results exposes the result channel.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Await blocks until the result for token arrives. Results carrying any
// other token are stale replies to superseded requests and are dropped.
func (w *Worker) Await(ctx context.Context, token int64, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case res := <-w.results:
			if res.Token != token {
				w.logger.Debug("dropping stale result", "got", res.Token, "want", token)
				continue
			}
			return res, nil
		case <-timer.C:
			return Result{}, ErrTimeout
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

func (w *Worker) run() {
	defer w.teardown()
	for req := range w.requests {
		switch r := req.(type) {
		case stopRequest:
			return
		case setHeadlessRequest:
			w.headless = r.headless
			w.teardown()
			w.logger.Info("headless mode changed", "headless", r.headless)
		case fetchRequest:
			w.results <- w.handleFetch(r.task)
		}
	}
}

func (w *Worker) handleFetch(task Task) Result {
	if w.fetcher == nil {
		f, err := w.factory(w.headless)
		if err != nil {
			w.logger.Error("failed to start fetch session", "error", err)
			return Result{Token: task.Token, ASIN: task.ASIN, Trace: "session_start:" + err.Error()}
		}
		w.fetcher = f
	}

	sig, err := w.fetcher.FetchListing(task.ASIN)
	if err != nil {
		w.logger.Error("fetch failed", "asin", task.ASIN, "error", err)
		return Result{Token: task.Token, ASIN: task.ASIN, Trace: "worker_err:" + err.Error()}
	}
	return Result{Token: task.Token, ASIN: task.ASIN, OK: true, Signals: sig, Trace: sig.Trace}
}

func (w *Worker) teardown() {
	if w.fetcher == nil {
		return
	}
	if err := w.fetcher.Close(); err != nil {
		w.logger.Error("failed to close fetch session", "error", err)
	}
	w.fetcher = nil
}
