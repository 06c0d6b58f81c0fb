package fetch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerforge/listing-checker/internal/extract"
)

type stubFetcher struct {
	headless bool
	fetches  int
	closed   bool
	fail     bool
}

func (s *stubFetcher) FetchListing(asin string) (extract.Signals, error) {
	s.fetches++
	if s.fail {
		return extract.Signals{}, errors.New("boom")
	}
	price := 1980
	return extract.Signals{ItemPriceYen: &price, Trace: "stub:" + asin}, nil
}

func (s *stubFetcher) Close() error {
	s.closed = true
	return nil
}

type stubFactory struct {
	created  []*stubFetcher
	modes    []bool
	failNext bool
}

func (f *stubFactory) new(headless bool) (Fetcher, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("launch failed")
	}
	s := &stubFetcher{headless: headless}
	f.created = append(f.created, s)
	f.modes = append(f.modes, headless)
	return s, nil
}

func newTestWorker(f *stubFactory, headless bool) *Worker {
	return NewWorker(f.new, headless, slog.Default())
}

func TestWorkerFetchDeliversTokenedResult(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	token := w.NextToken()
	w.Fetch(Task{ASIN: "B000TEST01", Token: token})

	res, err := w.Await(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, token, res.Token)
	assert.Equal(t, "B000TEST01", res.ASIN)
	require.NotNil(t, res.Signals.ItemPriceYen)
	assert.Equal(t, 1980, *res.Signals.ItemPriceYen)
}

func TestWorkerLazySessionReuse(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	for i := 0; i < 3; i++ {
		token := w.NextToken()
		w.Fetch(Task{ASIN: "B000TEST01", Token: token})
		_, err := w.Await(context.Background(), token, time.Second)
		require.NoError(t, err)
	}

	require.Len(t, factory.created, 1)
	assert.Equal(t, 3, factory.created[0].fetches)
}

func TestWorkerSetHeadlessRecreatesSession(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	token := w.NextToken()
	w.Fetch(Task{ASIN: "B000TEST01", Token: token})
	_, err := w.Await(context.Background(), token, time.Second)
	require.NoError(t, err)

	w.SetHeadless(false)

	token = w.NextToken()
	w.Fetch(Task{ASIN: "B000TEST02", Token: token})
	_, err = w.Await(context.Background(), token, time.Second)
	require.NoError(t, err)

	require.Len(t, factory.created, 2)
	assert.True(t, factory.created[0].closed)
	assert.Equal(t, []bool{true, false}, factory.modes)
}

func TestWorkerFetchErrorYieldsFailedResult(t *testing.T) {
	factory := &stubFactory{failNext: true}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	token := w.NextToken()
	w.Fetch(Task{ASIN: "B000TEST01", Token: token})

	res, err := w.Await(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Trace, "session_start")

	// Next fetch retries session creation.
	token = w.NextToken()
	w.Fetch(Task{ASIN: "B000TEST01", Token: token})
	res, err = w.Await(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestAwaitDropsStaleResults(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	stale := w.NextToken()
	current := w.NextToken()
	w.Fetch(Task{ASIN: "B000STALE00", Token: stale})
	w.Fetch(Task{ASIN: "B000FRESH00", Token: current})

	res, err := w.Await(context.Background(), current, time.Second)
	require.NoError(t, err)
	assert.Equal(t, current, res.Token)
	assert.Equal(t, "B000FRESH00", res.ASIN)
}

func TestAwaitTimeout(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	_, err := w.Await(context.Background(), w.NextToken(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAwaitContextCancel(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)
	w.Start()
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Await(ctx, w.NextToken(), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextTokenMonotonic(t *testing.T) {
	factory := &stubFactory{}
	w := newTestWorker(factory, true)

	prev := w.NextToken()
	for i := 0; i < 100; i++ {
		next := w.NextToken()
		assert.Greater(t, next, prev)
		prev = next
	}
}
