package ingester

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/db"
	"github.com/netlens/netlens/internal/eventwait"
)

type fakeProvider struct {
	mu      sync.Mutex
	batches [][]db.RequestEvent
}

func (f *fakeProvider) Insert(_ context.Context, events []db.RequestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]db.RequestEvent, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeProvider) inserted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, b := range f.batches {
		total += len(b)
	}
	return total
}

func (f *fakeProvider) WithDB(func(*sql.DB)) {}
func (f *fakeProvider) GetTimelineSpan(context.Context, db.TimeRange) (*db.TimelineSpan, error) {
	return nil, nil
}
func (f *fakeProvider) ListRequestEvents(context.Context, db.ListParams) (*db.PagedResult, error) {
	return nil, nil
}
func (f *fakeProvider) GetStatusDistribution(context.Context, db.TimeRange) ([]db.StatusDistributionResult, error) {
	return nil, nil
}
func (f *fakeProvider) GetAverageDuration(context.Context, db.TimeRange) (*db.AverageDurationResult, error) {
	return nil, nil
}
func (f *fakeProvider) DeleteEventsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeProvider) Close() error { return nil }

func validEvent() db.RequestEvent {
	now := time.Now()
	return db.RequestEvent{
		Method:     "GET",
		Host:       "upstream.local",
		Path:       "/",
		StatusCode: 200,
		BodySize:   128,
		Start:      now,
		End:        now.Add(25 * time.Millisecond),
		Duration:   25 * time.Millisecond,
	}
}

func TestEventIngester_BatchBySize(t *testing.T) {
	provider := &fakeProvider{}
	waiter := eventwait.New()

	i := NewEventIngester(
		prometheus.NewRegistry(),
		provider,
		ingesterTestOptions(waiter, 3, time.Hour)...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		i.Run(ctx)
		close(done)
	}()

	for j := 0; j < 3; j++ {
		i.Ingest(validEvent())
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, waiter.Wait(waitCtx, 3))

	cancel()
	<-done

	assert.Equal(t, 3, provider.inserted())
}

func TestEventIngester_FlushOnInterval(t *testing.T) {
	provider := &fakeProvider{}
	waiter := eventwait.New()

	i := NewEventIngester(
		prometheus.NewRegistry(),
		provider,
		ingesterTestOptions(waiter, 100, 20*time.Millisecond)...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		i.Run(ctx)
		close(done)
	}()

	i.Ingest(validEvent())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, waiter.Wait(waitCtx, 1))

	cancel()
	<-done

	assert.Equal(t, 1, provider.inserted())
}

func TestEventIngester_DrainsOnShutdown(t *testing.T) {
	provider := &fakeProvider{}

	i := NewEventIngester(
		prometheus.NewRegistry(),
		provider,
		WithBufferSize(10),
		WithBatchSize(100),
		WithBatchFlushInterval(time.Hour),
		WithIngestTimeout(time.Second),
		WithShutdownGracePeriod(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		i.Run(ctx)
		close(done)
	}()

	for j := 0; j < 5; j++ {
		i.Ingest(validEvent())
	}

	cancel()
	<-done

	assert.Equal(t, 5, provider.inserted())
}

func TestEventIngester_DropsInvalidEvents(t *testing.T) {
	provider := &fakeProvider{}
	i := NewEventIngester(prometheus.NewRegistry(), provider, WithBufferSize(1))

	i.Ingest(db.RequestEvent{}) // no method, status code zero

	// Nothing was enqueued.
	select {
	case <-i.eventsC:
		t.Fatal("invalid event reached the buffer")
	default:
	}
}

func ingesterTestOptions(waiter *eventwait.Waiter, batchSize int, flushInterval time.Duration) []Option {
	return []Option{
		WithBufferSize(10),
		WithBatchSize(batchSize),
		WithBatchFlushInterval(flushInterval),
		WithIngestTimeout(time.Second),
		WithShutdownGracePeriod(time.Second),
		WithObserver(waiter.Observe),
	}
}
