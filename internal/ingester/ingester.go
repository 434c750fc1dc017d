package ingester

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/netlens/netlens/internal/db"
)

// EventIngester decouples request recording from storage: the proxy hands
// completed events to Ingest without blocking, and a single Run loop batches
// them into the database.
type EventIngester struct {
	dbProvider db.Provider
	eventsC    chan db.RequestEvent

	mu     sync.RWMutex
	closed bool

	shutdownGracePeriod time.Duration
	ingestTimeout       time.Duration
	batchSize           int
	batchFlushInterval  time.Duration
	observer            func(n int)

	droppedEventsTotal *prometheus.CounterVec
	batchSizeHistogram prometheus.Histogram
}

type Option func(*EventIngester)

func WithBufferSize(bufferSize int) Option {
	return func(i *EventIngester) {
		i.eventsC = make(chan db.RequestEvent, bufferSize)
	}
}

func WithIngestTimeout(timeout time.Duration) Option {
	return func(i *EventIngester) {
		i.ingestTimeout = timeout
	}
}

func WithShutdownGracePeriod(gracePeriod time.Duration) Option {
	return func(i *EventIngester) {
		i.shutdownGracePeriod = gracePeriod
	}
}

func WithBatchSize(batchSize int) Option {
	return func(i *EventIngester) {
		i.batchSize = batchSize
	}
}

func WithBatchFlushInterval(interval time.Duration) Option {
	return func(i *EventIngester) {
		i.batchFlushInterval = interval
	}
}

// WithObserver registers a callback invoked with the batch size after every
// successful insert. Collaborators waiting for "N events recorded" hook in
// here.
func WithObserver(observer func(n int)) Option {
	return func(i *EventIngester) {
		i.observer = observer
	}
}

func NewEventIngester(reg prometheus.Registerer, dbProvider db.Provider, opts ...Option) *EventIngester {
	i := &EventIngester{
		dbProvider:          dbProvider,
		ingestTimeout:       time.Second,
		shutdownGracePeriod: 5 * time.Second,
		batchSize:           10,
		batchFlushInterval:  5 * time.Second,
	}

	for _, opt := range opts {
		opt(i)
	}

	if i.eventsC == nil {
		i.eventsC = make(chan db.RequestEvent, 100)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	i.droppedEventsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlens_ingester_dropped_events_total",
			Help: "Total number of request events dropped due to a full buffer, a closed ingester, or failed validation",
		},
		[]string{"reason"},
	)
	i.batchSizeHistogram = promauto.With(reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netlens_ingester_batch_size",
			Help:    "Histogram of batch sizes ingested",
			Buckets: prometheus.ExponentialBucketsRange(1, float64(i.batchSize)+1, 10),
		},
	)

	return i
}

// Ingest enqueues an event without blocking the request path. Events are
// dropped, with a metric, when the buffer is full or the ingester has shut
// down.
func (i *EventIngester) Ingest(event db.RequestEvent) {
	if err := event.Validate(); err != nil {
		i.droppedEventsTotal.WithLabelValues("invalid").Inc()
		slog.Error("dropping invalid request event", "err", err)
		return
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		i.droppedEventsTotal.WithLabelValues("closed").Inc()
		slog.Error("closed: dropping request event", "method", event.Method, "path", event.Path)
		return
	}
	select {
	case i.eventsC <- event:
	default:
		i.droppedEventsTotal.WithLabelValues("blocked").Inc()
		slog.Error("blocked: dropping request event", "method", event.Method, "path", event.Path)
	}
}

func (i *EventIngester) Run(ctx context.Context) {
	batch := make([]db.RequestEvent, 0, i.batchSize)
	ticker := time.NewTicker(i.batchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.mu.Lock()
			defer i.mu.Unlock()
			i.closed = true
			close(i.eventsC)

			i.drainWithGracePeriod(batch)
			return
		case event := <-i.eventsC:
			batch = append(batch, event)
			if len(batch) >= i.batchSize {
				i.ingest(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				i.ingest(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (i *EventIngester) drainWithGracePeriod(batch []db.RequestEvent) {
	slog.Debug("draining ingester", "grace_period", i.shutdownGracePeriod)

	graceCtx, graceCancel := context.WithTimeout(context.Background(), i.shutdownGracePeriod)
	defer graceCancel()
	for event := range i.eventsC {
		batch = append(batch, event)
		if len(batch) >= i.batchSize {
			i.ingest(graceCtx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		i.ingest(graceCtx, batch)
	}
}

func (i *EventIngester) ingest(ctx context.Context, events []db.RequestEvent) {
	ingestCtx, ingestCancel := context.WithTimeout(ctx, i.ingestTimeout)
	defer ingestCancel()

	i.batchSizeHistogram.Observe(float64(len(events)))
	traceCtx, span := otel.Tracer("event-ingester").Start(ingestCtx, "ingest")
	defer span.End()

	if err := i.dbProvider.Insert(traceCtx, events); err != nil {
		slog.Error("unable to insert request events", "err", err)
		return
	}
	if i.observer != nil {
		i.observer(len(events))
	}
}
