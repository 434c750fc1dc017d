package retention

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/db"
)

type fakeProvider struct {
	mu          sync.Mutex
	deleteCalls []time.Time
	deleteErr   error
	deleted     int64
}

func (f *fakeProvider) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, cutoff)
	return f.deleted, f.deleteErr
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleteCalls)
}

func (f *fakeProvider) lastCutoff() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteCalls[len(f.deleteCalls)-1]
}

func (f *fakeProvider) WithDB(func(*sql.DB))                                  {}
func (f *fakeProvider) Insert(context.Context, []db.RequestEvent) error       { return nil }
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
func (f *fakeProvider) Close() error { return nil }

func testConfig(maxAge time.Duration) *config.Config {
	return &config.Config{
		Retention: config.RetentionConfig{
			Enabled:      true,
			Interval:     time.Hour,
			RunTimeout:   time.Minute,
			EventsMaxAge: maxAge,
		},
	}
}

func TestNewWorker_Validation(t *testing.T) {
	provider := &fakeProvider{}

	_, err := NewWorker(provider, nil, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg := testConfig(24 * time.Hour)
	cfg.Retention.Interval = 0
	_, err = NewWorker(provider, cfg, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = testConfig(24 * time.Hour)
	cfg.Retention.RunTimeout = 0
	_, err = NewWorker(provider, cfg, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = testConfig(0)
	_, err = NewWorker(provider, cfg, prometheus.NewRegistry())
	assert.Error(t, err)

	_, err = NewWorker(provider, testConfig(24*time.Hour), prometheus.NewRegistry())
	assert.NoError(t, err)
}

func TestWorker_RunsOnceImmediately(t *testing.T) {
	provider := &fakeProvider{deleted: 3}
	w, err := NewWorker(provider, testConfig(24*time.Hour), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunLeaderless(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return provider.calls() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	cutoff := provider.lastCutoff()
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), cutoff, time.Minute)
}

func TestWorker_SurvivesDeleteErrors(t *testing.T) {
	provider := &fakeProvider{deleteErr: errors.New("boom")}
	w, err := NewWorker(provider, testConfig(24*time.Hour), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunLeaderless(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return provider.calls() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
