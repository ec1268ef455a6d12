package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/ads-guardian/internal/monitor"
	"github.com/leozw/ads-guardian/internal/queue"
	redisstore "github.com/leozw/ads-guardian/internal/storage/redis"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []monitor.RunOptions
	err   error
	onRun func()
}

func (f *fakeRunner) Run(_ context.Context, opts monitor.RunOptions) (*monitor.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	onRun := f.onRun
	f.mu.Unlock()
	if onRun != nil {
		onRun()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &monitor.RunResult{
		RunID:  "run-1",
		DryRun: opts.DryRun,
		Errors: []string{},
		Tenants: []monitor.TenantSummary{
			{TenantID: "a", Processed: true, ChecksRun: 14},
			{TenantID: "b", Processed: true, ChecksRun: 14},
		},
	}, nil
}

func (f *fakeRunner) runs() []monitor.RunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]monitor.RunOptions(nil), f.calls...)
}

type fakeLock struct {
	locker *fakeLocker
}

func (l *fakeLock) Extend(context.Context) error { return nil }

func (l *fakeLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	l.locker.held = false
	l.locker.released++
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (f *fakeLocker) AcquireLock(context.Context, string, time.Duration) (Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, redisstore.ErrLockHeld
	}
	f.held = true
	return &fakeLock{locker: f}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	global  []interface{}
	tenants map[string]interface{}
}

func (f *fakeCache) CacheRunSummary(_ context.Context, summary interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = append(f.global, summary)
	return nil
}

func (f *fakeCache) CacheTenantRunSummary(_ context.Context, tenantID string, summary interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tenants == nil {
		f.tenants = make(map[string]interface{})
	}
	f.tenants[tenantID] = summary
	return nil
}

type fakeMetrics struct {
	open   map[string]int
	pushes int
}

func (f *fakeMetrics) SetOpenAlerts(counts map[string]int) { f.open = counts }
func (f *fakeMetrics) Push(context.Context) error {
	f.pushes++
	return nil
}

type countOpen map[string]int

func (c countOpen) CountOpenAlerts(context.Context) (map[string]int, error) { return c, nil }

type fakeQueue struct {
	mu      sync.Mutex
	pending []*queue.RunRequest
	pushed  []*queue.RunRequest
}

func (f *fakeQueue) Push(_ context.Context, req *queue.RunRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, req)
	return nil
}

func (f *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*queue.RunRequest, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		req := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return req, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, queue.ErrTimeout
	}
}

func newTestScheduler(t *testing.T, runner *fakeRunner, locker *fakeLocker) (*Scheduler, *fakeCache, *fakeMetrics) {
	cache := &fakeCache{}
	metrics := &fakeMetrics{}
	s := NewScheduler(Options{
		Runner:     runner,
		Locker:     locker,
		Cache:      cache,
		OpenAlerts: countOpen{"a": 2},
		Metrics:    metrics,
		Interval:   time.Hour,
		LockTTL:    time.Minute,
		PopTimeout: 10 * time.Millisecond,
		RetryDelay: 10 * time.Millisecond,
		Logger:     zaptest.NewLogger(t),
	})
	return s, cache, metrics
}

func TestRunOnce_PublishesAndReleases(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{}
	s, cache, metrics := newTestScheduler(t, runner, locker)

	result, err := s.RunOnce(context.Background(), monitor.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)

	assert.Equal(t, 1, locker.released)
	assert.False(t, locker.held)
	require.Len(t, cache.global, 1)
	require.Contains(t, cache.tenants, "a")
	view := cache.tenants["a"].(*monitor.TenantRun)
	assert.Equal(t, "run-1", view.RunID)
	assert.Equal(t, 14, view.Tenant.ChecksRun)
	assert.Equal(t, map[string]int{"a": 2}, metrics.open)
	assert.Equal(t, 1, metrics.pushes)
}

func TestRunOnce_LockHeld(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{held: true}
	s, _, _ := newTestScheduler(t, runner, locker)

	_, err := s.RunOnce(context.Background(), monitor.RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, runner.runs())
}

func TestRunOnce_RunErrorStillReleases(t *testing.T) {
	runner := &fakeRunner{err: errors.New("directory unavailable")}
	locker := &fakeLocker{}
	s, cache, metrics := newTestScheduler(t, runner, locker)

	_, err := s.RunOnce(context.Background(), monitor.RunOptions{})
	assert.ErrorContains(t, err, "directory unavailable")
	assert.Equal(t, 1, locker.released)
	assert.Empty(t, cache.global)
	assert.Zero(t, metrics.pushes)
}

func TestRunOnce_ScopedRunSkipsGlobalSummary(t *testing.T) {
	s, cache, _ := newTestScheduler(t, &fakeRunner{}, &fakeLocker{})

	_, err := s.RunOnce(context.Background(), monitor.RunOptions{TenantIDs: []string{"a"}})
	require.NoError(t, err)
	assert.Empty(t, cache.global)
	assert.NotEmpty(t, cache.tenants)
}

func TestRunOnce_DryRunIsNotCached(t *testing.T) {
	s, cache, _ := newTestScheduler(t, &fakeRunner{}, &fakeLocker{})

	_, err := s.RunOnce(context.Background(), monitor.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, cache.global)
	assert.Empty(t, cache.tenants)
}

func TestServeRequests_RunsScopedToTenant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{onRun: cancel}
	s, _, _ := newTestScheduler(t, runner, &fakeLocker{})
	q := &fakeQueue{pending: []*queue.RunRequest{{ID: "r-1", TenantID: "b", CheckIDs: []string{"cpc_spike"}}}}
	s.opts.Requests = q

	s.serveRequests(ctx)

	runs := runner.runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"b"}, runs[0].TenantIDs)
	assert.Equal(t, []string{"cpc_spike"}, runs[0].CheckIDs)
	assert.Empty(t, q.pushed)
}

func TestServeRequests_RequeuesWhileLocked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	runner := &fakeRunner{}
	s, _, _ := newTestScheduler(t, runner, &fakeLocker{held: true})
	q := &fakeQueue{pending: []*queue.RunRequest{{ID: "r-1", TenantID: "b"}}}
	s.opts.Requests = q

	s.serveRequests(ctx)

	assert.Empty(t, runner.runs())
	require.NotEmpty(t, q.pushed)
	assert.Equal(t, "r-1", q.pushed[0].ID)
}
