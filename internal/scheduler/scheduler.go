package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/monitor"
	"github.com/leozw/ads-guardian/internal/queue"
	redisstore "github.com/leozw/ads-guardian/internal/storage/redis"
)

const lockName = "monitor-run"

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("a monitoring run is already in progress")

type Runner interface {
	Run(ctx context.Context, opts monitor.RunOptions) (*monitor.RunResult, error)
}

type Lock interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

type SummaryCache interface {
	CacheRunSummary(ctx context.Context, summary interface{}) error
	CacheTenantRunSummary(ctx context.Context, tenantID string, summary interface{}) error
}

type RequestQueue interface {
	Push(ctx context.Context, req *queue.RunRequest) error
	Pop(ctx context.Context, timeout time.Duration) (*queue.RunRequest, error)
}

type OpenAlertCounter interface {
	CountOpenAlerts(ctx context.Context) (map[string]int, error)
}

type Metrics interface {
	SetOpenAlerts(counts map[string]int)
	Push(ctx context.Context) error
}

type Options struct {
	Runner   Runner
	Locker   Locker
	Cache    SummaryCache
	Requests RequestQueue
	// OpenAlerts and Metrics are optional.
	OpenAlerts OpenAlertCounter
	Metrics    Metrics

	Interval   time.Duration
	LockTTL    time.Duration
	RunTimeout time.Duration
	// PopTimeout bounds each blocking wait on the request queue.
	PopTimeout time.Duration
	// RetryDelay is how long a request waits after losing the lock race.
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type Scheduler struct {
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = opts.Interval
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.RunTimeout + time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{opts: opts, logger: opts.Logger}
}

// Start runs immediately, then every Interval, and serves on-demand run
// requests in between. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("run_timeout", s.opts.RunTimeout),
	)

	if s.opts.Requests != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveRequests(ctx)
		}()
	}

	s.scheduled(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.scheduled(ctx)
		}
	}
}

func (s *Scheduler) scheduled(ctx context.Context) {
	_, err := s.RunOnce(ctx, monitor.RunOptions{})
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("Skipping scheduled run, another run holds the lock")
	case err != nil:
		s.logger.Error("Scheduled run failed", zap.Error(err))
	}
}

// RunOnce performs one locked monitoring run and publishes its summary.
func (s *Scheduler) RunOnce(ctx context.Context, opts monitor.RunOptions) (*monitor.RunResult, error) {
	lock, err := s.opts.Locker.AcquireLock(ctx, lockName, s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, redisstore.ErrLockHeld) {
			return nil, ErrRunInProgress
		}
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			s.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	stopExtend := s.keepLock(runCtx, lock)
	result, err := s.opts.Runner.Run(runCtx, opts)
	stopExtend()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, opts, result)
	return result, nil
}

// keepLock extends the lock at a third of its ttl until the returned stop
// function is called.
func (s *Scheduler) keepLock(ctx context.Context, lock Lock) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.opts.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(ctx); err != nil {
					s.logger.Warn("Failed to extend run lock", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Scheduler) publish(ctx context.Context, opts monitor.RunOptions, result *monitor.RunResult) {
	if s.opts.Cache != nil && !result.DryRun {
		if len(opts.TenantIDs) == 0 && len(opts.CheckIDs) == 0 {
			if err := s.opts.Cache.CacheRunSummary(ctx, result); err != nil {
				s.logger.Warn("Failed to cache run summary", zap.Error(err))
			}
		}
		for _, t := range result.Tenants {
			view, _ := result.ForTenant(t.TenantID)
			if err := s.opts.Cache.CacheTenantRunSummary(ctx, t.TenantID, view); err != nil {
				s.logger.Warn("Failed to cache tenant run summary", zap.String("tenant_id", t.TenantID), zap.Error(err))
			}
		}
	}

	if s.opts.Metrics == nil {
		return
	}
	if s.opts.OpenAlerts != nil {
		counts, err := s.opts.OpenAlerts.CountOpenAlerts(ctx)
		if err != nil {
			s.logger.Warn("Failed to count open alerts", zap.Error(err))
		} else {
			s.opts.Metrics.SetOpenAlerts(counts)
		}
	}
	if err := s.opts.Metrics.Push(ctx); err != nil {
		s.logger.Warn("Failed to push metrics", zap.Error(err))
	}
}

func (s *Scheduler) serveRequests(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		req, err := s.opts.Requests.Pop(ctx, s.opts.PopTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			s.logger.Error("Failed to read run request", zap.Error(err))
			s.wait(ctx, time.Second)
			continue
		}

		logger := s.logger.With(zap.String("request_id", req.ID), zap.String("tenant_id", req.TenantID))
		logger.Info("Running on-demand request", zap.Strings("check_ids", req.CheckIDs), zap.String("requested_by", req.RequestedBy))

		result, err := s.RunOnce(ctx, monitor.RunOptions{
			DryRun:    req.DryRun,
			CheckIDs:  req.CheckIDs,
			TenantIDs: []string{req.TenantID},
		})
		switch {
		case errors.Is(err, ErrRunInProgress):
			logger.Info("Run in progress, requeueing request")
			if err := s.opts.Requests.Push(ctx, req); err != nil {
				logger.Error("Failed to requeue run request", zap.Error(err))
			}
			s.wait(ctx, s.opts.RetryDelay)
		case err != nil:
			logger.Error("On-demand run failed", zap.Error(err))
		default:
			logger.Info("On-demand run finished",
				zap.String("run_id", result.RunID),
				zap.Int("errors", len(result.Errors)),
			)
		}
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RedisLocker adapts the redis store's lock to Locker.
type RedisLocker struct {
	Client *redisstore.Client
}

func (l RedisLocker) AcquireLock(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	lock, err := l.Client.AcquireLock(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
