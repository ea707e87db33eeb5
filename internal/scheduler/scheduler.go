package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/agent"
	"github.com/mohammad-safakhou/researcher/internal/logging"
)

const (
	defaultInterval = time.Minute
	defaultLockTTL  = 5 * time.Minute
)

type Runner interface {
	Run(ctx context.Context, query string, maxResults int) (*agent.Result, error)
}

// LastRun reports when a query last completed; ok is false if it never ran.
type LastRun interface {
	LatestRunTime(ctx context.Context, query string) (time.Time, bool, error)
}

// Locker guards a schedule across replicas.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// Scheduler fires configured research queries on their cron expressions.
type Scheduler struct {
	schedules []config.ScheduleConfig
	runner    Runner
	history   LastRun
	locker    Locker
	interval  time.Duration
	lockTTL   time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu       sync.Mutex
	launched map[string]time.Time
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

func WithHistory(h LastRun) Option { return func(s *Scheduler) { s.history = h } }

func WithLocker(l Locker) Option { return func(s *Scheduler) { s.locker = l } }

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func New(schedules []config.ScheduleConfig, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedules: schedules,
		runner:    runner,
		interval:  defaultInterval,
		lockTTL:   defaultLockTTL,
		now:       time.Now,
		logger:    logging.Component("scheduler"),
		launched:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.schedules) == 0 {
		return
	}
	s.logger.Info().Int("schedules", len(s.schedules)).Dur("interval", s.interval).Msg("scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick launches every schedule that is due. Launched runs are tracked and
// awaited by Run on shutdown.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, sc := range s.schedules {
		if ctx.Err() != nil {
			return
		}
		last := s.lastRun(ctx, sc)
		if !isDue(sc.Cron, last, s.now()) {
			continue
		}
		if s.locker != nil {
			ok, err := s.locker.TryLock(ctx, "schedule:"+sc.Name, s.lockTTL)
			if err != nil {
				s.logger.Warn().Err(err).Str("schedule", sc.Name).Msg("lock failed")
				continue
			}
			if !ok {
				s.logger.Debug().Str("schedule", sc.Name).Msg("held by another replica")
				continue
			}
		}

		s.mu.Lock()
		s.launched[sc.Name] = s.now()
		s.mu.Unlock()

		s.wg.Add(1)
		go func(sc config.ScheduleConfig) {
			defer s.wg.Done()
			s.fire(ctx, sc)
		}(sc)
	}
}

// Wait blocks until launched runs finish.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) fire(ctx context.Context, sc config.ScheduleConfig) {
	logger := s.logger.With().Str("schedule", sc.Name).Str("query", sc.Query).Logger()
	logger.Info().Msg("scheduled run starting")
	res, err := s.runner.Run(agent.SkipCache(ctx), sc.Query, sc.MaxResults)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	ev := logger.Info()
	if res.Error != "" {
		ev = logger.Warn().Str("error", res.Error)
	}
	ev.Str("id", res.ID).Int("sources", len(res.Sources)).Msg("scheduled run finished")
}

// lastRun is the later of the stored history and this replica's own launches.
func (s *Scheduler) lastRun(ctx context.Context, sc config.ScheduleConfig) *time.Time {
	var last *time.Time
	if s.history != nil {
		t, ok, err := s.history.LatestRunTime(ctx, sc.Query)
		if err != nil {
			s.logger.Warn().Err(err).Str("schedule", sc.Name).Msg("history lookup failed")
		} else if ok {
			last = &t
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.launched[sc.Name]; ok && (last == nil || t.After(*last)) {
		last = &t
	}
	return last
}

// isDue reports whether a schedule with cronSpec should run at now given its
// last run. "@daily", "@hourly" and 5-field cron expressions are accepted; an
// invalid expression behaves like "@daily".
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return now.Sub(*last) >= 24*time.Hour
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
