package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pulsewatch/pulsewatch/internal/checker"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/processor"
)

// ErrCheckInProgress is returned when a monitor's previous check has not
// finished yet.
var ErrCheckInProgress = errors.New("check already in progress")

// Store is the monitor lookup used by the scheduler.
type Store interface {
	ListEnabled(ctx context.Context) ([]*monitor.Monitor, error)
	Get(ctx context.Context, id string) (*monitor.Monitor, error)
}

// Checker runs one probe. Implementations never fail; see package checker.
type Checker interface {
	Check(ctx context.Context, m *monitor.Monitor) checker.Result
}

// Processor consumes a check outcome.
type Processor interface {
	Process(ctx context.Context, m *monitor.Monitor, res checker.Result) *processor.Outcome
}

// SchedulerConfig holds scheduler dependencies.
type SchedulerConfig struct {
	Config    Config
	Store     Store
	Checker   Checker
	Processor Processor
	Logger    zerolog.Logger

	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler owns the poll loop.
type Scheduler struct {
	config    Config
	store     Store
	checker   Checker
	processor Processor
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	running atomic.Bool

	mu       sync.Mutex
	inFlight map[string]struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	loop   sync.WaitGroup
	ticks  sync.WaitGroup

	metrics *Metrics
}

// Metrics tracks scheduler statistics.
type Metrics struct {
	mu sync.RWMutex

	TotalTicks       int64
	SkippedTicks     int64
	ChecksRun        int64
	ProcessFailures  int64
	LastTickAt       time.Time
	LastTickDuration time.Duration
}

// New creates a scheduler.
func New(cfg SchedulerConfig) *Scheduler {
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/pulsewatch/pulsewatch/internal/scheduler")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		config:    cfg.Config.withDefaults(),
		store:     cfg.Store,
		checker:   cfg.Checker,
		processor: cfg.Processor,
		logger:    cfg.Logger.With().Str("component", "scheduler").Logger(),
		tracer:    cfg.Tracer,
		now:       cfg.Now,
		inFlight:  make(map[string]struct{}),
		metrics:   &Metrics{},
	}
}

// TickResult describes one tick.
type TickResult struct {
	StartTime time.Time
	Duration  time.Duration

	// Skipped is set when the previous tick was still running.
	Skipped bool

	Enabled int
	Due     int
	Checked int

	// Busy counts due monitors whose previous check was still running.
	Busy int

	// Failed counts checks whose processing did not complete.
	Failed int

	Statuses map[monitor.Status]int
}

// Start performs one tick immediately, then one per TickInterval until Stop
// is called or ctx is done. Ticks run in their own goroutine so that a slow
// tick is skipped over rather than queued.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info().
		Dur("tick_interval", s.config.TickInterval).
		Int("concurrency", s.config.Concurrency).
		Msg("starting scheduler")

	s.loop.Add(1)
	go func() {
		defer s.loop.Done()

		// In-flight checks outlive Stop.
		tickCtx := context.WithoutCancel(ctx)

		s.spawnTick(tickCtx)

		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.spawnTick(tickCtx)
			}
		}
	}()
}

func (s *Scheduler) spawnTick(ctx context.Context) {
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.Tick(ctx)
	}()
}

// Stop cancels the timer and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.loop.Wait()
	s.ticks.Wait()

	s.logger.Info().Msg("scheduler stopped")
}

// Tick checks every enabled monitor that is due. It returns immediately with
// Skipped set if another tick is still running.
func (s *Scheduler) Tick(ctx context.Context) *TickResult {
	startTime := s.now()
	result := &TickResult{StartTime: startTime, Statuses: make(map[monitor.Status]int)}

	if !s.running.CompareAndSwap(false, true) {
		result.Skipped = true
		metrics.ObserveTick(metrics.TickSkipped)
		s.recordTick(result)
		s.logger.Warn().Msg("previous tick still running, skipping")
		return result
	}
	defer s.running.Store(false)
	metrics.ObserveTick(metrics.TickRun)

	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	monitors, err := s.store.ListEnabled(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list monitors")
		s.logger.Error().Err(err).Msg("failed to load monitors")
		result.Duration = time.Since(startTime)
		s.recordTick(result)
		return result
	}
	result.Enabled = len(monitors)

	var mu sync.Mutex
	var g errgroup.Group
	if s.config.Concurrency > 0 {
		g.SetLimit(s.config.Concurrency)
	}

	for _, m := range monitors {
		if !m.IsDue(startTime) {
			continue
		}
		result.Due++

		if !s.claim(m.ID) {
			result.Busy++
			continue
		}

		g.Go(func() error {
			defer s.release(m.ID)
			status, ok := s.runOne(ctx, m)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			result.Statuses[status]++
			if !ok {
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(startTime)
	s.recordTick(result)

	span.SetAttributes(
		attribute.Int("monitors.enabled", result.Enabled),
		attribute.Int("monitors.due", result.Due),
		attribute.Int("monitors.checked", result.Checked),
		attribute.Int("monitors.busy", result.Busy),
	)

	logEvent := s.logger.Debug()
	if result.Failed > 0 {
		logEvent = s.logger.Warn()
	}
	logEvent.
		Dur("duration", result.Duration).
		Int("due", result.Due).
		Int("checked", result.Checked).
		Int("busy", result.Busy).
		Int("failed", result.Failed).
		Msg("tick completed")

	return result
}

// RunMonitor checks one monitor immediately, regardless of its schedule.
func (s *Scheduler) RunMonitor(ctx context.Context, id string) (*processor.Outcome, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.claim(m.ID) {
		return nil, ErrCheckInProgress
	}
	defer s.release(m.ID)

	res := s.check(ctx, m)
	out := s.process(ctx, m, res)
	if out == nil {
		return nil, fmt.Errorf("processing check for monitor %s failed", m.ID)
	}
	return out, nil
}

// runOne checks and processes m. A panic in either step is contained.
func (s *Scheduler) runOne(ctx context.Context, m *monitor.Monitor) (status monitor.Status, ok bool) {
	logger := s.logger.With().Str("monitor_id", m.ID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("monitor check panicked")
			status, ok = monitor.StatusDown, false
		}
	}()

	res := s.check(ctx, m)
	out := s.process(ctx, m, res)
	return res.Status, out != nil
}

func (s *Scheduler) check(ctx context.Context, m *monitor.Monitor) checker.Result {
	ctx, span := s.tracer.Start(ctx, "scheduler.check", trace.WithAttributes(
		attribute.String("monitor.id", m.ID),
		attribute.String("monitor.type", string(m.Type)),
	))
	defer span.End()

	start := time.Now()
	res := s.checker.Check(ctx, m)
	metrics.ObserveCheck(string(m.Type), string(res.Status), time.Since(start))

	span.SetAttributes(
		attribute.String("check.status", string(res.Status)),
		attribute.Int("check.response_time_ms", res.ResponseTime),
	)
	if res.Status == monitor.StatusDown {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (s *Scheduler) process(ctx context.Context, m *monitor.Monitor, res checker.Result) *processor.Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout)
	defer cancel()

	s.metrics.mu.Lock()
	s.metrics.ChecksRun++
	s.metrics.mu.Unlock()

	out := s.processor.Process(ctx, m, res)
	if out == nil {
		s.metrics.mu.Lock()
		s.metrics.ProcessFailures++
		s.metrics.mu.Unlock()
	}
	return out
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *Scheduler) recordTick(result *TickResult) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	if result.Skipped {
		s.metrics.SkippedTicks++
		return
	}
	s.metrics.TotalTicks++
	s.metrics.LastTickAt = result.StartTime
	s.metrics.LastTickDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (s *Scheduler) GetMetrics() Metrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return Metrics{
		TotalTicks:       s.metrics.TotalTicks,
		SkippedTicks:     s.metrics.SkippedTicks,
		ChecksRun:        s.metrics.ChecksRun,
		ProcessFailures:  s.metrics.ProcessFailures,
		LastTickAt:       s.metrics.LastTickAt,
		LastTickDuration: s.metrics.LastTickDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (s *Scheduler) MetricsSnapshot() map[string]interface{} {
	m := s.GetMetrics()
	return map[string]interface{}{
		"total_ticks":        m.TotalTicks,
		"skipped_ticks":      m.SkippedTicks,
		"checks_run":         m.ChecksRun,
		"process_failures":   m.ProcessFailures,
		"last_tick_at":       m.LastTickAt,
		"last_tick_duration": m.LastTickDuration.String(),
	}
}
