package escalation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/approve"
	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/clock"
	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/scope"
	"github.com/xraph/approve/task"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler wakes to check for due
// tasks.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithSchedule gates scans behind a cron schedule instead of acting on
// every tick. Supports five-field cron and descriptors like "@every 30s".
func WithSchedule(expr string) (Option, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return func(s *Scheduler) { s.schedule = sched }, nil
}

// WithBatchSize bounds how many due tasks one scan processes.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) { s.batchSize = n }
}

// WithDefaultStepTimeout sets the fresh due-date window for escalated
// tasks whose step declares no timeout. It must match the default the
// instance engine used when assigning the original due-date.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.defaultTimeout = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler is the time-driven component of the engine: it periodically
// scans Pending and InProgress tasks whose due-date has elapsed and
// forces a transition — reassignment to the step's escalation target, or
// Overdue when no target remains. It is the only component that runs
// autonomously; it never blocks request-handling callers.
//
// Escalation is monotone and at-most-one-step: a task escalates once per
// timeout window, and a second miss resolves to Overdue.
type Scheduler struct {
	tasks    task.Store
	insts    instance.Store
	defs     definition.Store
	manager  *task.Manager
	resolver actor.Resolver
	clk      clock.Clock
	logger   *slog.Logger

	tickInterval   time.Duration
	schedule       cronlib.Schedule
	batchSize      int
	defaultTimeout time.Duration

	// nextRun gates schedule-based scans.
	nextRun time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	tasks task.Store,
	insts instance.Store,
	defs definition.Store,
	manager *task.Manager,
	resolver actor.Resolver,
	clk clock.Clock,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	s := &Scheduler{
		tasks:          tasks,
		insts:          insts,
		defs:           defs,
		manager:        manager,
		resolver:       resolver,
		clk:            clk,
		logger:         logger,
		tickInterval:   1 * time.Minute,
		batchSize:      100,
		defaultTimeout: 7 * 24 * time.Hour,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schedule != nil {
		s.nextRun = s.schedule.Next(s.clk.Now())
	}
	return s
}

// Start launches the scan loop goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("escalation scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("escalation scheduler stopped")
	return nil
}

// loop fires on each tick interval and runs due scans.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := s.clk.Now()
			if s.schedule != nil {
				if now.Before(s.nextRun) {
					continue
				}
				s.nextRun = s.schedule.Next(now)
			}
			if _, err := s.ScanOnce(context.Background()); err != nil {
				s.logger.Error("escalation scan error", slog.String("error", err.Error()))
			}
		}
	}
}

// ScanOnce runs a single scan-and-act cycle and returns how many tasks
// it transitioned. Exported so tests drive the scheduler with a fake
// clock instead of waiting on the ticker.
func (s *Scheduler) ScanOnce(ctx context.Context) (int, error) {
	now := s.clk.Now()
	due, err := s.tasks.ListOpenTasksDueBefore(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}

	acted := 0
	for _, t := range due {
		if s.handle(ctx, t, now) {
			acted++
		}
	}
	return acted, nil
}

// handle escalates or expires one overdue task. Returns false when the
// task was skipped (raced with a manual completion, suspended instance,
// missing step).
func (s *Scheduler) handle(ctx context.Context, t *task.Task, now time.Time) bool {
	ctx = scope.Restore(ctx, t.TenantID)

	inst, err := s.insts.GetInstance(ctx, t.InstanceID)
	if err != nil {
		s.logger.Error("load instance for overdue task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	// Suspended instances defer time-driven transitions along with
	// everything else; terminal ones have already cancelled their tasks.
	if inst.Status != instance.StatusRunning {
		return false
	}

	def, err := s.defs.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		s.logger.Error("load definition for overdue task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	step := def.StepByID(t.StepID)

	if step != nil && step.HasEscalation() && t.EscalatedAt == nil {
		acted, expire := s.escalate(ctx, t, step, now)
		if acted {
			return true
		}
		if !expire {
			return false
		}
		// Target unresolved: fall through to Overdue so the process
		// never stalls.
	}

	_, err = s.manager.MarkOverdue(ctx, t.ID)
	switch {
	case err == nil:
		s.logger.Info("task overdue",
			slog.String("task_id", t.ID.String()),
			slog.String("assignee", t.Assignee),
		)
		return true
	case errors.Is(err, approve.ErrInvalidTransition):
		// The actor beat us to it inside the same window.
		return false
	default:
		s.logger.Error("mark task overdue",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
}

// escalate reassigns the task to its escalation target with a fresh
// due-date bounded by the step's original timeout. acted reports whether
// the escalation happened; expire asks the caller to downgrade the task
// to Overdue (target resolved to nobody).
func (s *Scheduler) escalate(ctx context.Context, t *task.Task, step *definition.Step, now time.Time) (acted, expire bool) {
	targets, err := step.Escalation.Resolve(ctx, s.resolver, t.TenantID)
	if err != nil {
		s.logger.Error("resolve escalation target",
			slog.String("task_id", t.ID.String()),
			slog.Int("step_order", step.Order),
			slog.String("error", err.Error()),
		)
		return false, false // transient; retry on the next scan
	}
	if len(targets) == 0 {
		s.logger.Warn("escalation target unresolved, expiring task",
			slog.String("task_id", t.ID.String()),
			slog.Int("step_order", step.Order),
			slog.String("error", approve.ErrEscalationTargetUnresolved.Error()),
		)
		return false, true
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	escalated, err := s.manager.Escalate(ctx, t.ID, targets[0], now.Add(timeout))
	switch {
	case err == nil:
		s.logger.Info("task escalated",
			slog.String("task_id", t.ID.String()),
			slog.String("from", t.Assignee),
			slog.String("to", escalated.Assignee),
			slog.Time("new_due_date", *escalated.DueDate),
		)
		return true, false
	case errors.Is(err, approve.ErrInvalidTransition):
		// Completed or cancelled in the same window; skip.
		return false, false
	default:
		s.logger.Error("escalate task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return false, false
	}
}
