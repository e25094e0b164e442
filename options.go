package approve

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/clock"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// schedulerRunner is an internal interface for the escalation scheduler
// lifecycle.
type schedulerRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for the approval engine: the
// definition registry, instance engine, task manager, and escalation
// scheduler.
//
// Create one with New() and functional options. The Orchestrator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build() to wire everything together.
type Orchestrator struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	resolver   actor.Resolver
	clk        clock.Clock
	extensions extensionEmitter
	scheduler  schedulerRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
		clk:    clock.System(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Resolver returns the orchestrator's actor resolver.
func (o *Orchestrator) Resolver() actor.Resolver { return o.resolver }

// Clock returns the orchestrator's time source.
func (o *Orchestrator) Clock() clock.Clock { return o.clk }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetScheduler sets the escalation scheduler (called by the engine package).
func (o *Orchestrator) SetScheduler(s schedulerRunner) { o.scheduler = s }

// SetExtensions sets the extension emitter (called by the engine package).
func (o *Orchestrator) SetExtensions(e extensionEmitter) { o.extensions = e }

// Start launches the escalation scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.scheduler == nil {
		return ErrNoStore
	}
	if err := o.scheduler.Start(ctx); err != nil {
		return err
	}
	o.started = true
	return nil
}

// Stop gracefully shuts down the orchestrator.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.scheduler != nil && o.started {
		if err := o.scheduler.Stop(ctx); err != nil {
			o.logger.Error("scheduler stop error", "error", err)
		}
	}
	if o.extensions != nil {
		o.extensions.EmitShutdown(ctx)
	}
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithResolver sets the actor resolver used for role selectors and
// escalation targets.
func WithResolver(r actor.Resolver) Option {
	return func(o *Orchestrator) error {
		o.resolver = r
		return nil
	}
}

// WithClock sets the time source. Defaults to the system clock; tests
// inject clock.NewFake to drive escalation deterministically.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) error {
		o.clk = c
		return nil
	}
}

// WithScanInterval sets how often the escalation scheduler scans open
// tasks for elapsed due-dates.
func WithScanInterval(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.ScanInterval = d
		return nil
	}
}

// WithScanSchedule sets a cron expression for the escalation scan instead
// of a fixed interval. Supports five-field cron and descriptors like
// "@every 30s".
func WithScanSchedule(expr string) Option {
	return func(o *Orchestrator) error {
		o.config.ScanSchedule = expr
		return nil
	}
}

// WithDefaultStepTimeout sets the due-date window applied to approval
// steps that do not declare their own timeout.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.DefaultStepTimeout = d
		return nil
	}
}
