package approve

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// ScanInterval is how often the escalation scheduler scans open tasks
	// for elapsed due-dates.
	ScanInterval time.Duration

	// ScanSchedule is an optional cron expression (five-field or
	// descriptors like "@every 30s") that overrides ScanInterval. Empty
	// means use the fixed interval.
	ScanSchedule string

	// DefaultStepTimeout is the due-date window applied to steps that do
	// not declare their own timeout.
	DefaultStepTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ScanInterval:       1 * time.Minute,
		DefaultStepTimeout: 7 * 24 * time.Hour,
		ShutdownTimeout:    30 * time.Second,
	}
}
