// Package store defines the aggregate persistence interface. Each subsystem
// (definition, instance, task, event) defines its own store interface.
// The composite Store composes them all. Backends: Postgres and Memory.
package store

import (
	"context"

	"github.com/xraph/approve/definition"
	"github.com/xraph/approve/event"
	"github.com/xraph/approve/instance"
	"github.com/xraph/approve/task"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, memory) implements all of them.
type Store interface {
	definition.Store
	instance.Store
	task.Store
	event.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
