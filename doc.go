// Package approve provides a composable approval workflow engine for Go.
// It turns declarative, versioned workflow definitions into running
// instances that spawn approval tasks, track their completion, cascade
// cancellation, and escalate overdue work without any external caller
// polling.
//
// Approve is designed as a library, not a service. Import it, configure a
// store and an actor resolver, register workflow definitions, and drive
// instances through the engine facade.
//
// # Quick Start
//
//	o, err := approve.New(
//	    approve.WithStore(memory.New()),
//	    approve.WithResolver(resolver),
//	)
//
// # Architecture
//
// Approve follows a composable store pattern where each subsystem
// (definition, instance, task, event) defines its own store interface.
// A single backend implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package approve
