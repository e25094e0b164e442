// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: a partial unique index enforcing the single-running-instance
// invariant, NOTIFY on event publish, embedded SQL migrations.
package postgres
