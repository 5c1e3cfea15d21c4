// Package storage is the relational store behind the user directory and the
// issue store.
//
// Drivers:
//   - "sqlite": embedded database file (modernc.org/sqlite, no cgo)
//   - "postgres": server database through a pgx connection pool
//
// Every driver error is wrapped with domain.ErrStoreUnavailable. Domain
// outcomes (no such row, already closed) are reported through return values.
package storage
