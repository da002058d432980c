// Package storage persists users and notes in SQLite (modernc.org/sqlite,
// cgo-free). The schema lives in migrations.sql and is applied on open.
package storage
