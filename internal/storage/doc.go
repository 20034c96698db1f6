// Package storage persists session metadata records for the client-side
// timeout policy.
//
// Records never hold terminal output, only the catalogue needed to rebuild
// the session list after a restart. Two implementations are provided:
//   - SQLiteStore: GORM over SQLite, one row per record
//   - MemoryStore: process-local map, used when no durable store is available
package storage
