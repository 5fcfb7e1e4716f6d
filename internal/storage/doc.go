package storage

// Package storage persists the history table across restarts.
//
// It currently supports:
//   - "file": snapshot + append-only journal, dependency-free format
//   - "sqlite": single SQLite database file
//
// Instants are stored as Unix milliseconds so a reload is independent
// of the configured display timezone.
