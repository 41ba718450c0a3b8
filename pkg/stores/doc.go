// Package stores persists pipeline history in SQLite: one row per run,
// one per stage executed inside it, an append-only event log and the
// artifacts each stage produced. Schema changes are applied with embedded
// golang-migrate migrations.
package stores
