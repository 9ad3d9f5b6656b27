// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// # Overview
//
// The package centers around [Table], a generic container that stores rows in a
// JSONL (JSON Lines) file with full in-memory caching for fast reads. Tables are
// safe for concurrent use by multiple goroutines.
//
// # Concurrency
//
// [Table.Modify] holds the write lock for the entire read-modify-write cycle, so
// single-row updates never need retries.
//
// Mutations spanning several rows or tables go through a [DB] transaction:
// [Stage] takes the table write lock for the lifetime of the [Tx], reads see
// staged rows, and [Tx.Commit] makes every staged table visible at once. Only
// one transaction runs at a time per [DB].
//
// # Secondary Indexes
//
// [UniqueIndex] and [Index] provide O(1) lookups by arbitrary keys, staying
// synchronized with committed mutations via [TableObserver]. A [UniqueIndex]
// also acts as a constraint: an append, modify or commit that would duplicate
// a key fails with [ErrDuplicateKey] and leaves the table unchanged.
//
// # File Format
//
// JSONL files with line 1 as schema header, subsequent lines as JSON rows.
// Rows are sorted by ID on load if out of order (handles clock drift, manual edits).
//
// A commit writes each touched table to "<path>.<txid>.tx", then the list of
// renames to journal.json, then renames. [OpenDB] finishes a commit that was
// interrupted after the journal was written.
package jsonldb
