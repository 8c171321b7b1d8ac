// Package catalog implements the durable image record store backed by
// SQLite. A single table holds one row per ingested file, keyed by id
// with secondary uniqueness over filename and file_hash. The store
// serves concurrent readers and serializes writers; every mutating
// operation commits atomically.
package catalog
