// Package store persists users and audio file metadata in SQLite.
//
// The Store manages the database connection, schema initialization, and every
// query the HTTP layer and classification pipeline need: bootstrap-guarded user
// creation, credential lookup, audio file intake rows, paginated listings, and
// the write-once classification result update.
//
// Classification results are keyed by row id, never by file name, so renames
// and deletions cannot race an in-flight classification. Schema changes bump
// the version in schema.go.
package store
