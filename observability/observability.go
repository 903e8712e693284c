// Package observability records pipeline runs and refresher liveness in
// SQLite, next to the slot table.
//
// Call Init(db) first, then pass the same *sql.DB to NewRunLog and
// NewHeartbeatWriter. Run entries are persisted asynchronously; a full
// buffer falls back to a synchronous insert.
package observability
