// Package slot persists the widget most recently presented to each host
// slot and serves it over HTTP and MCP.
package slot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/relwidget/dbopen"
)

// ErrNotFound is returned when a slot has never been set.
var ErrNotFound = errors.New("slot: not found")

// Schema creates the slot table.
const Schema = `
CREATE TABLE IF NOT EXISTS widget_slots (
    slot_id    TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    version    TEXT NOT NULL,
    released   INTEGER NOT NULL DEFAULT 0,
    desaturate INTEGER NOT NULL DEFAULT 0,
    tree       TEXT NOT NULL,
    png        BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_widget_slots_updated ON widget_slots(updated_at DESC);
`

// Record is the widget currently set on a slot.
type Record struct {
	SlotID     string          `json:"slot_id"`
	RunID      string          `json:"run_id"`
	Version    string          `json:"version"`
	Released   bool            `json:"released"`
	Desaturate int             `json:"desaturate"`
	Tree       json.RawMessage `json:"tree,omitempty"`
	PNG        []byte          `json:"-"`
	UpdatedAt  int64           `json:"updated_at"` // unix ms
}

// Store reads and writes slot records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore applies Schema on db and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("slot: DB is required")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("slot: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Put replaces the record for rec.SlotID. UpdatedAt is set to now when zero.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.SlotID == "" {
		return fmt.Errorf("slot: put: slot id is required")
	}
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = s.now().UnixMilli()
	}
	tree := rec.Tree
	if len(tree) == 0 {
		tree = json.RawMessage("null")
	}
	png := rec.PNG
	if png == nil {
		png = []byte{}
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO widget_slots (slot_id, run_id, version, released, desaturate, tree, png, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slot_id) DO UPDATE SET
				run_id = excluded.run_id,
				version = excluded.version,
				released = excluded.released,
				desaturate = excluded.desaturate,
				tree = excluded.tree,
				png = excluded.png,
				updated_at = excluded.updated_at`,
			rec.SlotID, rec.RunID, rec.Version, boolInt(rec.Released), rec.Desaturate,
			string(tree), png, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("slot: put %s: %w", rec.SlotID, err)
		}
		return nil
	})
}

// Get returns the full record for slotID, PNG included.
func (s *Store) Get(ctx context.Context, slotID string) (*Record, error) {
	var (
		rec      Record
		released int
		tree     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT slot_id, run_id, version, released, desaturate, tree, png, updated_at
		FROM widget_slots WHERE slot_id = ?`, slotID).
		Scan(&rec.SlotID, &rec.RunID, &rec.Version, &released, &rec.Desaturate, &tree, &rec.PNG, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("slot: get %s: %w", slotID, err)
	}
	rec.Released = released != 0
	rec.Tree = json.RawMessage(tree)
	return &rec, nil
}

// List returns every slot, most recently updated first, without tree or PNG.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_id, run_id, version, released, desaturate, updated_at
		FROM widget_slots ORDER BY updated_at DESC, slot_id`)
	if err != nil {
		return nil, fmt.Errorf("slot: list: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec      Record
			released int
		)
		if err := rows.Scan(&rec.SlotID, &rec.RunID, &rec.Version, &released, &rec.Desaturate, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("slot: list scan: %w", err)
		}
		rec.Released = released != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
