// Package journal keeps a SQLite-backed, append-only log of outbound sync
// batches.
//
// A transport drains a store's sync queue, appends what it drained here,
// and a peer (or a later process) replays the log into its own store with
// AddTransaction so transaction ids stay shared across replicas.
//
// The journal records what was sent, never the undo/redo stacks.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
	"github.com/webstudio-is/immerhin/internal/transaction"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - batches table
const currentSchemaVersion = 1

// Journal is an open batch log.
type Journal struct {
	db *sql.DB
}

// Record is one stored batch.
type Record struct {
	Seq    int64  `json:"seq"`
	Source string `json:"source,omitempty"`
	syncqueue.Entry
}

// Applier receives replayed batches. *store.Store implements it.
type Applier interface {
	AddTransaction(id string, changes []transaction.Change, source string) error
}

// Open creates or opens a journal database at path.
// Applies required pragmas and the schema automatically.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Append stores entries in order, all or nothing.
func (j *Journal) Append(ctx context.Context, source string, entries []syncqueue.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batches (transaction_id, changes, source)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("append %s: %w", e.TransactionID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.TransactionID, string(changes), source); err != nil {
			return fmt.Errorf("append %s: %w", e.TransactionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

// Records returns every stored batch with seq greater than after, in
// append order.
func (j *Journal) Records(ctx context.Context, after int64) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, transaction_id, changes, source
		FROM batches
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			changes string
		)
		if err := rows.Scan(&r.Seq, &r.TransactionID, &changes, &r.Source); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if err := patch.Unmarshal([]byte(changes), &r.Changes); err != nil {
			return nil, fmt.Errorf("decode batch %d: %w", r.Seq, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}

// Replay feeds every batch after seq into a, tagged with source, and
// returns the seq of the last replayed batch (or after, if none).
func (j *Journal) Replay(ctx context.Context, a Applier, after int64, source string) (int64, error) {
	records, err := j.Records(ctx, after)
	if err != nil {
		return after, err
	}
	last := after
	for _, r := range records {
		if err := a.AddTransaction(r.TransactionID, r.Changes, source); err != nil {
			return last, fmt.Errorf("replay batch %d (%s): %w", r.Seq, r.TransactionID, err)
		}
		last = r.Seq
	}
	return last, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (j *Journal) verifyPragma(name, expected string) error {
	var value string
	if err := j.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
