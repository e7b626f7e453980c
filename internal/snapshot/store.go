// Package snapshot implements the sqlite-backed persistence layer
// (C14) that lets a running bot resume after a restart: one row per
// bot name, upserted on every save, with a checksum guarding against
// silent disk corruption.
package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gridkernel/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	bot_name     TEXT PRIMARY KEY,
	bot_state    BLOB,
	grid_state   BLOB,
	dca_state    BLOB,
	risk_state   BLOB,
	trend_state  BLOB,
	hybrid_state BLOB,
	checksum     BLOB NOT NULL,
	saved_at     INTEGER NOT NULL
);`

// Store is the sqlite-backed Snapshot persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("snapshot: pinging database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("snapshot: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("snapshot: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts snap, keyed by its BotName, under a serializable
// transaction so a concurrent Load never observes a torn write.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("snapshot: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	checksum := checksumOf(snap)
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO snapshots (bot_name, bot_state, grid_state, dca_state, risk_state, trend_state, hybrid_state, checksum, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot_name) DO UPDATE SET
			bot_state = excluded.bot_state,
			grid_state = excluded.grid_state,
			dca_state = excluded.dca_state,
			risk_state = excluded.risk_state,
			trend_state = excluded.trend_state,
			hybrid_state = excluded.hybrid_state,
			checksum = excluded.checksum,
			saved_at = excluded.saved_at`

	_, err = tx.ExecContext(ctx, query,
		snap.BotName, snap.BotState, snap.GridState, snap.DCAState, snap.RiskState, snap.TrendState, snap.HybridState,
		checksum[:], savedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("snapshot: writing snapshot: %w", err)
	}

	return tx.Commit()
}

// Load returns the most recently saved Snapshot for botName, or
// (Snapshot{}, false, nil) if none exists.
func (s *Store) Load(ctx context.Context, botName string) (core.Snapshot, bool, error) {
	const query = `SELECT bot_state, grid_state, dca_state, risk_state, trend_state, hybrid_state, checksum, saved_at FROM snapshots WHERE bot_name = ?`

	var snap core.Snapshot
	snap.BotName = botName
	var checksum []byte
	var savedAtNano int64

	err := s.db.QueryRowContext(ctx, query, botName).Scan(
		&snap.BotState, &snap.GridState, &snap.DCAState, &snap.RiskState, &snap.TrendState, &snap.HybridState,
		&checksum, &savedAtNano,
	)
	if err == sql.ErrNoRows {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("snapshot: reading snapshot: %w", err)
	}
	snap.SavedAt = time.Unix(0, savedAtNano).UTC()

	want := checksumOf(snap)
	if len(checksum) != len(want) || string(checksum) != string(want[:]) {
		return core.Snapshot{}, false, fmt.Errorf("snapshot: checksum mismatch for %q: data corruption detected", botName)
	}

	return snap, true, nil
}

// Delete removes botName's snapshot, if any. Deleting an absent
// snapshot is not an error.
func (s *Store) Delete(ctx context.Context, botName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE bot_name = ?`, botName)
	if err != nil {
		return fmt.Errorf("snapshot: deleting snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func checksumOf(snap core.Snapshot) [32]byte {
	var buf []byte
	buf = append(buf, []byte(snap.BotName)...)
	buf = append(buf, snap.BotState...)
	buf = append(buf, snap.GridState...)
	buf = append(buf, snap.DCAState...)
	buf = append(buf, snap.RiskState...)
	buf = append(buf, snap.TrendState...)
	buf = append(buf, snap.HybridState...)
	return sha256.Sum256(buf)
}
