package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for extractions, the contract
// cache, and the block cache. All writes are idempotent upserts with
// explicit conflict keys; extractions are never deleted here.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS extractions (
  address       TEXT NOT NULL,
  name          TEXT NOT NULL,
  height        INTEGER NOT NULL,
  time_unix_ms  INTEGER NOT NULL,
  tx_hash       TEXT NOT NULL,
  data          TEXT NOT NULL,
  PRIMARY KEY(address, name, height)
);

CREATE TABLE IF NOT EXISTS contracts (
  address                       TEXT PRIMARY KEY,
  code_id                       INTEGER NOT NULL,
  admin                         TEXT,
  creator                       TEXT,
  label                         TEXT,
  instantiated_at_height        INTEGER NOT NULL,
  instantiated_at_time_unix_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blocks (
  height        INTEGER PRIMARY KEY,
  time_unix_ms  INTEGER NOT NULL,
  timestamp     TEXT NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Extraction is a persisted fact about an address at a block height. The
// natural key is (address, name, height); time, tx hash, and data are
// metadata about the latest write.
type Extraction struct {
	Address    string          `json:"address"`
	Name       string          `json:"name"`
	Height     uint64          `json:"height"`
	TimeUnixMs int64           `json:"timeUnixMs"`
	TxHash     string          `json:"txHash"`
	Data       json.RawMessage `json:"data"`
}

// UpsertExtractions writes a batch inside one transaction. On conflict
// only time_unix_ms, tx_hash, and data are refreshed, so replaying a
// transaction converges to the same row.
func (s *Store) UpsertExtractions(ctx context.Context, extractions []Extraction) error {
	if len(extractions) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range extractions {
			if e.Address == "" || e.Name == "" {
				return fmt.Errorf("extraction address and name required (name %q)", e.Name)
			}
			_, err := tx.ExecContext(ctx, `
INSERT INTO extractions (address, name, height, time_unix_ms, tx_hash, data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(address, name, height) DO UPDATE SET
  time_unix_ms=excluded.time_unix_ms,
  tx_hash=excluded.tx_hash,
  data=excluded.data;
`, e.Address, e.Name, e.Height, e.TimeUnixMs, e.TxHash, string(e.Data))
			if err != nil {
				return fmt.Errorf("upsert extraction %s/%s@%d: %w", e.Address, e.Name, e.Height, err)
			}
		}
		return nil
	})
}

// GetExtraction retrieves one extraction by its natural key.
func (s *Store) GetExtraction(ctx context.Context, address, name string, height uint64) (Extraction, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT address, name, height, time_unix_ms, tx_hash, data
FROM extractions WHERE address = ? AND name = ? AND height = ?;
`, address, name, height)
	var e Extraction
	var data string
	switch err := row.Scan(&e.Address, &e.Name, &e.Height, &e.TimeUnixMs, &e.TxHash, &data); err {
	case nil:
		e.Data = json.RawMessage(data)
		return e, true, nil
	case sql.ErrNoRows:
		return Extraction{}, false, nil
	default:
		return Extraction{}, false, fmt.Errorf("get extraction: %w", err)
	}
}

// EachExtraction streams all extractions ordered by height to fn; a
// non-nil error from fn stops the scan.
func (s *Store) EachExtraction(ctx context.Context, fn func(Extraction) error) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT address, name, height, time_unix_ms, tx_hash, data
FROM extractions ORDER BY height, address, name;
`)
	if err != nil {
		return fmt.Errorf("scan extractions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Extraction
		var data string
		if err := rows.Scan(&e.Address, &e.Name, &e.Height, &e.TimeUnixMs, &e.TxHash, &data); err != nil {
			return fmt.Errorf("scan extraction row: %w", err)
		}
		e.Data = json.RawMessage(data)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountExtractions returns the number of stored extraction rows.
func (s *Store) CountExtractions(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extractions;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count extractions: %w", err)
	}
	return n, nil
}

// LatestExtractionHeight returns the highest height any extraction was
// recorded at, ok=false when the table is empty.
func (s *Store) LatestExtractionHeight(ctx context.Context) (uint64, bool, error) {
	var h sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(height) FROM extractions;`).Scan(&h); err != nil {
		return 0, false, fmt.Errorf("latest extraction height: %w", err)
	}
	if !h.Valid {
		return 0, false, nil
	}
	return uint64(h.Int64), true, nil
}

// Contract is the cached metadata of an instantiated contract.
type Contract struct {
	Address                  string `json:"address"`
	CodeID                   uint64 `json:"codeId"`
	Admin                    string `json:"admin"`
	Creator                  string `json:"creator"`
	Label                    string `json:"label"`
	InstantiatedAtHeight     uint64 `json:"instantiatedAtHeight"`
	InstantiatedAtTimeUnixMs int64  `json:"instantiatedAtTimeUnixMs"`
}

// UpsertContract records contract metadata. On conflict only code_id,
// admin, creator, and label are refreshed; instantiation provenance is set
// once and preserved.
func (s *Store) UpsertContract(ctx context.Context, c Contract) error {
	if c.Address == "" {
		return errors.New("contract address required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO contracts (address, code_id, admin, creator, label, instantiated_at_height, instantiated_at_time_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
  code_id=excluded.code_id,
  admin=excluded.admin,
  creator=excluded.creator,
  label=excluded.label;
`, c.Address, c.CodeID, c.Admin, c.Creator, c.Label, c.InstantiatedAtHeight, c.InstantiatedAtTimeUnixMs)
	if err != nil {
		return fmt.Errorf("upsert contract: %w", err)
	}
	return nil
}

// GetContract retrieves a cached contract by address.
func (s *Store) GetContract(ctx context.Context, address string) (Contract, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT address, code_id, admin, creator, label, instantiated_at_height, instantiated_at_time_unix_ms
FROM contracts WHERE address = ?;
`, address)
	var c Contract
	switch err := row.Scan(&c.Address, &c.CodeID, &c.Admin, &c.Creator, &c.Label, &c.InstantiatedAtHeight, &c.InstantiatedAtTimeUnixMs); err {
	case nil:
		return c, true, nil
	case sql.ErrNoRows:
		return Contract{}, false, nil
	default:
		return Contract{}, false, fmt.Errorf("get contract: %w", err)
	}
}

// CountContracts returns the number of cached contracts.
func (s *Store) CountContracts(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contracts: %w", err)
	}
	return n, nil
}

// Block is a cached block header used to resolve transaction times
// without re-querying the node.
type Block struct {
	Height     uint64 `json:"height"`
	TimeUnixMs int64  `json:"timeUnixMs"`
	Timestamp  string `json:"timestamp"`
}

// UpsertBlock records a block header.
func (s *Store) UpsertBlock(ctx context.Context, b Block) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO blocks (height, time_unix_ms, timestamp)
VALUES (?, ?, ?)
ON CONFLICT(height) DO UPDATE SET
  time_unix_ms=excluded.time_unix_ms,
  timestamp=excluded.timestamp;
`, b.Height, b.TimeUnixMs, b.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}
	return nil
}

// GetBlock retrieves a cached block by height.
func (s *Store) GetBlock(ctx context.Context, height uint64) (Block, bool, error) {
	return blockRow(s.db.QueryRowContext(ctx, `
SELECT height, time_unix_ms, timestamp FROM blocks WHERE height = ?;
`, height))
}

// NearestBlockBefore retrieves the cached block nearest to height from
// below, inclusive.
func (s *Store) NearestBlockBefore(ctx context.Context, height uint64) (Block, bool, error) {
	return blockRow(s.db.QueryRowContext(ctx, `
SELECT height, time_unix_ms, timestamp FROM blocks
WHERE height <= ? ORDER BY height DESC LIMIT 1;
`, height))
}

func blockRow(row *sql.Row) (Block, bool, error) {
	var b Block
	switch err := row.Scan(&b.Height, &b.TimeUnixMs, &b.Timestamp); err {
	case nil:
		return b, true, nil
	case sql.ErrNoRows:
		return Block{}, false, nil
	default:
		return Block{}, false, fmt.Errorf("get block: %w", err)
	}
}

// WithTx executes a callback inside a transaction for callers needing
// atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
