package store

// SQLite-backed Repository. Mirrors the schema recorded by the original
// BMS storage crate's bms-storage tables, adapted to database/sql. The
// driver itself is registered by the blank import below; callers open
// the *sql.DB with a DSN of their own choosing (typically
// "file:<path>?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON").

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

// SQLiteRepository is a durable Repository backed by SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an already-open *sql.DB. Callers are
// responsible for setting busy_timeout/journal_mode pragmas on the DSN;
// this constructor only sets the connection pool size sqlite tolerates
// well for a single-writer database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	db.SetMaxOpenConns(1)
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the backing tables if they do not exist.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coordinates (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			metadata TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coordinates_created_at ON coordinates(created_at)`,
		`CREATE TABLE IF NOT EXISTS deltas (
			id TEXT PRIMARY KEY,
			coord_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			parent_hash TEXT NOT NULL,
			delta_hash TEXT NOT NULL,
			chain_hash TEXT NOT NULL,
			ops TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			tags TEXT NOT NULL,
			author TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deltas_coord_created ON deltas(coord_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			coord_id TEXT NOT NULL,
			head_delta_id TEXT NOT NULL,
			state_hash TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_coord_created ON snapshots(coord_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return vstateerrors.Wrap(vstateerrors.Io, err, "ensure sqlite schema")
		}
	}
	return nil
}

func (r *SQLiteRepository) InsertCoordinate(ctx context.Context, c Coordinate) error {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal coordinate metadata")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO coordinates (id, created_at, metadata) VALUES (?, ?, ?)`,
		c.ID, c.CreatedAt, string(metaJSON))
	if err != nil {
		if isUniqueConstraint(err) {
			return vstateerrors.CoordinateCollisionErr(c.ID)
		}
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert coordinate")
	}
	return nil
}

func (r *SQLiteRepository) GetCoordinate(ctx context.Context, id string) (Coordinate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, metadata FROM coordinates WHERE id = ?`, id)
	var c Coordinate
	var metaJSON string
	if err := row.Scan(&c.ID, &c.CreatedAt, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return Coordinate{}, vstateerrors.New(vstateerrors.NotFound, "coordinate not found")
		}
		return Coordinate{}, vstateerrors.Wrap(vstateerrors.Io, err, "get coordinate")
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return Coordinate{}, vstateerrors.Wrap(vstateerrors.Serialization, err, "unmarshal coordinate metadata")
	}
	return c, nil
}

func (r *SQLiteRepository) CoordinateExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coordinates WHERE id = ?)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, vstateerrors.Wrap(vstateerrors.Io, err, "check coordinate existence")
	}
	return exists, nil
}

func (r *SQLiteRepository) ListCoordinates(ctx context.Context, limit int) ([]Coordinate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, metadata FROM coordinates ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, vstateerrors.Wrap(vstateerrors.Io, err, "list coordinates")
	}
	defer rows.Close()

	var out []Coordinate
	for rows.Next() {
		var c Coordinate
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.CreatedAt, &metaJSON); err != nil {
			return nil, vstateerrors.Wrap(vstateerrors.Io, err, "scan coordinate")
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, vstateerrors.Wrap(vstateerrors.Serialization, err, "unmarshal coordinate metadata")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertDelta(ctx context.Context, d Delta) error {
	opsJSON, err := json.Marshal(d.Ops)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal delta ops")
	}
	tagsJSON, err := json.Marshal(d.Tags)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal delta tags")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO deltas (id, coord_id, parent_id, parent_hash, delta_hash, chain_hash, ops, created_at, tags, author)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CoordID, d.ParentID, d.ParentHash, d.DeltaHash, d.ChainHash, string(opsJSON), d.CreatedAt, string(tagsJSON), d.Author)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert delta")
	}
	return nil
}

func scanDelta(row interface{ Scan(...any) error }) (Delta, error) {
	var d Delta
	var opsJSON, tagsJSON string
	if err := row.Scan(&d.ID, &d.CoordID, &d.ParentID, &d.ParentHash, &d.DeltaHash, &d.ChainHash, &opsJSON, &d.CreatedAt, &tagsJSON, &d.Author); err != nil {
		return Delta{}, err
	}
	if err := json.Unmarshal([]byte(opsJSON), &d.Ops); err != nil {
		return Delta{}, vstateerrors.Wrap(vstateerrors.Serialization, err, "unmarshal delta ops")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &d.Tags); err != nil {
		return Delta{}, vstateerrors.Wrap(vstateerrors.Serialization, err, "unmarshal delta tags")
	}
	return d, nil
}

func (r *SQLiteRepository) GetDelta(ctx context.Context, id string) (Delta, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, parent_id, parent_hash, delta_hash, chain_hash, ops, created_at, tags, author
		 FROM deltas WHERE id = ?`, id)
	d, err := scanDelta(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Delta{}, vstateerrors.New(vstateerrors.NotFound, "delta not found")
		}
		return Delta{}, vstateerrors.Wrap(vstateerrors.Io, err, "get delta")
	}
	return d, nil
}

func (r *SQLiteRepository) GetDeltas(ctx context.Context, coordID string) ([]Delta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, coord_id, parent_id, parent_hash, delta_hash, chain_hash, ops, created_at, tags, author
		 FROM deltas WHERE coord_id = ? ORDER BY created_at ASC`, coordID)
	if err != nil {
		return nil, vstateerrors.Wrap(vstateerrors.Io, err, "get deltas")
	}
	defer rows.Close()

	var out []Delta
	for rows.Next() {
		d, err := scanDelta(rows)
		if err != nil {
			return nil, vstateerrors.Wrap(vstateerrors.Io, err, "scan delta")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountDeltas(ctx context.Context, coordID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deltas WHERE coord_id = ?`, coordID).Scan(&n)
	if err != nil {
		return 0, vstateerrors.Wrap(vstateerrors.Io, err, "count deltas")
	}
	return n, nil
}

func (r *SQLiteRepository) InsertSnapshot(ctx context.Context, s Snapshot) error {
	stateJSON, err := json.Marshal(s.State)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal snapshot state")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, coord_id, head_delta_id, state_hash, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.CoordID, s.HeadDeltaID, s.StateHash, string(stateJSON), s.CreatedAt)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert snapshot")
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (Snapshot, error) {
	var s Snapshot
	var stateJSON string
	if err := row.Scan(&s.ID, &s.CoordID, &s.HeadDeltaID, &s.StateHash, &stateJSON, &s.CreatedAt); err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &s.State); err != nil {
		return Snapshot{}, vstateerrors.Wrap(vstateerrors.Serialization, err, "unmarshal snapshot state")
	}
	return s, nil
}

func (r *SQLiteRepository) GetSnapshot(ctx context.Context, id string) (Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, head_delta_id, state_hash, state, created_at FROM snapshots WHERE id = ?`, id)
	s, err := scanSnapshot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, vstateerrors.New(vstateerrors.NotFound, "snapshot not found")
		}
		return Snapshot{}, vstateerrors.Wrap(vstateerrors.Io, err, "get snapshot")
	}
	return s, nil
}

func (r *SQLiteRepository) GetLatestSnapshot(ctx context.Context, coordID string) (Snapshot, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, head_delta_id, state_hash, state, created_at
		 FROM snapshots WHERE coord_id = ? ORDER BY created_at DESC LIMIT 1`, coordID)
	s, err := scanSnapshot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, vstateerrors.Wrap(vstateerrors.Io, err, "get latest snapshot")
	}
	return s, true, nil
}

func (r *SQLiteRepository) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coordinates`).Scan(&s.CoordinateCount); err != nil {
		return Stats{}, vstateerrors.Wrap(vstateerrors.Io, err, "count coordinates")
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deltas`).Scan(&s.DeltaCount); err != nil {
		return Stats{}, vstateerrors.Wrap(vstateerrors.Io, err, "count deltas")
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&s.SnapshotCount); err != nil {
		return Stats{}, vstateerrors.Wrap(vstateerrors.Io, err, "count snapshots")
	}
	return s, nil
}

func isUniqueConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "constraint failed")
}
