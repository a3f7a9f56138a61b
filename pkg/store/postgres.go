package store

// Postgres-backed Repository.
//
// Standard library database/sql only in this file; the driver is
// registered by the blank import below. Determinism notes carried over
// from the storage service this was grounded on: all timestamps are
// caller-supplied (never time.Now() inside this file), and every JSON
// column holds the Value type's ordered encoding, not a reformatted
// map[string]interface{}.

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/lib/pq"

	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

// PostgresRepository is a durable Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an already-open *sql.DB.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the backing tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coordinates (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
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
			created_at TIMESTAMPTZ NOT NULL,
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
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_coord_created ON snapshots(coord_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return vstateerrors.Wrap(vstateerrors.Io, err, "ensure postgres schema")
		}
	}
	return nil
}

func (r *PostgresRepository) InsertCoordinate(ctx context.Context, c Coordinate) error {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal coordinate metadata")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO coordinates (id, created_at, metadata) VALUES ($1, $2, $3)`,
		c.ID, c.CreatedAt, string(metaJSON))
	if err != nil {
		if isPgUniqueViolation(err) {
			return vstateerrors.CoordinateCollisionErr(c.ID)
		}
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert coordinate")
	}
	return nil
}

func (r *PostgresRepository) GetCoordinate(ctx context.Context, id string) (Coordinate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, metadata FROM coordinates WHERE id = $1`, id)
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

func (r *PostgresRepository) CoordinateExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coordinates WHERE id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, vstateerrors.Wrap(vstateerrors.Io, err, "check coordinate existence")
	}
	return exists, nil
}

func (r *PostgresRepository) ListCoordinates(ctx context.Context, limit int) ([]Coordinate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, metadata FROM coordinates ORDER BY created_at DESC LIMIT $1`, limit)
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

func (r *PostgresRepository) InsertDelta(ctx context.Context, d Delta) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.CoordID, d.ParentID, d.ParentHash, d.DeltaHash, d.ChainHash, string(opsJSON), d.CreatedAt, string(tagsJSON), d.Author)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert delta")
	}
	return nil
}

func (r *PostgresRepository) GetDelta(ctx context.Context, id string) (Delta, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, parent_id, parent_hash, delta_hash, chain_hash, ops, created_at, tags, author
		 FROM deltas WHERE id = $1`, id)
	d, err := scanDeltaPG(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Delta{}, vstateerrors.New(vstateerrors.NotFound, "delta not found")
		}
		return Delta{}, vstateerrors.Wrap(vstateerrors.Io, err, "get delta")
	}
	return d, nil
}

func (r *PostgresRepository) GetDeltas(ctx context.Context, coordID string) ([]Delta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, coord_id, parent_id, parent_hash, delta_hash, chain_hash, ops, created_at, tags, author
		 FROM deltas WHERE coord_id = $1 ORDER BY created_at ASC`, coordID)
	if err != nil {
		return nil, vstateerrors.Wrap(vstateerrors.Io, err, "get deltas")
	}
	defer rows.Close()

	var out []Delta
	for rows.Next() {
		d, err := scanDeltaPG(rows)
		if err != nil {
			return nil, vstateerrors.Wrap(vstateerrors.Io, err, "scan delta")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountDeltas(ctx context.Context, coordID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deltas WHERE coord_id = $1`, coordID).Scan(&n)
	if err != nil {
		return 0, vstateerrors.Wrap(vstateerrors.Io, err, "count deltas")
	}
	return n, nil
}

func (r *PostgresRepository) InsertSnapshot(ctx context.Context, s Snapshot) error {
	stateJSON, err := json.Marshal(s.State)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Serialization, err, "marshal snapshot state")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, coord_id, head_delta_id, state_hash, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.CoordID, s.HeadDeltaID, s.StateHash, string(stateJSON), s.CreatedAt)
	if err != nil {
		return vstateerrors.Wrap(vstateerrors.Io, err, "insert snapshot")
	}
	return nil
}

func (r *PostgresRepository) GetSnapshot(ctx context.Context, id string) (Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, head_delta_id, state_hash, state, created_at FROM snapshots WHERE id = $1`, id)
	s, err := scanSnapshotPG(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, vstateerrors.New(vstateerrors.NotFound, "snapshot not found")
		}
		return Snapshot{}, vstateerrors.Wrap(vstateerrors.Io, err, "get snapshot")
	}
	return s, nil
}

func (r *PostgresRepository) GetLatestSnapshot(ctx context.Context, coordID string) (Snapshot, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, coord_id, head_delta_id, state_hash, state, created_at
		 FROM snapshots WHERE coord_id = $1 ORDER BY created_at DESC LIMIT 1`, coordID)
	s, err := scanSnapshotPG(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, vstateerrors.Wrap(vstateerrors.Io, err, "get latest snapshot")
	}
	return s, true, nil
}

func (r *PostgresRepository) GetStats(ctx context.Context) (Stats, error) {
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

func scanDeltaPG(row interface{ Scan(...any) error }) (Delta, error) {
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

func scanSnapshotPG(row interface{ Scan(...any) error }) (Snapshot, error) {
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

func isPgUniqueViolation(err error) bool {
	// lib/pq reports unique_violation as SQLSTATE 23505.
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value violates unique constraint")
}
