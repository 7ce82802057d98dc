package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/checksum"
	"github.com/starford/clustermap/internal/models"
)

// Save stores r as the new current snapshot and notifies subscribers.
// A snapshot identical to the current one is not stored again; stored
// reports whether a new row was written.
func (db *DB) Save(ctx context.Context, source string, r *models.ClusterResult) (snap *models.Snapshot, stored bool, err error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode result: %w", err)
	}
	cs := checksum.Sum(body)

	db.saveMu.Lock()
	snap, stored, err = db.insert(ctx, source, cs, body, r)
	db.saveMu.Unlock()
	if err != nil || !stored {
		return snap, stored, err
	}

	if db.keep > 0 {
		if _, err := db.Prune(ctx, db.keep); err != nil {
			return snap, true, err
		}
	}

	db.subs.Notify(struct{}{})
	return snap, true, nil
}

func (db *DB) insert(ctx context.Context, source, cs string, body []byte, r *models.ClusterResult) (*models.Snapshot, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var latest models.Snapshot
	err = tx.QueryRowContext(ctx,
		`SELECT seq, source, checksum, created_at FROM snapshots ORDER BY seq DESC LIMIT 1`,
	).Scan(&latest.Seq, &latest.Source, &latest.Checksum, &latest.CreatedAt)
	switch {
	case err == nil && latest.Checksum == cs:
		latest.Result = r
		return &latest, false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("store: latest snapshot: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (source, checksum, body, created_at) VALUES (?, ?, ?, ?)`,
		source, cs, string(body), now)
	if err != nil {
		return nil, false, fmt.Errorf("store: insert snapshot: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("store: snapshot seq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: commit: %w", err)
	}

	return &models.Snapshot{
		Seq:       seq,
		Source:    source,
		Checksum:  cs,
		CreatedAt: now,
		Result:    r,
	}, true, nil
}

// Current returns the newest snapshot, or apperr.ErrNotFound.
func (db *DB) Current(ctx context.Context) (*models.Snapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT seq, source, checksum, body, created_at FROM snapshots ORDER BY seq DESC LIMIT 1`)
	return scanSnapshot(row)
}

// Get returns the snapshot with the given sequence number.
func (db *DB) Get(ctx context.Context, seq int64) (*models.Snapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT seq, source, checksum, body, created_at FROM snapshots WHERE seq = ?`, seq)
	return scanSnapshot(row)
}

// CurrentResult returns the newest result, or nil when nothing was stored.
func (db *DB) CurrentResult(ctx context.Context) (*models.ClusterResult, error) {
	snap, err := db.Current(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Result, nil
}

// List returns snapshot metadata, newest first, without result bodies.
func (db *DB) List(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT seq, source, checksum, created_at FROM snapshots ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.Seq, &s.Source, &s.Checksum, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots.
func (db *DB) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

// Subscribe registers fn to be called after each stored snapshot. fn runs
// on the saving goroutine.
func (db *DB) Subscribe(fn func()) (unsubscribe func()) {
	return db.subs.Subscribe(func(struct{}) { fn() })
}

func scanSnapshot(row *sql.Row) (*models.Snapshot, error) {
	var s models.Snapshot
	var body string
	if err := row.Scan(&s.Seq, &s.Source, &s.Checksum, &body, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	var r models.ClusterResult
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("store: decode snapshot %d: %w", s.Seq, err)
	}
	s.Result = &r
	return &s, nil
}
