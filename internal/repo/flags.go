package repo

import (
	"context"
	"database/sql"
)

type Flag struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedBy string `json:"updated_by,omitempty"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func (r Repo) ListFlags(ctx context.Context) ([]Flag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key, value, COALESCE(updated_by,''), updated_at FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Flag
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.Key, &f.Value, &f.UpdatedBy, &f.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) GetFlag(ctx context.Context, key string) (Flag, error) {
	var f Flag
	err := r.DB.QueryRowContext(ctx, `SELECT key, value, COALESCE(updated_by,''), updated_at FROM feature_flags WHERE key=?`, key).
		Scan(&f.Key, &f.Value, &f.UpdatedBy, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) UpsertFlagTx(ctx context.Context, tx *sql.Tx, f Flag) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO feature_flags(key,value,updated_by,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		f.Key, f.Value, nullable(f.UpdatedBy), f.UpdatedAt)
	return err
}

// BumpFlagVersionTx increments the monotonic flag-set version and returns it.
func (r Repo) BumpFlagVersionTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO flag_version(id,version) VALUES (1,0) ON CONFLICT(id) DO NOTHING`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE flag_version SET version=version+1 WHERE id=1`); err != nil {
		return 0, err
	}
	var v int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM flag_version WHERE id=1`).Scan(&v)
	return v, err
}

// FlagVersion returns the current flag-set version, zero when unset.
func (r Repo) FlagVersion(ctx context.Context) (int64, error) {
	var v int64
	err := r.DB.QueryRowContext(ctx, `SELECT version FROM flag_version WHERE id=1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}
