package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// expiryLayout is fixed width so expiry strings compare in time order.
const expiryLayout = "2006-01-02T15:04:05.000000000Z07:00"

// GetCacheEntry returns a stored value unless it expired before now.
func (r Repo) GetCacheEntry(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `SELECT value,expires_at FROM cache_entries WHERE key=?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt.Valid {
		exp, err := time.Parse(expiryLayout, expiresAt.String)
		if err != nil || !now.Before(exp) {
			return nil, false, nil
		}
	}
	return value, true, nil
}

// PutCacheEntry stores value under key. A nil expiresAt never expires.
func (r Repo) PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt *time.Time) error {
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC().Format(expiryLayout)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO cache_entries(key,value,expires_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		key, value, exp, time.Now().UTC().Format(time.RFC3339))
	return err
}

// PurgeExpiredCache deletes entries that expired before now.
func (r Repo) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC().Format(expiryLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
