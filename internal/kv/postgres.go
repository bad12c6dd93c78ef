package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore keeps entries in the kv_entries table created by the migrations.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres opens a lib/pq connection pool and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storageErr("open", "", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("ping", "", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	return storageErr("set", key, err)
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := p.DB.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key=$1`, key).Scan(&val)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", key, err)
	}
	return val, nil
}

func (p *PostgresStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := p.DB.QueryContext(ctx, `SELECT key, value FROM kv_entries WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, storageErr("get_many", keys[0], err)
	}
	defer rows.Close()

	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storageErr("get_many", k, err)
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get_many", keys[0], err)
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

func (p *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT key FROM kv_entries WHERE key LIKE $1 ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return nil, storageErr("keys", prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storageErr("keys", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("keys", prefix, err)
	}
	return keys, nil
}

func (p *PostgresStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key LIKE $1 ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return 0, storageErr("delete_prefix", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete_prefix", prefix, fmt.Errorf("rows affected: %w", err))
	}
	return int(n), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return storageErr("ping", "", p.DB.PingContext(ctx))
}

func (p *PostgresStore) Close() error { return p.DB.Close() }

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string { return likeReplacer.Replace(prefix) + "%" }
