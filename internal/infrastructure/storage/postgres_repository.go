package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

const historyTable = "published_messages"

const schema = `CREATE TABLE IF NOT EXISTS published_messages (
    message_key  TEXT        NOT NULL,
    channel      TEXT        NOT NULL,
    target       TEXT        NOT NULL,
    reference    TEXT        NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (message_key, target)
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository remembers published source messages in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.HistoryRepository = (*PostgresRepository)(nil)

// Open connects through the pgx database/sql driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the history table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// AlreadyPublished returns the subset of keys that were published by an earlier run.
func (r *PostgresRepository) AlreadyPublished(ctx context.Context, keys []string) (map[string]bool, error) {
	if r.db == nil || len(keys) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := alreadyPublishedQuery(keys)
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		result[key] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SavePublished upserts one delivered message per target.
func (r *PostgresRepository) SavePublished(ctx context.Context, rec domain.PublishedRecord) error {
	if r.db == nil {
		return nil
	}

	query, args, err := savePublishedQuery(rec)
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert published: %w", err)
	}
	return nil
}

func alreadyPublishedQuery(keys []string) (string, []any, error) {
	return psql.Select("message_key").
		Distinct().
		From(historyTable).
		Where(sq.Eq{"message_key": keys}).
		ToSql()
}

func savePublishedQuery(rec domain.PublishedRecord) (string, []any, error) {
	publishedAt := rec.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	return psql.Insert(historyTable).
		Columns("message_key", "channel", "target", "reference", "published_at").
		Values(rec.MessageKey, rec.Channel, rec.Target, rec.Reference, publishedAt).
		Suffix("ON CONFLICT (message_key, target) DO UPDATE SET reference = EXCLUDED.reference, published_at = EXCLUDED.published_at").
		ToSql()
}
