package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultTable   = "records"
	DefaultChannel = "record_changes"
)

type Config struct {
	Table   string
	Channel string
	Buffer  int
}

// Source reads an ordered collection from a PostgreSQL table and follows its
// changes through LISTEN/NOTIFY. The table is expected to carry the
// notify_record_change trigger from db/migrations.
type Source struct {
	pool    *postgres.ConnectionPool
	db      *pgxpool.Pool
	health  *postgres.HealthChecker
	table   string
	channel string
	buffer  int
}

func NewSource(pool *postgres.ConnectionPool, cfg Config) *Source {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = source.DefaultSubscriptionBuffer
	}
	return &Source{
		pool:    pool,
		db:      pool.GetConn(),
		health:  postgres.NewHealthChecker(pool),
		table:   pgx.Identifier{cfg.Table}.Sanitize(),
		channel: cfg.Channel,
		buffer:  cfg.Buffer,
	}
}

// FetchPage runs a keyset query over (priority, key).
func (s *Source) FetchPage(ctx context.Context, startAt *domain.Cursor, limit int) ([]domain.Record, error) {
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT key, priority, value FROM %s", s.table)
	if startAt != nil {
		args = append(args, startAt.Priority, startAt.Key)
		sb.WriteString(" WHERE (priority, key) >= ($1, $2)")
	}
	sb.WriteString(" ORDER BY priority, key")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records page: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0, max(limit, 0))
	for rows.Next() {
		var (
			r     domain.Record
			value []byte
		)
		if err := rows.Scan(&r.Key, &r.Priority, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Value = value
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Get returns the current state of the record stored under key.
func (s *Source) Get(ctx context.Context, key string) (domain.Record, bool, error) {
	var (
		r     = domain.Record{Key: key}
		value []byte
	)
	err := s.db.QueryRow(ctx,
		fmt.Sprintf("SELECT priority, value FROM %s WHERE key = $1", s.table), key,
	).Scan(&r.Priority, &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("failed to get record %q: %w", key, err)
	}
	r.Value = value
	return r, true, nil
}

// Put upserts a record. The table trigger publishes the change.
func (s *Source) Put(ctx context.Context, r domain.Record) error {
	var value any
	if len(r.Value) > 0 {
		value = r.Value
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (key, priority, value, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (key) DO UPDATE SET priority = EXCLUDED.priority, value = EXCLUDED.value, updated_at = now()`,
		s.table), r.Key, r.Priority, value)
	if err != nil {
		return fmt.Errorf("failed to upsert record %q: %w", r.Key, err)
	}
	return nil
}

// Remove deletes a record and reports whether it existed.
func (s *Source) Remove(ctx context.Context, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table), key)
	if err != nil {
		return false, fmt.Errorf("failed to delete record %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Source) Healthy(ctx context.Context) bool {
	return s.health.Healthy(ctx)
}

func (s *Source) Close() error {
	s.pool.Close()
	slog.Info("Postgres source closed", "table", s.table)
	return nil
}

var _ source.OrderedSource = (*Source)(nil)
