package db

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/netlens/netlens/internal/config"
)

type PostGreSQLProvider struct {
	mu sync.RWMutex
	db *sql.DB
}

func RegisterPostGreSQLFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Addr, "postgresql-addr", "localhost", "Address of the postgresql server.")
	flagSet.IntVar(&config.DefaultConfig.Database.PostgreSQL.Port, "postgresql-port", 5432, "Port of the postgresql server.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.User, "postgresql-user", "postgres", "Username for the postgresql database.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Password, "postgresql-password", "", "Password for the postgresql database.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Database, "postgresql-database", "netlens", "Name of the postgresql database.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.SSLMode, "postgresql-sslmode", "disable", "SSL mode for the postgresql database.")
	flagSet.DurationVar(&config.DefaultConfig.Database.PostgreSQL.DialTimeout, "postgresql-dial-timeout", 5*time.Second, "Dial timeout for the postgresql connection.")
}

func newPostGreSQLProvider(ctx context.Context) (Provider, error) {
	cfg := config.DefaultConfig.Database.PostgreSQL

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Addr, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		int(cfg.DialTimeout.Seconds()),
	)

	db, err := otelsql.Open("postgres", dsn, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, ConnectionError(err, "postgresql")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, ConnectionError(err, "postgresql")
	}

	if err := runMigrations(ctx, db, "postgres"); err != nil {
		return nil, err
	}

	return &PostGreSQLProvider{
		db: db,
	}, nil
}

func (p *PostGreSQLProvider) Close() error {
	return p.db.Close()
}

func (p *PostGreSQLProvider) WithDB(f func(db *sql.DB)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f(p.db)
}

func (p *PostGreSQLProvider) Insert(ctx context.Context, events []RequestEvent) error {
	if len(events) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	query := `
		INSERT INTO request_events (
			method, host, path, status_code, body_size, start_ms, end_ms, duration_ms
		) VALUES ` + insertPlaceholders(8, len(events), true)

	values := make([]interface{}, 0, len(events)*8)
	for _, e := range events {
		values = append(values,
			e.Method,
			e.Host,
			e.Path,
			e.StatusCode,
			e.BodySize,
			e.Start.UnixMilli(),
			e.End.UnixMilli(),
			e.Duration.Milliseconds(),
		)
	}

	if _, err := p.db.ExecContext(ctx, query, values...); err != nil {
		return ErrorWithOperation(err, "inserting request events")
	}
	return nil
}

func (p *PostGreSQLProvider) GetTimelineSpan(ctx context.Context, tr TimeRange) (*TimelineSpan, error) {
	fromMs, toMs := tr.Ms()

	var (
		start sql.NullInt64
		end   sql.NullInt64
		count int
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT MIN(start_ms), MAX(end_ms), COUNT(*)
		FROM request_events
		WHERE start_ms >= $1 AND start_ms <= $2`,
		fromMs, toMs,
	).Scan(&start, &end, &count)
	if err != nil {
		return nil, ErrorWithOperation(err, "querying timeline span")
	}

	return &TimelineSpan{
		StartMs: start.Int64,
		EndMs:   end.Int64,
		Count:   count,
	}, nil
}

func (p *PostGreSQLProvider) ListRequestEvents(ctx context.Context, params ListParams) (*PagedResult, error) {
	fromMs, toMs := params.TimeRange.Ms()

	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM request_events
		WHERE start_ms >= $1 AND start_ms <= $2`,
		fromMs, toMs,
	).Scan(&total)
	if err != nil {
		return nil, ErrorWithOperation(err, "counting request events")
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT method, host, path, status_code, body_size, start_ms, end_ms, duration_ms
		FROM request_events
		WHERE start_ms >= $1 AND start_ms <= $2
		ORDER BY start_ms DESC
		LIMIT $3 OFFSET $4`,
		fromMs, toMs, params.PageSize, (params.Page-1)*params.PageSize,
	)
	if err != nil {
		return nil, ErrorWithOperation(err, "listing request events")
	}
	defer CloseResource(rows)

	results := []RequestEventRow{}
	for rows.Next() {
		var r RequestEventRow
		if err := rows.Scan(&r.Method, &r.Host, &r.Path, &r.StatusCode, &r.BodySize, &r.StartMs, &r.EndMs, &r.DurationMs); err != nil {
			return nil, ErrorWithOperation(err, "scanning request event")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "iterating request events")
	}

	return &PagedResult{
		Total:      total,
		TotalPages: totalPages(total, params.PageSize),
		Data:       results,
	}, nil
}

func (p *PostGreSQLProvider) GetStatusDistribution(ctx context.Context, tr TimeRange) ([]StatusDistributionResult, error) {
	fromMs, toMs := tr.Ms()
	bucket := bucketSizeMs(tr)

	rows, err := p.db.QueryContext(ctx, `
		SELECT
			(start_ms / $1) * $1 AS bucket,
			SUM(CASE WHEN status_code BETWEEN 200 AND 299 THEN 1 ELSE 0 END),
			SUM(CASE WHEN status_code BETWEEN 400 AND 499 THEN 1 ELSE 0 END),
			SUM(CASE WHEN status_code BETWEEN 500 AND 599 THEN 1 ELSE 0 END)
		FROM request_events
		WHERE start_ms >= $2 AND start_ms <= $3
		GROUP BY bucket
		ORDER BY bucket`,
		bucket, fromMs, toMs,
	)
	if err != nil {
		return nil, ErrorWithOperation(err, "querying status distribution")
	}
	defer CloseResource(rows)

	results := []StatusDistributionResult{}
	for rows.Next() {
		var (
			bucketMs int64
			r        StatusDistributionResult
		)
		if err := rows.Scan(&bucketMs, &r.Status2xx, &r.Status4xx, &r.Status5xx); err != nil {
			return nil, ErrorWithOperation(err, "scanning status distribution")
		}
		r.Time = time.UnixMilli(bucketMs).UTC().Format(time.RFC3339)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "iterating status distribution")
	}
	return results, nil
}

func (p *PostGreSQLProvider) GetAverageDuration(ctx context.Context, tr TimeRange) (*AverageDurationResult, error) {
	fromMs, toMs := tr.Ms()

	var avg sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms) FROM request_events
		WHERE start_ms >= $1 AND start_ms <= $2`,
		fromMs, toMs,
	).Scan(&avg)
	if err != nil {
		return nil, ErrorWithOperation(err, "querying average duration")
	}

	result := &AverageDurationResult{}
	if avg.Valid {
		result.AvgDurationMs = &avg.Float64
	}
	return result, nil
}

func (p *PostGreSQLProvider) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM request_events WHERE start_ms < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, ErrorWithOperation(err, "deleting old request events")
	}
	return res.RowsAffected()
}
