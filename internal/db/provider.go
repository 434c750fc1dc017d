package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Provider interface {
	WithDB(func(db *sql.DB))
	Insert(ctx context.Context, events []RequestEvent) error
	GetTimelineSpan(ctx context.Context, tr TimeRange) (*TimelineSpan, error)
	ListRequestEvents(ctx context.Context, params ListParams) (*PagedResult, error)
	GetStatusDistribution(ctx context.Context, tr TimeRange) ([]StatusDistributionResult, error)
	GetAverageDuration(ctx context.Context, tr TimeRange) (*AverageDurationResult, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

func GetDbProvider(ctx context.Context, provider DatabaseProvider) (Provider, error) {
	switch provider {
	case PostGreSQL:
		return newPostGreSQLProvider(ctx)
	case SQLite:
		return newSqliteProvider(ctx)
	default:
		return nil, fmt.Errorf("invalid database provider type: %q", provider)
	}
}
