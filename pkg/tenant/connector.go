package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Client is the database handle a resolved tenant context carries. *sql.DB
// satisfies it; tests substitute fakes.
type Client interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PingContext(ctx context.Context) error
	Close() error
}

// Connector builds a pooled client for one tenant's database URL. Pools are
// never shared across distinct URLs. Construction must be cheap: real socket
// work is deferred to the first query, so cache population never blocks on a
// network round-trip. Retries on that first query are the caller's and the
// driver's concern, not the connector's.
type Connector interface {
	Connect(ctx context.Context, databaseURL string) (Client, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, databaseURL string) (Client, error)

func (f ConnectorFunc) Connect(ctx context.Context, databaseURL string) (Client, error) {
	return f(ctx, databaseURL)
}

// PostgresConnector returns the default connector. sql.Open only allocates a
// pool handle and validates the DSN; it does not dial.
func PostgresConnector() Connector {
	return ConnectorFunc(func(_ context.Context, databaseURL string) (Client, error) {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open tenant database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxIdleTime(time.Minute)
		return db, nil
	})
}
