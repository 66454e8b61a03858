package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

var ErrUnavailable = errors.New("database unavailable")

type Options struct {
	SSLMode      string
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
}

// DB is a long-lived handle to one logical store. A connection-class error
// tears the pool down; it is reopened on the next attempt.
type DB struct {
	name       string
	driver     string
	dsn        string
	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	conn *sql.DB
}

// NewConnection opens the store behind rawURL and verifies it with a ping.
func NewConnection(ctx context.Context, name, rawURL string, opts Options) (*DB, error) {
	driverName, dsn, err := ParseURL(rawURL, opts.SSLMode)
	if err != nil {
		return nil, fmt.Errorf("invalid %s database url: %w", name, err)
	}

	db := &DB{
		name:       name,
		driver:     driverName,
		dsn:        dsn,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
	}
	if db.maxRetries < 0 {
		db.maxRetries = 0
	}
	if db.backoff <= 0 {
		db.backoff = DefaultRetryBackoff
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", name, err)
	}

	return db, nil
}

// ParseURL maps a connection string to a registered driver name and DSN.
// postgres URLs get sslMode unless they already carry one.
func ParseURL(rawURL, sslMode string) (string, string, error) {
	raw := strings.TrimSpace(rawURL)

	switch {
	case raw == "":
		return "", "", errors.New("connection string is empty")

	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", err
		}
		q := u.Query()
		if q.Get("sslmode") == "" && sslMode != "" {
			q.Set("sslmode", sslMode)
			u.RawQuery = q.Encode()
		}
		return DriverPostgres, u.String(), nil

	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", errors.New("sqlite path is empty")
		}
		return DriverSQLite, path, nil

	case strings.HasPrefix(raw, "file:"):
		return DriverSQLite, raw, nil

	case strings.Contains(raw, "host=") || strings.Contains(raw, "dbname="):
		if !strings.Contains(raw, "sslmode=") && sslMode != "" {
			raw += " sslmode=" + sslMode
		}
		return DriverPostgres, raw, nil
	}

	return "", "", fmt.Errorf("unsupported connection string scheme: %q", redact(raw))
}

func (db *DB) Name() string {
	return db.name
}

func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) Ping(ctx context.Context) error {
	return db.withRetry(ctx, "ping", func(conn *sql.DB) error {
		return conn.PingContext(ctx)
	})
}

func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := db.withRetry(ctx, "exec", func(conn *sql.DB) error {
		var err error
		result, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// QueryRow scans a single row into dest. sql.ErrNoRows is returned as is.
func (db *DB) QueryRow(ctx context.Context, query string, args []any, dest ...any) error {
	return db.withRetry(ctx, "query row", func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

// Select runs query and collects one value per row. A retried query starts
// over with an empty result.
func Select[T any](ctx context.Context, db *DB, scanRow func(*sql.Rows) (T, error), query string, args ...any) ([]T, error) {
	var out []T
	err := db.withRetry(ctx, "query", func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		collected := make([]T, 0)
		for rows.Next() {
			v, err := scanRow(rows)
			if err != nil {
				return err
			}
			collected = append(collected, v)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		out = collected
		return nil
	})
	return out, err
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

func (db *DB) pool() (*sql.DB, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return db.conn, nil
	}

	conn, err := sql.Open(db.driver, db.dsn)
	if err != nil {
		return nil, err
	}

	if db.driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(5)
		conn.SetMaxIdleConns(2)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)

	db.conn = conn
	return conn, nil
}

// reset drops the pool only if it is still the one that failed.
func (db *DB) reset(failed *sql.DB) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil && db.conn == failed {
		db.conn.Close()
		db.conn = nil
	}
}

func (db *DB) withRetry(ctx context.Context, op string, fn func(*sql.DB) error) error {
	for attempt := 1; ; attempt++ {
		conn, err := db.pool()
		if err == nil {
			err = fn(conn)
		}
		if err == nil {
			return nil
		}
		if !isConnectionError(err) {
			return err
		}
		if attempt > db.maxRetries {
			return fmt.Errorf("%w: %s %s failed after %d attempts: %w", ErrUnavailable, db.name, op, attempt, err)
		}

		delay := time.Duration(attempt) * db.backoff
		slog.Warn("Database connection lost, reconnecting",
			"store", db.name,
			"operation", op,
			"attempt", attempt,
			"max_retries", db.maxRetries,
			"delay", delay.String(),
			"error", err)

		db.reset(conn)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception; 57P0x: server shutting down
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P02" || pqErr.Code == "57P03"
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"database is closed", "connection refused", "connection reset", "broken pipe", "bad connection"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func redact(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		return u.Redacted()
	}
	return raw
}
