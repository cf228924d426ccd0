package worker

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
)

// Source opens a connection to the relational datasource for one cycle.
type Source interface {
	Connect(ctx context.Context) (*sql.DB, error)
	Name() string
}

// NewSource returns the Source for the configured driver.
func NewSource(cfg config.DatasourceConfig) (Source, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return &PostgresSource{DSN: postgresDSN(cfg)}, nil
	case config.DriverSQLite:
		return &SQLiteSource{Path: cfg.DSN}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "unsupported datasource driver %q", cfg.Driver)
	}
}

// postgresDSN prefers an explicit DSN and otherwise builds a URL from the
// discrete connection fields.
func postgresDSN(cfg config.DatasourceConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return u.String()
}

// PostgresSource connects through pgx's database/sql adapter.
type PostgresSource struct {
	DSN string
}

// Name implements Source.
func (s *PostgresSource) Name() string { return config.DriverPostgres }

// Connect implements Source.
func (s *PostgresSource) Connect(ctx context.Context) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(s.DSN)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "invalid postgres connection string", err)
	}

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeSourceConnect,
			fmt.Sprintf("failed to connect to postgres at %s", cfg.Host), err)
	}
	return db, nil
}

// SQLiteSource reads from a local SQLite database file.
type SQLiteSource struct {
	Path string
}

// Name implements Source.
func (s *SQLiteSource) Name() string { return config.DriverSQLite }

// Connect implements Source.
func (s *SQLiteSource) Connect(ctx context.Context) (*sql.DB, error) {
	dsn := s.Path
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "?") {
		dsn = "file:" + dsn + "?mode=ro"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSourceConnect, "failed to open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeSourceConnect,
			fmt.Sprintf("failed to open sqlite database %s", s.Path), err)
	}
	return db, nil
}
