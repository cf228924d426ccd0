package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
)

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatasourceConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.DatasourceConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "built from fields",
			cfg:  config.DatasourceConfig{Host: "db", Port: 5433, Database: "shop", User: "app", Password: "p@ss"},
			want: "postgres://app:p%40ss@db:5433/shop",
		},
		{
			name: "no credentials",
			cfg:  config.DatasourceConfig{Host: "db", Port: 5432, Database: "shop"},
			want: "postgres://db:5432/shop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postgresDSN(tt.cfg))
		})
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.DatasourceConfig{Driver: config.DriverSQLite, DSN: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, src.Name())

	src, err = NewSource(config.DatasourceConfig{Driver: config.DriverPostgres, Host: "h", Port: 1, Database: "d"})
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, src.Name())

	_, err = NewSource(config.DatasourceConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestPostgresSource_InvalidDSN(t *testing.T) {
	src := &PostgresSource{DSN: "postgres://%zz"}
	_, err := src.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
	assert.False(t, errors.IsRetryable(err))
}

func TestSQLiteSource_MissingFileIsConnectError(t *testing.T) {
	src := &SQLiteSource{Path: filepath.Join(t.TempDir(), "absent.db")}
	_, err := src.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceConnect))
	assert.True(t, errors.IsRetryable(err))
}
