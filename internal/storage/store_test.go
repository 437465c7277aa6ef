package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-radar/internal/config"
)

func TestNewPoolWithoutDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{}, "spread-radar")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewPoolRejectsBadDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://%zz"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database dsn")
}

func TestApplyPoolLimits(t *testing.T) {
	pc, err := pgxpool.ParseConfig("postgres://radar@localhost:5432/radar")
	require.NoError(t, err)

	applyPoolLimits(pc, config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 10, ConnMaxLifetime: time.Hour})
	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(4), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, 30*time.Minute, pc.MaxConnIdleTime)
}
