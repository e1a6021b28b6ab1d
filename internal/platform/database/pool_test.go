package database

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedcred/internal/platform/config"
)

func TestNew_EmptyURLSelectsInMemory(t *testing.T) {
	pool, err := New(config.Database{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestNilPool(t *testing.T) {
	var pool *Pool
	assert.Error(t, pool.Health(context.Background()))
	assert.NoError(t, pool.Close())
	assert.NoError(t, pool.RegisterMetrics(prometheus.NewRegistry()))
}
