package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/auction-registry/internal/infra/config"
)

func settingsFor(t *testing.T, mr *miniredis.Miniredis) config.RedisSettings {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisSettings{Host: mr.Host(), Port: port}
}

func TestOptions(t *testing.T) {
	opts := Options(config.RedisSettings{Host: "cache", Port: 6380, DB: 2, Password: "pw"})
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, "pw", opts.Password)
	require.Nil(t, opts.TLSConfig)

	opts = Options(config.RedisSettings{Host: "cache", Port: 6380, TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
	require.Equal(t, "cache", opts.TLSConfig.ServerName)
}

func TestNewClientPingsAndHealthChecks(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), settingsFor(t, mr), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, client.HealthCheck(context.Background()))
	require.NoError(t, client.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	require.NoError(t, client.Close())
}

func TestHealthCheckFailsWhenServerStops(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), settingsFor(t, mr), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	require.Error(t, client.HealthCheck(context.Background()))
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := settingsFor(t, mr)
	mr.Close()

	_, err := NewClient(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "redis ping")
}
