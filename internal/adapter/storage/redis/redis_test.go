package redis

import (
	"context"
	"strconv"
	"testing"

	"settlement-engine/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Connects(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: s.Host(), Port: port}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	s.Close()

	_, err = NewClient(context.Background(), config.RedisConfig{Host: s.Host(), Port: port}, zerolog.Nop())
	assert.Error(t, err)
}

func TestHealthCheck_WritesProbe(t *testing.T) {
	s, client := newTestClient(t)

	hc := NewHealthCheck(client)
	require.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "redis", hc.Name())

	assert.True(t, s.Exists(healthProbeKey))
	assert.Equal(t, healthProbeTTL, s.TTL(healthProbeKey))
}

func TestHealthCheck_ServerDown(t *testing.T) {
	s, client := newTestClient(t)
	s.Close()

	assert.Error(t, NewHealthCheck(client).Ping(context.Background()))
}
