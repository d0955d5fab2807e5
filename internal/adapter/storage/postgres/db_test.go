package postgres

import (
	"testing"
	"time"

	"settlement-engine/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ses",
		Password: "secret",
		DBName:   "settlement_engine",
		SSLMode:  "disable",
	}
}

func TestPoolConfig_AppliesLimits(t *testing.T) {
	cfg := testDBConfig()
	cfg.MaxConns = 12
	cfg.MinConns = 3
	cfg.ConnMaxLifetime = 15 * time.Minute

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(12), poolCfg.MaxConns)
	assert.Equal(t, int32(3), poolCfg.MinConns)
	assert.Equal(t, 15*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "settlement_engine", poolCfg.ConnConfig.Database)
}

func TestPoolConfig_SessionParams(t *testing.T) {
	cfg := testDBConfig()
	cfg.LockTimeout = 2500 * time.Millisecond

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	params := poolCfg.ConnConfig.RuntimeParams
	assert.Equal(t, "settlement-engine", params["application_name"])
	assert.Equal(t, "2500", params["lock_timeout"])
}

func TestPoolConfig_NoLockTimeout(t *testing.T) {
	poolCfg, err := poolConfig(testDBConfig())
	require.NoError(t, err)

	_, ok := poolCfg.ConnConfig.RuntimeParams["lock_timeout"]
	assert.False(t, ok)
}

func TestPoolConfig_MinAboveMaxIgnored(t *testing.T) {
	cfg := testDBConfig()
	cfg.MaxConns = 4
	cfg.MinConns = 10

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(4), poolCfg.MaxConns)
	assert.Equal(t, int32(0), poolCfg.MinConns)
}

func TestPoolConfig_InvalidDSN(t *testing.T) {
	cfg := testDBConfig()
	cfg.Port = -1

	_, err := poolConfig(cfg)
	assert.Error(t, err)
}
