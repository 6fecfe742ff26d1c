package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = "sqlite"
	require.Error(t, cfg.Validate())
}

func TestValidateEthRegistryNeedsKey(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.Registry = "eth"
	cfg.Chain.RPCURL = "http://localhost:8545"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Chain.PrivateKey = "0xabc"
	require.NoError(t, cfg.Validate())

	// An encrypted key file needs its password.
	cfg.Chain.PrivateKey = ""
	cfg.Chain.EncryptedKeyPath = "operator.key"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "key_password")
}

func TestValidateMarketBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Market.LockTTL = duration{0}
	cfg.Market.BidRateLimit = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "lock_ttl")
	require.Contains(t, err.Error(), "bid_rate_limit")
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "s3: endpoint")
	require.Contains(t, err.Error(), "s3: bucket")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"
storage = "badger"

[market]
lock_ttl = "30s"

[server]
port = 9000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "serve", cfg.Mode)
	require.Equal(t, "badger", cfg.Storage)
	require.Equal(t, 30*time.Second, cfg.Market.LockTTL.Duration)
	require.Equal(t, 9000, cfg.Server.Port)

	// Untouched fields keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 10, cfg.Market.BidRateLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "serve"`), 0o600))

	t.Setenv("MARKETD_MODE", "full")
	t.Setenv("MARKETD_SERVER_PORT", "9100")
	t.Setenv("MARKETD_SERVER_RATE_WINDOW", "5s")
	t.Setenv("MARKETD_POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Server.RateWindow.Duration)
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
