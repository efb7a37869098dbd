package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsAndOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  driver: sqlite
  dsn: flows.db
worker:
  concurrency: 4
logging:
  level: debug
`))
	require.NoError(t, err)

	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "flows.db", cfg.Store.DSN)
	require.Equal(t, 4, cfg.Worker.Concurrency)
	require.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	require.Equal(t, 3, cfg.Worker.MaxAttempts)
	require.Equal(t, 100*time.Millisecond, cfg.Worker.Backoff)

	// The queue follows the store when not configured separately.
	require.Equal(t, DriverSQLite, cfg.QueueDriver())
	require.Equal(t, "flows.db", cfg.QueueDSN())
}

func TestParse_SplitStoreAndQueue(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  driver: redis
  addr: localhost:6379
  prefix: "orders:"
queue:
  driver: memory
  capacity: 256
`))
	require.NoError(t, err)

	require.Equal(t, DriverRedis, cfg.Store.Driver)
	require.Equal(t, DriverMemory, cfg.QueueDriver())
	require.Equal(t, 256, cfg.Queue.Capacity)
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown store driver", "store:\n  driver: etcd\n"},
		{"sqlite without dsn", "store:\n  driver: sqlite\n"},
		{"redis without addr", "store:\n  driver: redis\n"},
		{"bad log level", "store:\n  driver: memory\nlogging:\n  level: loud\n"},
		{"zero attempts", "store:\n  driver: memory\nworker:\n  maxAttempts: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
