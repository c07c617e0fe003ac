package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/phy-receiver-sim/internal/logging"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receiver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
receiver:
  sensitivity: 1.0e-9
  header_length: 2ms
  min_header_snr: 4.0
logging:
  level: debug
  format: text
metrics:
  listen_addr: "localhost:9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.0e-9, cfg.Receiver.Sensitivity)
	assert.Equal(t, Duration(2*time.Millisecond), cfg.Receiver.HeaderLength)
	assert.Equal(t, 4.0, cfg.Receiver.MinHeaderSNR)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost:9090", cfg.Metrics.ListenAddr)

	dec := cfg.DeciderConfig()
	assert.Equal(t, 2*time.Millisecond, dec.HeaderLength)
	assert.Equal(t, 1.0e-9, dec.Sensitivity)
}

func TestLoadDurationAsNanoseconds(t *testing.T) {
	path := writeConfigFile(t, `
receiver:
  header_length: 2000000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(2*time.Millisecond), cfg.Receiver.HeaderLength)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad duration", "receiver:\n  header_length: soon\n"},
		{"negative snr fallback", "receiver:\n  snr_fallback: -1\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	cfg := &Config{}
	cfg.Receiver.HeaderLength = Duration(-time.Millisecond)
	require.ErrorIs(t, Validate(cfg), errNegativeHeader)

	cfg = &Config{}
	cfg.Logging.Level = "chatty"
	require.ErrorIs(t, Validate(cfg), errBadLogLevel)

	require.NoError(t, Validate(&Config{}))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receiver.yaml")
	cfg := &Config{
		Receiver: ReceiverConfig{
			Sensitivity:  2.5e-10,
			HeaderLength: Duration(3 * time.Millisecond),
			MinHeaderSNR: 6,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveNilConfig(t *testing.T) {
	require.ErrorIs(t, Save(filepath.Join(t.TempDir(), "x.yaml"), nil), errConfigIsNotSet)
}

func TestWatcherReload(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan *Config, 1)
	w.OnChange(func(_, cur *Config) {
		select {
		case changed <- cur:
		default:
		}
	})
	require.NoError(t, w.Start())

	require.Equal(t, "info", w.Current().Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	select {
	case cur := <-changed:
		assert.Equal(t, "debug", cur.Logging.Level)
		assert.Equal(t, "debug", w.Current().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherDrivesLogLevel(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	_, level := logging.NewDynamic(logging.Config{Level: w.Current().Logging.Level})
	require.Equal(t, slog.LevelInfo, level.Level())

	applied := make(chan slog.Level, 1)
	w.OnChange(func(_, cur *Config) {
		level.Set(logging.ParseLevel(cur.Logging.Level))
		select {
		case applied <- level.Level():
		default:
		}
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	select {
	case got := <-applied:
		assert.Equal(t, slog.LevelDebug, got)
	case <-time.After(5 * time.Second):
		t.Fatal("log level was never updated")
	}
}

func TestWatcherKeepsLastGoodOnBadReload(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: bogus\n"), 0o600))

	// The watcher debounces at 50ms; give it time to attempt the reload.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "info", w.Current().Logging.Level)
}
