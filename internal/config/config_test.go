package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Character.Endpoint = "http://localhost:9000/animate"
	cfg.Character.ID = "susan"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "png", cfg.Character.Format)
	assert.Equal(t, "normal", cfg.Character.IdleType)
	assert.True(t, cfg.Character.Preload)
	assert.True(t, cfg.Character.Visible)
	assert.Equal(t, 60, cfg.Character.RefreshHz)
	assert.Equal(t, 1.0, cfg.Audio.Volume)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing endpoint", func(c *Config) { c.Character.Endpoint = "" }, ErrMissingEndpoint},
		{"missing character", func(c *Config) { c.Character.ID = "" }, ErrMissingCharacter},
		{"bad format", func(c *Config) { c.Character.Format = "gif" }, ErrInvalid},
		{"bad idle type", func(c *Config) { c.Character.IdleType = "busy" }, ErrInvalid},
		{"bad volume", func(c *Config) { c.Audio.Volume = 2 }, ErrInvalid},
		{"bad output", func(c *Config) { c.Audio.Output = "hdmi" }, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := validConfig()
	cfg.Character.IdleType = "blink"
	cfg.Character.IdleData = map[string][]string{"normal": {"blink", "idle1-5"}}
	cfg.Audio.Volume = 0.5
	require.NoError(t, SaveFile(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/animate", loaded.Character.Endpoint)
	assert.Equal(t, "susan", loaded.Character.ID)
	assert.Equal(t, "blink", loaded.Character.IdleType)
	assert.Equal(t, []string{"blink", "idle1-5"}, loaded.Character.IdleData["normal"])
	assert.Equal(t, 0.5, loaded.Audio.Volume)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveFile(validConfig(), path))

	t.Setenv("CORTEXSPRITE_CHARACTER_ID", "robert")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "robert", loaded.Character.ID)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveFile(validConfig(), path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, zerolog.Nop(), func(c *Config) { changes <- c })
	require.NoError(t, err)
	defer w.Close()

	cfg := validConfig()
	cfg.Character.IdleType = "none"
	require.NoError(t, SaveFile(cfg, path))

	// A single save may surface as several write events.
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case got := <-changes:
			seen = got.Character.IdleType == "none"
		case <-deadline:
			t.Fatal("watcher did not report the change")
		}
	}

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))
}
