// Package config provides configuration management for CortexSprite
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/normanking/cortexsprite/internal/logging"
	"github.com/spf13/viper"
)

// Configuration errors. These are reported once and never retried.
var (
	ErrMissingEndpoint  = errors.New("missing character endpoint")
	ErrMissingCharacter = errors.New("missing character id")
	ErrInvalid          = errors.New("invalid configuration")
)

// Config holds all application configuration
type Config struct {
	Character CharacterConfig `mapstructure:"character" yaml:"character"`
	Fetch     FetchConfig     `mapstructure:"fetch" yaml:"fetch"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Log       logging.Config  `mapstructure:"log" yaml:"log"`
}

// CharacterConfig describes the character and how the engine presents it
type CharacterConfig struct {
	Endpoint  string              `mapstructure:"endpoint" yaml:"endpoint"`
	ID        string              `mapstructure:"id" yaml:"id"`
	Version   string              `mapstructure:"version" yaml:"version"`
	Format    string              `mapstructure:"format" yaml:"format"` // png or jpeg
	Voice     string              `mapstructure:"voice" yaml:"voice"`
	Width     int                 `mapstructure:"width" yaml:"width"`
	Height    int                 `mapstructure:"height" yaml:"height"`
	Params    map[string]string   `mapstructure:"params" yaml:"params"` // extra query parameters
	IdleType  string              `mapstructure:"idle_type" yaml:"idle_type"` // none, blink or normal
	IdleData  map[string][]string `mapstructure:"idle_data" yaml:"idle_data"`
	SaveState bool                `mapstructure:"save_state" yaml:"save_state"`
	Sway      bool                `mapstructure:"sway" yaml:"sway"`
	Breath    bool                `mapstructure:"breath" yaml:"breath"`
	// PlayShield holds idle behavior and autostart until the caller dismisses it
	PlayShield bool `mapstructure:"play_shield" yaml:"play_shield"`
	Preload    bool `mapstructure:"preload" yaml:"preload"`
	Visible    bool `mapstructure:"visible" yaml:"visible"`
	RefreshHz  int  `mapstructure:"refresh_hz" yaml:"refresh_hz"`
}

// FetchConfig configures asset fetching
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheEntries int           `mapstructure:"cache_entries" yaml:"cache_entries"`
}

// AudioConfig configures playback
type AudioConfig struct {
	Output     string  `mapstructure:"output" yaml:"output"` // speaker or null
	Volume     float64 `mapstructure:"volume" yaml:"volume"` // 0-1
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// RelayConfig configures the event relay
type RelayConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Character: CharacterConfig{
			Format:   "png",
			Width:    250,
			Height:   200,
			Params:   map[string]string{},
			IdleType: "normal",
			IdleData: map[string][]string{
				"normal": {"blink", "idle1-3"},
				"blink":  {"blink"},
			},
			Sway:      true,
			Breath:    true,
			Preload:   true,
			Visible:   true,
			RefreshHz: 60,
		},
		Fetch: FetchConfig{
			Timeout:      30 * time.Second,
			CacheEntries: 256,
		},
		Audio: AudioConfig{
			Output:     "speaker",
			Volume:     1.0,
			SampleRate: 44100,
		},
		Relay: RelayConfig{
			Addr: "127.0.0.1:8765",
		},
		Log: *logging.DefaultConfig(),
	}
}

// Validate reports configuration errors
func (c *Config) Validate() error {
	if c.Character.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Character.ID == "" {
		return ErrMissingCharacter
	}
	switch c.Character.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("%w: format %q", ErrInvalid, c.Character.Format)
	}
	switch c.Character.IdleType {
	case "none", "blink", "normal":
	default:
		return fmt.Errorf("%w: idle type %q", ErrInvalid, c.Character.IdleType)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("%w: volume %v", ErrInvalid, c.Audio.Volume)
	}
	switch c.Audio.Output {
	case "speaker", "null":
	default:
		return fmt.Errorf("%w: audio output %q", ErrInvalid, c.Audio.Output)
	}
	return nil
}

// newViper returns a viper instance seeded with the defaults so that
// environment overrides apply to every known key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CORTEXSPRITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("character.endpoint", d.Character.Endpoint)
	v.SetDefault("character.id", d.Character.ID)
	v.SetDefault("character.version", d.Character.Version)
	v.SetDefault("character.format", d.Character.Format)
	v.SetDefault("character.voice", d.Character.Voice)
	v.SetDefault("character.width", d.Character.Width)
	v.SetDefault("character.height", d.Character.Height)
	v.SetDefault("character.idle_type", d.Character.IdleType)
	v.SetDefault("character.save_state", d.Character.SaveState)
	v.SetDefault("character.sway", d.Character.Sway)
	v.SetDefault("character.breath", d.Character.Breath)
	v.SetDefault("character.play_shield", d.Character.PlayShield)
	v.SetDefault("character.preload", d.Character.Preload)
	v.SetDefault("character.visible", d.Character.Visible)
	v.SetDefault("character.refresh_hz", d.Character.RefreshHz)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.cache_entries", d.Fetch.CacheEntries)
	v.SetDefault("audio.output", d.Audio.Output)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("relay.addr", d.Relay.Addr)
	v.SetDefault("log.dir", d.Log.LogDir)
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.console", d.Log.Console)
	return v
}

// Load reads configuration from ~/.cortexsprite/config.yaml and the
// environment, creating the file with defaults on first run.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return DefaultConfig(), err
	}

	path := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(DefaultConfig()); err != nil {
			return DefaultConfig(), err
		}
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the given yaml file and the environment
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Character.Params == nil {
		cfg.Character.Params = map[string]string{}
	}
	return cfg, nil
}

// Save writes the configuration to ~/.cortexsprite/config.yaml
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	return SaveFile(cfg, filepath.Join(configDir, "config.yaml"))
}

// SaveFile writes the configuration to path
func SaveFile(cfg *Config, path string) error {
	v := viper.New()
	v.Set("character", cfg.Character)
	v.Set("fetch", cfg.Fetch)
	v.Set("audio", cfg.Audio)
	v.Set("relay", cfg.Relay)
	v.Set("log", cfg.Log)
	return v.WriteConfigAs(path)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexsprite"), nil
}
