package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. REHEARSE_API_BASE_URL.
const EnvPrefix = "REHEARSE"

// Config holds all client configuration.
type Config struct {
	// APIBaseURL is the practice backend root, e.g. https://api.example.com/v1.
	APIBaseURL string `mapstructure:"api_base_url" validate:"required,url"`

	// CredentialsPath is the persisted auth session file.
	CredentialsPath string `mapstructure:"credentials_path"`

	// DBPath is the local journal database. Empty uses the XDG default.
	DBPath string `mapstructure:"db_path"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json pretty"`
	LogFile   string `mapstructure:"log_file"`

	// ThinkSeconds and RecordSeconds bound the two room countdowns.
	ThinkSeconds  int `mapstructure:"think_seconds" validate:"min=1,max=3600"`
	RecordSeconds int `mapstructure:"record_seconds" validate:"min=1,max=3600"`

	// RequestTimeout bounds each backend call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	// BeaconTimeout bounds the best-effort cancel notice sent on exit.
	BeaconTimeout time.Duration `mapstructure:"beacon_timeout" validate:"gt=0"`

	Device DeviceConfig `mapstructure:"device"`
}

// DeviceConfig selects and tunes the capture backend.
type DeviceConfig struct {
	// Backend is "ffmpeg" for real devices or "synthetic" for generated media.
	Backend    string        `mapstructure:"backend" validate:"oneof=ffmpeg synthetic"`
	FFmpegPath string        `mapstructure:"ffmpeg_path"`
	Video      string        `mapstructure:"video"`
	Audio      string        `mapstructure:"audio"`
	Timeslice  time.Duration `mapstructure:"timeslice" validate:"gt=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:     "http://localhost:8787",
		LogLevel:       "info",
		LogFormat:      "json",
		ThinkSeconds:   60,
		RecordSeconds:  60,
		RequestTimeout: 30 * time.Second,
		BeaconTimeout:  3 * time.Second,
		Device: DeviceConfig{
			Backend:    "ffmpeg",
			FFmpegPath: "ffmpeg",
			Timeslice:  time.Second,
		},
	}
}

// Load builds a Config from defaults, an optional config file, a .env file in
// the working directory, and REHEARSE_* environment variables, in increasing
// priority. path may be empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api_base_url", d.APIBaseURL)
	v.SetDefault("credentials_path", d.CredentialsPath)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("think_seconds", d.ThinkSeconds)
	v.SetDefault("record_seconds", d.RecordSeconds)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("beacon_timeout", d.BeaconTimeout)
	v.SetDefault("device.backend", d.Device.Backend)
	v.SetDefault("device.ffmpeg_path", d.Device.FFmpegPath)
	v.SetDefault("device.video", d.Device.Video)
	v.SetDefault("device.audio", d.Device.Audio)
	v.SetDefault("device.timeslice", d.Device.Timeslice)
}

// fillPaths resolves empty file locations to their XDG defaults.
func (c *Config) fillPaths() error {
	if c.CredentialsPath == "" {
		dir, err := configHome()
		if err != nil {
			return err
		}
		c.CredentialsPath = filepath.Join(dir, "rehearse", "credentials.json")
	}
	if c.LogFile == "" {
		dir, err := stateHome()
		if err != nil {
			return err
		}
		c.LogFile = filepath.Join(dir, "rehearse", "rehearse.log")
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports the first offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}

func configHome() (string, error) {
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

func stateHome() (string, error) {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
