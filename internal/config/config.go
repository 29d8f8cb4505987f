package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/logging"
	"github.com/emmett/chime/internal/notify"
	"github.com/emmett/chime/internal/spectral"
	"github.com/emmett/chime/internal/store"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Audio settings
	Audio struct {
		Device           string `yaml:"device"`
		SampleRate       uint32 `yaml:"sample_rate"`
		Channels         uint32 `yaml:"channels"`
		BufferFrames     uint32 `yaml:"buffer_frames"`
		SampleBufferSize int    `yaml:"sample_buffer_size"`
		WindowSize       int    `yaml:"window_size"`
	} `yaml:"audio"`

	// Frequency band settings
	Bands struct {
		Scale          string  `yaml:"scale"`
		MinFrequency   float64 `yaml:"min_frequency"`
		MaxFrequency   float64 `yaml:"max_frequency"`
		BandsPerOctave int     `yaml:"bands_per_octave"`
		Bands          int     `yaml:"bands"`
		WindowFunction string  `yaml:"window_function"`
	} `yaml:"bands"`

	// Detection settings
	Detection struct {
		Pattern          string  `yaml:"pattern"`
		PatternsDir      string  `yaml:"patterns_dir"`
		AcceptableScore  int     `yaml:"acceptable_score"` // 0 = use the pattern's own
		SilenceThreshold float64 `yaml:"silence_threshold"`
	} `yaml:"detection"`

	// Best score persistence
	Store struct {
		Backend       string `yaml:"backend"`
		Path          string `yaml:"path"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"store"`

	// Output settings
	Output struct {
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"output"`

	// Alert settings
	Alert struct {
		Hotkey bool `yaml:"hotkey"`
		MQTT   struct {
			Broker   string `yaml:"broker"`
			Topic    string `yaml:"topic"`
			ClientID string `yaml:"client_id"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"mqtt"`
	} `yaml:"alert"`

	// Server settings
	Server struct {
		Host     string `yaml:"host"`
		GRPCPort int    `yaml:"grpc_port"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"server"`

	// Log settings
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Audio defaults
	capture := audio.DefaultConfig()
	cfg.Audio.Device = ""
	cfg.Audio.SampleRate = capture.SampleRate
	cfg.Audio.Channels = capture.Channels
	cfg.Audio.BufferFrames = capture.BufferFrames
	cfg.Audio.SampleBufferSize = capture.SampleBufferSize
	cfg.Audio.WindowSize = 2048

	// Band defaults (C6 to C10, semitones)
	banding := spectral.DefaultBanding()
	cfg.Bands.Scale = banding.Scale.String()
	cfg.Bands.MinFrequency = banding.MinFrequency
	cfg.Bands.MaxFrequency = banding.MaxFrequency
	cfg.Bands.BandsPerOctave = banding.BandsPerOctave
	cfg.Bands.WindowFunction = spectral.Hanning.String()

	// Detection defaults
	cfg.Detection.Pattern = ""
	cfg.Detection.PatternsDir = ""
	cfg.Detection.AcceptableScore = 0
	cfg.Detection.SilenceThreshold = audio.DefaultSilenceThreshold

	// Store defaults
	cfg.Store.Backend = store.BackendSQLite
	cfg.Store.Path = store.DefaultDBFile

	// Output defaults
	cfg.Output.Format = "text"
	cfg.Output.File = ""

	// Alert defaults
	cfg.Alert.Hotkey = false
	cfg.Alert.MQTT.Topic = "chime"
	cfg.Alert.MQTT.ClientID = "chime"

	// Server defaults
	cfg.Server.Host = "localhost"
	cfg.Server.GRPCPort = 50051
	cfg.Server.HTTPPort = 8080

	// Log defaults
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.chimerc > /etc/chime/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	// If explicit path is provided, use it
	if explicitPath != "" {
		return Load(explicitPath)
	}

	// Try user config (~/.chimerc)
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, ".chimerc")
		if _, err := os.Stat(userConfigPath); err == nil {
			cfg, err := Load(userConfigPath)
			if err == nil {
				return cfg, nil
			}
		}
	}

	// Try system config (/etc/chime/config.yaml)
	systemConfigPath := "/etc/chime/config.yaml"
	if _, err := os.Stat(systemConfigPath); err == nil {
		cfg, err := Load(systemConfigPath)
		if err == nil {
			return cfg, nil
		}
	}

	// No config file found, return defaults
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from CHIME_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CHIME_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CHIME_MONGO_URI"); v != "" {
		c.Store.MongoURI = v
	}
	if v := os.Getenv("CHIME_MQTT_BROKER"); v != "" {
		c.Alert.MQTT.Broker = v
	}
	if v := os.Getenv("CHIME_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Detection.AcceptableScore < 0 {
		errs = append(errs, fmt.Errorf("detection.acceptable_score must be >= 0, got %d", c.Detection.AcceptableScore))
	}
	if c.Audio.SampleBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_buffer_size must be positive, got %d", c.Audio.SampleBufferSize))
	}
	if c.Audio.BufferFrames == 0 {
		errs = append(errs, errors.New("audio.buffer_frames must be positive"))
	}

	dc, err := c.DetectConfig()
	if err != nil {
		errs = append(errs, err)
	} else if err := dc.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Output.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("output.format must be json or text, got %q", c.Output.Format))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", detect.ErrConfiguration, errors.Join(errs...))
}

// Banding returns the band scheme of the config
func (c *Config) Banding() (spectral.Banding, error) {
	scale, err := spectral.ParseScale(c.Bands.Scale)
	if err != nil {
		return spectral.Banding{}, err
	}
	return spectral.Banding{
		Scale:          scale,
		MinFrequency:   c.Bands.MinFrequency,
		MaxFrequency:   c.Bands.MaxFrequency,
		BandsPerOctave: c.Bands.BandsPerOctave,
		Bands:          c.Bands.Bands,
	}, nil
}

// DetectConfig converts the audio, band and detection sections to a
// pipeline configuration
func (c *Config) DetectConfig() (detect.Config, error) {
	banding, err := c.Banding()
	if err != nil {
		return detect.Config{}, fmt.Errorf("%w: %w", detect.ErrConfiguration, err)
	}
	fn, err := spectral.ParseWindowFunction(c.Bands.WindowFunction)
	if err != nil {
		return detect.Config{}, fmt.Errorf("%w: %w", detect.ErrConfiguration, err)
	}

	dc := detect.DefaultConfig()
	dc.WindowSize = c.Audio.WindowSize
	dc.SampleRate = float64(c.Audio.SampleRate)
	dc.WindowFunction = fn
	dc.Banding = banding
	dc.SilenceThreshold = c.Detection.SilenceThreshold
	return dc, nil
}

// CaptureConfig returns the live capture configuration
func (c *Config) CaptureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate:       c.Audio.SampleRate,
		Channels:         c.Audio.Channels,
		BufferFrames:     c.Audio.BufferFrames,
		SampleBufferSize: c.Audio.SampleBufferSize,
		DeviceID:         c.Audio.Device,
	}
}

// StoreConfig returns the persistence configuration
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:       c.Store.Backend,
		Path:          c.Store.Path,
		MongoURI:      c.Store.MongoURI,
		MongoDatabase: c.Store.MongoDatabase,
	}
}

// LogConfig returns the logger configuration
func (c *Config) LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

// MQTTConfig returns the MQTT publisher configuration; ok is false when no
// broker is configured
func (c *Config) MQTTConfig() (notify.MQTTConfig, bool) {
	mc := notify.MQTTConfig{
		Broker:   c.Alert.MQTT.Broker,
		Topic:    c.Alert.MQTT.Topic,
		ClientID: c.Alert.MQTT.ClientID,
		Username: c.Alert.MQTT.Username,
		Password: c.Alert.MQTT.Password,
		QoS:      1,
		Timeout:  5 * time.Second,
	}
	return mc, mc.Broker != ""
}

// GRPCAddr returns host:port of the gRPC listener
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// HTTPAddr returns host:port of the socket.io listener
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}
