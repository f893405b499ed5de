package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceURLEnv overrides the analysis service address.
const ServiceURLEnv = "NONVERB_SERVICE_URL"

// Config holds the application configuration
type Config struct {
	Service  ServiceConfig  `json:"service" yaml:"service"`
	Device   DeviceConfig   `json:"device" yaml:"device"`
	Encoding EncodingConfig `json:"encoding" yaml:"encoding"`
	Overlay  OverlayConfig  `json:"overlay" yaml:"overlay"`
	Audio    AudioConfig    `json:"audio" yaml:"audio"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Server   ServerConfig   `json:"server" yaml:"server"`
}

// ServiceConfig selects the analysis backend
type ServiceConfig struct {
	URL     string `json:"url" yaml:"url"`
	Backend string `json:"backend" yaml:"backend"` // http or ollama
	Model   string `json:"model" yaml:"model"`     // ollama only
	// Timeout bounds one exchange; empty or "0s" leaves it to the transport.
	Timeout string `json:"timeout" yaml:"timeout"`
}

// DeviceConfig selects the live frame source
type DeviceConfig struct {
	Index  int `json:"index" yaml:"index"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// StillImage replays an image file instead of opening a camera.
	StillImage string `json:"still_image" yaml:"still_image"`
}

// EncodingConfig controls how captures are encoded for submission
type EncodingConfig struct {
	Format  string `json:"format" yaml:"format"`
	Quality int    `json:"quality" yaml:"quality"`
	MaxDim  int    `json:"max_dim" yaml:"max_dim"`
}

// OverlayConfig controls the region stroke
type OverlayConfig struct {
	Color  string `json:"color" yaml:"color"`
	Stroke int    `json:"stroke" yaml:"stroke"`
}

// AudioConfig controls the audio cue
type AudioConfig struct {
	Autoplay bool     `json:"autoplay" yaml:"autoplay"`
	Command  []string `json:"command" yaml:"command"`
}

// OutputConfig holds configuration for rendered images written by the CLI
type OutputConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	Format string `json:"format" yaml:"format"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// ServerConfig holds the control surface settings
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			URL:     "http://localhost:5000/analyze",
			Backend: "http",
			Model:   "qwen2.5vl:7b",
		},
		Device: DeviceConfig{
			Index:  0,
			Width:  640,
			Height: 480,
		},
		Encoding: EncodingConfig{
			Format:  "jpg",
			Quality: 85,
			MaxDim:  0,
		},
		Overlay: OverlayConfig{
			Color:  "#FFFF00",
			Stroke: 5,
		},
		Audio: AudioConfig{
			Autoplay: true,
		},
		Output: OutputConfig{
			Dir:    "./output",
			Format: "jpg",
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8090",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the
// defaults. The format follows the file extension.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv applies environment overrides. Only the service address can be
// set this way.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(ServiceURLEnv)); v != "" {
		c.Service.URL = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service.url must be an http(s) URL, got %q", c.Service.URL)
	}

	switch c.Service.Backend {
	case "http", "ollama":
	default:
		return fmt.Errorf("service.backend must be http or ollama")
	}

	if _, err := c.ServiceTimeout(); err != nil {
		return err
	}

	if c.Device.Index < 0 {
		return fmt.Errorf("device.index must not be negative")
	}

	if c.Device.Width < 0 || c.Device.Height < 0 {
		return fmt.Errorf("device.width and device.height must not be negative")
	}

	if !validFormat(c.Encoding.Format) {
		return fmt.Errorf("encoding.format must be jpg, png or webp")
	}

	if c.Encoding.Quality < 1 || c.Encoding.Quality > 100 {
		return fmt.Errorf("encoding.quality must be between 1 and 100")
	}

	if c.Encoding.MaxDim < 0 {
		return fmt.Errorf("encoding.max_dim must not be negative")
	}

	if _, err := ParseColor(c.Overlay.Color); err != nil {
		return fmt.Errorf("overlay.color: %w", err)
	}

	if c.Overlay.Stroke < 1 {
		return fmt.Errorf("overlay.stroke must be positive")
	}

	if !validFormat(c.Output.Format) {
		return fmt.Errorf("output.format must be jpg, png or webp")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	return nil
}

// ServiceTimeout parses service.timeout. Zero means no timeout.
func (c *Config) ServiceTimeout() (time.Duration, error) {
	if c.Service.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Service.Timeout)
	if err != nil {
		return 0, fmt.Errorf("service.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("service.timeout must not be negative")
	}
	return d, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "nonverb", "config.yaml")
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func validFormat(f string) bool {
	switch strings.ToLower(f) {
	case "jpg", "jpeg", "png", "webp":
		return true
	}
	return false
}
