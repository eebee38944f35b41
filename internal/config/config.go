package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
)

// Config represents the complete docscan configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id" validate:"required"`
	Mode             string         `yaml:"mode" validate:"omitempty,oneof=frame id_card"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s" validate:"gte=0"` // default: 5
	Viewport         ViewportConfig `yaml:"viewport"`
	Geometry         GeometryConfig `yaml:"geometry"`
	Capture          CaptureConfig  `yaml:"capture"`
	Output           OutputConfig   `yaml:"output"`
	Source           SourceConfig   `yaml:"source"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	HTTP             HTTPConfig     `yaml:"http"`
}

// ViewportConfig is the initial UI orientation snapshot
type ViewportConfig struct {
	Platform string `yaml:"platform" validate:"omitempty,oneof=sensor prerotated android ios unknown"`
	Width    int    `yaml:"width" validate:"gte=0"`
	Height   int    `yaml:"height" validate:"gte=0"`
}

// GeometryConfig contains crop geometry settings
type GeometryConfig struct {
	Aspect         *geometry.AspectRatio `yaml:"aspect,omitempty"` // default: mode aspect (85.6x54)
	Layout         *geometry.Layout      `yaml:"layout,omitempty"` // default: 70%/80% layout
	OverflowPolicy string                `yaml:"overflow_policy" validate:"omitempty,oneof=clamp reject allow"`
}

// CaptureConfig contains capture coordination settings
type CaptureConfig struct {
	RetryBudget     int     `yaml:"retry_budget" validate:"gte=0,lte=30"`    // attempts per armed cycle (default: 3)
	ArmTimeoutS     float64 `yaml:"arm_timeout_s"`                           // negative disables (default: 5)
	OutboxCapacity  int     `yaml:"outbox_capacity" validate:"gte=0,lte=64"` // default: 4
	AutoAcknowledge bool    `yaml:"auto_acknowledge"`                        // return to idle once a capture is stored
}

// OutputConfig contains encoding and storage settings for captures
type OutputConfig struct {
	Format      string `yaml:"format" validate:"omitempty,oneof=jpeg png"`
	JPEGQuality int    `yaml:"jpeg_quality" validate:"gte=0,lte=100"`
	MaxWidth    int    `yaml:"max_width" validate:"gte=0"`
	Dir         string `yaml:"dir"` // empty disables the file sink
}

// SourceConfig contains synthetic camera settings
type SourceConfig struct {
	Width        int `yaml:"width" validate:"gte=0"`
	Height       int `yaml:"height" validate:"gte=0"`
	FPS          int `yaml:"fps" validate:"gte=0,lte=240"`
	RotateEveryS int `yaml:"rotate_every_s" validate:"gte=0"` // swap width/height periodically (0 disables)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables the emitter
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"` // prefix: {topic}/captures, {topic}/failures, {topic}/control
	QoS      byte   `yaml:"qos" validate:"lte=2"`
}

// HTTPConfig contains control/health server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Environment overrides applied after the YAML file.
const (
	EnvInstanceID = "DOCSCAN_INSTANCE_ID"
	EnvMQTTBroker = "DOCSCAN_MQTT_BROKER"
	EnvHTTPAddr   = "DOCSCAN_HTTP_ADDR"
	EnvOutputDir  = "DOCSCAN_OUTPUT_DIR"
)

// Load reads and parses a YAML configuration file.
//
// envFile (optional, may not exist) is loaded into the process environment
// first; DOCSCAN_* variables then override file values.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInstanceID); v != "" {
		c.InstanceID = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.Output.Dir = v
	}
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// ArmTimeout returns the armed-cycle timeout (0 disables).
func (c *Config) ArmTimeout() time.Duration {
	if c.Capture.ArmTimeoutS <= 0 {
		return 0
	}
	return time.Duration(c.Capture.ArmTimeoutS * float64(time.Second))
}
