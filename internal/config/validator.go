package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Mode == "" {
		cfg.Mode = pipeline.ModeFrame.String()
	}
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Geometry
	if cfg.Geometry.Aspect != nil {
		if err := cfg.Geometry.Aspect.Validate(); err != nil {
			return fmt.Errorf("geometry.aspect: %w", err)
		}
	}
	if cfg.Geometry.Layout != nil {
		if err := cfg.Geometry.Layout.Validate(); err != nil {
			return fmt.Errorf("geometry.layout: %w", err)
		}
	}
	if cfg.Geometry.OverflowPolicy == "" {
		cfg.Geometry.OverflowPolicy = geometry.OverflowClamp.String()
	}

	// Viewport
	if cfg.Viewport.Platform == "" {
		cfg.Viewport.Platform = orientation.PlatformPreRotated.String()
	}
	if (cfg.Viewport.Width == 0) != (cfg.Viewport.Height == 0) {
		return fmt.Errorf("viewport width and height must both be set or both be 0")
	}

	// Capture
	if cfg.Capture.RetryBudget == 0 {
		cfg.Capture.RetryBudget = 3
	}
	if cfg.Capture.ArmTimeoutS == 0 {
		cfg.Capture.ArmTimeoutS = 5
	}
	if cfg.Capture.OutboxCapacity == 0 {
		cfg.Capture.OutboxCapacity = 4
	}

	// Output
	if cfg.Output.Format == "" {
		cfg.Output.Format = "jpeg"
	}
	if cfg.Output.JPEGQuality == 0 {
		cfg.Output.JPEGQuality = 90
	}

	// Source
	if cfg.Source.Width == 0 && cfg.Source.Height == 0 {
		cfg.Source.Width, cfg.Source.Height = 1920, 1080
	}
	if cfg.Source.Width == 0 || cfg.Source.Height == 0 {
		return fmt.Errorf("source width and height must both be set")
	}
	if cfg.Source.FPS == 0 {
		cfg.Source.FPS = 30
	}

	// MQTT
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = fmt.Sprintf("docscan-%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("care/docscan/%s", cfg.InstanceID)
		}
	}

	// HTTP
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	return nil
}

// formatValidationError flattens validator errors into one line using yaml-ish field paths.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ScannerOptions converts the configuration into scanner options.
// Extractor and handlers are left for the caller to wire.
func (c *Config) ScannerOptions() (pipeline.Options, error) {
	mode, err := pipeline.ParseMode(c.Mode)
	if err != nil {
		return pipeline.Options{}, err
	}
	platform, err := orientation.ParsePlatform(c.Viewport.Platform)
	if err != nil {
		return pipeline.Options{}, err
	}
	overflow, err := geometry.ParseOverflowPolicy(c.Geometry.OverflowPolicy)
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Mode:     mode,
		Overflow: overflow,
		Viewport: orientation.Context{
			Platform:       platform,
			ViewportWidth:  c.Viewport.Width,
			ViewportHeight: c.Viewport.Height,
		},
		RetryBudget:    c.Capture.RetryBudget,
		ArmTimeout:     c.ArmTimeout(),
		OutboxCapacity: c.Capture.OutboxCapacity,
	}
	if c.Geometry.Aspect != nil {
		opts.Aspect = *c.Geometry.Aspect
	}
	if c.Geometry.Layout != nil {
		opts.Layout = *c.Geometry.Layout
	}
	return opts, nil
}
