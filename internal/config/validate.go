package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would break the capture loop are clamped to safe
// defaults. Other validation errors are logged as warnings but do not prevent
// startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("listen_addr %q is not host:port: %w", c.ListenAddr, err))
		}
	}

	if c.APIKey != "" {
		for _, r := range c.APIKey {
			if unicode.IsControl(r) {
				errs = append(errs, fmt.Errorf("api_key contains control characters"))
				break
			}
		}
	}

	// Clamp the frame rate so the capture interval is always a positive,
	// sane duration.
	if c.TargetFPS < 1 {
		errs = append(errs, fmt.Errorf("target_fps %d is below minimum 1, clamping", c.TargetFPS))
		c.TargetFPS = 1
	} else if c.TargetFPS > 60 {
		errs = append(errs, fmt.Errorf("target_fps %d exceeds maximum 60, clamping", c.TargetFPS))
		c.TargetFPS = 60
	}

	if c.JPEGQuality < 1 {
		errs = append(errs, fmt.Errorf("jpeg_quality %d is below minimum 1, clamping", c.JPEGQuality))
		c.JPEGQuality = 1
	} else if c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality %d exceeds maximum 100, clamping", c.JPEGQuality))
		c.JPEGQuality = 100
	}

	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max_sessions %d is below minimum 1, clamping", c.MaxSessions))
		c.MaxSessions = 1
	} else if c.MaxSessions > 64 {
		errs = append(errs, fmt.Errorf("max_sessions %d exceeds maximum 64, clamping", c.MaxSessions))
		c.MaxSessions = 64
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
