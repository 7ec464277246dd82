package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical navigation defaults file.
const DefaultConfigPath = "config/navigation.defaults.json"

// NavConfig is the run configuration of the navigation engine. Every field is
// optional; the Get* accessors fall back to the built-in default when a field
// is absent, so partial files are safe.
type NavConfig struct {
	// Wall-follower geometry
	WallOffset      *float64 `json:"wall_offset,omitempty" yaml:"wall_offset,omitempty"`
	FrontMargin     *float64 `json:"front_margin,omitempty" yaml:"front_margin,omitempty"`
	ReverseDistance *float64 `json:"reverse_distance,omitempty" yaml:"reverse_distance,omitempty"`
	SnakingSlack    *float64 `json:"snaking_slack,omitempty" yaml:"snaking_slack,omitempty"`
	ClearDistance   *float64 `json:"clear_distance,omitempty" yaml:"clear_distance,omitempty"`

	// Speeds
	LinearSpeed       *float64 `json:"linear_speed,omitempty" yaml:"linear_speed,omitempty"`
	TurnSpeedFast     *float64 `json:"turn_speed_fast,omitempty" yaml:"turn_speed_fast,omitempty"`
	TurnSpeedSlow     *float64 `json:"turn_speed_slow,omitempty" yaml:"turn_speed_slow,omitempty"`
	CorneringFraction *float64 `json:"cornering_fraction,omitempty" yaml:"cornering_fraction,omitempty"`

	// Stuck-loop escape
	StuckArmDelay  *string  `json:"stuck_arm_delay,omitempty" yaml:"stuck_arm_delay,omitempty"` // duration string like "10s"
	StuckArmPause  *string  `json:"stuck_arm_pause,omitempty" yaml:"stuck_arm_pause,omitempty"`
	StuckGrace     *string  `json:"stuck_grace,omitempty" yaml:"stuck_grace,omitempty"`
	StuckIncrement *float64 `json:"stuck_increment,omitempty" yaml:"stuck_increment,omitempty"`

	// Maneuver and loop timing
	TurnTimeout     *string `json:"turn_timeout,omitempty" yaml:"turn_timeout,omitempty"`
	ApproachTimeout *string `json:"approach_timeout,omitempty" yaml:"approach_timeout,omitempty"`
	PollInterval    *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`

	// Derived pose publication
	PosePublishInterval *string `json:"pose_publish_interval,omitempty" yaml:"pose_publish_interval,omitempty"`
	TransformTolerance  *string `json:"transform_tolerance,omitempty" yaml:"transform_tolerance,omitempty"`
	MapFrame            *string `json:"map_frame,omitempty" yaml:"map_frame,omitempty"`
	BaseFrame           *string `json:"base_frame,omitempty" yaml:"base_frame,omitempty"`
}

// EmptyNavConfig returns a NavConfig with all fields unset.
func EmptyNavConfig() *NavConfig {
	return &NavConfig{}
}

// LoadNavConfig loads a NavConfig from a .json, .yaml or .yml file no larger
// than 1MB and validates it.
func LoadNavConfig(path string) (*NavConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNavConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// working directory. Panics if the file cannot be found; intended for tests.
func MustLoadDefaultConfig() *NavConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/wallnav/ and deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadNavConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any set values are usable.
func (c *NavConfig) Validate() error {
	positive := map[string]*float64{
		"wall_offset":      c.WallOffset,
		"reverse_distance": c.ReverseDistance,
		"linear_speed":     c.LinearSpeed,
		"turn_speed_fast":  c.TurnSpeedFast,
		"turn_speed_slow":  c.TurnSpeedSlow,
		"clear_distance":   c.ClearDistance,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.FrontMargin != nil && *c.FrontMargin < 0 {
		return fmt.Errorf("front_margin must be non-negative, got %f", *c.FrontMargin)
	}
	if c.StuckIncrement != nil && *c.StuckIncrement < 0 {
		return fmt.Errorf("stuck_increment must be non-negative, got %f", *c.StuckIncrement)
	}
	if c.CorneringFraction != nil {
		if *c.CorneringFraction < 0 || *c.CorneringFraction > 1 {
			return fmt.Errorf("cornering_fraction must be between 0 and 1, got %f", *c.CorneringFraction)
		}
	}
	if c.SnakingSlack != nil {
		if *c.SnakingSlack < 0 || *c.SnakingSlack >= c.GetWallOffset() {
			return fmt.Errorf("snaking_slack must be in [0, wall_offset), got %f", *c.SnakingSlack)
		}
	}
	if c.ReverseDistance != nil && *c.ReverseDistance >= c.GetWallOffset() {
		return fmt.Errorf("reverse_distance %f must be below wall_offset %f", *c.ReverseDistance, c.GetWallOffset())
	}

	durations := map[string]*string{
		"stuck_arm_delay":       c.StuckArmDelay,
		"stuck_arm_pause":       c.StuckArmPause,
		"stuck_grace":           c.StuckGrace,
		"turn_timeout":          c.TurnTimeout,
		"approach_timeout":      c.ApproachTimeout,
		"poll_interval":         c.PollInterval,
		"pose_publish_interval": c.PosePublishInterval,
		"transform_tolerance":   c.TransformTolerance,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	return nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetWallOffset returns the target distance from the followed wall in metres.
func (c *NavConfig) GetWallOffset() float64 { return floatOr(c.WallOffset, 0.45) }

// GetFrontMargin returns the extra clearance added to the wall offset to form
// the front near threshold.
func (c *NavConfig) GetFrontMargin() float64 { return floatOr(c.FrontMargin, 0.10) }

// GetReverseDistance returns the front distance below which the robot backs off.
func (c *NavConfig) GetReverseDistance() float64 { return floatOr(c.ReverseDistance, 0.20) }

// GetSnakingSlack returns how far inside the wall offset the robot may drift
// before steering away.
func (c *NavConfig) GetSnakingSlack() float64 { return floatOr(c.SnakingSlack, 0.07) }

// GetClearDistance returns the sentinel used for windows with no valid return.
func (c *NavConfig) GetClearDistance() float64 { return floatOr(c.ClearDistance, 100) }

// GetLinearSpeed returns the cruise speed in m/s.
func (c *NavConfig) GetLinearSpeed() float64 { return floatOr(c.LinearSpeed, 0.20) }

// GetTurnSpeedFast returns the fast rotation speed in rad/s.
func (c *NavConfig) GetTurnSpeedFast() float64 { return floatOr(c.TurnSpeedFast, 0.80) }

// GetTurnSpeedSlow returns the slow rotation speed in rad/s.
func (c *NavConfig) GetTurnSpeedSlow() float64 { return floatOr(c.TurnSpeedSlow, 0.45) }

// GetCorneringFraction returns the fraction of cruise speed used in corners.
func (c *NavConfig) GetCorneringFraction() float64 { return floatOr(c.CorneringFraction, 0.50) }

// GetStuckArmDelay returns how long after start the stuck-loop reference is taken.
func (c *NavConfig) GetStuckArmDelay() time.Duration {
	return durationOr(c.StuckArmDelay, 10*time.Second)
}

// GetStuckArmPause returns the settle pause while the reference is recorded.
func (c *NavConfig) GetStuckArmPause() time.Duration {
	return durationOr(c.StuckArmPause, time.Second)
}

// GetStuckGrace returns the minimum time before a stuck-loop escalation.
func (c *NavConfig) GetStuckGrace() time.Duration {
	return durationOr(c.StuckGrace, 60*time.Second)
}

// GetStuckIncrement returns the wall offset increment applied on escalation.
func (c *NavConfig) GetStuckIncrement() float64 { return floatOr(c.StuckIncrement, 0.05) }

// GetTurnTimeout returns the deadline for a single heading turn.
func (c *NavConfig) GetTurnTimeout() time.Duration {
	return durationOr(c.TurnTimeout, 15*time.Second)
}

// GetApproachTimeout returns the deadline for the forward drive to a wall.
func (c *NavConfig) GetApproachTimeout() time.Duration {
	return durationOr(c.ApproachTimeout, 30*time.Second)
}

// GetPollInterval returns the longest the loop waits for one inbound update.
func (c *NavConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 20*time.Millisecond)
}

// GetPosePublishInterval returns the derived pose publication cadence.
func (c *NavConfig) GetPosePublishInterval() time.Duration {
	return durationOr(c.PosePublishInterval, 50*time.Millisecond)
}

// GetTransformTolerance returns how old a transform may be before lookups fail.
func (c *NavConfig) GetTransformTolerance() time.Duration {
	return durationOr(c.TransformTolerance, 500*time.Millisecond)
}

// GetMapFrame returns the fixed frame of the derived pose.
func (c *NavConfig) GetMapFrame() string { return stringOr(c.MapFrame, "map") }

// GetBaseFrame returns the robot body frame of the derived pose.
func (c *NavConfig) GetBaseFrame() string { return stringOr(c.BaseFrame, "base_footprint") }
