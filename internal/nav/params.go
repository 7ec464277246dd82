package nav

import (
	"time"

	"github.com/banshee-data/wallnav/internal/config"
)

// Params are the wall-follower tunables. WallOffset is the only field that
// changes during a run (stuck-loop escape); the thresholds derived from it are
// recomputed on every read.
type Params struct {
	WallOffset        float64
	FrontMargin       float64
	ReverseDistance   float64
	SnakingSlack      float64
	ClearDistance     float64
	LinearSpeed       float64
	TurnSpeedFast     float64
	TurnSpeedSlow     float64
	CorneringFraction float64
}

// FrontThreshold is the front distance below which the front counts as near.
func (p Params) FrontThreshold() float64 { return p.WallOffset + p.FrontMargin }

// SnakingRadius is the left-front distance below which the robot steers away
// from the wall it is following.
func (p Params) SnakingRadius() float64 { return p.WallOffset - p.SnakingSlack }

// CornerThreshold separates the two diagonal-corridor behaviours.
func (p Params) CornerThreshold() float64 { return cornerFactor * p.WallOffset }

// UTurnThreshold is the left-back distance beyond which an open front means
// the wall has ended and the robot must U-turn around it.
func (p Params) UTurnThreshold() float64 { return uTurnFactor * p.WallOffset }

// ParamsFromConfig builds Params from a NavConfig.
func ParamsFromConfig(cfg *config.NavConfig) Params {
	return Params{
		WallOffset:        cfg.GetWallOffset(),
		FrontMargin:       cfg.GetFrontMargin(),
		ReverseDistance:   cfg.GetReverseDistance(),
		SnakingSlack:      cfg.GetSnakingSlack(),
		ClearDistance:     cfg.GetClearDistance(),
		LinearSpeed:       cfg.GetLinearSpeed(),
		TurnSpeedFast:     cfg.GetTurnSpeedFast(),
		TurnSpeedSlow:     cfg.GetTurnSpeedSlow(),
		CorneringFraction: cfg.GetCorneringFraction(),
	}
}

// ManeuverConfig bounds the blocking maneuvers.
type ManeuverConfig struct {
	TurnTimeout     time.Duration
	ApproachTimeout time.Duration
	PollInterval    time.Duration
}

// ManeuverConfigFromConfig builds a ManeuverConfig from a NavConfig.
func ManeuverConfigFromConfig(cfg *config.NavConfig) ManeuverConfig {
	return ManeuverConfig{
		TurnTimeout:     cfg.GetTurnTimeout(),
		ApproachTimeout: cfg.GetApproachTimeout(),
		PollInterval:    cfg.GetPollInterval(),
	}
}

// StuckPolicyConfig parameterises the stuck-loop escape.
type StuckPolicyConfig struct {
	ArmDelay  time.Duration
	ArmPause  time.Duration
	Grace     time.Duration
	Increment float64
}

// StuckPolicyConfigFromConfig builds a StuckPolicyConfig from a NavConfig.
func StuckPolicyConfigFromConfig(cfg *config.NavConfig) StuckPolicyConfig {
	return StuckPolicyConfig{
		ArmDelay:  cfg.GetStuckArmDelay(),
		ArmPause:  cfg.GetStuckArmPause(),
		Grace:     cfg.GetStuckGrace(),
		Increment: cfg.GetStuckIncrement(),
	}
}
