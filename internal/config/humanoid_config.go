// File: internal/config/humanoid_config.go
// HumanoidConfig contains the tunable pacing parameters used while driving the
// WordPress editor: pauses between steps, per-keystroke typing delay, and the
// warm-up mouse movement performed after a page opens.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig holds the randomized delay ranges. When Enabled is false a
// no-op pacer is used and every delay is zero.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	PauseMin     time.Duration `mapstructure:"pause_min" yaml:"pause_min"`
	PauseMax     time.Duration `mapstructure:"pause_max" yaml:"pause_max"`
	KeystrokeMin time.Duration `mapstructure:"keystroke_min" yaml:"keystroke_min"`
	KeystrokeMax time.Duration `mapstructure:"keystroke_max" yaml:"keystroke_max"`

	// WarmupMoves is the number of random mouse moves made after the page opens.
	WarmupMoves int `mapstructure:"warmup_moves" yaml:"warmup_moves"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.pause_min", "200ms")
	v.SetDefault("humanoid.pause_max", "800ms")
	v.SetDefault("humanoid.keystroke_min", "50ms")
	v.SetDefault("humanoid.keystroke_max", "100ms")
	v.SetDefault("humanoid.warmup_moves", 3)
}

// Validate checks that every range is well formed.
func (h *HumanoidConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.PauseMin < 0 || h.PauseMax < h.PauseMin {
		return errors.New("pause_min must be non-negative and not exceed pause_max")
	}
	if h.KeystrokeMin < 0 || h.KeystrokeMax < h.KeystrokeMin {
		return errors.New("keystroke_min must be non-negative and not exceed keystroke_max")
	}
	if h.WarmupMoves < 0 {
		return errors.New("warmup_moves must not be negative")
	}
	return nil
}
