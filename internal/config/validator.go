package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and applies defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Validate video_id
	if cfg.VideoID == "" {
		return fmt.Errorf("video_id is required")
	}

	// Validate sources
	if cfg.Sources.ROIPath == "" {
		return fmt.Errorf("sources.roi_path is required")
	}

	// Playback defaults
	if cfg.Playback.Rate <= 0 {
		cfg.Playback.Rate = 1.0
	}
	if cfg.Playback.RefreshHz <= 0 {
		cfg.Playback.RefreshHz = 60
	}

	// Overlay tuning defaults
	if cfg.Overlay.BlendWeight <= 0 || cfg.Overlay.BlendWeight > 1 {
		cfg.Overlay.BlendWeight = 0.65
	}
	if cfg.Overlay.HoldDurationS == nil {
		hold := 0.2
		cfg.Overlay.HoldDurationS = &hold
	} else if *cfg.Overlay.HoldDurationS < 0 {
		return fmt.Errorf("overlay.hold_duration_s must be >= 0")
	}
	if cfg.Overlay.SeekThreshS <= 0 {
		cfg.Overlay.SeekThreshS = 0.1
	}

	// Focus classifier defaults
	if cfg.Focus.CenterBandMin == 0 && cfg.Focus.CenterBandMax == 0 {
		cfg.Focus.CenterBandMin = 0.25
		cfg.Focus.CenterBandMax = 0.75
	}
	if cfg.Focus.CenterBandMin >= cfg.Focus.CenterBandMax {
		return fmt.Errorf("focus.center_band_min must be < focus.center_band_max")
	}
	if cfg.Focus.SmallArea == 0 {
		cfg.Focus.SmallArea = 0.05
	}
	if cfg.Focus.MinConfidence == 0 {
		cfg.Focus.MinConfidence = 0.5
	}
	if cfg.Focus.ControlCornerTop == 0 {
		cfg.Focus.ControlCornerTop = 0.85
	}
	if cfg.Focus.ControlMargin == 0 {
		cfg.Focus.ControlMargin = 0.15
	}
	if cfg.Focus.ReservedBand == 0 {
		cfg.Focus.ReservedBand = 0.12
	}

	// Describe defaults
	if cfg.Describe.FetchTimeoutS <= 0 {
		cfg.Describe.FetchTimeoutS = 10
	}

	// Validate MQTT broker
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("smile/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Overlay == "" {
		cfg.MQTT.Topics.Overlay = fmt.Sprintf("smile/overlay/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Descriptions == "" {
		cfg.MQTT.Topics.Descriptions = fmt.Sprintf("smile/descriptions/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Player == "" {
		cfg.MQTT.Topics.Player = fmt.Sprintf("smile/player/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("smile/health/%s", cfg.InstanceID)
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control":      1,
			"overlay":      0,
			"descriptions": 1,
			"player":       1,
			"health":       0,
		}
	}

	return nil
}
