package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete roisyncd configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	VideoID          string         `yaml:"video_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Sources          SourcesConfig  `yaml:"sources"`
	Playback         PlaybackConfig `yaml:"playback"`
	Overlay          OverlayConfig  `yaml:"overlay"`
	Focus            FocusConfig    `yaml:"focus"`
	Describe         DescribeConfig `yaml:"describe"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
}

// SourcesConfig locates the documents loaded once at startup
type SourcesConfig struct {
	// ROIPath is a file path or http(s) URL for the ROI detection document
	ROIPath string `yaml:"roi_path"`
	// MappingPath is a file path or http(s) URL for the description mapping
	MappingPath string `yaml:"mapping_path"`
	// ContentBaseURL is the base URL description paths resolve against
	ContentBaseURL string `yaml:"content_base_url"`
	// Labels maps detector class ids to display names
	Labels map[int]string `yaml:"labels"`
}

// PlaybackConfig contains playback clock settings
type PlaybackConfig struct {
	Rate      float64 `yaml:"rate"`       // clock advance rate while playing (1.0 = realtime)
	RefreshHz int     `yaml:"refresh_hz"` // render loop tick frequency
}

// OverlayConfig contains the box tracker tuning constants.
// These were revised empirically across iterations; they stay configurable
// rather than hard-coded.
type OverlayConfig struct {
	// BlendWeight is the weight of the new sample in the position blend (0..1].
	BlendWeight float64 `yaml:"blend_weight"`
	// HoldDurationS is how long an undetected box stays on screen. A
	// pointer so an explicit zero (no hold-over at all) is distinguishable
	// from an absent field; Validate fills the default when absent.
	HoldDurationS *float64 `yaml:"hold_duration_s"`
	// SeekThreshS is the tick delta beyond which playback counts as a seek.
	SeekThreshS float64 `yaml:"seek_threshold_s"`
}

// FocusConfig contains the focus classifier layout thresholds
type FocusConfig struct {
	CenterBandMin    float64 `yaml:"center_band_min"`    // central region lower bound (default 0.25)
	CenterBandMax    float64 `yaml:"center_band_max"`    // central region upper bound (default 0.75)
	SmallArea        float64 `yaml:"small_area"`         // boxes below this area qualify regardless of centering
	MinConfidence    float64 `yaml:"min_confidence"`     // scored boxes below this are never interactive
	ControlCornerTop float64 `yaml:"control_corner_top"` // bottom band start for the reserved corners
	ControlMargin    float64 `yaml:"control_margin"`     // left/right margin width of the reserved corners
	ReservedBand     float64 `yaml:"reserved_band"`      // bottom band height used for occlusion
}

// DescribeConfig contains description resolver settings
type DescribeConfig struct {
	FetchTimeoutS int `yaml:"fetch_timeout_s"` // per-fetch timeout (default: 10)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control      string `yaml:"control"`
	Overlay      string `yaml:"overlay"`
	Descriptions string `yaml:"descriptions"`
	Player       string `yaml:"player"`
	Health       string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
