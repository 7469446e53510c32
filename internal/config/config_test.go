package config

import (
	"os"
	"path/filepath"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		InstanceID: "roisync-test",
		VideoID:    "lab-tour-01",
		Sources: SourcesConfig{
			ROIPath: "data/rois.json",
		},
		MQTT: MQTTConfig{
			Broker: "localhost:1883",
		},
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Playback.Rate != 1.0 {
		t.Errorf("playback rate = %f, want 1.0", cfg.Playback.Rate)
	}
	if cfg.Playback.RefreshHz != 60 {
		t.Errorf("refresh hz = %d, want 60", cfg.Playback.RefreshHz)
	}
	if cfg.Overlay.BlendWeight != 0.65 {
		t.Errorf("blend weight = %f, want 0.65", cfg.Overlay.BlendWeight)
	}
	if cfg.Overlay.HoldDurationS == nil || *cfg.Overlay.HoldDurationS != 0.2 {
		t.Errorf("hold duration = %v, want 0.2", cfg.Overlay.HoldDurationS)
	}
	if cfg.Focus.ReservedBand != 0.12 {
		t.Errorf("reserved band = %f, want 0.12", cfg.Focus.ReservedBand)
	}
	if cfg.MQTT.Topics.Overlay != "smile/overlay/roisync-test" {
		t.Errorf("overlay topic = %q", cfg.MQTT.Topics.Overlay)
	}
	if cfg.MQTT.QoS["control"] != 1 {
		t.Errorf("control qos = %d, want 1", cfg.MQTT.QoS["control"])
	}
}

func TestValidateKeepsExplicitZeroHold(t *testing.T) {
	cfg := baseConfig()
	zero := 0.0
	cfg.Overlay.HoldDurationS = &zero

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Overlay.HoldDurationS == nil || *cfg.Overlay.HoldDurationS != 0 {
		t.Errorf("hold duration = %v, explicit zero must survive validation", cfg.Overlay.HoldDurationS)
	}
}

func TestValidateRejectsNegativeHold(t *testing.T) {
	cfg := baseConfig()
	negative := -0.1
	cfg.Overlay.HoldDurationS = &negative

	if err := Validate(cfg); err == nil {
		t.Error("expected error for negative hold duration")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance_id", func(c *Config) { c.InstanceID = "" }},
		{"bad instance_id", func(c *Config) { c.InstanceID = "Has Spaces" }},
		{"missing video_id", func(c *Config) { c.VideoID = "" }},
		{"missing roi_path", func(c *Config) { c.Sources.ROIPath = "" }},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"inverted center band", func(c *Config) {
			c.Focus.CenterBandMin = 0.8
			c.Focus.CenterBandMax = 0.2
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
instance_id: roisync-test
video_id: lab-tour-01
sources:
  roi_path: data/rois.json
  mapping_path: data/mapping.json
  content_base_url: http://localhost:9000/content/
  labels:
    0: "ALD Device"
overlay:
  blend_weight: 0.8
mqtt:
  broker: localhost:1883
`
	path := filepath.Join(t.TempDir(), "roisync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Overlay.BlendWeight != 0.8 {
		t.Errorf("blend weight = %f, want 0.8", cfg.Overlay.BlendWeight)
	}
	if cfg.Sources.Labels[0] != "ALD Device" {
		t.Errorf("label 0 = %q, want 'ALD Device'", cfg.Sources.Labels[0])
	}
	if cfg.MQTT.Topics.Control != "smile/control/roisync-test" {
		t.Errorf("control topic = %q", cfg.MQTT.Topics.Control)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
