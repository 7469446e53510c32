package control

import (
	"encoding/json"
	"testing"

	"github.com/hpsslab/smile-2dvp/internal/config"
)

// testMessage satisfies the paho message interface for handler tests.
type testMessage struct {
	payload []byte
}

func (m testMessage) Duplicate() bool   { return false }
func (m testMessage) Qos() byte         { return 0 }
func (m testMessage) Retained() bool    { return false }
func (m testMessage) Topic() string     { return "smile/control/test" }
func (m testMessage) MessageID() uint16 { return 0 }
func (m testMessage) Payload() []byte   { return m.payload }
func (m testMessage) Ack()              {}

func decodeCommand(t *testing.T, payload string) Command {
	t.Helper()
	var cmd Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	return cmd
}

// A message the client dispatches after Stop must still land safely in the
// queue instead of panicking on a closed channel.
func TestMessageAfterStopDoesNotPanic(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Topics: config.MQTTTopics{
				Control: "smile/control/test",
				Health:  "smile/health/test",
			},
			QoS: map[string]byte{},
		},
	}
	h := NewHandler(cfg, nil, CommandCallbacks{})

	if err := h.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	h.messageHandler(nil, testMessage{payload: []byte(`{"command":"play"}`)})

	select {
	case cmd := <-h.commands:
		if cmd.Command != "play" {
			t.Errorf("queued command = %q, want play", cmd.Command)
		}
	default:
		t.Fatal("late message was not queued")
	}
}

func TestParseSelectParamsByIdentity(t *testing.T) {
	cmd := decodeCommand(t, `{"command":"select_box","trace_id":"t-1","params":{"identity":"abc","name":"ald device"}}`)

	sel, err := parseSelectParams(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Identity != "abc" {
		t.Errorf("identity = %q, want abc", sel.Identity)
	}
	if sel.Name != "ald device" {
		t.Errorf("name = %q, want 'ald device'", sel.Name)
	}
	if sel.TraceID != "t-1" {
		t.Errorf("trace id = %q, want t-1", sel.TraceID)
	}
	if sel.LabelID != -1 {
		t.Errorf("label id = %d, want -1 when absent", sel.LabelID)
	}
}

func TestParseSelectParamsLabelID(t *testing.T) {
	cmd := decodeCommand(t, `{"command":"select_box","params":{"label_id":7}}`)

	sel, err := parseSelectParams(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.LabelID != 7 {
		t.Errorf("label id = %d, want 7", sel.LabelID)
	}
}

func TestParseSelectParamsEmpty(t *testing.T) {
	cmd := decodeCommand(t, `{"command":"select_box","params":{}}`)

	if _, err := parseSelectParams(cmd); err == nil {
		t.Fatal("expected error for empty selection target")
	}
}

func TestParseTuningParamsPartial(t *testing.T) {
	cmd := decodeCommand(t, `{"command":"set_tuning","params":{"blend_weight":0.5}}`)

	tuning := parseTuningParams(cmd)
	if tuning.BlendWeight == nil || *tuning.BlendWeight != 0.5 {
		t.Errorf("blend weight = %v, want 0.5", tuning.BlendWeight)
	}
	if tuning.HoldDurationS != nil {
		t.Errorf("hold duration should stay nil when absent")
	}
	if tuning.SeekThreshS != nil {
		t.Errorf("seek threshold should stay nil when absent")
	}
}

func TestParseTuningParamsAll(t *testing.T) {
	cmd := decodeCommand(t, `{"command":"set_tuning","params":{"blend_weight":0.8,"hold_duration_s":0.3,"seek_threshold_s":0.05}}`)

	tuning := parseTuningParams(cmd)
	if tuning.BlendWeight == nil || *tuning.BlendWeight != 0.8 {
		t.Errorf("blend weight = %v, want 0.8", tuning.BlendWeight)
	}
	if tuning.HoldDurationS == nil || *tuning.HoldDurationS != 0.3 {
		t.Errorf("hold duration = %v, want 0.3", tuning.HoldDurationS)
	}
	if tuning.SeekThreshS == nil || *tuning.SeekThreshS != 0.05 {
		t.Errorf("seek threshold = %v, want 0.05", tuning.SeekThreshS)
	}
}
