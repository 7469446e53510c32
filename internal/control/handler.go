package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hpsslab/smile-2dvp/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	TraceID string                 `json:"trace_id,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// SelectParams carries the selection target for select_box
type SelectParams struct {
	TraceID  string
	Identity string
	LabelID  int
	Name     string
}

// TuningParams carries optional tracker overrides for set_tuning.
// Nil fields leave the current value untouched.
type TuningParams struct {
	BlendWeight   *float64
	HoldDurationS *float64
	SeekThreshS   *float64
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	callbacks CommandCallbacks
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	// Playback commands
	OnPlay     func() error
	OnPause    func() error
	OnSeek     func(position float64) error
	OnTimeSync func(position float64, playing bool) error
	// Selection commands
	OnSelectBox      func(sel SelectParams) error
	OnClearSelection func(traceID string) error
	// Tracker tuning commands
	OnSetTuning func(t TuningParams) error
	OnGetTuning func() map[string]interface{}
	OnShutdown  func() error
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	// Process commands
	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler. The command channel is left open:
// the client may still dispatch a buffered message after the unsubscribe,
// and processCommands exits on context cancellation anyway.
func (h *Handler) Stop() error {
	topic := h.cfg.MQTT.Topics.Control

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	// Send to processing channel
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) {
	var resp Response
	resp.CommandAck = cmd.Command
	resp.TraceID = cmd.TraceID

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "play":
		if h.callbacks.OnPlay != nil {
			if err := h.callbacks.OnPlay(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"playing": true,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "play not implemented"
		}

	case "pause":
		if h.callbacks.OnPause != nil {
			if err := h.callbacks.OnPause(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"playing": false,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "pause not implemented"
		}

	case "seek":
		if h.callbacks.OnSeek != nil {
			position, ok := cmd.Params["position"].(float64)
			if !ok {
				resp.Status = "error"
				resp.Error = "missing or invalid 'position' parameter (expected float seconds)"
			} else {
				if err := h.callbacks.OnSeek(position); err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else {
					resp.Status = "success"
					resp.Data = map[string]interface{}{
						"position": position,
						"message":  "seek applied",
					}
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "seek not implemented"
		}

	case "time_sync":
		if h.callbacks.OnTimeSync != nil {
			position, ok := cmd.Params["position"].(float64)
			if !ok {
				resp.Status = "error"
				resp.Error = "missing or invalid 'position' parameter (expected float seconds)"
			} else {
				playing, _ := cmd.Params["playing"].(bool)
				if err := h.callbacks.OnTimeSync(position, playing); err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else {
					resp.Status = "success"
					resp.Data = map[string]interface{}{
						"position": position,
						"playing":  playing,
					}
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "time_sync not implemented"
		}

	case "select_box":
		if h.callbacks.OnSelectBox != nil {
			sel, err := parseSelectParams(cmd)
			if err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else if err := h.callbacks.OnSelectBox(sel); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"selected": true,
					"identity": sel.Identity,
					"name":     sel.Name,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "select_box not implemented"
		}

	case "clear_selection":
		if h.callbacks.OnClearSelection != nil {
			if err := h.callbacks.OnClearSelection(cmd.TraceID); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"selected": false,
					"message":  "selection cleared",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "clear_selection not implemented"
		}

	case "set_tuning":
		if h.callbacks.OnSetTuning != nil {
			tuning := parseTuningParams(cmd)
			if err := h.callbacks.OnSetTuning(tuning); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				if h.callbacks.OnGetTuning != nil {
					resp.Data = h.callbacks.OnGetTuning()
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_tuning not implemented"
		}

	case "get_tuning":
		if h.callbacks.OnGetTuning != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetTuning()
		} else {
			resp.Status = "error"
			resp.Error = "get_tuning not implemented"
		}

	case "shutdown":
		if h.callbacks.OnShutdown != nil {
			slog.Warn("shutdown command received via MQTT control plane")
			resp.Status = "success"
			resp.Data = map[string]interface{}{
				"shutdown_initiated": true,
				"message":            "graceful shutdown in progress",
			}
			// Send response BEFORE triggering shutdown
			h.sendResponse(resp)

			// Trigger shutdown asynchronously
			go func() {
				time.Sleep(500 * time.Millisecond) // Brief delay to ensure response is sent
				if err := h.callbacks.OnShutdown(); err != nil {
					slog.Error("shutdown callback failed", "error", err)
				}
			}()
			return // Don't send response again
		} else {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// parseSelectParams extracts a selection target from command params.
// At least one of identity, label_id or name must be present.
func parseSelectParams(cmd Command) (SelectParams, error) {
	sel := SelectParams{TraceID: cmd.TraceID, LabelID: -1}

	if identity, ok := cmd.Params["identity"].(string); ok {
		sel.Identity = identity
	}
	if name, ok := cmd.Params["name"].(string); ok {
		sel.Name = name
	}
	if labelID, ok := cmd.Params["label_id"].(float64); ok {
		sel.LabelID = int(labelID)
	}

	if sel.Identity == "" && sel.Name == "" && sel.LabelID < 0 {
		return SelectParams{}, fmt.Errorf("select_box requires 'identity', 'label_id' or 'name'")
	}
	return sel, nil
}

// parseTuningParams extracts optional tracker overrides. Absent keys stay nil.
func parseTuningParams(cmd Command) TuningParams {
	var t TuningParams
	if v, ok := cmd.Params["blend_weight"].(float64); ok {
		t.BlendWeight = &v
	}
	if v, ok := cmd.Params["hold_duration_s"].(float64); ok {
		t.HoldDurationS = &v
	}
	if v, ok := cmd.Params["seek_threshold_s"].(float64); ok {
		t.SeekThreshS = &v
	}
	return t
}

// sendResponse sends a response to the health topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Health
	qos := h.cfg.MQTT.QoS["health"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
