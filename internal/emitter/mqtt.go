// Package emitter publishes the engine's outputs to the MQTT broker: per
// tick overlay snapshots for the rendering surface, description resolver
// transitions, commands for the player frontend and health payloads.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hpsslab/smile-2dvp/internal/config"
	"github.com/hpsslab/smile-2dvp/internal/types"
)

// MQTTEmitter publishes engine outputs to the MQTT broker
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for the control plane

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
			"auto_reconnect", "enabled")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
			"max_retry_interval", "30s",
			"action", "waiting for automatic reconnection")
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishOverlay publishes one tick's overlay snapshot. QoS 0: a missed
// snapshot is healed by the next tick anyway.
func (e *MQTTEmitter) PublishOverlay(snap types.OverlaySnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal overlay snapshot: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Overlay, e.getQoS("overlay"), payload)
}

// PublishDescription publishes a resolver state transition.
func (e *MQTTEmitter) PublishDescription(update types.DescriptionUpdate) error {
	payload, err := update.ToJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal description update: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Descriptions, e.getQoS("descriptions"), payload)
}

// PublishPlayerCommand publishes a command for the player frontend.
func (e *MQTTEmitter) PublishPlayerCommand(cmd types.PlayerCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal player command: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Player, e.getQoS("player"), payload)
}

// PublishHealth publishes a health message
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	return e.publish(e.cfg.MQTT.Topics.Health, e.getQoS("health"), payload)
}

// PublishNotice publishes a one-shot operational notice (e.g. the single
// degraded-start warning after a document load failure).
func (e *MQTTEmitter) PublishNotice(event, detail string) error {
	payload, err := json.Marshal(map[string]string{
		"event":     event,
		"detail":    detail,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Health, e.getQoS("health"), payload)
}

// publish sends a payload and tracks per-topic stats.
func (e *MQTTEmitter) publish(topic string, qos byte, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("payload published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)

	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64)
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// getQoS returns the QoS level for a given payload kind
func (e *MQTTEmitter) getQoS(kind string) byte {
	if qos, ok := e.cfg.MQTT.QoS[kind]; ok {
		return qos
	}
	return 0 // default QoS 0
}
