package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpsslab/smile-2dvp/internal/config"
	"github.com/hpsslab/smile-2dvp/internal/control"
	"github.com/hpsslab/smile-2dvp/internal/describe"
	"github.com/hpsslab/smile-2dvp/internal/emitter"
	"github.com/hpsslab/smile-2dvp/internal/focus"
	"github.com/hpsslab/smile-2dvp/internal/frameindex"
	"github.com/hpsslab/smile-2dvp/internal/overlaybus"
	"github.com/hpsslab/smile-2dvp/internal/playback"
	"github.com/hpsslab/smile-2dvp/internal/roidoc"
	"github.com/hpsslab/smile-2dvp/internal/tracker"
	"github.com/hpsslab/smile-2dvp/internal/types"
)

// Service is the main orchestrator: loads the ROI and mapping documents,
// assembles the engine and resolver, and serves the MQTT control plane.
type Service struct {
	cfg *config.Config

	clock    *playback.Clock
	tracker  *tracker.Tracker
	bus      *overlaybus.Bus
	engine   *Engine
	resolver *describe.Resolver

	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	degraded  []string           // load failures carried into health
	runCtx    context.Context    // parent for resolver fetches
	cancelCtx context.CancelFunc // for MQTT shutdown command

	selection *types.Selection // current box selection, nil when none
}

// NewService creates a new service instance from a config file.
func NewService(configPath string) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"video_id", cfg.VideoID,
	)

	tickInterval := 1.0 / float64(cfg.Playback.RefreshHz)

	s := &Service{
		cfg:   cfg,
		clock: playback.NewClock(cfg.Playback.Rate),
		tracker: tracker.New(tracker.Tuning{
			BlendWeight:   cfg.Overlay.BlendWeight,
			HoldDuration:  *cfg.Overlay.HoldDurationS,
			SeekThreshold: cfg.Overlay.SeekThreshS,
			TickInterval:  tickInterval,
		}),
		bus:     overlaybus.New(),
		emitter: emitter.NewMQTTEmitter(cfg),
	}

	return s, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	// Create cancellable context for MQTT shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.runCtx = ctx
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("roisync service starting", "instance_id", s.cfg.InstanceID)

	// Load the ROI detection document. A failure degrades to an empty
	// index rather than refusing to start; the overlay stays blank and
	// the failure is surfaced once over MQTT and in health.
	index := s.loadIndex(ctx)

	// Load the description mapping; same degraded policy.
	mapping, baseURL := s.loadMapping(ctx)

	// Assignments go through the mutex: the health server is already
	// serving and reads these fields from its own goroutine.
	resolver := describe.NewResolver(describe.Config{
		Mapping:      mapping,
		Labels:       s.cfg.Sources.Labels,
		BaseURL:      baseURL,
		FetchTimeout: time.Duration(s.cfg.Describe.FetchTimeoutS) * time.Second,
		OnUpdate: func(update types.DescriptionUpdate) {
			if err := s.emitter.PublishDescription(update); err != nil {
				slog.Error("failed to publish description update",
					"trace_id", update.TraceID,
					"state", update.State,
					"error", err,
				)
			}
		},
	})
	s.mu.Lock()
	s.resolver = resolver
	s.mu.Unlock()

	// Connect MQTT emitter
	if err := s.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	// Surface any load failure, once, now that the broker is reachable
	s.mu.RLock()
	notices := append([]string(nil), s.degraded...)
	s.mu.RUnlock()
	for _, detail := range notices {
		if err := s.emitter.PublishNotice("load_failure", detail); err != nil {
			slog.Error("failed to publish load failure notice", "error", err)
		}
	}

	// Assemble the render loop before the control plane starts so selection
	// commands never observe a half-built service.
	engine := NewEngine(EngineConfig{
		Index:      index,
		Tracker:    s.tracker,
		Thresholds: s.thresholds(),
		Clock:      s.clock,
		Bus:        s.bus,
		Publish:    s.emitter.PublishOverlay,
	})
	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()

	// Setup control plane handler
	handler := control.NewHandler(s.cfg, s.emitter.Client, control.CommandCallbacks{
		OnGetStatus:      s.getStatus,
		OnPlay:           s.play,
		OnPause:          s.pause,
		OnSeek:           s.seek,
		OnTimeSync:       s.timeSync,
		OnSelectBox:      s.selectBox,
		OnClearSelection: s.clearSelection,
		OnSetTuning:      s.setTuning,
		OnGetTuning:      s.getTuning,
		OnShutdown:       s.shutdownViaControl,
	})
	s.mu.Lock()
	s.controlHandler = handler
	s.mu.Unlock()

	if err := handler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	// Start the render loop
	interval := time.Second / time.Duration(s.cfg.Playback.RefreshHz)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.engine.Run(ctx, interval)
	}()

	// Start periodic stats logging
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logStats(ctx, 10*time.Second)
	}()

	slog.Info("roisync service running",
		"frames", indexLen(index),
		"refresh_hz", s.cfg.Playback.RefreshHz,
	)

	// Wait for context cancellation
	<-ctx.Done()

	slog.Info("roisync service run loop exiting")
	return nil
}

// loadIndex fetches and indexes the ROI document, degrading to an empty
// index on failure.
func (s *Service) loadIndex(ctx context.Context) *frameindex.Index {
	frames, err := roidoc.LoadFrames(ctx, nil, s.cfg.Sources.ROIPath)
	if err != nil {
		slog.Error("failed to load roi document, starting with empty data",
			"path", s.cfg.Sources.ROIPath,
			"error", err,
		)
		s.noteDegraded(fmt.Sprintf("roi document: %v", err))
		return frameindex.New(nil)
	}
	return frameindex.New(frames)
}

// loadMapping fetches the description mapping and parses the content base
// URL, degrading to an empty mapping on failure.
func (s *Service) loadMapping(ctx context.Context) (*describe.Mapping, *url.URL) {
	baseURL, err := url.Parse(s.cfg.Sources.ContentBaseURL)
	if err != nil {
		slog.Error("invalid content base url",
			"url", s.cfg.Sources.ContentBaseURL,
			"error", err,
		)
		s.noteDegraded(fmt.Sprintf("content base url: %v", err))
		baseURL = nil
	}

	entries, synonyms, err := roidoc.LoadMapping(ctx, nil, s.cfg.Sources.MappingPath)
	if err != nil {
		slog.Error("failed to load description mapping, selections will resolve to missing",
			"path", s.cfg.Sources.MappingPath,
			"error", err,
		)
		s.noteDegraded(fmt.Sprintf("description mapping: %v", err))
		return describe.NewMapping(nil, nil), baseURL
	}

	mapping := describe.NewMapping(entries, synonyms)
	slog.Info("description mapping loaded", "entries", mapping.Len())
	return mapping, baseURL
}

func (s *Service) noteDegraded(detail string) {
	s.mu.Lock()
	s.degraded = append(s.degraded, detail)
	s.mu.Unlock()
}

func (s *Service) thresholds() focus.Thresholds {
	return focus.Thresholds{
		CenterBandMin:    s.cfg.Focus.CenterBandMin,
		CenterBandMax:    s.cfg.Focus.CenterBandMax,
		SmallArea:        s.cfg.Focus.SmallArea,
		MinConfidence:    s.cfg.Focus.MinConfidence,
		ControlCornerTop: s.cfg.Focus.ControlCornerTop,
		ControlMargin:    s.cfg.Focus.ControlMargin,
		ReservedBand:     s.cfg.Focus.ReservedBand,
	}
}

// Shutdown performs graceful shutdown of all components
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down roisync service")

	// Shutdown sequence:
	// 1. Stop the control plane so no new commands arrive
	s.mu.RLock()
	handler := s.controlHandler
	s.mu.RUnlock()
	if handler != nil {
		slog.Info("stopping control handler")
		if err := handler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 2. Wait for the render loop and stats logger to exit
	slog.Info("waiting for goroutines to finish")
	s.wg.Wait()
	slog.Info("all goroutines finished")

	// 3. Close the overlay bus so local subscribers unblock
	if s.bus != nil {
		s.bus.Close()
	}

	// 4. Disconnect MQTT
	if s.emitter != nil {
		if err := s.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("roisync service shutdown complete", "uptime", uptime)

	return nil
}

// Bus exposes the overlay bus for in-process subscribers.
func (s *Service) Bus() *overlaybus.Bus {
	return s.bus
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
// Returns a default of 5 seconds if not configured.
func (s *Service) ShutdownTimeout() time.Duration {
	timeout := time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

// logStats periodically logs engine and emitter counters.
func (s *Service) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.emitter.Stats()
			slog.Info("service stats",
				"position", s.clock.Position(),
				"playing", s.clock.IsPlaying(),
				"ticks", s.engine.TickCount(),
				"empty_ticks", s.engine.EmptyTickCount(),
				"mqtt_connected", stats.Connected,
				"mqtt_errors", stats.Errors,
			)
		}
	}
}

// --- control plane callbacks ---

func (s *Service) getStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id": s.cfg.InstanceID,
		"video_id":    s.cfg.VideoID,
		"uptime_s":    time.Since(s.started).Seconds(),
		"running":     s.isRunning,
		"playing":     s.clock.IsPlaying(),
		"position":    s.clock.Position(),
		"resolver":    string(s.resolver.State()),
	}
	if s.selection != nil {
		status["selected_identity"] = s.selection.Identity
	}
	if len(s.degraded) > 0 {
		status["degraded"] = append([]string(nil), s.degraded...)
	}
	return status
}

func (s *Service) play() error {
	s.clock.Play()
	return nil
}

func (s *Service) pause() error {
	s.clock.Pause()
	return nil
}

func (s *Service) seek(position float64) error {
	if position < 0 {
		return fmt.Errorf("seek position must be non-negative, got %f", position)
	}
	s.clock.Seek(position)
	return nil
}

func (s *Service) timeSync(position float64, playing bool) error {
	s.clock.Sync(position, playing)
	return nil
}

// selectBox pauses playback, tells the player to pause, and hands the
// selection to the description resolver.
func (s *Service) selectBox(params control.SelectParams) error {
	traceID := params.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	s.clock.Pause()

	if err := s.emitter.PublishPlayerCommand(types.PlayerCommand{
		Action:  "pause",
		TraceID: traceID,
	}); err != nil {
		slog.Error("failed to publish pause command", "trace_id", traceID, "error", err)
	}

	sel := types.Selection{
		TraceID:  traceID,
		Identity: params.Identity,
		LabelID:  params.LabelID,
		Name:     params.Name,
	}

	// An identity-only click carries no name candidates; recover them from
	// the box as last rendered.
	if sel.Identity != "" && sel.Name == "" {
		if box, ok := s.engine.FindBox(sel.Identity); ok {
			sel.Name = box.Name(s.cfg.Sources.Labels)
			if sel.LabelID < 0 {
				sel.LabelID = box.LabelID
			}
		}
	}

	s.mu.Lock()
	s.selection = &sel
	ctx := s.runCtx
	s.mu.Unlock()

	s.resolver.Select(ctx, sel)
	return nil
}

func (s *Service) clearSelection(traceID string) error {
	s.mu.Lock()
	s.selection = nil
	s.mu.Unlock()

	s.resolver.Clear(traceID)
	return nil
}

func (s *Service) setTuning(params control.TuningParams) error {
	tuning := s.tracker.Tuning()

	if params.BlendWeight != nil {
		if *params.BlendWeight <= 0 || *params.BlendWeight > 1 {
			return fmt.Errorf("blend_weight must be in (0,1], got %f", *params.BlendWeight)
		}
		tuning.BlendWeight = *params.BlendWeight
	}
	if params.HoldDurationS != nil {
		if *params.HoldDurationS < 0 {
			return fmt.Errorf("hold_duration_s must be non-negative, got %f", *params.HoldDurationS)
		}
		tuning.HoldDuration = *params.HoldDurationS
	}
	if params.SeekThreshS != nil {
		if *params.SeekThreshS < 0 {
			return fmt.Errorf("seek_threshold_s must be non-negative, got %f", *params.SeekThreshS)
		}
		tuning.SeekThreshold = *params.SeekThreshS
	}

	s.tracker.SetTuning(tuning)

	slog.Info("tracker tuning updated",
		"blend_weight", tuning.BlendWeight,
		"hold_duration_s", tuning.HoldDuration,
		"seek_threshold_s", tuning.SeekThreshold,
	)
	return nil
}

func (s *Service) getTuning() map[string]interface{} {
	tuning := s.tracker.Tuning()
	return map[string]interface{}{
		"blend_weight":     tuning.BlendWeight,
		"hold_duration_s":  tuning.HoldDuration,
		"seek_threshold_s": tuning.SeekThreshold,
	}
}

func (s *Service) shutdownViaControl() error {
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func indexLen(ix *frameindex.Index) int {
	if ix == nil {
		return 0
	}
	return ix.Len()
}
