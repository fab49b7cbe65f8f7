package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/gpu"
	"github.com/SiliconJelly/DubAI/internal/services/model_registry"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// modelState is the loaded-model slot. A nil state means unloaded; a
// non-nil state always has a complete info record and a live handle.
type modelState struct {
	path   string
	info   *ModelInfo
	handle Handle
}

// Manager owns the model lifecycle state machine and implements Backend
// over any Engine. All five operations run under one lock, so the slot
// can never be observed half-updated.
type Manager struct {
	engine Engine
	prober gpu.Prober
	logger *zap.Logger

	lang  string
	limit int

	mu    sync.Mutex
	state *modelState
}

var _ Backend = (*Manager)(nil)

func NewManager(engine Engine, prober gpu.Prober, cfg *config.Config, logger *zap.Logger) *Manager {
	lang := cfg.Language
	if lang == "" {
		lang = config.DefaultLanguage
	}

	limit := cfg.CatalogLimit
	if limit <= 0 {
		limit = config.DefaultCatalogLimit
	}

	return &Manager{
		engine: engine,
		prober: prober,
		logger: logger.Named("tts"),
		lang:   lang,
		limit:  limit,
	}
}

func (m *Manager) Name() string { return m.engine.Name() }

func (m *Manager) Device() string { return gpu.Device(m.prober) }

// Load acquires the requested model. Loading the path that is already
// loaded is a no-op; loading a different path releases the old model
// before acquiring the new one.
func (m *Manager) Load(ctx context.Context, params LoadParams) (*LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != nil && m.state.path == params.ModelPath {
		m.logger.Info("Model already loaded", zap.String("path", params.ModelPath))
		return &LoadResult{
			Success:   true,
			Message:   "Model already loaded",
			ModelInfo: m.state.info,
		}, nil
	}

	device := gpu.ResolveDevice(m.prober, params.UseGPU)
	ref := ModelRef{
		Path:       params.ModelPath,
		ConfigPath: params.ConfigPath,
		Registry:   model_registry.IsRegistryRef(params.ModelPath),
		Device:     device,
	}

	// At most one model may be resident: the old one goes before the new
	// acquisition starts. If that acquisition fails the slot stays empty.
	if m.state != nil {
		m.release()
	}

	handle, err := m.engine.Acquire(ctx, ref)
	if err != nil {
		m.logger.Error("Model load failed", zap.String("path", params.ModelPath), zap.Error(err))
		return nil, fmt.Errorf("Failed to load model: %w", err)
	}

	speakers := handle.Speakers()
	if speakers == nil {
		speakers = []string{}
	}

	info := &ModelInfo{
		Name:     filepath.Base(params.ModelPath),
		Path:     params.ModelPath,
		Device:   device,
		Language: handle.Language(),
		LoadedAt: time.Now().UTC().Format(time.RFC3339),
		Speakers: speakers,
		UseGPU:   device == gpu.DeviceCUDA,
	}

	m.state = &modelState{path: params.ModelPath, info: info, handle: handle}
	m.logger.Info("Model loaded",
		zap.String("path", params.ModelPath),
		zap.String("device", device),
		zap.Strings("speakers", speakers),
	)

	return &LoadResult{
		Success:   true,
		Message:   "Model loaded successfully on " + device,
		ModelInfo: info,
	}, nil
}

// Synthesize renders text with the loaded model. Voice selection: a usable
// speaker reference wins (clone mode), then the first declared speaker,
// then the model's default voice.
func (m *Manager) Synthesize(ctx context.Context, params SynthesizeParams) (*SynthesizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil, fmt.Errorf("%w. Please load a model first.", ErrNotLoaded)
	}

	language := params.Language
	if language == "" {
		language = m.lang
	}

	speed := params.Speed
	if speed == 0 {
		speed = 1.0
	}

	voice := VoiceParams{Language: language, Speed: speed}
	if wav := params.SpeakerWav; wav != "" {
		if usableSpeakerWav(wav) {
			voice.SpeakerWav = wav
		} else {
			m.logger.Warn("Speaker reference not usable, falling back to model voice",
				zap.String("speaker_wav", wav))
		}
	}
	if voice.SpeakerWav == "" {
		if speakers := m.state.info.Speakers; len(speakers) > 0 {
			voice.Speaker = speakers[0]
		}
	}

	synthesis, err := m.state.handle.Synthesize(ctx, params.Text, voice)
	if err != nil {
		m.logger.Error("Synthesis failed", zap.Error(err))
		return nil, fmt.Errorf("Failed to synthesize speech: %w", err)
	}

	return &SynthesizeResult{
		Success:        true,
		AudioData:      base64.StdEncoding.EncodeToString(synthesis.Audio),
		AudioLength:    len(synthesis.Audio),
		TextLength:     utf8.RuneCountInString(params.Text),
		Language:       language,
		SpeakerWav:     params.SpeakerWav,
		ProcessingTime: synthesis.ProcessingTime,
	}, nil
}

func (m *Manager) Info(ctx context.Context) (*InfoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil, ErrNotLoaded
	}

	return &InfoResult{Success: true, ModelInfo: m.state.info}, nil
}

// Unload releases the loaded model. Unloading when nothing is loaded is
// still a success.
func (m *Manager) Unload(ctx context.Context) (*UnloadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return &UnloadResult{Success: true, Message: "No model was loaded"}, nil
	}

	if err := m.release(); err != nil {
		return nil, fmt.Errorf("Failed to unload model: %w", err)
	}

	return &UnloadResult{Success: true, Message: "Model unloaded successfully"}, nil
}

func (m *Manager) ListModels(ctx context.Context) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	models, err := m.engine.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to list models: %w", err)
	}

	all := models
	if len(all) > m.limit {
		all = all[:m.limit]
	}

	return &ListResult{
		Success:      true,
		AllModels:    all,
		BanglaModels: FilterByLanguage(models, m.lang),
		TotalModels:  len(models),
	}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.release()
}

// release empties the model slot first and frees the engine resources
// second: even a failing release leaves the bridge consistently unloaded.
func (m *Manager) release() error {
	state := m.state
	m.state = nil
	if state == nil {
		return nil
	}

	err := state.handle.Release()
	if err != nil {
		m.logger.Error("Engine release failed", zap.String("path", state.path), zap.Error(err))
	} else {
		m.logger.Info("Model released", zap.String("path", state.path))
	}

	return err
}

// usableSpeakerWav reports whether the reference clip can drive cloning:
// the file must exist and actually contain audio.
func usableSpeakerWav(path string) bool {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}

	return strings.HasPrefix(mime.String(), "audio/")
}
