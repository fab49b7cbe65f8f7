package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/gpu"
	"github.com/SiliconJelly/DubAI/internal/services/model_registry"
	"github.com/SiliconJelly/DubAI/internal/utils/pathutil"

	"github.com/google/uuid"
	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"go.uber.org/zap"
)

// SherpaEngine runs VITS voices through sherpa-onnx. An acquired handle
// keeps the model resident until released, so repeated synthesis calls
// pay the load cost once.
type SherpaEngine struct {
	cfg      *config.Config
	registry *model_registry.Manager
	logger   *zap.Logger
}

var _ Engine = (*SherpaEngine)(nil)

func NewSherpaEngine(cfg *config.Config, registry *model_registry.Manager, logger *zap.Logger) *SherpaEngine {
	return &SherpaEngine{
		cfg:      cfg,
		registry: registry,
		logger:   logger.Named("sherpa"),
	}
}

func (e *SherpaEngine) Name() string { return "sherpa-onnx" }

func (e *SherpaEngine) Catalog(ctx context.Context) ([]string, error) {
	return e.registry.Catalog(), nil
}

func (e *SherpaEngine) Acquire(ctx context.Context, ref ModelRef) (Handle, error) {
	files, err := e.resolveFiles(ctx, ref)
	if err != nil {
		return nil, err
	}

	provider := "cpu"
	if ref.Device == gpu.DeviceCUDA {
		provider = "cuda"
	}

	numThreads := e.cfg.NumThreads
	if numThreads <= 0 {
		numThreads = config.DefaultNumThreads
	}

	ttsConfig := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:       files.model,
				Tokens:      files.tokens,
				Lexicon:     files.lexicon,
				DataDir:     files.dataDir,
				NoiseScale:  0.667,
				NoiseScaleW: 0.8,
				LengthScale: 1.0,
			},
			NumThreads: numThreads,
			Provider:   provider,
		},
		MaxNumSentences: 1,
	}

	start := time.Now()
	offlineTts := sherpa.NewOfflineTts(&ttsConfig)
	if offlineTts == nil {
		return nil, fmt.Errorf("sherpa-onnx rejected model %q", files.model)
	}

	e.logger.Info("model loaded",
		zap.String("model", files.model),
		zap.String("provider", provider),
		zap.Duration("took", time.Since(start)))

	return &sherpaHandle{
		tts:      offlineTts,
		engine:   e,
		language: files.language,
		speakers: declaredSpeakers(offlineTts.NumSpeakers()),
	}, nil
}

// vitsFiles is the resolved on-disk layout of one VITS voice.
type vitsFiles struct {
	model    string
	tokens   string
	lexicon  string
	dataDir  string
	language string
}

func (e *SherpaEngine) resolveFiles(ctx context.Context, ref ModelRef) (*vitsFiles, error) {
	if ref.Registry {
		local, err := e.registry.Materialize(ctx, ref.Path)
		if err != nil {
			return nil, err
		}
		files, err := locateVits(local, ref.ConfigPath)
		if err != nil {
			return nil, err
		}
		if entry, ok := e.registry.Lookup(ref.Path); ok && entry.Language != "" {
			files.language = entry.Language
		}
		if files.language == "" {
			files.language = inferLanguage(ref.Path)
		}
		return files, nil
	}

	if !pathExists(ref.Path) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, ref.Path)
	}
	if ref.ConfigPath != "" && !pathExists(ref.ConfigPath) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, ref.ConfigPath)
	}

	files, err := locateVits(ref.Path, ref.ConfigPath)
	if err != nil {
		return nil, err
	}
	files.language = inferLanguage(ref.Path)
	return files, nil
}

// locateVits resolves the VITS file layout at path, which may be the model
// directory or the .onnx file itself. tokensOverride, when set, replaces
// the default tokens.txt next to the model.
func locateVits(path, tokensOverride string) (*vitsFiles, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	var files vitsFiles
	dir := path
	if st.IsDir() {
		model, err := findModelFile(path)
		if err != nil {
			return nil, err
		}
		files.model = model
	} else {
		files.model = path
		dir = filepath.Dir(path)
	}

	files.tokens = filepath.Join(dir, "tokens.txt")
	if tokensOverride != "" {
		files.tokens = tokensOverride
	}
	if !pathExists(files.tokens) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, files.tokens)
	}

	if p := filepath.Join(dir, "lexicon.txt"); pathExists(p) {
		files.lexicon = p
	}
	if p := filepath.Join(dir, "espeak-ng-data"); pathExists(p) {
		files.dataDir = p
	}

	return &files, nil
}

// findModelFile picks the .onnx weights inside dir, preferring the
// canonical model.onnx and falling back to int8-quantized variants only
// when no full-precision file exists.
func findModelFile(dir string) (string, error) {
	canonical := filepath.Join(dir, "model.onnx")
	if pathExists(canonical) {
		return canonical, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, dir)
	}

	var quantized string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		if strings.HasSuffix(name, ".int8.onnx") {
			if quantized == "" {
				quantized = filepath.Join(dir, name)
			}
			continue
		}
		return filepath.Join(dir, name), nil
	}

	if quantized != "" {
		return quantized, nil
	}
	return "", fmt.Errorf("%w: no .onnx file in %s", ErrModelNotFound, dir)
}

// declaredSpeakers converts sherpa's speaker count to the identifiers
// accepted by the speaker parameter. Single-voice models declare none.
func declaredSpeakers(n int) []string {
	if n <= 1 {
		return []string{}
	}
	speakers := make([]string, n)
	for i := range speakers {
		speakers[i] = strconv.Itoa(i)
	}
	return speakers
}

type sherpaHandle struct {
	tts      *sherpa.OfflineTts
	engine   *SherpaEngine
	language string
	speakers []string
}

var _ Handle = (*sherpaHandle)(nil)

func (h *sherpaHandle) Speakers() []string { return h.speakers }

func (h *sherpaHandle) Language() string { return h.language }

func (h *sherpaHandle) Synthesize(ctx context.Context, text string, voice VoiceParams) (*Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if voice.SpeakerWav != "" {
		return nil, fmt.Errorf("voice cloning from %s is not supported by the sherpa-onnx backend", voice.SpeakerWav)
	}

	sid := 0
	if voice.Speaker != "" {
		id, err := strconv.Atoi(voice.Speaker)
		if err != nil {
			return nil, fmt.Errorf("unknown speaker %q", voice.Speaker)
		}
		sid = id
	}

	speed := float32(voice.Speed)
	if speed <= 0 {
		speed = 1.0
	}

	start := time.Now()
	audio := h.tts.Generate(text, sid, speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("synthesis produced no audio")
	}

	wav, err := h.stageWav(audio)
	if err != nil {
		return nil, err
	}

	h.engine.logger.Debug("synthesized",
		zap.Int("samples", len(audio.Samples)),
		zap.Int("sample_rate", audio.SampleRate),
		zap.Duration("took", time.Since(start)))

	return &Synthesis{Audio: wav}, nil
}

// stageWav writes the generated samples to a scratch WAV and reads it
// back, so callers receive the same container bytes a file-based
// pipeline would produce.
func (h *sherpaHandle) stageWav(audio *sherpa.GeneratedAudio) ([]byte, error) {
	tempDir := h.engine.cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := pathutil.EnsureDir(tempDir); err != nil {
		return nil, fmt.Errorf("failed to prepare temp dir: %w", err)
	}

	path := filepath.Join(tempDir, "tts-"+uuid.NewString()+".wav")
	defer os.Remove(path)

	if ok := audio.Save(path); !ok {
		return nil, fmt.Errorf("failed to write %s", path)
	}

	return os.ReadFile(path)
}

func (h *sherpaHandle) Release() error {
	if h.tts != nil {
		sherpa.DeleteOfflineTts(h.tts)
		h.tts = nil
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
