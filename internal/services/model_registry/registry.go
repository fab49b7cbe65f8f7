package model_registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/utils/pathutil"
	"github.com/SiliconJelly/DubAI/internal/utils/randutil"

	"github.com/cozy-creator/hf-hub/hub"
	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// Entry is one curated catalog model.
type Entry struct {
	ID       string
	Source   string
	Language string

	// Files lists the file names fetched for direct-URL sources, relative
	// to the Source base URL. Unused for hf: sources, where the whole
	// snapshot is taken.
	Files []string

	// Blake3 optionally pins the digest of the first file.
	Blake3 string
}

// builtinCatalog is the registry shipped with the bridge: DubAI's published
// Bangla voices first, then common stock voices. config.yaml entries are
// merged over it.
var builtinCatalog = []Entry{
	{ID: "tts_models/bn/dubai/vits-bangla-male", Source: "hf:SiliconJelly/vits-bangla-male", Language: "bn"},
	{ID: "tts_models/bn/dubai/vits-bangla-female", Source: "hf:SiliconJelly/vits-bangla-female", Language: "bn"},
	{ID: "tts_models/bn/mms/vits-bengali", Source: "hf:SiliconJelly/vits-mms-ben", Language: "bn"},
	{ID: "tts_models/en/ljspeech/vits-ljs", Source: "hf:csukuangfj/vits-ljs", Language: "en"},
	{ID: "tts_models/en/vctk/vits-vctk", Source: "hf:csukuangfj/vits-vctk", Language: "en"},
	{ID: "tts_models/en/piper/vits-amy-low", Source: "hf:csukuangfj/vits-piper-en_US-amy-low", Language: "en"},
}

// Manager resolves registry identifiers to local model directories,
// downloading and caching them as needed.
type Manager struct {
	cfg       *config.Config
	hubClient *hub.Client
	logger    *zap.Logger

	catalog map[string]Entry
	order   []string
}

func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	hubClient := hub.DefaultClient()

	cacheDir := ""
	if cfg.Registry != nil {
		cacheDir = cfg.Registry.CacheDir
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(cfg.ModelsDir, "hf")
	}
	hubClient.CacheDir = cacheDir

	m := &Manager{
		cfg:       cfg,
		hubClient: hubClient,
		logger:    logger.Named("model_registry"),
		catalog:   make(map[string]Entry),
	}

	for _, entry := range builtinCatalog {
		m.add(entry)
	}

	ids := make([]string, 0, len(cfg.Models))
	for id := range cfg.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		me := cfg.Models[id]
		m.add(Entry{
			ID:       id,
			Source:   me.Source,
			Language: me.Language,
			Files:    me.Files,
			Blake3:   me.Blake3,
		})
	}

	if token := m.hfToken(); token != "" {
		m.logger.Info("Using Hugging Face auth token", zap.String("token", randutil.MaskString(token, 4, 2)))
	}

	return m
}

func (m *Manager) add(entry Entry) {
	if _, exists := m.catalog[entry.ID]; !exists {
		m.order = append(m.order, entry.ID)
	}
	m.catalog[entry.ID] = entry
}

func (m *Manager) hfToken() string {
	if m.cfg.Registry == nil {
		return ""
	}
	return m.cfg.Registry.HFToken
}

// Catalog returns every registry identifier in stable order.
func (m *Manager) Catalog() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

func (m *Manager) Lookup(id string) (Entry, bool) {
	entry, ok := m.catalog[id]
	return entry, ok
}

// Materialize resolves a registry reference to a local directory containing
// the model files, downloading them on first use. Ad-hoc "hf:" references
// that are not in the catalog are accepted as-is.
func (m *Manager) Materialize(ctx context.Context, id string) (string, error) {
	entry, ok := m.catalog[id]
	if !ok {
		if !IsRegistryRef(id) {
			return "", fmt.Errorf("unknown registry model: %s", id)
		}
		entry = Entry{ID: id, Source: id}
	}

	source, err := ParseSource(entry.Source)
	if err != nil {
		return "", err
	}

	switch source.Type {
	case SourceTypeHuggingface:
		return m.materializeHuggingface(ctx, entry, source)
	case SourceTypeDirect:
		return m.materializeDirect(ctx, entry, source)
	case SourceTypeFile:
		if _, err := os.Stat(source.Location); err != nil {
			return "", fmt.Errorf("local model source missing: %s", source.Location)
		}
		return source.Location, nil
	default:
		return "", fmt.Errorf("unsupported source type: %s", source.Type)
	}
}

// IsDownloaded reports whether the model is already materialized locally.
func (m *Manager) IsDownloaded(id string) bool {
	entry, ok := m.catalog[id]
	if !ok {
		return false
	}

	source, err := ParseSource(entry.Source)
	if err != nil {
		return false
	}

	switch source.Type {
	case SourceTypeHuggingface:
		_, err := m.snapshotDir(source.Location)
		return err == nil
	case SourceTypeDirect:
		dir := m.directDir(entry)
		return anyFileIn(dir)
	case SourceTypeFile:
		_, err := os.Stat(source.Location)
		return err == nil
	}

	return false
}

// Prefetch downloads the given registry models on a bounded worker pool.
// Used by the download subcommand and the optional run warmup.
func (m *Manager) Prefetch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		m.logger.Info("No models to prefetch")
		return nil
	}

	workers := m.cfg.MaxDownloadWorkers
	if workers <= 0 {
		workers = config.DefaultMaxDownloadWorkers
	}

	wp := workerpool.New(workers)
	errorChan := make(chan error, len(ids))

	for _, id := range ids {
		id := id
		wp.Submit(func() {
			if m.IsDownloaded(id) {
				m.logger.Info("Model already downloaded", zap.String("model_id", id))
				return
			}

			m.logger.Info("Downloading model", zap.String("model_id", id))
			if _, err := m.Materialize(ctx, id); err != nil {
				errorChan <- fmt.Errorf("failed to download model %s: %w", id, err)
			}
		})
	}

	wp.StopWait()
	close(errorChan)

	for err := range errorChan {
		if err != nil {
			return fmt.Errorf("error during model prefetch: %w", err)
		}
	}

	return nil
}

func (m *Manager) directDir(entry Entry) string {
	return filepath.Join(m.cfg.ModelsDir, pathutil.SafeName(entry.ID))
}

func anyFileIn(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	for _, e := range entries {
		if !e.IsDir() {
			return true
		}
	}
	return false
}
