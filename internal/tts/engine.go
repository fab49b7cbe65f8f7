package tts

import "context"

// ModelRef identifies a model for acquisition.
type ModelRef struct {
	// Path is a registry identifier (namespaced, e.g. "tts_models/...") or a
	// local file path.
	Path       string
	ConfigPath string
	Registry   bool
	Device     string // "cuda" or "cpu"
}

// VoiceParams selects the voice for one synthesis call.
type VoiceParams struct {
	// SpeakerWav, when set, is the path to an existing reference clip and
	// requests voice-cloning mode.
	SpeakerWav string
	// Speaker is a declared speaker identifier. Empty means the model's
	// default voice.
	Speaker  string
	Language string
	Speed    float64
}

// Synthesis is one synthesized utterance.
type Synthesis struct {
	Audio []byte
	// ProcessingTime is the engine-reported synthesis time in seconds.
	// Zero means unreported and is omitted from the wire.
	ProcessingTime float64
}

// Handle is an acquired model instance. Release frees the underlying
// resources, GPU memory included, and must be called exactly once.
type Handle interface {
	Speakers() []string
	Language() string
	Synthesize(ctx context.Context, text string, voice VoiceParams) (*Synthesis, error)
	Release() error
}

// Engine is the inference collaborator behind the Manager. It acquires and
// releases model instances and reports the backend's model catalog. The
// bridge ships two implementations: sherpa (real) and mock.
type Engine interface {
	Name() string
	Acquire(ctx context.Context, ref ModelRef) (Handle, error)
	Catalog(ctx context.Context) ([]string, error)
}

// Backend is the capability surface the bridge dispatches requests to.
// Manager is the single implementation; tests substitute fakes.
type Backend interface {
	Load(ctx context.Context, params LoadParams) (*LoadResult, error)
	Synthesize(ctx context.Context, params SynthesizeParams) (*SynthesizeResult, error)
	Info(ctx context.Context) (*InfoResult, error)
	Unload(ctx context.Context) (*UnloadResult, error)
	ListModels(ctx context.Context) (*ListResult, error)

	// Name is the engine name, used in the ready handshake message.
	Name() string
	// Device is the probe result announced in the ready handshake.
	Device() string
	// Close releases any loaded model at shutdown.
	Close() error
}
