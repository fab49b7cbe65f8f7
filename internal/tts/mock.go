package tts

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/SiliconJelly/DubAI/internal/utils/hashutil"
)

// MockEngine simulates the inference engine for development and tests. It
// needs no model runtime and no weights, accepts any identifier, and
// produces deterministic audio so pipelines can assert on output.
type MockEngine struct {
	catalog []string
}

var _ Engine = (*MockEngine)(nil)

func NewMockEngine() *MockEngine {
	return &MockEngine{
		catalog: []string{
			"tts_models/multilingual/multi-dataset/xtts_v2",
			"tts_models/en/ljspeech/tacotron2-DDC",
			"tts_models/en/ljspeech/glow-tts",
			"tts_models/bn/custom/bangla-model-v1",
			"tts_models/bn/custom/bangla-model-v2",
		},
	}
}

func (e *MockEngine) Name() string { return "mock" }

func (e *MockEngine) Acquire(ctx context.Context, ref ModelRef) (Handle, error) {
	// Simulated load latency.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &mockHandle{ref: ref}, nil
}

func (e *MockEngine) Catalog(ctx context.Context) ([]string, error) {
	models := make([]string, len(e.catalog))
	copy(models, e.catalog)
	return models, nil
}

type mockHandle struct {
	ref ModelRef
}

var _ Handle = (*mockHandle)(nil)

func (h *mockHandle) Speakers() []string { return []string{"default_speaker"} }

func (h *mockHandle) Language() string { return inferLanguage(h.ref.Path) }

func (h *mockHandle) Synthesize(ctx context.Context, text string, voice VoiceParams) (*Synthesis, error) {
	// 10ms per character of simulated work; the report stays uncapped
	// while the actual sleep is bounded.
	simulated := float64(utf8.RuneCountInString(text)) * 0.01
	delay := time.Duration(simulated * float64(time.Second))
	if delay > 500*time.Millisecond {
		delay = 500 * time.Millisecond
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Synthesis{
		Audio:          mockAudio(text),
		ProcessingTime: simulated,
	}, nil
}

func (h *mockHandle) Release() error { return nil }

// mockAudio derives a non-silent byte pattern from the text: sized as if
// 0.1s of 22.05kHz audio per character, capped at 1000 bytes, seeded so
// distinct texts produce distinguishably different output.
func mockAudio(text string) []byte {
	chars := utf8.RuneCountInString(text)
	samples := int(float64(chars) * 0.1 * 22050)
	if samples > 1000 {
		samples = 1000
	}

	seed := hashutil.Seed64([]byte(text))
	audio := make([]byte, samples)
	for i := range audio {
		audio[i] = byte((uint64(i) + seed) % 256)
	}

	return audio
}
