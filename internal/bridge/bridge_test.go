package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/gpu"
	"github.com/SiliconJelly/DubAI/internal/tts"
)

type fakeBackend struct {
	name   string
	device string

	loadResult   *tts.LoadResult
	loadErr      error
	synthResult  *tts.SynthesizeResult
	synthErr     error
	infoResult   *tts.InfoResult
	infoErr      error
	unloadResult *tts.UnloadResult
	unloadErr    error
	listResult   *tts.ListResult
	listErr      error

	loads  []tts.LoadParams
	synths []tts.SynthesizeParams
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		name:         "fake",
		device:       "cpu",
		loadResult:   &tts.LoadResult{Success: true, Message: "Model loaded successfully on cpu"},
		synthResult:  &tts.SynthesizeResult{Success: true, AudioData: "AAAA", AudioLength: 3},
		infoResult:   &tts.InfoResult{Success: true},
		unloadResult: &tts.UnloadResult{Success: true, Message: "Model unloaded successfully"},
		listResult:   &tts.ListResult{Success: true, AllModels: []string{}, BanglaModels: []string{}},
	}
}

func (f *fakeBackend) Load(_ context.Context, params tts.LoadParams) (*tts.LoadResult, error) {
	f.loads = append(f.loads, params)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loadResult, nil
}

func (f *fakeBackend) Synthesize(_ context.Context, params tts.SynthesizeParams) (*tts.SynthesizeResult, error) {
	f.synths = append(f.synths, params)
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.synthResult, nil
}

func (f *fakeBackend) Info(context.Context) (*tts.InfoResult, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.infoResult, nil
}

func (f *fakeBackend) Unload(context.Context) (*tts.UnloadResult, error) {
	if f.unloadErr != nil {
		return nil, f.unloadErr
	}
	return f.unloadResult, nil
}

func (f *fakeBackend) ListModels(context.Context) (*tts.ListResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResult, nil
}

func (f *fakeBackend) Name() string   { return f.name }
func (f *fakeBackend) Device() string { return f.device }
func (f *fakeBackend) Close() error   { return nil }

// runLines feeds input through a bridge and returns every emitted line as
// a raw key/value map, so tests can assert on key presence exactly.
func runLines(t *testing.T, backend tts.Backend, input string) []map[string]json.RawMessage {
	t.Helper()

	var out bytes.Buffer
	b := New(backend, zap.NewNop(), WithStreams(strings.NewReader(input), &out))
	require.NoError(t, b.Run(context.Background()))

	return decodeLines(t, out.Bytes())
}

func decodeLines(t *testing.T, raw []byte) []map[string]json.RawMessage {
	t.Helper()

	var lines []map[string]json.RawMessage
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(line, &m))
		lines = append(lines, m)
	}
	return lines
}

func fieldString(t *testing.T, m map[string]json.RawMessage, key string) string {
	t.Helper()

	var s string
	require.NoError(t, json.Unmarshal(m[key], &s), "field %q", key)
	return s
}

func fieldBool(t *testing.T, m map[string]json.RawMessage, key string) bool {
	t.Helper()

	var b bool
	require.NoError(t, json.Unmarshal(m[key], &b), "field %q", key)
	return b
}

func fieldResult(t *testing.T, m map[string]json.RawMessage) map[string]any {
	t.Helper()

	var r map[string]any
	require.NoError(t, json.Unmarshal(m["result"], &r))
	return r
}

func TestRunHandshakeAndShutdown(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), "")
	require.Len(t, lines, 2)

	ready := lines[0]
	assert.Equal(t, "ready", fieldString(t, ready, "id"))
	assert.True(t, fieldBool(t, ready, "success"))
	assert.Equal(t, "DubAI TTS bridge ready", fieldString(t, ready, "message"))
	assert.Equal(t, "cpu", fieldString(t, ready, "device"))
	_, hasResult := ready["result"]
	assert.False(t, hasResult)

	shutdown := lines[1]
	assert.Equal(t, "shutdown", fieldString(t, shutdown, "id"))
	assert.True(t, fieldBool(t, shutdown, "success"))
	assert.Equal(t, "DubAI TTS bridge shutting down", fieldString(t, shutdown, "message"))
	_, hasDevice := shutdown["device"]
	assert.False(t, hasDevice)
}

func TestReadyMessageInMockMode(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.name = "mock"

	lines := runLines(t, backend, "")
	require.NotEmpty(t, lines)
	assert.Equal(t, "DubAI TTS bridge ready (mock mode)", fieldString(t, lines[0], "message"))
}

func TestBlankLinesSkipped(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), "\n   \n\t\n")
	assert.Len(t, lines, 2)
}

func TestParseErrorThenRecovery(t *testing.T) {
	t.Parallel()

	input := "{not json}\n" +
		`{"id":"1","method":"unload_model","params":{}}` + "\n"
	lines := runLines(t, newFakeBackend(), input)
	require.Len(t, lines, 4)

	notice := lines[1]
	assert.Equal(t, "parse_error", fieldString(t, notice, "id"))
	assert.False(t, fieldBool(t, notice, "success"))
	assert.True(t, strings.HasPrefix(fieldString(t, notice, "error"), "Failed to parse JSON: "))
	_, hasResult := notice["result"]
	assert.False(t, hasResult, "framing notices carry no result key")

	response := lines[2]
	assert.Equal(t, "1", fieldString(t, response, "id"))
	assert.True(t, fieldBool(t, response, "success"))
}

func TestNonObjectJSONLine(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), "[1,2,3]\n")
	require.Len(t, lines, 3)

	notice := lines[1]
	assert.Equal(t, "unknown", fieldString(t, notice, "id"))
	assert.False(t, fieldBool(t, notice, "success"))
	assert.True(t, strings.HasPrefix(fieldString(t, notice, "error"), "Unexpected error: "))
	_, hasResult := notice["result"]
	assert.False(t, hasResult)
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), `{"id":"9","method":"frobnicate","params":{}}`+"\n")
	require.Len(t, lines, 3)

	response := lines[1]
	assert.Equal(t, "9", fieldString(t, response, "id"))
	assert.False(t, fieldBool(t, response, "success"))
	assert.Equal(t, "Unknown method: frobnicate", fieldString(t, response, "error"))
	assert.Equal(t, "null", string(response["result"]), "result key present and null")
}

func TestEmptyMethod(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), `{"id":"9"}`+"\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Unknown method: ", fieldString(t, lines[1], "error"))
}

func TestMissingIDUsesUnknown(t *testing.T) {
	t.Parallel()

	lines := runLines(t, newFakeBackend(), `{"method":"unload_model"}`+"\n")
	require.Len(t, lines, 3)

	response := lines[1]
	assert.Equal(t, "unknown", fieldString(t, response, "id"))
	assert.True(t, fieldBool(t, response, "success"))
}

func TestEnvelopeShape(t *testing.T) {
	t.Parallel()

	input := `{"id":"ok","method":"unload_model"}` + "\n" +
		`{"id":"bad","method":"nope"}` + "\n"
	lines := runLines(t, newFakeBackend(), input)
	require.Len(t, lines, 4)

	success := lines[1]
	require.Contains(t, success, "result")
	require.Contains(t, success, "error")
	assert.NotEqual(t, "null", string(success["result"]))
	assert.Equal(t, "null", string(success["error"]))

	failure := lines[2]
	require.Contains(t, failure, "result")
	require.Contains(t, failure, "error")
	assert.Equal(t, "null", string(failure["result"]))
	assert.NotEqual(t, "null", string(failure["error"]))
}

func TestInvalidParamsEchoesID(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	lines := runLines(t, backend, `{"id":"7","method":"load_model","params":{}}`+"\n")
	require.Len(t, lines, 3)

	response := lines[1]
	assert.Equal(t, "7", fieldString(t, response, "id"))
	assert.False(t, fieldBool(t, response, "success"))
	assert.Equal(t, "Invalid params: model_path is required", fieldString(t, response, "error"))
	assert.Empty(t, backend.loads, "backend must not see rejected params")
}

func TestParamsReachBackend(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	input := `{"id":"1","method":"load_model","params":{"model_path":"/m.onnx","use_gpu":false}}` + "\n" +
		`{"id":"2","method":"synthesize_speech","params":{"text":"hi","speed":2}}` + "\n"
	runLines(t, backend, input)

	require.Len(t, backend.loads, 1)
	assert.Equal(t, "/m.onnx", backend.loads[0].ModelPath)
	assert.False(t, backend.loads[0].UseGPU)

	require.Len(t, backend.synths, 1)
	assert.Equal(t, "hi", backend.synths[0].Text)
	assert.Equal(t, 2.0, backend.synths[0].Speed)
}

func TestBackendErrorOnWire(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.loadErr = errors.New("Failed to load model: weights corrupt")

	lines := runLines(t, backend, `{"id":"1","method":"load_model","params":{"model_path":"/m.onnx"}}`+"\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Failed to load model: weights corrupt", fieldString(t, lines[1], "error"))
}

func TestCancelEmitsShutdown(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	b := New(newFakeBackend(), zap.NewNop(), WithStreams(pr, &out))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, b.Run(ctx))

	lines := decodeLines(t, out.Bytes())
	require.Len(t, lines, 2)
	assert.Equal(t, "ready", fieldString(t, lines[0], "id"))
	assert.Equal(t, "shutdown", fieldString(t, lines[1], "id"))
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadErrorEmitsFatal(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	b := New(newFakeBackend(), zap.NewNop(), WithStreams(failingReader{err: errors.New("stdin gone")}, &out))
	require.Error(t, b.Run(context.Background()))

	lines := decodeLines(t, out.Bytes())
	require.Len(t, lines, 2)

	fatal := lines[1]
	assert.Equal(t, "fatal_error", fieldString(t, fatal, "id"))
	assert.False(t, fieldBool(t, fatal, "success"))
	assert.Equal(t, "Fatal error: stdin gone", fieldString(t, fatal, "error"))
	_, hasResult := fatal["result"]
	assert.False(t, hasResult)
}

func TestOversizedLineSkippedAndLoopContinues(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	big := `{"id":"big","method":"synthesize_speech","params":{"text":"` + strings.Repeat("x", maxLineBytes) + `"}}`
	input := big + "\n" + `{"id":"2","method":"unload_model"}` + "\n"

	lines := runLines(t, backend, input)
	require.Len(t, lines, 4)

	notice := lines[1]
	assert.Equal(t, "parse_error", fieldString(t, notice, "id"))
	assert.False(t, fieldBool(t, notice, "success"))
	assert.Equal(t, "Failed to parse JSON: request line exceeds 1048576 bytes", fieldString(t, notice, "error"))
	_, hasResult := notice["result"]
	assert.False(t, hasResult)
	assert.Empty(t, backend.synths, "oversized request must not reach the backend")

	response := lines[2]
	assert.Equal(t, "2", fieldString(t, response, "id"))
	assert.True(t, fieldBool(t, response, "success"))
}

func TestOversizedFinalLineStillShutsDown(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("y", maxLineBytes+2) // no trailing newline
	lines := runLines(t, newFakeBackend(), input)
	require.Len(t, lines, 3)

	assert.Equal(t, "parse_error", fieldString(t, lines[1], "id"))
	assert.Equal(t, "shutdown", fieldString(t, lines[2], "id"))
}

type panickyBackend struct{ *fakeBackend }

func (p panickyBackend) Info(context.Context) (*tts.InfoResult, error) { panic("boom") }

func TestHandlerPanicBecomesResponse(t *testing.T) {
	t.Parallel()

	backend := panickyBackend{newFakeBackend()}
	lines := runLines(t, backend, `{"id":"1","method":"get_model_info"}`+"\n"+
		`{"id":"2","method":"unload_model"}`+"\n")
	require.Len(t, lines, 4)

	response := lines[1]
	assert.Equal(t, "1", fieldString(t, response, "id"))
	assert.False(t, fieldBool(t, response, "success"))
	assert.Equal(t, "Unexpected error: boom", fieldString(t, response, "error"))

	// The loop survives the panic.
	assert.True(t, fieldBool(t, lines[2], "success"))
}

// TestScenarioMockEngine drives the real state machine through the wire
// with the mock engine behind it: load, synthesize, inspect, unload, then
// verify the guards and the catalog views.
func TestScenarioMockEngine(t *testing.T) {
	t.Parallel()

	backend := tts.NewManager(tts.NewMockEngine(), gpu.Static(false), &config.Config{}, zap.NewNop())

	input := `{"id":"1","method":"load_model","params":{"model_path":"tts_models/bn/custom/bangla-model-v1"}}` + "\n" +
		`{"id":"2","method":"synthesize_speech","params":{"text":"hello"}}` + "\n" +
		`{"id":"3","method":"get_model_info"}` + "\n" +
		`{"id":"4","method":"unload_model"}` + "\n" +
		`{"id":"5","method":"synthesize_speech","params":{"text":"hello"}}` + "\n" +
		`{"id":"6","method":"get_model_info"}` + "\n" +
		`{"id":"7","method":"list_available_models"}` + "\n"

	lines := runLines(t, backend, input)
	require.Len(t, lines, 9)

	load := lines[1]
	require.True(t, fieldBool(t, load, "success"))
	loadResult := fieldResult(t, load)
	assert.Equal(t, "Model loaded successfully on cpu", loadResult["message"])
	info, ok := loadResult["model_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bangla-model-v1", info["name"])
	assert.Equal(t, "cpu", info["device"])
	assert.Equal(t, "bn", info["language"])
	assert.Equal(t, false, info["use_gpu"])
	assert.Equal(t, []any{"default_speaker"}, info["speakers"])

	synth := lines[2]
	require.True(t, fieldBool(t, synth, "success"))
	synthResult := fieldResult(t, synth)
	assert.EqualValues(t, 5, synthResult["text_length"])
	assert.Equal(t, "bn", synthResult["language"])
	audio, err := base64.StdEncoding.DecodeString(synthResult["audio_data"].(string))
	require.NoError(t, err)
	assert.Len(t, audio, 1000)
	assert.EqualValues(t, 1000, synthResult["audio_length"])
	assert.InDelta(t, 0.05, synthResult["processing_time"], 1e-9)

	modelInfo := lines[3]
	require.True(t, fieldBool(t, modelInfo, "success"))
	assert.Equal(t, "bangla-model-v1", fieldResult(t, modelInfo)["model_info"].(map[string]any)["name"])

	unload := lines[4]
	require.True(t, fieldBool(t, unload, "success"))
	assert.Equal(t, "Model unloaded successfully", fieldResult(t, unload)["message"])

	synthFail := lines[5]
	assert.False(t, fieldBool(t, synthFail, "success"))
	assert.Equal(t, "No model loaded. Please load a model first.", fieldString(t, synthFail, "error"))

	infoFail := lines[6]
	assert.False(t, fieldBool(t, infoFail, "success"))
	assert.Equal(t, "No model loaded", fieldString(t, infoFail, "error"))

	list := lines[7]
	require.True(t, fieldBool(t, list, "success"))
	listResult := fieldResult(t, list)
	all, ok := listResult["all_models"].([]any)
	require.True(t, ok)
	assert.Len(t, all, 5)
	assert.EqualValues(t, 5, listResult["total_models"])
	assert.Equal(t, []any{
		"tts_models/bn/custom/bangla-model-v1",
		"tts_models/bn/custom/bangla-model-v2",
	}, listResult["bangla_models"])
}
