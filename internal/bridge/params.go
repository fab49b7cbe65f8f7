package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SiliconJelly/DubAI/internal/tts"
)

// Each method decodes its params against an explicit schema before the
// backend sees them: unknown fields, type mismatches, and missing required
// fields are rejected at the protocol boundary with the request id echoed.

func errInvalidParams(detail string) error {
	return fmt.Errorf("Invalid params: %s", detail)
}

// decodeParams strictly decodes raw params into dst. Absent or null params
// leave dst at its preset defaults.
func decodeParams(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidParams(strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

func parseLoadParams(raw json.RawMessage) (tts.LoadParams, error) {
	params := tts.LoadParams{UseGPU: true}
	if err := decodeParams(raw, &params); err != nil {
		return params, err
	}
	if params.ModelPath == "" {
		return params, errInvalidParams("model_path is required")
	}
	return params, nil
}

// parseSynthesizeParams requires text by presence, not by content: an
// empty segment is legal input and synthesizes to empty audio.
func parseSynthesizeParams(raw json.RawMessage) (tts.SynthesizeParams, error) {
	params := tts.SynthesizeParams{Speed: 1.0}
	if err := decodeParams(raw, &params); err != nil {
		return params, err
	}
	if !hasParam(raw, "text") {
		return params, errInvalidParams("text is required")
	}
	return params, nil
}

// hasParam reports whether the params object carries key with a non-null
// value.
func hasParam(raw json.RawMessage, key string) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return false
	}

	value, ok := keys[key]
	return ok && !bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
