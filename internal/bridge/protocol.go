package bridge

import (
	"encoding/json"
	"fmt"
	"io"
)

// Sentinel ids for unsolicited lines and framing-level failures. The host
// correlates responses by id, so these never collide with request ids it
// chooses.
const (
	idReady      = "ready"
	idShutdown   = "shutdown"
	idParseError = "parse_error"
	idFatalError = "fatal_error"
	idInitError  = "init_error"
	idUnknown    = "unknown"
)

// Request is one inbound line. Params stays raw until the method's schema
// decodes it.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the envelope for method responses. Result and Error are both
// always present on the wire; the unused one is null.
type Response struct {
	ID      string  `json:"id"`
	Success bool    `json:"success"`
	Result  any     `json:"result"`
	Error   *string `json:"error"`
}

// Notification is an unsolicited ready or shutdown line.
type Notification struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Device  string `json:"device,omitempty"`
}

// Notice is a framing-level error line. Unlike Response it carries no
// result key at all.
type Notice struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// EmitInitError reports a backend construction failure on the protocol
// stream. It is the one line the bridge may emit before the ready
// handshake; the process must exit non-zero afterwards.
func EmitInitError(w io.Writer, err error) {
	data, merr := json.Marshal(Notice{
		ID:      idInitError,
		Success: false,
		Error:   fmt.Sprintf("Failed to initialize TTS backend: %v", err),
	})
	if merr != nil {
		return
	}
	w.Write(append(data, '\n'))
}
