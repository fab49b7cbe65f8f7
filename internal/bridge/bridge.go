// Package bridge implements the line-delimited JSON protocol between a
// host process and the TTS backend: one JSON object per stdin line in,
// one JSON object per stdout line out, strictly serial. Everything else
// the process prints goes to stderr.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/SiliconJelly/DubAI/internal/tts"
)

// maxLineBytes bounds one inbound request line. Dubbing scripts arrive a
// sentence at a time, so this is generous. A longer line is discarded and
// reported as a parse_error; the loop keeps reading at the next line.
const maxLineBytes = 1 << 20

type Bridge struct {
	backend tts.Backend
	in      io.Reader
	out     io.Writer
	logger  *zap.Logger
}

type OptionFunc func(b *Bridge)

// WithStreams replaces the default stdin/stdout pair.
func WithStreams(in io.Reader, out io.Writer) OptionFunc {
	return func(b *Bridge) {
		b.in = in
		b.out = out
	}
}

func New(backend tts.Backend, logger *zap.Logger, options ...OptionFunc) *Bridge {
	b := &Bridge{
		backend: backend,
		in:      os.Stdin,
		out:     os.Stdout,
		logger:  logger.Named("bridge"),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Run drives the request loop: the ready handshake first, then one
// request at a time in arrival order, then the shutdown notice on EOF or
// context cancellation. An in-flight request always finishes before the
// shutdown notice goes out. A nil return means clean shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	ready := Notification{
		ID:      idReady,
		Success: true,
		Message: b.readyMessage(),
		Device:  b.backend.Device(),
	}
	if err := b.write(ready); err != nil {
		return err
	}
	b.logger.Info("Bridge ready", zap.String("backend", b.backend.Name()), zap.String("device", ready.Device))

	lines := make(chan inputLine)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(b.in, 64*1024)
		for {
			line, tooLong, err := readLine(reader)
			if err != nil && !errors.Is(err, io.EOF) {
				readErr <- err
				return
			}
			atEOF := err != nil
			if tooLong || line != "" || !atEOF {
				select {
				case lines <- inputLine{text: line, tooLong: tooLong}:
				case <-ctx.Done():
					return
				}
			}
			if atEOF {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return b.shutdown()
		case in, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					b.notice(idFatalError, fmt.Sprintf("Fatal error: %v", err))
					return fmt.Errorf("request loop failed: %w", err)
				default:
				}
				return b.shutdown()
			}
			if in.tooLong {
				b.logger.Warn("Oversized request line discarded", zap.Int("limit", maxLineBytes))
				if err := b.notice(idParseError, fmt.Sprintf("Failed to parse JSON: request line exceeds %d bytes", maxLineBytes)); err != nil {
					return err
				}
				continue
			}
			if err := b.handleLine(ctx, in.text); err != nil {
				// Only a dead output stream lands here; there is no
				// host left to notify.
				return err
			}
		}
	}
}

// inputLine is one unit from the reader goroutine: either a request line
// or the marker for a line that blew past maxLineBytes.
type inputLine struct {
	text    string
	tooLong bool
}

// readLine returns the next line without its trailing newline. A line
// longer than maxLineBytes is consumed through to its newline and reported
// as too long instead; the next call resumes at the following line. The
// returned error is io.EOF exactly when the stream ended, possibly
// alongside a final unterminated line.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		switch {
		case err == nil:
			if len(buf)-1 > maxLineBytes {
				return "", true, nil
			}
			return trimEOL(string(buf)), false, nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(buf) > maxLineBytes {
				return "", true, discardLine(r)
			}
		default:
			if len(buf) > maxLineBytes {
				return "", true, err
			}
			return string(buf), false, err
		}
	}
}

// discardLine drops input through the end of the current line.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return err
		}
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func (b *Bridge) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			b.logger.Warn("Malformed request line", zap.Error(err))
			return b.notice(idParseError, fmt.Sprintf("Failed to parse JSON: %v", err))
		}
		// Valid JSON that is not a request object.
		b.logger.Warn("Unusable request line", zap.Error(err))
		return b.notice(idUnknown, fmt.Sprintf("Unexpected error: %v", err))
	}

	id := req.ID
	if id == "" {
		id = idUnknown
	}

	b.logger.Info("Handling request", zap.String("id", id), zap.String("method", req.Method))

	result, err := b.dispatch(ctx, req)
	if err != nil {
		b.logger.Warn("Request failed",
			zap.String("id", id),
			zap.String("method", req.Method),
			zap.Error(err))
		msg := err.Error()
		return b.write(Response{ID: id, Success: false, Result: nil, Error: &msg})
	}

	return b.write(Response{ID: id, Success: true, Result: result, Error: nil})
}

func (b *Bridge) dispatch(ctx context.Context, req Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked",
				zap.String("method", req.Method),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("Unexpected error: %v", r)
		}
	}()

	switch req.Method {
	case "load_model":
		params, perr := parseLoadParams(req.Params)
		if perr != nil {
			return nil, perr
		}
		return b.backend.Load(ctx, params)
	case "synthesize_speech":
		params, perr := parseSynthesizeParams(req.Params)
		if perr != nil {
			return nil, perr
		}
		return b.backend.Synthesize(ctx, params)
	case "get_model_info":
		return b.backend.Info(ctx)
	case "unload_model":
		return b.backend.Unload(ctx)
	case "list_available_models":
		return b.backend.ListModels(ctx)
	default:
		return nil, fmt.Errorf("Unknown method: %s", req.Method)
	}
}

func (b *Bridge) readyMessage() string {
	message := "DubAI TTS bridge ready"
	if b.backend.Name() == "mock" {
		message += " (mock mode)"
	}
	return message
}

func (b *Bridge) shutdown() error {
	b.logger.Info("Bridge shutting down")
	return b.write(Notification{
		ID:      idShutdown,
		Success: true,
		Message: "DubAI TTS bridge shutting down",
	})
}

func (b *Bridge) notice(id, message string) error {
	return b.write(Notice{ID: id, Success: false, Error: message})
}

func (b *Bridge) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("Failed to encode protocol line", zap.Error(err))
		return err
	}

	if _, err := b.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing protocol line: %w", err)
	}
	return nil
}
