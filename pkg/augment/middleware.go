package augment

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pizzaz/pizzazd/pkg/logging"
)

type bodyMode int

const (
	modeUnset bodyMode = iota
	modePassthrough
	modeJSON
	modeSSE
)

// Middleware returns an HTTP middleware that augments downstream responses
// with widget _meta. JSON bodies are buffered, rewritten, and re-emitted with
// a corrected Content-Length; event streams are reassembled event by event
// and rewritten incrementally. Other content types, and bodies that fail to
// parse, pass through byte-for-byte. Status codes and unrelated headers are
// never touched.
func Middleware(reg Lookup, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			iw := &interceptWriter{inner: w, reg: reg, log: log}
			next.ServeHTTP(iw, r)
			iw.finalize()
		})
	}
}

// interceptWriter classifies the response on the first WriteHeader/Write and
// routes body bytes accordingly. In JSON mode the header write is delayed
// until finalize so the rewritten body's length can be set; in SSE mode the
// header goes out immediately with Content-Length stripped.
type interceptWriter struct {
	inner http.ResponseWriter
	reg   Lookup
	log   *slog.Logger

	mode    bodyMode
	status  int
	jsonBuf bytes.Buffer
	scanner EventScanner
}

func (iw *interceptWriter) Header() http.Header {
	return iw.inner.Header()
}

func (iw *interceptWriter) WriteHeader(status int) {
	if iw.mode != modeUnset {
		return
	}
	iw.status = status

	ct := iw.inner.Header().Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		// Buffer the body; the header goes out in finalize with the
		// rewritten length.
		iw.mode = modeJSON
	case strings.HasPrefix(ct, "text/event-stream"):
		iw.mode = modeSSE
		iw.inner.Header().Del("Content-Length")
		iw.inner.WriteHeader(status)
	default:
		iw.mode = modePassthrough
		iw.inner.WriteHeader(status)
	}
}

func (iw *interceptWriter) Write(b []byte) (int, error) {
	if iw.mode == modeUnset {
		iw.WriteHeader(http.StatusOK)
	}

	switch iw.mode {
	case modeJSON:
		return iw.jsonBuf.Write(b)
	case modeSSE:
		return iw.writeSSE(b)
	default:
		return iw.inner.Write(b)
	}
}

// writeSSE feeds a chunk through the event scanner and emits every event it
// completes. A chunk that is not valid UTF-8 bypasses reassembly: buffered
// text is flushed verbatim and the raw bytes follow unaugmented.
func (iw *interceptWriter) writeSSE(b []byte) (int, error) {
	if !utf8.Valid(b) {
		if partial, ok := iw.scanner.Flush(); ok {
			if _, err := iw.inner.Write([]byte(partial)); err != nil {
				return 0, err
			}
		}
		return iw.inner.Write(b)
	}

	for _, event := range iw.scanner.Feed(string(b)) {
		if _, err := iw.inner.Write([]byte(iw.processEvent(event) + "\n\n")); err != nil {
			return 0, err
		}
	}
	iw.flush()
	return len(b), nil
}

// Flush lets the downstream handler force buffered events out between
// writes, which SSE transports rely on. In JSON mode it is a no-op: the
// body is still being buffered and flushing the inner writer would commit
// headers before the rewritten Content-Length is known.
func (iw *interceptWriter) Flush() {
	if iw.mode == modeJSON {
		return
	}
	iw.flush()
}

func (iw *interceptWriter) flush() {
	if f, ok := iw.inner.(http.Flusher); ok {
		f.Flush()
	}
}

// finalize completes the response once the downstream handler returns: the
// buffered JSON body is rewritten and emitted, and any trailing partial SSE
// event is flushed as a final event.
func (iw *interceptWriter) finalize() {
	switch iw.mode {
	case modeJSON:
		iw.finishJSON()
	case modeSSE:
		if partial, ok := iw.scanner.Flush(); ok {
			iw.inner.Write([]byte(iw.processEvent(partial) + "\n\n"))
			iw.flush()
		}
	}
}

func (iw *interceptWriter) finishJSON() {
	body := iw.jsonBuf.Bytes()

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		iw.log.Debug("response body is not a JSON object, passing through", "error", err)
	} else if Result(payload, iw.reg) {
		if rewritten, err := json.Marshal(payload); err == nil {
			body = rewritten
		} else {
			iw.log.Debug("reserializing augmented response failed, passing through", "error", err)
		}
	}

	header := iw.inner.Header()
	header.Del("Transfer-Encoding")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	iw.inner.WriteHeader(iw.status)
	iw.inner.Write(body)
}

// processEvent rewrites the data lines of one SSE event. A data line whose
// payload parses as a JSON object is augmented and reserialized, preserving
// any whitespace between the field name and the payload; all other lines
// pass through verbatim.
func (iw *interceptWriter) processEvent(event string) string {
	lines := strings.Split(event, "\n")
	changed := false
	for i, line := range lines {
		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payloadText := strings.TrimLeft(rest, " \t")
		prefix := rest[:len(rest)-len(payloadText)]

		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
			continue
		}
		if !Result(payload, iw.reg) {
			continue
		}
		rewritten, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		lines[i] = "data:" + prefix + string(rewritten)
		changed = true
	}
	if !changed {
		return event
	}
	return strings.Join(lines, "\n")
}
