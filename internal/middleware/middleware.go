package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/enclaves/internal/logger"
)

const sessionsPrefix = "/api/v1/sessions/"

// Logger tags each request with an ID, echoes it in X-Request-ID and logs the
// outcome. Requests under a session path are logged with the session id.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.NewRequestID()
		ctx := logger.WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		var l zerolog.Logger
		if id := sessionFromPath(r.URL.Path); id != "" {
			l = logger.ForSession(ctx, id)
		} else {
			l = logger.ForRequest(ctx)
		}
		l = l.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()

		upgrade := strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
		if r.Body != nil && !upgrade {
			if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
				logger.LogBody(l, "request", body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger.LogBody(l, "response", rw.buf.Bytes())
		ev := l.Info()
		if rw.status >= http.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Int("status", rw.status).Dur("durationMs", time.Since(start)).Msg("Request completed")
	})
}

// sessionFromPath returns the {id} segment of /api/v1/sessions/{id}/...
func sessionFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, sessionsPrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// Recover turns a handler panic into a 500 response.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				l := logger.ForRequest(r.Context())
				l.Error().
					Str("stack", string(debug.Stack())).
					Msgf("Handler panic: %v", v)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS allows the browser client at allowedOrigins to call the API.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigins)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JSON marks every response as application/json. Plain-text error replies,
// such as the mux's own 404 and 405, are rewritten to {"error": "..."}.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(&jsonWriter{ResponseWriter: w}, r)
	})
}

type jsonWriter struct {
	http.ResponseWriter
	plainError bool
}

func (w *jsonWriter) WriteHeader(code int) {
	h := w.Header()
	if code >= http.StatusBadRequest && strings.HasPrefix(h.Get("Content-Type"), "text/plain") {
		w.plainError = true
		h.Set("Content-Type", "application/json")
		h.Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *jsonWriter) Write(b []byte) (int, error) {
	if !w.plainError {
		return w.ResponseWriter.Write(b)
	}
	data, err := json.Marshal(map[string]string{"error": strings.TrimSpace(string(b))})
	if err != nil {
		return 0, err
	}
	if _, err := w.ResponseWriter.Write(data); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (w *jsonWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hj.Hijack()
}

// Chain wraps h so that mws[0] runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type responseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the wrapper.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
