package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process logger. format "console" (or "text") selects
// the human-readable writer; anything else logs JSON. An unknown level means
// info.
func NewLogger(format, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger emits one "http_request" line per request and stores a
// request-scoped logger on the context. Requests slower than SlowThreshold are
// logged at warn; 5xx responses at error.
type RequestLogger struct {
	Logger        zerolog.Logger
	SlowThreshold time.Duration
}

// Middleware is the chi middleware.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		reqID := middleware.GetReqID(r.Context())
		fields := &requestFields{}

		scoped := l.Logger.With().Str("request_id", reqID).Logger()
		ctx := scoped.WithContext(r.Context())
		ctx = context.WithValue(ctx, requestFieldsKey{}, fields)

		rec := NewStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(started)

		status := rec.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = l.Logger.Error()
		case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
			evt = l.Logger.Warn().Bool("slow", true)
		default:
			evt = l.Logger.Info()
		}

		evt = evt.Str("request_id", reqID).
			Str("method", r.Method).
			Str("route", RouteOf(r)).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("bytes", rec.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds())
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		fields.each(func(k, v string) { evt = evt.Str(k, v) })
		evt = optionalStr(evt, "remote_addr", r.RemoteAddr)
		evt = optionalStr(evt, "user_agent", r.UserAgent())
		evt.Msg("http_request")
	})
}

func optionalStr(evt *zerolog.Event, key, val string) *zerolog.Event {
	if v := strings.TrimSpace(val); v != "" {
		return evt.Str(key, v)
	}
	return evt
}

type requestFieldsKey struct{}

// requestFields collects identifiers learned deeper in the chain, after the
// logger has been created.
type requestFields struct {
	mu   sync.Mutex
	keys []string
	vals map[string]string
}

func (f *requestFields) set(k, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vals == nil {
		f.vals = map[string]string{}
	}
	if _, seen := f.vals[k]; !seen {
		f.keys = append(f.keys, k)
	}
	f.vals[k] = v
}

func (f *requestFields) each(fn func(k, v string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		fn(k, f.vals[k])
	}
}

func annotate(ctx context.Context, key, val string) {
	if f, ok := ctx.Value(requestFieldsKey{}).(*requestFields); ok {
		f.set(key, val)
	}
}

// AnnotateUser adds user_id to the request's log line.
func AnnotateUser(ctx context.Context, userID string) { annotate(ctx, "user_id", userID) }

// AnnotateSession adds session_id to the request's log line.
func AnnotateSession(ctx context.Context, sessionID string) { annotate(ctx, "session_id", sessionID) }

// LoggerFrom returns the request-scoped logger, or fallback outside a request.
func LoggerFrom(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}
