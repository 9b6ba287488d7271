package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-pos/internal/common"
)

// NewLogger configures a zerolog logger using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(writer io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// WithRequest returns logger enriched with the request id, trace id and
// session carried by ctx.
func WithRequest(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		lc = lc.Str("request_id", reqID)
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		lc = lc.Str("trace_id", spanCtx.TraceID().String())
	}
	if s, ok := common.SessionFrom(ctx); ok {
		if s.UserID != "" {
			lc = lc.Str("user_id", s.UserID)
		}
		if s.HasShop() {
			lc = lc.Int64("shop_id", s.ShopID)
		}
	}
	return lc.Logger()
}

type sessionSlot struct {
	session common.Session
	set     bool
}

type sessionSlotKey struct{}

// NoteSession makes the authenticated session visible to RequestLogger, which
// sits above the authentication middleware in the chain.
func NoteSession(ctx context.Context, s common.Session) {
	if slot, ok := ctx.Value(sessionSlotKey{}).(*sessionSlot); ok && slot != nil {
		slot.session = s
		slot.set = true
	}
}

// RequestLogger records structured HTTP request logs enriched with tracing metadata.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		slot := &sessionSlot{}
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), sessionSlotKey{}, slot)))

		duration := time.Since(start)
		spanCtx := trace.SpanContextFromContext(r.Context())
		traceID := ""
		spanID := ""
		if spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
			spanID = spanCtx.SpanID().String()
		}

		level := zerolog.InfoLevel
		if statusOf(ww) >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		evt := l.Logger.WithLevel(level).
			Str("method", r.Method).
			Str("route", routeLabel(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", statusOf(ww)).
			Int64("duration_ms", duration.Milliseconds()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("trace_id", traceID).
			Str("span_id", spanID)
		if slot.set {
			if slot.session.UserID != "" {
				evt = evt.Str("user_id", slot.session.UserID)
			}
			if slot.session.HasShop() {
				evt = evt.Int64("shop_id", slot.session.ShopID)
			}
		}
		if ip := strings.TrimSpace(r.RemoteAddr); ip != "" {
			evt = evt.Str("remote_addr", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
