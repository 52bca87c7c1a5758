package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/observability"
)

type ctxKey int

const requestIDKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

func (s *Server) useDispatchMiddleware() {
	s.mux.Use(s.withPanicGuard)
	s.mux.Use(withRequestID)
	s.mux.Use(s.withAPIAccounting)
}

// withRequestID reuses the caller's X-Request-ID or mints one, and echoes it
// back so riders and drivers can quote it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) withAPIAccounting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		took := time.Since(start)

		route := routeOf(r)
		code := strconv.Itoa(rec.code)
		observability.APIRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		observability.APIRequestDuration.WithLabelValues(r.Method, route, code).Observe(took.Seconds())

		attrs := []any{
			"method", r.Method,
			"route", route,
			"code", rec.code,
			"took_ms", took.Milliseconds(),
			"client_ip", clientIP(r),
		}
		attrs = append(attrs, subjectAttrs(route, mux.Vars(r))...)
		if id := requestID(r.Context()); id != "" {
			attrs = append(attrs, "request_id", id)
		}
		s.logger.InfoContext(r.Context(), "dispatch_api_request", attrs...)
	})
}

func (s *Server) withPanicGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.ErrorContext(r.Context(), "dispatch_api_panic",
					"panic", v, "route", routeOf(r), "request_id", requestID(r.Context()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// subjectAttrs names the ride, driver or websocket user a route addresses.
func subjectAttrs(route string, vars map[string]string) []any {
	var out []any
	if id := vars["id"]; id != "" {
		switch {
		case strings.Contains(route, "/rides/"):
			out = append(out, "ride_id", id)
		case strings.Contains(route, "/drivers/"):
			out = append(out, "driver_id", id)
		}
	}
	if id := vars["user_id"]; id != "" {
		out = append(out, "user_id", id)
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps /ws upgrades working behind the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("websocket upgrade: connection cannot be hijacked")
	}
	s.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func routeOf(r *http.Request) string {
	if rt := mux.CurrentRoute(r); rt != nil {
		if tmpl, err := rt.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
