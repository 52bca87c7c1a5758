package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-dispatch/internal/storage"
)

func newLoggedServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewServer(Deps{Rides: storage.NewMemoryStore(), Logger: logger}), &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		if e["msg"] == msg {
			out = append(out, e)
		}
	}
	return out
}

func TestAPIRequestLogNamesRide(t *testing.T) {
	srv, buf := newLoggedServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rides/ride_42", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-7" {
		t.Fatalf("request id not echoed, got %q", got)
	}
	entries := logEntries(t, buf, "dispatch_api_request")
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d: %s", len(entries), buf)
	}
	e := entries[0]
	if e["route"] != "/api/v1/rides/{id}" || e["ride_id"] != "ride_42" || e["request_id"] != "req-7" {
		t.Fatalf("unexpected log entry %v", e)
	}
	if code, _ := e["code"].(float64); code != http.StatusNotFound {
		t.Fatalf("expected code 404 in log, got %v", e["code"])
	}
}

func TestPanicGuardAnswersJSON(t *testing.T) {
	srv, buf := newLoggedServer(t)
	srv.mux.HandleFunc("/debug/rides/{id}/explode", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/rides/r1/explode", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("expected JSON error body, got %q (%v)", rec.Body, err)
	}
	if len(logEntries(t, buf, "dispatch_api_panic")) != 1 {
		t.Fatalf("expected panic log, got %s", buf)
	}
}

func TestSubjectAttrs(t *testing.T) {
	cases := []struct {
		route string
		vars  map[string]string
		want  []any
	}{
		{"/api/v1/rides/{id}/status", map[string]string{"id": "r1"}, []any{"ride_id", "r1"}},
		{"/api/v1/drivers/{id}/location", map[string]string{"id": "d1"}, []any{"driver_id", "d1"}},
		{"/ws/{user_id}", map[string]string{"user_id": "u1"}, []any{"user_id", "u1"}},
		{"/healthz", nil, nil},
	}
	for _, c := range cases {
		got := subjectAttrs(c.route, c.vars)
		if len(got) != len(c.want) {
			t.Fatalf("%s: got %v want %v", c.route, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s: got %v want %v", c.route, got, c.want)
			}
		}
	}
}
