package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ratelimit-proxy-go/internal/gate"
	"ratelimit-proxy-go/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doControl(t *testing.T, fn echo.HandlerFunc, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	if err := fn(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	return rec
}

func TestStartRateLimiting(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantActive  bool
		wantLabel   string
		wantKey     string
		wantValue   string
	}{
		{
			name:        "valid",
			body:        `{"test_name":"T"}`,
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusOK,
			wantActive:  true,
			wantLabel:   "T",
			wantKey:     "status",
			wantValue:   "rate limiting started for test: T",
		},
		{
			name:       "no content type",
			body:       `{"test_name":"bulk upload"}`,
			wantStatus: http.StatusOK,
			wantActive: true,
			wantLabel:  "bulk upload",
			wantKey:    "status",
			wantValue:  "rate limiting started for test: bulk upload",
		},
		{
			name:        "empty name",
			body:        `{"test_name":""}`,
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusOK,
			wantActive:  true,
			wantLabel:   "",
			wantKey:     "status",
			wantValue:   "rate limiting started for test: ",
		},
		{
			name:        "missing name",
			body:        `{"other":"x"}`,
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusUnprocessableEntity,
			wantKey:     "detail",
			wantValue:   "test_name is required",
		},
		{
			name:        "empty body",
			body:        "",
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusUnprocessableEntity,
			wantKey:     "detail",
			wantValue:   "test_name is required",
		},
		{
			name:        "malformed JSON",
			body:        `{"test_name":`,
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusBadRequest,
			wantKey:     "detail",
			wantValue:   "invalid JSON body",
		},
		{
			name:        "wrong type",
			body:        `{"test_name":42}`,
			contentType: echo.MIMEApplicationJSON,
			wantStatus:  http.StatusBadRequest,
			wantKey:     "detail",
			wantValue:   "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gate.New()
			h := NewControlHandler(g, nil, discardLogger())

			rec := doControl(t, h.StartRateLimiting, tt.body, tt.contentType)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body[tt.wantKey] != tt.wantValue {
				t.Errorf("body[%q] = %q, want %q", tt.wantKey, body[tt.wantKey], tt.wantValue)
			}

			state := g.Check()
			if state.Active != tt.wantActive || state.Label != tt.wantLabel {
				t.Errorf("gate = %+v, want active=%v label=%q", state, tt.wantActive, tt.wantLabel)
			}
		})
	}
}

func TestStartRateLimiting_Overwrites(t *testing.T) {
	g := gate.New()
	h := NewControlHandler(g, nil, discardLogger())

	doControl(t, h.StartRateLimiting, `{"test_name":"first"}`, echo.MIMEApplicationJSON)
	doControl(t, h.StartRateLimiting, `{"test_name":"second"}`, echo.MIMEApplicationJSON)

	if got := g.Check().Label; got != "second" {
		t.Errorf("label = %q, want %q", got, "second")
	}
}

func TestEndRateLimiting_Idempotent(t *testing.T) {
	g := gate.New()
	m := metrics.New()
	h := NewControlHandler(g, m, discardLogger())

	doControl(t, h.StartRateLimiting, `{"test_name":"T"}`, echo.MIMEApplicationJSON)
	if got := testutil.ToFloat64(m.GateActive); got != 1 {
		t.Errorf("gate_active = %v, want 1", got)
	}

	for i := range 2 {
		rec := doControl(t, h.EndRateLimiting, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("call %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}

		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["status"] != "rate limiting ended" {
			t.Errorf("call %d: status = %q, want %q", i, body["status"], "rate limiting ended")
		}

		if state := g.Check(); state.Active || state.Label != "" {
			t.Errorf("call %d: gate = %+v, want inactive with empty label", i, state)
		}
	}

	if got := testutil.ToFloat64(m.GateActive); got != 0 {
		t.Errorf("gate_active = %v, want 0", got)
	}
}
