package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	tp := newTestProxy(t, upstream.URL+"/")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantProxy  bool
	}{
		{"GET /_proxy/healthz", http.MethodGet, "/_proxy/healthz", "", http.StatusOK, false},
		{"GET /_proxy/status", http.MethodGet, "/_proxy/status", "", http.StatusOK, false},
		{"POST /end_rate_limiting", http.MethodPost, "/end_rate_limiting", "", http.StatusOK, false},
		{"POST /start_rate_limiting missing name", http.MethodPost, "/start_rate_limiting", "{}", http.StatusUnprocessableEntity, false},
		{"GET root", http.MethodGet, "/", "", http.StatusOK, true},
		{"GET nested path", http.MethodGet, "/internal/dev-orgs.get?id=1", "", http.StatusOK, true},
		{"POST proxied", http.MethodPost, "/artifacts.prepare", `{"a":1}`, http.StatusOK, true},
		{"DELETE proxied", http.MethodDelete, "/items/1", "", http.StatusOK, true},
		{"GET healthz outside reserved prefix", http.MethodGet, "/healthz", "", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := hits.Load()

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			tp.echo.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if proxied := hits.Load() > before; proxied != tt.wantProxy {
				t.Errorf("proxied = %v, want %v", proxied, tt.wantProxy)
			}
		})
	}
}
