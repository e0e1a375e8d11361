package middleware_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"ratelimit-proxy-go/internal/handler"
)

func TestInboundRateLimiter(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	// 1 request per second with a burst of 1, so the second request is throttled.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(echomw.RateLimiter(store))
	e.GET("/works.list", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/works.list", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	for range 10 {
		req = httptest.NewRequest(http.MethodGet, "/works.list", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			continue
		}

		var body handler.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Detail == "" {
			t.Error("throttled response has no detail")
		}
		return
	}
	t.Error("expected at least one 429 response after burst, got none")
}
