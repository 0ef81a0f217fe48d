package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	t.Run("ok when the database answers", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		HandleHealth(stubPinger{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Fatalf("expected ok status, got %q", rec.Body.String())
		}
	})

	t.Run("degraded when the database is unreachable", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		HandleHealth(stubPinger{err: errors.New("connection refused")}).ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"degraded"`) {
			t.Fatalf("expected degraded status, got %q", rec.Body.String())
		}
	})
}
