package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()

	h := New(map[string]Probe{
		"store":    func(context.Context) error { return nil },
		"deepgram": func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["store"] != "ok" || resp.Checks["deepgram"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestReadyzFailingProbe(t *testing.T) {
	t.Parallel()

	h := New(map[string]Probe{
		"store": func(context.Context) error { return errors.New("connection refused") },
		"ok":    func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "fail" {
		t.Errorf("status = %q, want fail", resp.Status)
	}
	if resp.Checks["store"] != "fail: connection refused" {
		t.Errorf("checks = %v", resp.Checks)
	}
	if resp.Checks["ok"] != "ok" {
		t.Errorf("passing probe reported %q", resp.Checks["ok"])
	}
}

func TestReadyzProbeSeesDeadline(t *testing.T) {
	t.Parallel()

	h := New(map[string]Probe{
		"deadline": func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		},
	})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (probe must see a deadline)", rec.Code)
	}
}
