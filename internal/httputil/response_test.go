package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/wallnav/internal/monitoring"
)

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]float64{"wall_offset": 0.45})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["wall_offset"] != 0.45 {
		t.Errorf("wall_offset = %v, want 0.45", resp["wall_offset"])
	}
}

func TestWriteJSON_EncodeFailureIsLogged(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, math.NaN())

	if len(*lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(*lines))
	}
}

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	if !RequireMethod(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodGet) {
		t.Error("GET should be allowed")
	}

	rec = httptest.NewRecorder()
	if RequireMethod(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.MethodGet) {
		t.Error("POST should be rejected")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodGet {
		t.Errorf("Allow = %q, want GET", got)
	}
}
