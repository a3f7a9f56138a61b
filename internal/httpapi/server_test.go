package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chartlylabs/vstate/internal/ws"
	"github.com/chartlylabs/vstate/pkg/orchestrator"
	"github.com/chartlylabs/vstate/pkg/store"
)

func newTestServer() http.Handler {
	orch := orchestrator.New(store.NewMemoryRepository(), 128)
	return New(orch, ws.NewHub(), nil, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthReportsOK(t *testing.T) {
	h := newTestServer()
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestStoreThenRecallRoundTrip(t *testing.T) {
	h := newTestServer()

	w := doJSON(t, h, http.MethodPost, "/store", map[string]any{
		"state": map[string]any{"count": 1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 storing, got %d: %s", w.Code, w.Body.String())
	}
	var stored map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &stored); err != nil {
		t.Fatal(err)
	}
	coordID, _ := stored["coord_id"].(string)
	if coordID == "" {
		t.Fatalf("expected a coord_id, got %+v", stored)
	}

	w = doJSON(t, h, http.MethodGet, "/recall/"+coordID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 recalling, got %d: %s", w.Code, w.Body.String())
	}
	var recalled map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &recalled); err != nil {
		t.Fatal(err)
	}
	if recalled["delta_count"].(float64) != 1 {
		t.Fatalf("expected delta_count 1, got %+v", recalled)
	}
}

func TestStoreRejectsMissingState(t *testing.T) {
	h := newTestServer()
	w := doJSON(t, h, http.MethodPost, "/store", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing state, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRecallUnknownCoordinateReturns404(t *testing.T) {
	h := newTestServer()
	w := doJSON(t, h, http.MethodGet, "/recall/ZZZZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyAndSnapshotAndStatsRoutes(t *testing.T) {
	h := newTestServer()

	w := doJSON(t, h, http.MethodPost, "/store", map[string]any{"state": map[string]any{"count": 1}})
	var stored map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &stored)
	coordID := stored["coord_id"].(string)

	w = doJSON(t, h, http.MethodGet, "/verify/"+coordID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying, got %d: %s", w.Code, w.Body.String())
	}
	var verify map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &verify)
	if verify["chain_valid"] != true {
		t.Fatalf("expected chain_valid true, got %+v", verify)
	}

	w = doJSON(t, h, http.MethodPost, "/snapshot/"+coordID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 snapshotting, got %d: %s", w.Code, w.Body.String())
	}
	var snap map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &snap)
	if snap["snapshot_id"] == "" || snap["state_hash"] == "" {
		t.Fatalf("expected snapshot_id/state_hash, got %+v", snap)
	}

	w = doJSON(t, h, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on stats, got %d: %s", w.Code, w.Body.String())
	}
	var stats map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats["coordinates"].(float64) != 1 {
		t.Fatalf("expected 1 coordinate, got %+v", stats)
	}

	w = doJSON(t, h, http.MethodGet, "/coords", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 listing coords, got %d: %s", w.Code, w.Body.String())
	}
}
