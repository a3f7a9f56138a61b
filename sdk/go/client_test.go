package vstate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
)

func TestClientStoreAndRecallRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/store":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(StoreResult{CoordID: "COORD1", DeltaID: "D1", SnapshotCreated: false})
		case r.Method == http.MethodGet && r.URL.Path == "/recall/COORD1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(RecallResult{CoordID: "COORD1", State: delta.Object(), DeltaCount: 1})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	stored, err := c.Store(ctx, StoreRequest{State: delta.Object()})
	if err != nil {
		t.Fatal(err)
	}
	if stored.CoordID != "COORD1" || stored.DeltaID != "D1" {
		t.Fatalf("unexpected store result: %+v", stored)
	}

	recalled, err := c.Recall(ctx, stored.CoordID)
	if err != nil {
		t.Fatal(err)
	}
	if recalled.DeltaCount != 1 {
		t.Fatalf("unexpected recall result: %+v", recalled)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":      "not_found",
				"message":   "coordinate has no recorded deltas",
				"retryable": false,
				"kind":      "client",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Recall(context.Background(), "MISSING")
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != vstateerrors.NotFound || apiErr.Status != http.StatusNotFound {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClientRejectsEmptyBaseURL(t *testing.T) {
	c := NewClient("")
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected an error for an empty base url")
	}
}
