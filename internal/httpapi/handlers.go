package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/chartlylabs/vstate/internal/ws"
	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/orchestrator"
	"github.com/chartlylabs/vstate/pkg/telemetry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	snap, err := s.health(r.Context())
	if err != nil {
		vstateerrors.WriteError(w, vstateerrors.Wrap(vstateerrors.Internal, err, "health check failed"), requestIDFrom(r), "")
		return
	}
	status := string(snap.Overall)
	if status == "" || status == string(telemetry.StatusUnknown) {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": version,
	})
}

type storeRequest struct {
	CoordHint string          `json:"coord_hint"`
	State     json.RawMessage `json:"state"`
	Metadata  json.RawMessage `json:"metadata"`
	Author    string          `json:"author"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)

	var in storeRequest
	if err := decodeJSONStrict(r, &in); err != nil {
		vstateerrors.WriteError(w, vstateerrors.New(vstateerrors.Serialization, "invalid request body"), reqID, "")
		return
	}
	if len(in.State) == 0 {
		vstateerrors.WriteError(w, vstateerrors.New(vstateerrors.InvalidState, "state is required"), reqID, "")
		return
	}
	state, err := delta.ParseJSON(in.State)
	if err != nil {
		vstateerrors.WriteError(w, vstateerrors.Wrap(vstateerrors.Serialization, err, "state is not valid JSON"), reqID, "")
		return
	}

	req := orchestrator.AppendRequest{
		CoordID: strings.TrimSpace(in.CoordHint),
		State:   state,
		Author:  in.Author,
		Now:     time.Now().UTC(),
	}

	res, err := s.orch.Append(r.Context(), req)
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}

	if s.hub != nil {
		s.hub.Publish(res.CoordID, ws.TailEvent{
			CoordID: res.CoordID,
			DeltaID: res.DeltaID,
			State:   state,
		})
	}

	s.log.Info(r.Context(), "delta stored", map[string]any{
		"coord_id": res.CoordID,
		"delta_id": res.DeltaID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"coord_id":         res.CoordID,
		"delta_id":         res.DeltaID,
		"snapshot_created": res.SnapshotCreated,
	})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)
	coordID := strings.TrimSpace(mux.Vars(r)["coord_id"])

	res, err := s.orch.Recall(r.Context(), coordID)
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coord_id":    res.CoordID,
		"state":       res.State,
		"delta_count": res.DeltaCount,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)
	coordID := strings.TrimSpace(mux.Vars(r)["coord_id"])

	res, err := s.orch.Verify(r.Context(), coordID)
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}
	body := map[string]any{
		"verified_deltas": res.VerifiedDeltas,
		"total_deltas":    res.TotalDeltas,
		"chain_valid":     res.ChainValid,
	}
	if res.FirstBreak != nil {
		body["first_break"] = *res.FirstBreak
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)
	coordID := strings.TrimSpace(mux.Vars(r)["coord_id"])

	snap, err := s.orch.ForceSnapshot(r.Context(), coordID, time.Now().UTC())
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snap.ID,
		"state_hash":  snap.StateHash,
	})
}

func (s *Server) handleListCoords(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)

	limit := 100
	if q := strings.TrimSpace(r.URL.Query().Get("limit")); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	coords, err := s.orch.ListCoordinates(r.Context(), limit)
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reqID := requestIDFrom(r)

	stats, err := s.orch.Stats(r.Context())
	if err != nil {
		vstateerrors.WriteError(w, err, reqID, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coordinates": stats.CoordinateCount,
		"deltas":      stats.DeltaCount,
		"snapshots":   stats.SnapshotCount,
	})
}

func (s *Server) handleWSTail(w http.ResponseWriter, r *http.Request) {
	coordID := strings.TrimSpace(mux.Vars(r)["coord_id"])
	if coordID == "" {
		vstateerrors.WriteError(w, vstateerrors.New(vstateerrors.InvalidCoordinate, "coord_id is required"), requestIDFrom(r), "")
		return
	}
	if s.hub == nil {
		vstateerrors.WriteError(w, vstateerrors.New(vstateerrors.Internal, "live tail is disabled"), requestIDFrom(r), "")
		return
	}
	s.hub.Serve(w, r, coordID)
}
