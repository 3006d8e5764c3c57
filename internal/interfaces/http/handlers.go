package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream carries no client input; cross-origin dashboards may read it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleIngest accepts one sample or an array of samples.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		writeError(w, domain.Wrap(domain.KindValidation, "http.ingest", err, "malformed JSON body"))
		return
	}

	var samples []domain.RawSample
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &samples); err != nil {
			writeError(w, domain.Wrap(domain.KindValidation, "http.ingest", err, "malformed sample array"))
			return
		}
	} else {
		var one domain.RawSample
		if err := json.Unmarshal(raw, &one); err != nil {
			writeError(w, domain.Wrap(domain.KindValidation, "http.ingest", err, "malformed sample"))
			return
		}
		samples = []domain.RawSample{one}
	}

	emitted, err := s.facade.IngestBatch(r.Context(), samples)
	if err != nil {
		writeError(w, err)
		return
	}
	if emitted == nil {
		emitted = []domain.Event{}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(samples),
		"events":   emitted,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, domain.E(domain.KindValidation, "http.history", "limit must be an integer in [1, 1000]"))
			return
		}
		limit = n
	}

	samples, err := s.facade.History(r.Context(), assetID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"count":    len(samples),
		"samples":  samples,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	report, err := s.facade.AssessCurrent(r.Context(), assetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type buildBaselineRequest struct {
	AssetID string     `json:"asset_id"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

func (s *Server) handleBuildBaseline(w http.ResponseWriter, r *http.Request) {
	var req buildBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.KindValidation, "http.baseline_build", err, "malformed JSON body"))
		return
	}
	if req.AssetID == "" {
		writeError(w, domain.E(domain.KindValidation, "http.baseline_build", "asset_id is required"))
		return
	}

	end := time.Now().UTC()
	start := end.Add(-time.Hour)
	if req.End != nil {
		end = *req.End
	}
	if req.Start != nil {
		start = *req.Start
	}
	if !start.Before(end) {
		writeError(w, domain.E(domain.KindValidation, "http.baseline_build", "start must precede end"))
		return
	}

	profile, err := s.facade.BuildBaseline(r.Context(), req.AssetID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recent := s.eventLog.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(recent), "events": recent})
}

func (s *Server) handleSystemState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Calibrate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": string(domain.StateCalibrating)})
}

type injectFaultRequest struct {
	FaultType string `json:"fault_type"`
	Severity  string `json:"severity"`
}

func (s *Server) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	var req injectFaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.KindValidation, "http.inject_fault", err, "malformed JSON body"))
		return
	}
	if req.FaultType == "" {
		req.FaultType = string(domain.FaultDefault)
	}
	if req.Severity == "" {
		req.Severity = string(domain.SeverityMedium)
	}

	err := s.controller.InjectFault(r.Context(), domain.FaultKind(req.FaultType), domain.Severity(req.Severity))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": string(domain.StateFaultInjection)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.StateMonitoringHealthy)})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.StateIdle)})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Purge(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"purged": "true"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	storeStatus := "ok"
	if err := s.writer.Ping(r.Context()); err != nil {
		// Degraded, not down: the engine keeps working on memory state.
		storeStatus = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": "ok",
		"state":  s.controller.State(),
		"store":  storeStatus,
	})
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Attach(conn)
}
