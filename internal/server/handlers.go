package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/journey"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, map[string]any{
		"state":   s.machine.State(),
		"session": s.machine.Session(),
	})
}

func (s *Server) handleThreat(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if data := s.threatCache.Get(); data != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}
	writeJSON(w, s.engine.Latest())
}

func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.monitor.Current())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	source := model.SourceManual
	if r.URL.Query().Get("source") == "widget" {
		source = model.SourceWidget
	}
	s.adapters.Manual.Trigger(source, "api trigger")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if !s.machine.Cancel() {
		httpError(w, "no session to cancel", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if !s.machine.Resolve() {
		httpError(w, "no session to resolve", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJourneyStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var params journey.PlanParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	plan, err := s.monitor.Start(params)
	if err != nil {
		journeyError(w, err)
		return
	}
	writeJSON(w, plan)
}

func (s *Server) handleJourneyConfirm(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.monitor.ConfirmArrival(); err != nil {
		journeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJourneyCancel(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.monitor.Cancel(); err != nil {
		journeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJourneyExtend(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.monitor.ExtendTime(body.Minutes); err != nil {
		journeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJourneyCheckIn(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.monitor.RespondToCheckIn(body.OK); err != nil {
		journeyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sessions, err := s.history.RecentSessions(r.Context(), queryLimit(r))
	if err != nil {
		slog.Error("failed to load session history", "error", err)
		httpError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sessions)
}

func (s *Server) handleJourneyHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	journeys, err := s.history.RecentJourneys(r.Context(), queryLimit(r))
	if err != nil {
		slog.Error("failed to load journey history", "error", err)
		httpError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, journeys)
}

// handleStream pushes SOS state changes as server-sent events for live UI
// binding.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := s.machine.Subscribe()
	defer unsubscribe()

	// Send the current state immediately so late subscribers are not blind
	// until the next transition.
	initial, _ := json.Marshal(map[string]any{
		"state":   s.machine.State(),
		"session": s.machine.Session(),
	})
	fmt.Fprintf(w, "data: %s\n\n", initial)
	flusher.Flush()

	for {
		select {
		case change := <-updates:
			data, err := json.Marshal(change)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"state":  s.machine.State(),
	}
	if updatedAt := s.threatCache.UpdatedAt(); !updatedAt.IsZero() {
		resp["last_assessment"] = updatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	writeJSON(w, resp)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != method {
		httpError(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func journeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, journey.ErrPlanActive):
		httpError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, journey.ErrNoPlan), errors.Is(err, journey.ErrNoPendingCheckIn):
		httpError(w, err.Error(), http.StatusConflict)
	default:
		httpError(w, err.Error(), http.StatusBadRequest)
	}
}

func queryLimit(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
