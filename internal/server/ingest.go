package server

import (
	"encoding/json"
	"net/http"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

// Ingestion endpoints carry already-decoded device events into the core:
// the companion app posts sensor samples, key events, recognized speech, and
// wearable notifications here. Raw protocol decoding stays on the device.

func (s *Server) handleIngestMotion(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Accel float64 `json:"accel"` // magnitude, m/s^2
		Gyro  float64 `json:"gyro"`  // magnitude, rad/s
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.adapters.Shake != nil {
		s.adapters.Shake.HandleSample(body.Accel)
	}
	assessment := s.engine.AddMotionSample(body.Accel, body.Gyro)
	writeJSON(w, assessment)
}

func (s *Server) handleIngestLocation(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Location model.Location `json:"location"`
		Speed    float64        `json:"speed"` // m/s
		Battery  *int           `json:"battery,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.device != nil {
		s.device.UpdateLocation(body.Location)
		if body.Battery != nil {
			s.device.SetBattery(*body.Battery)
		}
	}
	assessment := s.engine.AddLocationSample(body.Location, body.Speed)
	writeJSON(w, assessment)
}

func (s *Server) handleIngestKey(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.adapters.Button != nil {
		s.adapters.Button.HandleKey(body.Code)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleIngestSpeech(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Text    string `json:"text"`
		Partial bool   `json:"partial"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	match := trigger.MatchNone
	if s.adapters.Phrase != nil {
		match = s.adapters.Phrase.HandleUtterance(body.Text, body.Partial)
	}
	writeJSON(w, map[string]any{"match": match})
}

func (s *Server) handleIngestWearable(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Signal trigger.WearableSignal `json:"signal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signal == "" {
		httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.adapters.Wearable != nil {
		s.adapters.Wearable.HandleSignal(body.Signal)
	}
	w.WriteHeader(http.StatusAccepted)
}
