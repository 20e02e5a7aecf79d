package server

import (
	"net/http"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/cache"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/config"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/journey"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/platform"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/sos"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/store"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/threat"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

// Server exposes the safety core to the UI layer: live state, manual entry
// points, journey actions, history, and health.
type Server struct {
	cfg         *config.Config
	machine     *sos.Machine
	engine      *threat.Engine
	monitor     *journey.Monitor
	adapters    *trigger.Adapters
	device      *platform.Device
	history     store.Store
	threatCache *cache.Cache
	metrics     http.Handler
}

func New(cfg *config.Config, machine *sos.Machine, engine *threat.Engine, monitor *journey.Monitor, adapters *trigger.Adapters, device *platform.Device, history store.Store, threatCache *cache.Cache, metrics http.Handler) *Server {
	return &Server{
		cfg:         cfg,
		machine:     machine,
		engine:      engine,
		monitor:     monitor,
		adapters:    adapters,
		device:      device,
		history:     history,
		threatCache: threatCache,
		metrics:     metrics,
	}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/threat", s.handleThreat)
	mux.HandleFunc("/api/journey", s.handleJourney)
	mux.HandleFunc("/api/sos/trigger", s.handleTrigger)
	mux.HandleFunc("/api/sos/cancel", s.handleCancel)
	mux.HandleFunc("/api/sos/resolve", s.handleResolve)
	mux.HandleFunc("/api/journey/start", s.handleJourneyStart)
	mux.HandleFunc("/api/journey/confirm", s.handleJourneyConfirm)
	mux.HandleFunc("/api/journey/cancel", s.handleJourneyCancel)
	mux.HandleFunc("/api/journey/extend", s.handleJourneyExtend)
	mux.HandleFunc("/api/journey/checkin", s.handleJourneyCheckIn)
	mux.HandleFunc("/api/history/sessions", s.handleSessionHistory)
	mux.HandleFunc("/api/history/journeys", s.handleJourneyHistory)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/ingest/motion", s.handleIngestMotion)
	mux.HandleFunc("/api/ingest/location", s.handleIngestLocation)
	mux.HandleFunc("/api/ingest/key", s.handleIngestKey)
	mux.HandleFunc("/api/ingest/speech", s.handleIngestSpeech)
	mux.HandleFunc("/api/ingest/wearable", s.handleIngestWearable)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return s.corsMiddleware(mux)
}
