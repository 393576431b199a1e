package uiapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/awaistahir/heatpilot/internal/config"
	"github.com/awaistahir/heatpilot/internal/engine"
	"github.com/awaistahir/heatpilot/internal/heisha"
	"github.com/awaistahir/heatpilot/internal/history"
	"github.com/awaistahir/heatpilot/internal/learning"
	"github.com/awaistahir/heatpilot/internal/weather"
)

// Server exposes the controller's state over HTTP: algorithm status, the
// last decision, stored history and model accuracy.
type Server struct {
	cfg       config.Config
	predictor *engine.Predictor
	store     *history.Store
	learner   *learning.Engine
	weather   *weather.Client
	device    *heisha.Client
}

// NewServer creates the API server. device may be nil when running without
// a broker connection.
func NewServer(cfg config.Config, predictor *engine.Predictor, store *history.Store,
	learner *learning.Engine, wc *weather.Client, device *heisha.Client) *Server {
	return &Server{
		cfg:       cfg,
		predictor: predictor,
		store:     store,
		learner:   learner,
		weather:   wc,
		device:    device,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/prediction", s.handlePrediction)
		r.Get("/history", s.handleHistory)
		r.Get("/learning", s.handleLearning)
		r.Get("/config", s.handleConfig)
		r.Get("/forecast", s.handleForecast)
		r.Get("/device", s.handleDevice)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.predictor.Status())
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	status := s.predictor.Status()
	if status.LastDecision == nil {
		respondError(w, http.StatusNotFound, "no prediction cycle has completed yet")
		return
	}
	respondJSON(w, http.StatusOK, status.LastDecision)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":        s.store.Len(),
		"observations": s.store.Latest(limit),
	})
}

func (s *Server) handleLearning(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"confidence":      s.learner.Confidence(),
		"samples":         s.learner.Samples(),
		"models":          s.learner.Models(),
		"recommendations": s.learner.Recommendations(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Credentials stay out of the API surface.
	cfg := s.cfg
	cfg.MQTT.Password = ""
	cfg.Weather.APIKey = ""
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	entries, err := s.weather.Forecast(r.Context(), s.cfg.Advanced.PredictionHorizonHours)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		respondError(w, http.StatusServiceUnavailable, "no device connection")
		return
	}
	respondJSON(w, http.StatusOK, s.device.Status())
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
