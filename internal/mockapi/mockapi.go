// Package mockapi is a local stand-in for the FLUX backend. It honors
// the same wire contract the deployed FastAPI server does, so the
// client stack can be exercised end to end without a GPU or a tunnel.
package mockapi

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gstredny/flux-image-generator/internal/flux"
)

// A 1x1 transparent PNG, served as every generated image.
const tinyPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

const modelID = "black-forest-labs/FLUX.1-schnell"

// Options configure the simulated backend.
type Options struct {
	// LoadDelay is how long after start the model reports loaded.
	// Zero means ready immediately.
	LoadDelay time.Duration
	// StepsPerPoll is how much job progress advances on each
	// progress query. Zero uses 50 (two polls to completion).
	StepsPerPoll float64
}

type job struct {
	prompt   string
	seed     int64
	status   flux.JobStatus
	progress float64
}

// Server simulates the backend's state: a model that loads over time
// and a set of polled jobs.
type Server struct {
	opts    Options
	started time.Time

	mu   sync.Mutex
	jobs map[string]*job
}

// New builds a simulated backend.
func New(opts Options) *Server {
	if opts.StepsPerPoll <= 0 {
		opts.StepsPerPoll = 50
	}
	return &Server{opts: opts, started: time.Now(), jobs: make(map[string]*job)}
}

func (s *Server) ready() bool {
	return time.Since(s.started) >= s.opts.LoadDelay
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/generate", s.handleGenerate)
	r.Post("/generate/batch", s.handleBatch)
	r.Get("/progress/{id}", s.handleProgress)
	r.Get("/models", s.handleModels)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, flux.HealthInfo{
		Status:  "healthy",
		Model:   modelID,
		Device:  "cpu",
		Version: "1.0.0",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "loading",
			"model_loaded":  false,
			"models_loaded": false,
			"progress":      50,
			"message":       "Model is loading in background",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"model_loaded":  true,
		"models_loaded": true,
		"progress":      100,
		"message":       "Model is ready",
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"detail": "Model is still loading. Please wait a moment and try again.",
		})
		return
	}

	var req flux.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed request body"})
		return
	}
	if detail := validate(req); detail != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": detail})
		return
	}

	seed := req.Seed
	if seed < 0 {
		seed = rand.Int64N(1_000_000_000)
	}
	writeJSON(w, http.StatusOK, flux.GenerateResponse{
		Success:  true,
		Image:    tinyPNG,
		Seed:     &seed,
		Duration: 0.01,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Model is still loading"})
		return
	}

	var req flux.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed request body"})
		return
	}
	if len(req.Prompts) == 0 || len(req.Prompts) > 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "between 1 and 4 prompts required"})
		return
	}

	s.mu.Lock()
	ids := make([]string, len(req.Prompts))
	for i, prompt := range req.Prompts {
		id := uuid.NewString()
		s.jobs[id] = &job{prompt: prompt, seed: rand.Int64N(1_000_000_000), status: flux.JobQueued}
		ids[i] = id
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, flux.BatchResponse{Success: true, RequestIDs: ids})
}

// handleProgress advances the job on every query so poll loops observe
// queued -> processing -> completed without wall-clock waits.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Request ID not found"})
		return
	}

	switch j.status {
	case flux.JobQueued:
		j.status = flux.JobProcessing
	case flux.JobProcessing:
		j.progress += s.opts.StepsPerPoll
		if j.progress >= 100 {
			j.progress = 100
			j.status = flux.JobCompleted
		}
	}

	snap := flux.ProgressSnapshot{RequestID: id, Status: j.status, Progress: j.progress}
	if j.status == flux.JobCompleted {
		snap.Result = &flux.JobResult{
			// Prompt echoed into the payload so tests can verify the
			// result/prompt association survives polling order.
			Images:   []string{tinyPNG + "#" + j.prompt},
			Seed:     j.seed,
			Duration: 0.01,
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": []any{
			modelID,
			map[string]string{"id": "flux-krea-pro", "name": "FLUX KREA Pro", "status": "loaded"},
		},
	})
}

func validate(req flux.GenerateRequest) string {
	switch {
	case req.Prompt == "":
		return "prompt cannot be empty"
	case len(req.Prompt) > 1000:
		return "prompt too long"
	case req.Steps < 20 || req.Steps > 50:
		return "steps must be between 20 and 50"
	case req.CFGGuidance < 1.0 || req.CFGGuidance > 10.0:
		return "cfg_guidance must be between 1.0 and 10.0"
	case req.Width < 512 || req.Width > 2048 || req.Height < 512 || req.Height > 2048:
		return "dimensions must be between 512 and 2048"
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
