// Package server exposes written layers and the run manifest over HTTP
// and can start new runs in the background.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/writer"
)

// Runner runs one analysis to completion and returns its run id.
type Runner func(ctx context.Context) (string, error)

// Run states.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// RunStatus describes the latest run started through the API.
type RunStatus struct {
	State      string     `json:"state"`
	RunID      string     `json:"run_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// LayerInfo summarizes one written layer.
type LayerInfo struct {
	Name         string `json:"name"`
	Features     int    `json:"features"`
	GeometryType string `json:"geometry_type"`
	Error        string `json:"error,omitempty"`
}

// Options configures a Server.
type Options struct {
	// Dir holds the outputs and their manifest.
	Dir            string
	AllowedOrigins []string
	// Runner is nil when runs cannot be started from the API.
	Runner Runner
}

// Server serves the outputs of Dir.
type Server struct {
	ctx  context.Context
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	status RunStatus
	done   chan struct{}
}

// New returns a server. Runs started through the API are cancelled with ctx.
func New(ctx context.Context, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		ctx:    ctx,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "server")),
		status: RunStatus{State: StateIdle},
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/manifest", s.getManifest)
	r.Get("/api/layers", s.listLayers)
	r.Get("/api/layers/{name}", s.getLayer)
	r.Post("/api/runs", s.startRun)
	r.Get("/api/runs/latest", s.latestRun)
	return r
}

func (s *Server) manifest(w http.ResponseWriter) (*writer.Manifest, bool) {
	path := filepath.Join(s.opts.Dir, writer.ManifestName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no run has been written yet"})
		return nil, false
	}
	m, err := writer.ReadManifest(path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to read manifest",
			Details: map[string]any{"internal": err.Error()},
		})
		return nil, false
	}
	return m, true
}

// getManifest handles GET /api/manifest
func (s *Server) getManifest(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manifest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// listLayers handles GET /api/layers
func (s *Server) listLayers(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manifest(w)
	if !ok {
		return
	}
	out := make([]LayerInfo, len(m.Layers))
	for i, l := range m.Layers {
		out[i] = LayerInfo{Name: l.Name, Features: l.Features, GeometryType: l.GeometryType, Error: l.Error}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": m.RunID,
		"layers": out,
		"count":  len(out),
	})
}

// getLayer handles GET /api/layers/{name}
// Returns the layer as a GeoJSON feature collection.
func (s *Server) getLayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := s.manifest(w)
	if !ok {
		return
	}

	var entry *writer.ManifestLayer
	for i := range m.Layers {
		if m.Layers[i].Name == name && m.Layers[i].Error == "" {
			entry = &m.Layers[i]
			break
		}
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "layer not found",
			Details: map[string]any{"layer": name},
		})
		return
	}

	var (
		data []byte
		err  error
	)
	switch m.Format {
	case writer.FormatGeoJSON:
		data, err = os.ReadFile(entry.Target)
	case writer.FormatShapefile:
		data, err = shapefileGeoJSON(entry.Target)
	default:
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{
			Error:   "layers of this format are not served",
			Details: map[string]any{"format": m.Format},
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to read layer",
			Details: map[string]any{"layer": name, "internal": err.Error()},
		})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func shapefileGeoJSON(path string) ([]byte, error) {
	l, err := layer.ReadShapefile(path)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range l.Features {
		g := f.Geometry
		if g == nil {
			g = orb.Collection{}
		}
		feat := geojson.NewFeature(g)
		for k, v := range f.Properties {
			feat.Properties[k] = v
		}
		fc.Append(feat)
	}
	return fc.MarshalJSON()
}

// startRun handles POST /api/runs
// Starts a run in the background; only one runs at a time.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runner == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "runs are disabled"})
		return
	}

	s.mu.Lock()
	if s.status.State == StateRunning {
		status := s.status
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "a run is already in progress",
			Details: map[string]any{"started_at": status.StartedAt},
		})
		return
	}
	now := time.Now().UTC()
	s.status = RunStatus{State: StateRunning, StartedAt: &now}
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		runID, err := s.opts.Runner(s.ctx)
		finished := time.Now().UTC()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.status.RunID = runID
		s.status.FinishedAt = &finished
		if err != nil {
			s.status.State = StateFailed
			s.status.Error = err.Error()
			s.log.Error("run failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		s.status.State = StateSucceeded
		s.log.Info("run complete",
			zap.String("run_id", runID),
			zap.Duration("duration", finished.Sub(now)),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// latestRun handles GET /api/runs/latest
func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, status)
}

// Wait blocks until the run in progress, if any, returns.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
