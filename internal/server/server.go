// Package server exposes the engine over HTTP for previewing and
// driving it: feature/cluster snapshots out, filter and view commands
// in. It is a thin harness over the engine's public API; rendering
// stays with the consumer.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapsync/internal/engine"
	"github.com/sells-group/mapsync/internal/feature"
	geotypes "github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/filter"
	"github.com/sells-group/mapsync/internal/view"
	"github.com/sells-group/mapsync/internal/viewsync"
)

// Server drives an engine over HTTP.
type Server struct {
	engine *engine.Engine
	store  *feature.Store
	filter *filter.Source
	camera *view.Camera
}

// New builds a server around the engine and its collaborators.
func New(e *engine.Engine, store *feature.Store, fs *filter.Source, cam *view.Camera) *Server {
	return &Server{engine: e, store: store, filter: fs, camera: cam}
}

// Router returns the chi router with all API routes mounted.
func (s *Server) Router(rateLimit float64) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
	}))
	if rateLimit > 0 {
		r.Use(limitMiddleware(rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit*2))))
	}
	r.Use(logMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/features", s.handleFeatures)
		r.Get("/clusters", s.handleClusters)
		r.Put("/filter", s.handleSetFilter)
		r.Delete("/filter", s.handleClearFilter)
		r.Post("/view", s.handleView)
		r.Post("/reframe", s.handleReframe)
		r.Post("/markers/{id}/activate", s.handleMarkerActivate)
		r.Post("/clusters/{id}/activate", s.handleClusterActivate)
	})
	return r
}

func limitMiddleware(lim *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func point(c geotypes.LngLat) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat})
}

// handleFeatures returns the full unfiltered feature set as GeoJSON.
func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	feats := s.store.All()
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(feats))}
	for _, f := range feats {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       f.ID,
			Geometry: point(f.Coord),
			Properties: map[string]interface{}{
				"name":  f.Name,
				"group": f.GroupKey,
				"kind":  f.Kind.String(),
			},
		})
	}
	writeJSON(w, &fc)
}

// handleClusters returns the latest clustering snapshot as GeoJSON:
// cluster centroids carry cluster=true and point_count, singletons are
// plain feature points, fading clusters carry fading=true.
func (s *Server) handleClusters(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, c := range snap.Clusters {
		fc.Features = append(fc.Features, clusterFeature(c.ID, c.GeoCentroid, c.Count(), false))
	}
	for _, c := range snap.Fading {
		fc.Features = append(fc.Features, clusterFeature(c.ID, c.GeoCentroid, c.Count(), true))
	}
	for _, id := range snap.Singletons {
		f, ok := s.store.Get(id)
		if !ok {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       f.ID,
			Geometry: point(f.Coord),
			Properties: map[string]interface{}{
				"cluster": false,
				"name":    f.Name,
				"group":   f.GroupKey,
			},
		})
	}
	writeJSON(w, &fc)
}

func clusterFeature(id string, c geotypes.LngLat, count int, fading bool) *geojson.Feature {
	return &geojson.Feature{
		ID:       id,
		Geometry: point(c),
		Properties: map[string]interface{}{
			"cluster":     true,
			"point_count": count,
			"fading":      fading,
		},
	}
}

type filterRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid filter body", http.StatusBadRequest)
		return
	}
	s.filter.Set(req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, _ *http.Request) {
	s.filter.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type viewRequest struct {
	Lng  float64 `json:"lng"`
	Lat  float64 `json:"lat"`
	Zoom float64 `json:"zoom"`
}

// handleView simulates a user pan/zoom gesture.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid view body", http.StatusBadRequest)
		return
	}
	c := geotypes.LngLat{Lng: req.Lng, Lat: req.Lat}
	if !c.Valid() {
		http.Error(w, "invalid coordinate", http.StatusBadRequest)
		return
	}
	s.engine.NotifyUserGesture()
	s.camera.JumpTo(c, req.Zoom)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReframe(w http.ResponseWriter, _ *http.Request) {
	s.engine.RequestReframe(viewsync.TriggerExplicitRefresh)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkerActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.store.Get(id); !ok {
		http.Error(w, "unknown feature", http.StatusNotFound)
		return
	}
	s.engine.NotifyMarkerActivated(id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClusterActivate(w http.ResponseWriter, r *http.Request) {
	s.engine.NotifyClusterActivated(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}
