// Package viewsync translates filter state into camera instructions.
// It owns the decision of whether to reframe at all, and defers rather
// than fails when the projector is not ready during initial load.
package viewsync

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/feature"
	"github.com/sells-group/mapsync/internal/gate"
	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
	"github.com/sells-group/mapsync/internal/resilience"
	"github.com/sells-group/mapsync/internal/view"
)

// Trigger identifies why a reconcile was requested.
type Trigger int

const (
	// TriggerInitialLoad is the first reconcile after features load.
	TriggerInitialLoad Trigger = iota
	// TriggerFilterChanged follows an external filter mutation.
	TriggerFilterChanged
	// TriggerExplicitRefresh is an explicit refresh request.
	TriggerExplicitRefresh
)

// FilterSource is the pull-only view of the external filter state.
type FilterSource interface {
	Active() bool
	MatchingIDs() map[string]struct{}
}

// Config tunes reframing behavior.
type Config struct {
	// PaddingFraction pads fit-to-bounds as a fraction of each
	// viewport edge.
	PaddingFraction float64
	// MaxFitZoom caps the zoom a fit may reach, so 1-2 matching
	// points don't zoom in absurdly far.
	MaxFitZoom float64
	// MoveDuration bounds every camera animation.
	MoveDuration time.Duration
	// DefaultCenter and DefaultZoom are the reset camera position.
	DefaultCenter geo.LngLat
	DefaultZoom   float64
	// Retry schedules reconcile attempts while the projector is not
	// ready yet.
	Retry resilience.Policy
}

// Synchronizer reconciles the camera with the current filter state.
// All methods must be called on the loop goroutine.
type Synchronizer struct {
	loop   *loop.Loop
	store  *feature.Store
	filter FilterSource
	proj   view.Projector
	gate   *gate.Gate
	cfg    Config

	// clearClusters proactively drops carried cluster state before a
	// deep zoom-in so stale clusters don't linger at the wrong scale.
	clearClusters func()

	reconciled bool
	attempts   int
	retry      *loop.Task
}

// New returns a synchronizer. clearClusters may be nil.
func New(l *loop.Loop, store *feature.Store, fs FilterSource, proj view.Projector, g *gate.Gate, cfg Config, clearClusters func()) *Synchronizer {
	return &Synchronizer{
		loop:          l,
		store:         store,
		filter:        fs,
		proj:          proj,
		gate:          g,
		cfg:           cfg,
		clearClusters: clearClusters,
	}
}

// Reconcile decides and executes at most one camera movement for the
// trigger. The downstream clustering recompute is not scheduled here:
// it rides on the projector's view-settled notification, which only
// fires once the new view state has fully applied.
func (s *Synchronizer) Reconcile(t Trigger) {
	if !s.proj.Ready() {
		delay, ok := s.cfg.Retry.Next(s.attempts)
		if !ok {
			// Degrade: the initial camera position is an acceptable
			// default.
			zap.L().Warn("view: projector never became ready, skipping reframe")
			s.attempts = 0
			return
		}
		s.attempts++
		if s.retry != nil {
			s.retry.Cancel()
		}
		s.retry = s.loop.Schedule(delay, func() { s.Reconcile(t) })
		return
	}
	s.attempts = 0
	if s.retry != nil {
		s.retry.Cancel()
		s.retry = nil
	}

	active := s.filterActive()
	if t == TriggerInitialLoad && !active {
		// Stay at the default camera position.
		s.reconciled = true
		return
	}

	// Visible-subset coordinates come from the feature store, never
	// from possibly-stale clustering output.
	var coords []geo.LngLat
	if active {
		ids := s.matchingIDs()
		for _, f := range s.store.All() {
			if _, ok := ids[f.ID]; ok {
				coords = append(coords, f.Coord)
			}
		}
	}

	first := !s.reconciled
	s.reconciled = true

	b, ok := geo.BoundsOf(coords)
	if !ok {
		if first && !active {
			return
		}
		zap.L().Info("view: empty visible subset, resetting camera",
			zap.Stringer("reason", reasonFor(t)),
		)
		s.gate.Set(reasonFor(t))
		s.proj.FlyTo(s.cfg.DefaultCenter, s.cfg.DefaultZoom, s.cfg.MoveDuration)
		return
	}

	target := s.proj.FitZoom(b, s.cfg.PaddingFraction)
	if s.cfg.MaxFitZoom > 0 && target > s.cfg.MaxFitZoom {
		target = s.cfg.MaxFitZoom
	}
	if target > s.proj.Zoom()+1 && s.clearClusters != nil {
		s.clearClusters()
	}

	zap.L().Info("view: fitting to filtered subset",
		zap.Int("points", len(coords)),
		zap.Float64("target_zoom", target),
	)
	s.gate.Set(reasonFor(t))
	s.proj.FitTo(b, view.FitOptions{
		PaddingFraction: s.cfg.PaddingFraction,
		MaxZoom:         s.cfg.MaxFitZoom,
		Duration:        s.cfg.MoveDuration,
	})
}

func reasonFor(t Trigger) gate.Reason {
	if t == TriggerFilterChanged {
		return gate.FilterReframe
	}
	return gate.ProgrammaticReframe
}

// filterActive isolates the collaborator call; a panicking filter
// source is treated as inactive for this pass.
func (s *Synchronizer) filterActive() (active bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("view: filter source panicked in Active", zap.Any("panic", r))
			active = false
		}
	}()
	return s.filter.Active()
}

// matchingIDs isolates the collaborator call; a panicking filter source
// is treated as matching nothing for this pass.
func (s *Synchronizer) matchingIDs() (ids map[string]struct{}) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("view: filter source panicked in MatchingIDs", zap.Any("panic", r))
			ids = nil
		}
	}()
	return s.filter.MatchingIDs()
}
