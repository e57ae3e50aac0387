// Package engine wires the feature store, clustering pass, view
// synchronizer, interaction gate, and debounce layer into the public
// marker-clustering engine surface.
package engine

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/cluster"
	"github.com/sells-group/mapsync/internal/debounce"
	"github.com/sells-group/mapsync/internal/feature"
	"github.com/sells-group/mapsync/internal/gate"
	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
	"github.com/sells-group/mapsync/internal/resilience"
	"github.com/sells-group/mapsync/internal/view"
	"github.com/sells-group/mapsync/internal/viewsync"
)

// Debounce slot names. Distinct slots never cancel each other.
const (
	slotViewSettle = "view-settle"
	slotFilter     = "filter"
	slotLoad       = "load"
)

// Config tunes the engine. Zero values fall back to DefaultConfig.
type Config struct {
	// ClusterThresholdPx is the screen-space merge distance T.
	ClusterThresholdPx float64 `yaml:"cluster_threshold_px" mapstructure:"cluster_threshold_px"`
	// MinZoom hides all markers below this zoom on wide viewports.
	MinZoom float64 `yaml:"min_zoom" mapstructure:"min_zoom"`
	// MinZoomNarrow is the cutover zoom for narrow (mobile) viewports.
	MinZoomNarrow float64 `yaml:"min_zoom_narrow" mapstructure:"min_zoom_narrow"`
	// NarrowViewportPx is the width below which a viewport is narrow.
	NarrowViewportPx float64 `yaml:"narrow_viewport_px" mapstructure:"narrow_viewport_px"`
	// PaddingFraction pads reframe bounds per viewport edge.
	PaddingFraction float64 `yaml:"padding_fraction" mapstructure:"padding_fraction"`
	// MaxFitZoom caps the zoom of any fit-to-bounds.
	MaxFitZoom float64 `yaml:"max_fit_zoom" mapstructure:"max_fit_zoom"`
	// FocusZoom is the zoom used when navigating to a single marker.
	FocusZoom float64 `yaml:"focus_zoom" mapstructure:"focus_zoom"`
	// MoveDuration bounds camera animations.
	MoveDuration time.Duration `yaml:"move_duration" mapstructure:"move_duration"`
	// SettleDelay waits after view-settle before reclustering; the
	// projector's mapping is only valid once the animation has fully
	// applied the new view state.
	SettleDelay time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	// DebounceWindow coalesces filter-change bursts.
	DebounceWindow time.Duration `yaml:"debounce_window" mapstructure:"debounce_window"`
	// FadeGrace keeps retired clusters around long enough for the
	// rendering layer to animate their removal.
	FadeGrace time.Duration `yaml:"fade_grace" mapstructure:"fade_grace"`
	// PollInterval is the capped fallback interval used when the
	// filter source offers no change notification hook.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// DefaultCenter and DefaultZoom are the reset camera position.
	DefaultCenter geo.LngLat `yaml:"default_center" mapstructure:"default_center"`
	DefaultZoom   float64    `yaml:"default_zoom" mapstructure:"default_zoom"`

	Gate  gate.Config       `yaml:"gate" mapstructure:"gate"`
	Retry resilience.Policy `yaml:"retry" mapstructure:"retry"`
}

// DefaultConfig returns the tuning used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ClusterThresholdPx: 60,
		MinZoom:            5,
		MinZoomNarrow:      6,
		NarrowViewportPx:   768,
		PaddingFraction:    0.1,
		MaxFitZoom:         14,
		FocusZoom:          12,
		MoveDuration:       600 * time.Millisecond,
		SettleDelay:        150 * time.Millisecond,
		DebounceWindow:     200 * time.Millisecond,
		FadeGrace:          400 * time.Millisecond,
		PollInterval:       2 * time.Second,
		DefaultCenter:      geo.LngLat{Lng: 0, Lat: 0},
		DefaultZoom:        2,
		Gate:               gate.DefaultConfig(),
		Retry:              resilience.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ClusterThresholdPx <= 0 {
		c.ClusterThresholdPx = d.ClusterThresholdPx
	}
	if c.MinZoomNarrow <= 0 {
		c.MinZoomNarrow = d.MinZoomNarrow
	}
	if c.NarrowViewportPx <= 0 {
		c.NarrowViewportPx = d.NarrowViewportPx
	}
	if c.PaddingFraction <= 0 {
		c.PaddingFraction = d.PaddingFraction
	}
	if c.MaxFitZoom <= 0 {
		c.MaxFitZoom = d.MaxFitZoom
	}
	if c.FocusZoom <= 0 {
		c.FocusZoom = d.FocusZoom
	}
	if c.MoveDuration <= 0 {
		c.MoveDuration = d.MoveDuration
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.FadeGrace <= 0 {
		c.FadeGrace = d.FadeGrace
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	} else if c.PollInterval < 250*time.Millisecond {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Gate == (gate.Config{}) {
		c.Gate = d.Gate
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	return c
}

// FilterNotifier is the optional push channel of a filter source. When
// a source does not implement it, the engine falls back to polling at
// a capped interval.
type FilterNotifier interface {
	OnFilterChanged(fn func())
}

// SelectionSink receives marker/cluster activations. The engine does
// not know what the sink does with them.
type SelectionSink interface {
	SelectFeature(featureID string)
	SelectGroup(groupKey string)
}

// Snapshot is one published clustering result. Fading clusters are
// retired identities kept visible for the fade-out grace period.
type Snapshot struct {
	Clusters   []cluster.Cluster `json:"clusters"`
	Singletons []string          `json:"singletons"`
	Fading     []cluster.Cluster `json:"fading,omitempty"`
}

type fade struct {
	c    cluster.Cluster
	task *loop.Task
}

// Engine is the marker clustering and view-synchronization engine. All
// internal state is confined to the loop goroutine; the exported
// methods are safe to call from anywhere.
type Engine struct {
	cfg    Config
	loop   *loop.Loop
	store  *feature.Store
	proj   view.Projector
	filter viewsync.FilterSource
	sink   SelectionSink
	gate   *gate.Gate
	deb    *debounce.Debouncer
	sync   *viewsync.Synchronizer

	// Loop-confined clustering state.
	prev     []cluster.Cluster
	fading   map[string]*fade
	eligible bool

	pollTask *loop.Task
	pollFP   uint64

	mu   sync.Mutex
	last Snapshot
	subs []func(Snapshot)
}

// New builds an engine on the given loop. sink may be nil.
func New(l *loop.Loop, cfg Config, store *feature.Store, proj view.Projector, fs viewsync.FilterSource, sink SelectionSink) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		loop:     l,
		store:    store,
		proj:     proj,
		filter:   fs,
		sink:     sink,
		gate:     gate.New(l, cfg.Gate),
		deb:      debounce.New(l),
		fading:   make(map[string]*fade),
		eligible: true,
	}
	e.sync = viewsync.New(l, store, fs, proj, e.gate, viewsync.Config{
		PaddingFraction: cfg.PaddingFraction,
		MaxFitZoom:      cfg.MaxFitZoom,
		MoveDuration:    cfg.MoveDuration,
		DefaultCenter:   cfg.DefaultCenter,
		DefaultZoom:     cfg.DefaultZoom,
		Retry:           cfg.Retry,
	}, e.clearClusters)
	return e
}

// Start subscribes the engine to its collaborators' event streams.
func (e *Engine) Start() {
	e.proj.OnViewSettled(e.handleViewSettled)
	if n, ok := e.filter.(FilterNotifier); ok {
		n.OnFilterChanged(func() {
			e.loop.Post(e.handleFilterChanged)
		})
	} else {
		// Degraded fallback: no push hook, poll at a capped interval.
		zap.L().Info("engine: filter source has no change hook, polling",
			zap.Duration("interval", e.cfg.PollInterval),
		)
		e.loop.Post(func() {
			e.pollFP = e.filterFingerprint()
			e.schedulePoll()
		})
	}
}

// Gate exposes the interaction-reason state machine so that the map
// shell can tag genuine user gestures.
func (e *Engine) Gate() *gate.Gate { return e.gate }

// LoadFeatures replaces the feature store wholesale and performs the
// initial-load reconcile.
func (e *Engine) LoadFeatures(feats []feature.Feature) {
	e.store.Replace(feats)
	zap.L().Info("engine: features loaded", zap.Int("count", len(feats)))
	e.loop.Post(func() {
		e.sync.Reconcile(viewsync.TriggerInitialLoad)
		e.deb.Trigger(slotLoad, e.cfg.SettleDelay, e.recompute)
	})
}

// OnClustersUpdated registers a rendering hook. Callbacks run on the
// loop goroutine and must not block.
func (e *Engine) OnClustersUpdated(fn func(Snapshot)) {
	e.mu.Lock()
	e.subs = append(e.subs, fn)
	e.mu.Unlock()
}

// Snapshot returns the most recently published clustering result.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// RequestReframe is the external explicit-refresh entry point.
func (e *Engine) RequestReframe(t viewsync.Trigger) {
	e.loop.Post(func() { e.sync.Reconcile(t) })
}

// NotifyUserGesture tags the upcoming view change as user-driven. The
// map shell calls this when a drag or wheel zoom begins.
func (e *Engine) NotifyUserGesture() {
	e.loop.Post(func() { e.gate.Set(gate.UserGesture) })
}

// NotifyMarkerActivated handles a click on a singleton marker: it
// drives the selection sink and navigates the camera to the feature.
// The MarkerNavigation reason suppresses the filter-change echo this
// produces, so no second reframe is issued.
func (e *Engine) NotifyMarkerActivated(featureID string) {
	e.loop.Post(func() {
		f, ok := e.store.Get(featureID)
		if !ok {
			zap.L().Warn("engine: activated unknown marker", zap.String("feature_id", featureID))
			return
		}
		e.gate.Set(gate.MarkerNavigation)
		e.notifySink(f)
		zoom := e.proj.Zoom()
		if zoom < e.cfg.FocusZoom {
			zoom = e.cfg.FocusZoom
		}
		e.proj.FlyTo(f.Coord, zoom, e.cfg.MoveDuration)
	})
}

// NotifyClusterActivated handles a click on a cluster marker: the
// camera zooms to frame the members, and if every member shares one
// group the sink gets a group selection.
func (e *Engine) NotifyClusterActivated(clusterID string) {
	e.loop.Post(func() {
		var target *cluster.Cluster
		for i := range e.prev {
			if e.prev[i].ID == clusterID {
				target = &e.prev[i]
				break
			}
		}
		if target == nil {
			zap.L().Warn("engine: activated unknown cluster", zap.String("cluster_id", clusterID))
			return
		}

		coords := make([]geo.LngLat, 0, len(target.Members))
		groupKey := ""
		sameGroup := true
		for i, id := range target.Members {
			f, ok := e.store.Get(id)
			if !ok {
				continue
			}
			coords = append(coords, f.Coord)
			if i == 0 {
				groupKey = f.GroupKey
			} else if f.GroupKey != groupKey {
				sameGroup = false
			}
		}
		b, ok := geo.BoundsOf(coords)
		if !ok {
			return
		}

		e.gate.Set(gate.MarkerNavigation)
		if sameGroup && groupKey != "" && e.sink != nil {
			e.sink.SelectGroup(groupKey)
		}
		e.proj.FitTo(b, view.FitOptions{
			PaddingFraction: e.cfg.PaddingFraction,
			MaxZoom:         e.cfg.MaxFitZoom,
			Duration:        e.cfg.MoveDuration,
		})
	})
}

// Stop cancels outstanding timers. The loop itself is owned by the
// caller.
func (e *Engine) Stop() {
	e.loop.Post(func() {
		if e.pollTask != nil {
			e.pollTask.Cancel()
		}
		for _, f := range e.fading {
			f.task.Cancel()
		}
		e.deb.Cancel(slotViewSettle)
		e.deb.Cancel(slotFilter)
		e.deb.Cancel(slotLoad)
	})
}

func (e *Engine) notifySink(f feature.Feature) {
	if e.sink == nil {
		return
	}
	if f.Kind == feature.KindGroup && f.GroupKey != "" {
		e.sink.SelectGroup(f.GroupKey)
		return
	}
	e.sink.SelectFeature(f.ID)
}

// handleViewSettled runs on the loop goroutine after every completed
// camera movement.
func (e *Engine) handleViewSettled() {
	switch e.gate.Current() {
	case gate.ProgrammaticReframe, gate.FilterReframe, gate.UserGesture:
		// The move is done; stop suppressing.
		e.gate.Clear()
	case gate.MarkerNavigation:
		// Left to its own expiry: the downstream filter-apply side
		// effects of a marker click land after the camera settles.
	}
	e.deb.Trigger(slotViewSettle, e.cfg.SettleDelay, e.recompute)
}

// handleFilterChanged runs on the loop goroutine for every filter
// mutation notification.
func (e *Engine) handleFilterChanged() {
	if e.gate.Current() == gate.MarkerNavigation {
		// Self-caused: the marker click already drove its own
		// selection and reframe.
		zap.L().Debug("engine: ignoring filter change during marker navigation")
		return
	}
	e.deb.Trigger(slotFilter, e.cfg.DebounceWindow, func() {
		e.sync.Reconcile(viewsync.TriggerFilterChanged)
	})
}

func (e *Engine) schedulePoll() {
	e.pollTask = e.loop.Schedule(e.cfg.PollInterval, func() {
		fp := e.filterFingerprint()
		if fp != e.pollFP {
			e.pollFP = fp
			e.handleFilterChanged()
		}
		e.schedulePoll()
	})
}

func (e *Engine) filterFingerprint() uint64 {
	h := fnv.New64a()
	if e.filterActive() {
		_, _ = h.Write([]byte{1})
	}
	ids := make([]string, 0)
	for id := range e.matchingIDs() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func (e *Engine) minZoom() float64 {
	if e.proj.Viewport().Width < e.cfg.NarrowViewportPx {
		return e.cfg.MinZoomNarrow
	}
	return e.cfg.MinZoom
}

// clearClusters drops all carried cluster state immediately, canceling
// pending fade-outs, and publishes an empty snapshot.
func (e *Engine) clearClusters() {
	for _, f := range e.fading {
		f.task.Cancel()
	}
	e.fading = make(map[string]*fade)
	e.prev = nil
	e.publish(nil, nil)
}

// recompute performs one full clustering pass against the current view
// state and filter and publishes the result. It never mutates the
// feature store or the view state.
func (e *Engine) recompute() {
	if !e.proj.Ready() {
		zap.L().Debug("engine: recompute skipped, projector not ready")
		return
	}

	// Hard eligibility cutover at the minimum zoom.
	if e.proj.Zoom() < e.minZoom() {
		if e.eligible {
			e.eligible = false
			zap.L().Debug("engine: below minimum zoom, hiding all markers")
			for _, c := range e.prev {
				e.retire(c)
			}
			e.prev = nil
			e.publish(nil, nil)
		}
		return
	}
	if !e.eligible {
		// Crossing back up re-evaluates from scratch; prev is already
		// empty so no stale identities survive the hide/show cycle.
		e.eligible = true
	}

	points := e.eligiblePoints()

	// Re-project carried centroids for this frame; screen geometry is
	// never reused across frames.
	prev := make([]cluster.Cluster, 0, len(e.prev))
	for _, c := range e.prev {
		sp, err := e.proj.Project(c.GeoCentroid)
		if err != nil {
			continue
		}
		c.ScreenCentroid = sp
		prev = append(prev, c)
	}

	res := cluster.Compute(points, e.cfg.ClusterThresholdPx, prev, e.proj.Unproject)

	// A surviving identity cancels any pending removal for it.
	for _, c := range res.Clusters {
		if f, ok := e.fading[c.ID]; ok {
			f.task.Cancel()
			delete(e.fading, c.ID)
		}
	}
	for _, c := range res.Retired {
		e.retire(c)
	}

	e.prev = res.Clusters
	e.publish(res.Clusters, res.Singletons)
}

// eligiblePoints projects every feature that passes the filter gate.
// Features the projector rejects are logged and excluded; the pass
// continues for the rest of the set.
func (e *Engine) eligiblePoints() []cluster.Point {
	active := e.filterActive()
	var ids map[string]struct{}
	if active {
		ids = e.matchingIDs()
	}

	feats := e.store.All()
	points := make([]cluster.Point, 0, len(feats))
	for _, f := range feats {
		if active {
			if _, ok := ids[f.ID]; !ok {
				continue
			}
		}
		sp, err := e.proj.Project(f.Coord)
		if err != nil {
			zap.L().Warn("engine: excluding unprojectable feature",
				zap.String("feature_id", f.ID),
				zap.Error(err),
			)
			continue
		}
		points = append(points, cluster.Point{FeatureID: f.ID, Screen: sp, Coord: f.Coord})
	}
	return points
}

// retire schedules a fade-out removal for a cluster that lost its
// identity. The removal is cancelable: a later pass that re-claims the
// id keeps the cluster alive.
func (e *Engine) retire(c cluster.Cluster) {
	if _, ok := e.fading[c.ID]; ok {
		return
	}
	id := c.ID
	f := &fade{c: c}
	f.task = e.loop.Schedule(e.cfg.FadeGrace, func() {
		delete(e.fading, id)
		e.publishCurrent()
	})
	e.fading[id] = f
}

func (e *Engine) publish(clusters []cluster.Cluster, singletons []string) {
	snap := Snapshot{Clusters: clusters, Singletons: singletons}
	for _, f := range e.fading {
		snap.Fading = append(snap.Fading, f.c)
	}
	e.mu.Lock()
	e.last = snap
	subs := make([]func(Snapshot), len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (e *Engine) publishCurrent() {
	e.mu.Lock()
	clusters, singletons := e.last.Clusters, e.last.Singletons
	e.mu.Unlock()
	e.publish(clusters, singletons)
}

// filterActive isolates the collaborator call like the synchronizer
// does; a panicking source matches nothing for this pass.
func (e *Engine) filterActive() (active bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("engine: filter source panicked in Active", zap.Any("panic", r))
			active = false
		}
	}()
	return e.filter.Active()
}

func (e *Engine) matchingIDs() (ids map[string]struct{}) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("engine: filter source panicked in MatchingIDs", zap.Any("panic", r))
			ids = nil
		}
	}()
	return e.filter.MatchingIDs()
}
