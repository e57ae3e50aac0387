package viewsync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapsync/internal/feature"
	"github.com/sells-group/mapsync/internal/gate"
	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
	"github.com/sells-group/mapsync/internal/resilience"
	"github.com/sells-group/mapsync/internal/view"
)

type fitCall struct {
	bounds geo.BBox
	opts   view.FitOptions
}

type flyCall struct {
	center geo.LngLat
	zoom   float64
}

// fakeProjector records camera commands instead of executing them.
type fakeProjector struct {
	mu      sync.Mutex
	ready   bool
	zoom    float64
	fitZoom float64
	fits    []fitCall
	flys    []flyCall
}

func (p *fakeProjector) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakeProjector) setReady(r bool) {
	p.mu.Lock()
	p.ready = r
	p.mu.Unlock()
}

func (p *fakeProjector) Project(c geo.LngLat) (geo.ScreenPoint, error) {
	return geo.ScreenPoint{X: c.Lng, Y: c.Lat}, nil
}

func (p *fakeProjector) Unproject(sp geo.ScreenPoint) geo.LngLat {
	return geo.LngLat{Lng: sp.X, Lat: sp.Y}
}

func (p *fakeProjector) Zoom() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

func (p *fakeProjector) Viewport() geo.Viewport {
	return geo.Viewport{Width: 1000, Height: 800}
}

func (p *fakeProjector) FitZoom(geo.BBox, float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fitZoom
}

func (p *fakeProjector) FitTo(b geo.BBox, opts view.FitOptions) {
	p.mu.Lock()
	p.fits = append(p.fits, fitCall{bounds: b, opts: opts})
	p.mu.Unlock()
}

func (p *fakeProjector) FlyTo(c geo.LngLat, zoom float64, _ time.Duration) {
	p.mu.Lock()
	p.flys = append(p.flys, flyCall{center: c, zoom: zoom})
	p.mu.Unlock()
}

func (p *fakeProjector) OnViewSettled(func()) {}

func (p *fakeProjector) fitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fits)
}

func (p *fakeProjector) flyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.flys)
}

// fakeFilter is a mutable FilterSource for tests.
type fakeFilter struct {
	mu     sync.Mutex
	active bool
	ids    map[string]struct{}
}

func (f *fakeFilter) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeFilter) MatchingIDs() map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids
}

func (f *fakeFilter) set(ids ...string) {
	f.mu.Lock()
	f.active = true
	f.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	f.mu.Unlock()
}

func (f *fakeFilter) clear() {
	f.mu.Lock()
	f.active = false
	f.ids = nil
	f.mu.Unlock()
}

// panickyFilter simulates a collaborator contract violation.
type panickyFilter struct{}

func (panickyFilter) Active() bool                     { panic("filter exploded") }
func (panickyFilter) MatchingIDs() map[string]struct{} { panic("filter exploded") }

func testStore(n int) *feature.Store {
	s := feature.NewStore()
	feats := make([]feature.Feature, n)
	for i := range feats {
		feats[i] = feature.Feature{
			ID:    string(rune('a' + i%26)),
			Coord: geo.LngLat{Lng: float64(i), Lat: float64(i % 50)},
		}
	}
	// Unique ids for larger stores.
	for i := range feats {
		feats[i].ID = feats[i].ID + "-" + string(rune('0'+i/26))
	}
	s.Replace(feats)
	return s
}

func testConfig() Config {
	return Config{
		PaddingFraction: 0.1,
		MaxFitZoom:      14,
		MoveDuration:    10 * time.Millisecond,
		DefaultCenter:   geo.LngLat{Lng: -98.5, Lat: 39.8},
		DefaultZoom:     4,
		Retry:           resilience.Policy{MaxAttempts: 3, Interval: 20 * time.Millisecond},
	}
}

func newSync(t *testing.T, store *feature.Store, fs FilterSource, proj view.Projector, clear func()) (*Synchronizer, *loop.Loop) {
	t.Helper()
	l := loop.New()
	t.Cleanup(l.Stop)
	g := gate.New(l, gate.DefaultConfig())
	return New(l, store, fs, proj, g, testConfig(), clear), l
}

func TestReconcile_InitialLoadWithInactiveFilterDoesNothing(t *testing.T) {
	proj := &fakeProjector{ready: true, zoom: 4}
	fs := &fakeFilter{}
	s, l := newSync(t, testStore(10), fs, proj, nil)

	l.Post(func() { s.Reconcile(TriggerInitialLoad) })
	l.Sync()

	assert.Zero(t, proj.fitCount())
	assert.Zero(t, proj.flyCount())
}

func TestReconcile_Filtered2Of50FitsBoundsOnce(t *testing.T) {
	store := feature.NewStore()
	feats := make([]feature.Feature, 50)
	for i := range feats {
		feats[i] = feature.Feature{
			ID:    "f" + string(rune('a'+i/26)) + string(rune('a'+i%26)),
			Coord: geo.LngLat{Lng: float64(i), Lat: float64(i) / 2},
		}
	}
	feats[3].Coord = geo.LngLat{Lng: -77.0, Lat: 38.9}
	feats[17].Coord = geo.LngLat{Lng: -76.6, Lat: 39.3}
	store.Replace(feats)

	proj := &fakeProjector{ready: true, zoom: 4, fitZoom: 9}
	fs := &fakeFilter{}
	fs.set(feats[3].ID, feats[17].ID)
	s, l := newSync(t, store, fs, proj, nil)

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()

	require.Equal(t, 1, proj.fitCount())
	assert.Zero(t, proj.flyCount())

	fit := proj.fits[0]
	assert.True(t, fit.bounds.Contains(feats[3].Coord))
	assert.True(t, fit.bounds.Contains(feats[17].Coord))
	assert.InDelta(t, 0.1, fit.opts.PaddingFraction, 1e-9)
	assert.InDelta(t, 14, fit.opts.MaxZoom, 1e-9)

	// The other 48 features stay loaded.
	assert.Equal(t, 50, store.Len())
}

func TestReconcile_FilterClearedFliesToDefaultOnce(t *testing.T) {
	proj := &fakeProjector{ready: true, zoom: 9, fitZoom: 9}
	fs := &fakeFilter{}
	fs.set("a-0")
	s, l := newSync(t, testStore(10), fs, proj, nil)

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()
	require.Equal(t, 1, proj.fitCount())

	fs.clear()
	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()

	require.Equal(t, 1, proj.flyCount())
	assert.Equal(t, geo.LngLat{Lng: -98.5, Lat: 39.8}, proj.flys[0].center)
	assert.InDelta(t, 4, proj.flys[0].zoom, 1e-9)
	assert.Equal(t, 1, proj.fitCount(), "no extra fit on clear")
}

func TestReconcile_DeepZoomInClearsClusterState(t *testing.T) {
	proj := &fakeProjector{ready: true, zoom: 5, fitZoom: 12}
	fs := &fakeFilter{}
	fs.set("a-0")

	cleared := 0
	s, l := newSync(t, testStore(10), fs, proj, func() { cleared++ })

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()

	assert.Equal(t, 1, cleared)
	assert.Equal(t, 1, proj.fitCount())
}

func TestReconcile_ShallowZoomKeepsClusterState(t *testing.T) {
	proj := &fakeProjector{ready: true, zoom: 9, fitZoom: 9.5}
	fs := &fakeFilter{}
	fs.set("a-0")

	cleared := 0
	s, l := newSync(t, testStore(10), fs, proj, func() { cleared++ })

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()

	assert.Zero(t, cleared)
	assert.Equal(t, 1, proj.fitCount())
}

func TestReconcile_DefersUntilProjectorReady(t *testing.T) {
	proj := &fakeProjector{ready: false, zoom: 4, fitZoom: 9}
	fs := &fakeFilter{}
	fs.set("a-0")
	s, l := newSync(t, testStore(10), fs, proj, nil)

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	l.Sync()
	assert.Zero(t, proj.fitCount())

	proj.setReady(true)
	time.Sleep(80 * time.Millisecond)
	l.Sync()

	assert.Equal(t, 1, proj.fitCount(), "deferred reconcile must run after readiness")
}

func TestReconcile_GivesUpSilentlyAfterRetries(t *testing.T) {
	proj := &fakeProjector{ready: false}
	fs := &fakeFilter{}
	fs.set("a-0")
	s, l := newSync(t, testStore(10), fs, proj, nil)

	l.Post(func() { s.Reconcile(TriggerFilterChanged) })
	time.Sleep(200 * time.Millisecond)
	l.Sync()

	assert.Zero(t, proj.fitCount())
	assert.Zero(t, proj.flyCount())
}

func TestReconcile_PanickingFilterDegradesGracefully(t *testing.T) {
	proj := &fakeProjector{ready: true, zoom: 4}
	s, l := newSync(t, testStore(10), panickyFilter{}, proj, nil)

	require.NotPanics(t, func() {
		l.Post(func() { s.Reconcile(TriggerInitialLoad) })
		l.Sync()
	})
	// Treated as inactive on initial load: no camera movement at all.
	assert.Zero(t, proj.fitCount())
	assert.Zero(t, proj.flyCount())
}
