package view

import (
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
)

// CameraOptions configures the initial view state of a Camera.
type CameraOptions struct {
	Center   geo.LngLat
	Zoom     float64
	Viewport geo.Viewport
}

// Camera is an in-process web-mercator Projector. View state is owned
// exclusively by the camera; collaborators read it and issue move/fit
// commands, never mutate it directly. Animated moves apply their target
// state when the scheduled settle fires; starting a new move cancels a
// pending one, and the superseded move's settle never fires.
type Camera struct {
	loop *loop.Loop

	mu        sync.Mutex
	center    geo.LngLat
	zoom      float64
	vp        geo.Viewport
	animating bool
	pending   *loop.Task
	settled   []func()
}

// NewCamera returns a camera at the given initial view. The camera is
// not ready until it has a non-zero viewport.
func NewCamera(l *loop.Loop, opts CameraOptions) *Camera {
	return &Camera{
		loop:   l,
		center: opts.Center,
		zoom:   opts.Zoom,
		vp:     opts.Viewport,
	}
}

// Ready reports whether projection queries can be answered.
func (c *Camera) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp.Width > 0 && c.vp.Height > 0
}

// SetViewport installs a new viewport size (window resize).
func (c *Camera) SetViewport(vp geo.Viewport) {
	c.mu.Lock()
	c.vp = vp
	c.mu.Unlock()
}

// Zoom returns the current zoom level.
func (c *Camera) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// Center returns the current map center.
func (c *Camera) Center() geo.LngLat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.center
}

// Viewport returns the current viewport size.
func (c *Camera) Viewport() geo.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// IsAnimating reports whether a camera movement is in flight.
func (c *Camera) IsAnimating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animating
}

// Project converts a coordinate to viewport pixels under the current
// view. The answer is only valid for the current frame.
func (c *Camera) Project(p geo.LngLat) (geo.ScreenPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vp.Width <= 0 || c.vp.Height <= 0 {
		return geo.ScreenPoint{}, eris.New("view: projector not ready")
	}
	if !p.Valid() {
		return geo.ScreenPoint{}, eris.Errorf("view: invalid coordinate (%f, %f)", p.Lng, p.Lat)
	}
	ws := worldSize(c.zoom)
	return geo.ScreenPoint{
		X: (xFrac(p.Lng)-xFrac(c.center.Lng))*ws + c.vp.Width/2,
		Y: (yFrac(p.Lat)-yFrac(c.center.Lat))*ws + c.vp.Height/2,
	}, nil
}

// Unproject inverts a screen position under the current view.
func (c *Camera) Unproject(p geo.ScreenPoint) geo.LngLat {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := worldSize(c.zoom)
	return geo.LngLat{
		Lng: fracLng(xFrac(c.center.Lng) + (p.X-c.vp.Width/2)/ws),
		Lat: fracLat(yFrac(c.center.Lat) + (p.Y-c.vp.Height/2)/ws),
	}
}

// FitZoom returns the zoom level at which the bounds, padded by the
// given fraction of each viewport edge, exactly fit the viewport.
func (c *Camera) FitZoom(b geo.BBox, paddingFraction float64) float64 {
	c.mu.Lock()
	vp := c.vp
	c.mu.Unlock()

	usableW := vp.Width * (1 - 2*paddingFraction)
	usableH := vp.Height * (1 - 2*paddingFraction)
	if usableW <= 0 || usableH <= 0 {
		return 0
	}

	fx := xFrac(b.MaxLng) - xFrac(b.MinLng)
	fy := yFrac(b.MinLat) - yFrac(b.MaxLat)

	zx := math.Inf(1)
	zy := math.Inf(1)
	if fx > 0 {
		zx = math.Log2(usableW / (tileSize * fx))
	}
	if fy > 0 {
		zy = math.Log2(usableH / (tileSize * fy))
	}
	return math.Min(zx, zy)
}

// FitTo animates the camera to frame the bounds, honoring the padding
// fraction and zoom ceiling.
func (c *Camera) FitTo(b geo.BBox, opts FitOptions) {
	zoom := c.FitZoom(b, opts.PaddingFraction)
	if opts.MaxZoom > 0 && zoom > opts.MaxZoom {
		zoom = opts.MaxZoom
	}
	// Center on the mercator midpoint so tall boxes frame correctly.
	center := geo.LngLat{
		Lng: (b.MinLng + b.MaxLng) / 2,
		Lat: fracLat((yFrac(b.MinLat) + yFrac(b.MaxLat)) / 2),
	}
	c.animateTo(center, zoom, opts.Duration)
}

// FlyTo animates the camera to a center and zoom.
func (c *Camera) FlyTo(target geo.LngLat, zoom float64, d time.Duration) {
	c.animateTo(target, zoom, d)
}

// JumpTo moves the camera instantly, as a user drag/zoom would. The
// settle notification is still delivered asynchronously on the loop.
func (c *Camera) JumpTo(target geo.LngLat, zoom float64) {
	c.animateTo(target, zoom, 0)
}

func (c *Camera) animateTo(target geo.LngLat, zoom float64, d time.Duration) {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Cancel()
	}
	c.animating = true
	c.pending = c.loop.Schedule(d, func() {
		c.mu.Lock()
		c.center = target
		c.zoom = zoom
		c.animating = false
		c.pending = nil
		fns := make([]func(), len(c.settled))
		copy(fns, c.settled)
		c.mu.Unlock()

		zap.L().Debug("view: settled",
			zap.Float64("lng", target.Lng),
			zap.Float64("lat", target.Lat),
			zap.Float64("zoom", zoom),
		)
		for _, fn := range fns {
			fn()
		}
	})
	c.mu.Unlock()
}

// OnViewSettled registers a callback invoked on the loop goroutine
// after every completed camera movement.
func (c *Camera) OnViewSettled(fn func()) {
	c.mu.Lock()
	c.settled = append(c.settled, fn)
	c.mu.Unlock()
}
