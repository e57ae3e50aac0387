// Package view defines the geometry projector contract the engine
// consumes and provides an in-process web-mercator camera implementing
// it for the CLI, the preview server, and tests.
package view

import (
	"time"

	"github.com/sells-group/mapsync/internal/geo"
)

// FitOptions tunes a fit-to-bounds camera movement. Padding is a
// fraction of the viewport edge (not fixed pixels) so it scales with
// window size.
type FitOptions struct {
	PaddingFraction float64
	MaxZoom         float64
	Duration        time.Duration
}

// Projector converts geographic coordinates to screen space for the
// current viewport and executes camera movements. The engine treats
// projection as a pure function of the current view state: results
// must never be cached across view changes by callers.
type Projector interface {
	// Ready reports whether the projector can answer projection
	// queries yet. During initial load it may not be.
	Ready() bool
	// Project converts a coordinate to viewport pixels. It returns an
	// error for off-world or non-finite coordinates and when the
	// projector is not ready.
	Project(c geo.LngLat) (geo.ScreenPoint, error)
	// Unproject inverts a screen position under the current view.
	Unproject(p geo.ScreenPoint) geo.LngLat
	// Zoom returns the current zoom level.
	Zoom() float64
	// Viewport returns the current viewport pixel size.
	Viewport() geo.Viewport
	// FitZoom returns the zoom a FitTo with the same padding would
	// settle at, without moving the camera.
	FitZoom(b geo.BBox, paddingFraction float64) float64
	// FitTo animates the camera to frame the bounds. Completion is
	// delivered through OnViewSettled.
	FitTo(b geo.BBox, opts FitOptions)
	// FlyTo animates the camera to a center and zoom.
	FlyTo(c geo.LngLat, zoom float64, d time.Duration)
	// OnViewSettled registers a callback fired every time a camera
	// movement fully completes and the view state is stable.
	OnViewSettled(fn func())
}
