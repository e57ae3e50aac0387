// Package gate owns the single "why is the view changing" tag that
// every component consults before reacting to a view or filter event.
// It replaces scattered ad hoc booleans with one enumerated,
// time-bounded reason.
package gate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/loop"
)

// Reason enumerates the mutually exclusive causes of an in-progress or
// just-completed view change.
type Reason int

const (
	// None means the view is idle or the last change was unattributed.
	None Reason = iota
	// UserGesture is a pan or zoom driven directly by the user.
	UserGesture
	// ProgrammaticReframe is a camera move the engine issued itself.
	ProgrammaticReframe
	// MarkerNavigation is a camera move caused by activating a marker.
	MarkerNavigation
	// FilterReframe is a camera move caused by a filter change.
	FilterReframe
)

// String returns a log-friendly name.
func (r Reason) String() string {
	switch r {
	case UserGesture:
		return "user-gesture"
	case ProgrammaticReframe:
		return "programmatic-reframe"
	case MarkerNavigation:
		return "marker-navigation"
	case FilterReframe:
		return "filter-reframe"
	default:
		return "none"
	}
}

// Config carries the per-reason expiry windows. Marker navigation and
// filter reframes get a longer window than a plain gesture because the
// camera animation plus the downstream filter-apply side effects both
// need to complete before the tag clears.
type Config struct {
	GestureTTL    time.Duration `yaml:"gesture_ttl" mapstructure:"gesture_ttl"`
	ReframeTTL    time.Duration `yaml:"reframe_ttl" mapstructure:"reframe_ttl"`
	NavigationTTL time.Duration `yaml:"navigation_ttl" mapstructure:"navigation_ttl"`
	FilterTTL     time.Duration `yaml:"filter_ttl" mapstructure:"filter_ttl"`
}

// DefaultConfig returns the expiry windows used when none are configured.
func DefaultConfig() Config {
	return Config{
		GestureTTL:    500 * time.Millisecond,
		ReframeTTL:    1500 * time.Millisecond,
		NavigationTTL: 2500 * time.Millisecond,
		FilterTTL:     2500 * time.Millisecond,
	}
}

func (c Config) ttl(r Reason) time.Duration {
	switch r {
	case UserGesture:
		return c.GestureTTL
	case ProgrammaticReframe:
		return c.ReframeTTL
	case MarkerNavigation:
		return c.NavigationTTL
	case FilterReframe:
		return c.FilterTTL
	default:
		return 0
	}
}

// Gate is the interaction-reason state machine. Exactly one reason is
// current at a time; setting a new one overwrites the old (last writer
// wins) and arms an expiry countdown that resets the reason to None
// even if no explicit done signal ever arrives.
type Gate struct {
	loop   *loop.Loop
	cfg    Config
	mu     sync.Mutex
	reason Reason
	expiry *loop.Task
}

// New returns an idle gate bound to the loop.
func New(l *loop.Loop, cfg Config) *Gate {
	return &Gate{loop: l, cfg: cfg, reason: None}
}

// Current returns the reason in effect right now.
func (g *Gate) Current() Reason {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// Set installs r as the current reason and arms its expiry window. A
// pending expiry for the previous reason is canceled first so it cannot
// clear the new tag.
func (g *Gate) Set(r Reason) {
	g.mu.Lock()
	if g.expiry != nil {
		g.expiry.Cancel()
		g.expiry = nil
	}
	g.reason = r
	if r != None {
		ttl := g.cfg.ttl(r)
		g.expiry = g.loop.Schedule(ttl, func() {
			g.mu.Lock()
			if g.reason == r {
				g.reason = None
				g.expiry = nil
			}
			g.mu.Unlock()
			zap.L().Debug("gate: reason expired", zap.Stringer("reason", r))
		})
	}
	g.mu.Unlock()
}

// Clear resets the reason to None immediately.
func (g *Gate) Clear() {
	g.Set(None)
}
