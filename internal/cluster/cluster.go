// Package cluster implements the screen-space greedy clustering pass
// and the identity carry-over that keeps rendered cluster markers
// stable across recomputations.
package cluster

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/geo"
)

// Point is one eligible feature's projected position for the current
// frame. Projected positions are ephemeral and must be recomputed for
// every pass; they are a function of (feature, current view) only.
type Point struct {
	FeatureID string
	Screen    geo.ScreenPoint
	Coord     geo.LngLat
}

// Cluster is a visually merged group of two or more features.
type Cluster struct {
	ID             string          `json:"id"`
	Members        []string        `json:"members"`
	ScreenCentroid geo.ScreenPoint `json:"screen_centroid"`
	GeoCentroid    geo.LngLat      `json:"geo_centroid"`
}

// Count returns the member count used for the on-screen label.
func (c Cluster) Count() int { return len(c.Members) }

// Result is the output partition of one clustering pass. Every input
// point with a valid projection appears in exactly one of Clusters or
// Singletons. Retired carries previous clusters that no new cluster
// claimed; the caller schedules their fade-out.
type Result struct {
	Clusters   []Cluster
	Singletons []string
	Retired    []Cluster
}

// Unprojector inverts a screen position back to a geographic
// coordinate under the current view.
type Unprojector func(geo.ScreenPoint) geo.LngLat

// Compute partitions points into clusters and singletons and matches
// new clusters against prev to preserve identities.
//
// Matching is seed-relative: a candidate cluster absorbs every
// not-yet-assigned point within threshold of the seed's position, not
// of a running centroid. That biases cluster shape toward the
// first-seen member of each pass and is a fixed behavioral contract.
// Iteration follows the given point order, so identical inputs always
// produce identical partitions.
func Compute(points []Point, threshold float64, prev []Cluster, unproject Unprojector) Result {
	var res Result
	if len(points) == 0 {
		res.Retired = append(res.Retired, prev...)
		return res
	}

	usable := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.Screen.Valid() {
			zap.L().Warn("cluster: dropping point with invalid projection",
				zap.String("feature_id", p.FeatureID),
			)
			continue
		}
		usable = append(usable, p)
	}

	assigned := make([]bool, len(usable))
	for i := range usable {
		if assigned[i] {
			continue
		}
		seed := usable[i].Screen
		members := []int{i}
		for j := range usable {
			if j == i || assigned[j] {
				continue
			}
			if seed.Dist(usable[j].Screen) < threshold {
				members = append(members, j)
			}
		}
		if len(members) == 1 {
			assigned[i] = true
			res.Singletons = append(res.Singletons, usable[i].FeatureID)
			continue
		}

		var sumX, sumY float64
		ids := make([]string, len(members))
		for k, m := range members {
			assigned[m] = true
			ids[k] = usable[m].FeatureID
			sumX += usable[m].Screen.X
			sumY += usable[m].Screen.Y
		}
		centroid := geo.ScreenPoint{
			X: sumX / float64(len(members)),
			Y: sumY / float64(len(members)),
		}
		res.Clusters = append(res.Clusters, Cluster{
			Members:        ids,
			ScreenCentroid: centroid,
			GeoCentroid:    unproject(centroid),
		})
	}

	claimIdentities(res.Clusters, prev, threshold)

	claimed := make(map[string]bool, len(res.Clusters))
	for _, c := range res.Clusters {
		claimed[c.ID] = true
	}
	for _, pc := range prev {
		if !claimed[pc.ID] {
			res.Retired = append(res.Retired, pc)
		}
	}
	return res
}

// claimIdentities assigns ids to new clusters. Each new cluster, in
// order, claims the nearest previous cluster whose centroid lies within
// threshold and which no earlier new cluster already claimed
// (first-claimed wins). Unmatched new clusters get fresh ids.
func claimIdentities(next []Cluster, prev []Cluster, threshold float64) {
	taken := make([]bool, len(prev))
	for i := range next {
		best := -1
		bestDist := threshold
		for pi := range prev {
			if taken[pi] {
				continue
			}
			d := next[i].ScreenCentroid.Dist(prev[pi].ScreenCentroid)
			if d < bestDist {
				bestDist = d
				best = pi
			}
		}
		if best >= 0 {
			next[i].ID = prev[best].ID
			taken[best] = true
		} else {
			next[i].ID = uuid.New().String()
		}
	}
}
