package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapsync/internal/geo"
)

func sampleFeatures() []Feature {
	return []Feature{
		{ID: "a", Name: "Alpha", Coord: geo.LngLat{Lng: 1, Lat: 1}},
		{ID: "b", Name: "Beta", Coord: geo.LngLat{Lng: 2, Lat: 2}, GroupKey: "north"},
		{ID: "c", Name: "Gamma", Coord: geo.LngLat{Lng: 3, Lat: 3}, Kind: KindGroup, GroupKey: "south"},
	}
}

func TestStore_ReplaceAndGet(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.Len())

	s.Replace(sampleFeatures())
	require.Equal(t, 3, s.Len())

	f, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Beta", f.Name)
	assert.Equal(t, "north", f.GroupKey)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_AllPreservesLoadOrder(t *testing.T) {
	s := NewStore()
	s.Replace(sampleFeatures())

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestStore_ReplaceIsAtomicForSnapshots(t *testing.T) {
	s := NewStore()
	s.Replace(sampleFeatures())

	old := s.All()
	s.Replace([]Feature{{ID: "z", Name: "Zeta"}})

	// The earlier snapshot is untouched; new readers see only the new set.
	require.Len(t, old, 3)
	assert.Equal(t, "a", old[0].ID)
	require.Equal(t, 1, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestStore_ReplaceCopiesInput(t *testing.T) {
	s := NewStore()
	in := sampleFeatures()
	s.Replace(in)
	in[0].Name = "mutated"

	f, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Alpha", f.Name)
}

func TestKind_RoundTrip(t *testing.T) {
	assert.Equal(t, KindPoint, KindFromString("point"))
	assert.Equal(t, KindGroup, KindFromString("group"))
	assert.Equal(t, KindPoint, KindFromString("anything-else"))
	assert.Equal(t, "point", KindPoint.String())
	assert.Equal(t, "group", KindGroup.String())
}
