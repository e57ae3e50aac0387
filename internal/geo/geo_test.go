package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLngLat_Valid(t *testing.T) {
	assert.True(t, LngLat{Lng: -77.03, Lat: 38.89}.Valid())
	assert.True(t, LngLat{Lng: 180, Lat: -90}.Valid())
	assert.False(t, LngLat{Lng: math.NaN(), Lat: 0}.Valid())
	assert.False(t, LngLat{Lng: 0, Lat: math.Inf(1)}.Valid())
	assert.False(t, LngLat{Lng: 181, Lat: 0}.Valid())
	assert.False(t, LngLat{Lng: 0, Lat: 91}.Valid())
}

func TestScreenPoint_Dist(t *testing.T) {
	a := ScreenPoint{X: 0, Y: 0}
	b := ScreenPoint{X: 3, Y: 4}
	assert.InDelta(t, 5, a.Dist(b), 1e-9)
}

func TestBoundsOf(t *testing.T) {
	b, ok := BoundsOf([]LngLat{
		{Lng: -5, Lat: 10},
		{Lng: 12, Lat: -3},
		{Lng: 4, Lat: 7},
	})
	require.True(t, ok)
	assert.Equal(t, BBox{MinLng: -5, MinLat: -3, MaxLng: 12, MaxLat: 10}, b)
}

func TestBoundsOf_SkipsInvalid(t *testing.T) {
	b, ok := BoundsOf([]LngLat{
		{Lng: math.NaN(), Lat: 0},
		{Lng: 1, Lat: 2},
	})
	require.True(t, ok)
	assert.Equal(t, BBox{MinLng: 1, MinLat: 2, MaxLng: 1, MaxLat: 2}, b)
}

func TestBoundsOf_Empty(t *testing.T) {
	_, ok := BoundsOf(nil)
	assert.False(t, ok)

	_, ok = BoundsOf([]LngLat{{Lng: math.NaN(), Lat: math.NaN()}})
	assert.False(t, ok)
}

func TestBBox_CenterAndContains(t *testing.T) {
	b := BBox{MinLng: 0, MinLat: 0, MaxLng: 10, MaxLat: 20}
	assert.Equal(t, LngLat{Lng: 5, Lat: 10}, b.Center())
	assert.True(t, b.Contains(LngLat{Lng: 5, Lat: 5}))
	assert.True(t, b.Contains(LngLat{Lng: 0, Lat: 20}))
	assert.False(t, b.Contains(LngLat{Lng: -1, Lat: 5}))
}
