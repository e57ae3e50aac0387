package view

import "math"

// Web-mercator world math. A zoom-z world is worldSize(z) pixels wide;
// xFrac/yFrac give zoom-independent [0,1] positions inside it.

const (
	tileSize = 256
	// maxMercatorLat is the latitude where the projection cuts off.
	maxMercatorLat = 85.05112878
)

func worldSize(zoom float64) float64 {
	return tileSize * math.Pow(2, zoom)
}

func xFrac(lng float64) float64 {
	return (lng + 180) / 360
}

func yFrac(lat float64) float64 {
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	} else if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	sin := math.Sin(lat * math.Pi / 180)
	return 0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)
}

func fracLng(x float64) float64 {
	return x*360 - 180
}

func fracLat(y float64) float64 {
	n := math.Pi * (1 - 2*y)
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}
