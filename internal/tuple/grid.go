package tuple

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
)

// GridZoom is the tile zoom level of the geo grid.
const GridZoom maptile.Zoom = 14

// maxMercatorLat is the latitude limit of the Web Mercator tile scheme.
const maxMercatorLat = 85.05112878

// GeoGrid returns the spatial bucket of a feature: the quadkey of the zoom 14 tile
// containing the reference point or, without one, the centroid of the geometry.
// Features without usable geometry are bucketed by a hash of their id.
func GeoGrid(id string, ref *orb.Point, g orb.Geometry) int64 {
	if ref != nil {
		return tileOf(*ref)
	}
	if g != nil && !g.Bound().IsEmpty() {
		c, _ := planar.CentroidArea(g)
		if !math.IsNaN(c[0]) && !math.IsNaN(c[1]) {
			return tileOf(c)
		}
	}
	return int64(xxhash.Sum64String(id) >> 1)
}

func tileOf(p orb.Point) int64 {
	lon := math.Max(-180, math.Min(180-1e-9, p[0]))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))
	return int64(maptile.At(orb.Point{lon, lat}, GridZoom).Quadkey())
}
