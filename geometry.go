package srcompare

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PixelGrid is a rectangular array of pixels mapped uniformly onto Bounds.
// Row 0 is the top (maximum Y) of the bounds.
type PixelGrid struct {
	Width  int
	Height int
	Bounds orb.Bound
	// CRS is "EPSG:n", or "" when unknown.
	CRS string
}

// ResX returns the pixel width in map units.
func (g PixelGrid) ResX() float64 {
	return (g.Bounds.Right() - g.Bounds.Left()) / float64(g.Width)
}

// ResY returns the pixel height in map units.
func (g PixelGrid) ResY() float64 {
	return (g.Bounds.Top() - g.Bounds.Bottom()) / float64(g.Height)
}

// Validate checks that the grid has pixels and a non-degenerate extent.
func (g PixelGrid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid grid size %dx%d", g.Width, g.Height)
	}
	if !(g.Bounds.Left() < g.Bounds.Right()) || !(g.Bounds.Bottom() < g.Bounds.Top()) {
		return fmt.Errorf("invalid grid bounds %v", g.Bounds)
	}
	return nil
}

// PixelRect maps a geographic rectangle onto the grid, rounding each edge to
// the nearest pixel boundary (halves to even) and clamping to the grid.
func (g PixelGrid) PixelRect(b orb.Bound) Rectangle {
	resX, resY := g.ResX(), g.ResY()
	col0 := clampInt(int(math.RoundToEven((b.Left()-g.Bounds.Left())/resX)), 0, g.Width)
	col1 := clampInt(int(math.RoundToEven((b.Right()-g.Bounds.Left())/resX)), 0, g.Width)
	row0 := clampInt(int(math.RoundToEven((g.Bounds.Top()-b.Top())/resY)), 0, g.Height) // Y is inverted
	row1 := clampInt(int(math.RoundToEven((g.Bounds.Top()-b.Bottom())/resY)), 0, g.Height)
	return Rectangle{X: col0, Y: row0, Width: col1 - col0, Height: row1 - row0}
}

// intersect returns the axis-aligned overlap of two bounds. The result may be
// inverted (left > right) when they are disjoint; callers test for that.
func intersect(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(a.Left(), b.Left()), math.Max(a.Bottom(), b.Bottom())},
		Max: orb.Point{math.Min(a.Right(), b.Right()), math.Min(a.Top(), b.Top())},
	}
}

// overlaps reports whether ol is a non-empty overlap rectangle.
func overlaps(ol orb.Bound) bool {
	return ol.Left() < ol.Right() && ol.Bottom() < ol.Top()
}

// PolygonFromBounds creates a polygon from a bounding box
func PolygonFromBounds(bound orb.Bound) orb.Polygon {
	if bound.IsEmpty() {
		return orb.Polygon{}
	}

	ring := orb.Ring{
		{bound.Min[0], bound.Min[1]}, // Bottom-left
		{bound.Max[0], bound.Min[1]}, // Bottom-right
		{bound.Max[0], bound.Max[1]}, // Top-right
		{bound.Min[0], bound.Max[1]}, // Top-left
		{bound.Min[0], bound.Min[1]}, // Close ring
	}

	return orb.Polygon{ring}
}

// Footprint returns the raster extent as a GeoJSON feature carrying its
// path, size, band count, pixel size and CRS as properties.
func (r *Raster) Footprint() *geojson.Feature {
	f := geojson.NewFeature(PolygonFromBounds(r.Bounds()))
	f.Properties["path"] = r.path
	f.Properties["width"] = r.meta.Width
	f.Properties["height"] = r.meta.Height
	f.Properties["bands"] = r.meta.BandCount
	f.Properties["dtype"] = r.meta.DataType.String()
	f.Properties["pixel_size"] = r.PixelSize()
	if r.meta.CRS != "" {
		f.Properties["crs"] = r.meta.CRS
	}
	return f
}

// FootprintCollection collects the footprints of several rasters, e.g. an
// original scene and its super-resolved products.
func FootprintCollection(rasters ...*Raster) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rasters {
		fc.Append(r.Footprint())
	}
	return fc
}
