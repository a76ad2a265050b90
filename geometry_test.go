package srcompare

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestPixelRect(t *testing.T) {
	grid := PixelGrid{Width: 100, Height: 100, Bounds: bound(50, 50, 150, 150)}
	if grid.ResX() != 1 || grid.ResY() != 1 {
		t.Fatalf("Expected unit resolution, got %g x %g", grid.ResX(), grid.ResY())
	}

	tests := []struct {
		name string
		b    orb.Bound
		want Rectangle
	}{
		{"bottom left quadrant", bound(50, 50, 100, 100), Rectangle{X: 0, Y: 50, Width: 50, Height: 50}},
		{"top right quadrant", bound(100, 100, 150, 150), Rectangle{X: 50, Y: 0, Width: 50, Height: 50}},
		{"whole grid", grid.Bounds, Rectangle{Width: 100, Height: 100}},
		{"clamped", bound(0, 0, 500, 500), Rectangle{Width: 100, Height: 100}},
		// Edges at half pixels round to even
		{"half pixels", bound(60.5, 60.5, 71.5, 71.5), Rectangle{X: 10, Y: 78, Width: 12, Height: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := grid.PixelRect(tt.b); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestIntersect(t *testing.T) {
	ol := intersect(bound(0, 0, 100, 100), bound(50, 50, 150, 150))
	if !ol.Equal(bound(50, 50, 100, 100)) || !overlaps(ol) {
		t.Errorf("Expected (50,50,100,100), got %v", ol)
	}

	for _, b := range []orb.Bound{
		bound(200, 0, 300, 100),   // disjoint in x
		bound(0, 100, 100, 200),   // shared edge
		bound(100, 100, 200, 200), // shared corner
	} {
		if ol := intersect(bound(0, 0, 100, 100), b); overlaps(ol) {
			t.Errorf("Expected no overlap with %v, got %v", b, ol)
		}
	}
}

func TestPolygonFromBounds(t *testing.T) {
	p := PolygonFromBounds(bound(0, 0, 10, 5))
	if len(p) != 1 || len(p[0]) != 5 {
		t.Fatalf("Expected one closed ring of 5 points, got %v", p)
	}
	if p[0][0] != p[0][4] {
		t.Error("Ring must be closed")
	}
	if !p.Bound().Equal(bound(0, 0, 10, 5)) {
		t.Errorf("Unexpected bound %v", p.Bound())
	}
}

func TestFootprintCollection(t *testing.T) {
	orig := newGeoTIFF(10, 10, 4, 0, 100, 10).open(t)
	sr := newGeoTIFF(40, 40, 3, 0, 100, 2.5).open(t)

	b, err := json.Marshal(FootprintCollection(orig, sr))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("Expected 2 features, got %d", len(fc.Features))
	}

	f := fc.Features[1]
	if !f.Geometry.Bound().Equal(bound(0, 0, 100, 100)) {
		t.Errorf("Unexpected footprint %v", f.Geometry.Bound())
	}
	if f.Properties.MustInt("width") != 40 || f.Properties.MustFloat64("pixel_size") != 2.5 {
		t.Errorf("Unexpected properties %v", f.Properties)
	}
	if f.Properties.MustString("crs") != "EPSG:32636" || f.Properties.MustString("dtype") != "float32" {
		t.Errorf("Unexpected properties %v", f.Properties)
	}
}
