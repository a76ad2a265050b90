package srcompare

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func benchmarkRaster(b *testing.B, setup func(g *geoTIFF)) (*Raster, *geoTIFF) {
	b.Helper()
	g := newGeoTIFF(512, 512, 4, 0, 5120, 10)
	g.dtype = DTSShort
	setup(g)
	return g.open(b), g
}

func BenchmarkReadBands(b *testing.B) {
	layouts := []struct {
		name  string
		setup func(g *geoTIFF)
	}{
		{"strips", func(g *geoTIFF) { g.rowsPerStrip = 16 }},
		{"tiles", func(g *geoTIFF) { g.tile = 256 }},
		{"tiles_deflate", func(g *geoTIFF) { g.tile = 256; g.compression = CompressionDeflate }},
		{"tiles_deflate_predictor", func(g *geoTIFF) {
			g.tile = 256
			g.compression = CompressionDeflate
			g.predictor = PredictorHorizontal
		}},
		{"planar_tiles", func(g *geoTIFF) { g.tile = 256; g.planar = PlanarSeparate }},
	}
	for _, l := range layouts {
		b.Run(l.name, func(b *testing.B) {
			r, _ := benchmarkRaster(b, l.setup)
			b.SetBytes(512 * 512 * 3 * 2)
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := r.ReadBands([]int{3, 2, 1}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkReadWindow_Small(b *testing.B) {
	r, _ := benchmarkRaster(b, func(g *geoTIFF) { g.tile = 256; g.compression = CompressionDeflate })
	rng := rand.New(rand.NewSource(1))
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rect := Rectangle{X: rng.Intn(448), Y: rng.Intn(448), Width: 64, Height: 64}
		if _, err := r.ReadWindow(rect, []int{1}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAlign(b *testing.B) {
	r, _ := benchmarkRaster(b, func(g *geoTIFF) { g.tile = 256 })
	// 4x upsample of the centre quarter
	grid := PixelGrid{Width: 1024, Height: 1024, Bounds: bound(1280, 1280, 3840, 3840), CRS: r.CRS()}

	for _, m := range []Resampling{Nearest, Bilinear} {
		b.Run(m.String(), func(b *testing.B) {
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Align(r, grid, []int{3, 2, 1}, WithResampling(m)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkToVisual8Bit(b *testing.B) {
	for _, n := range []int{256, 1024} {
		band := make([]float64, n*n)
		rng := rand.New(rand.NewSource(1))
		for i := range band {
			band[i] = rng.Float64() * 4000
		}
		b.Run(fmt.Sprintf("%dx%d", n, n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ToVisual8Bit(band, DefaultLowPct, DefaultHighPct)
			}
		})
	}
}

func BenchmarkOpen(b *testing.B) {
	g := newGeoTIFF(512, 512, 4, 0, 5120, 10)
	g.tile = 256
	g.descriptions = []string{"B2", "B3", "B4", "B8"}
	path := g.writeFile(b, "bench.tif")
	data := g.encode(b)

	b.Run("file", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			r, err := Open(path, nil)
			if err != nil {
				b.Fatal(err)
			}
			r.Close()
		}
	})
	b.Run("reader", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := Read(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}
