package srcompare

import (
	"image"
	"image/color"
	"math"
)

// ColorStop is one breakpoint of a ColorRamp, at position T in [0, 1].
type ColorStop struct {
	T     float64
	Color color.RGBA
}

// ColorRamp is a piecewise-linear color map. Stops must be sorted by T.
type ColorRamp []ColorStop

// NDVIRamp runs brown → tan → yellow-green → dark green over normalized NDVI
// t = (ndvi+1)/2, flat brown below t = 0.3.
var NDVIRamp = ColorRamp{
	{T: 0.0, Color: color.RGBA{140, 90, 50, 255}},
	{T: 0.3, Color: color.RGBA{140, 90, 50, 255}},
	{T: 0.5, Color: color.RGBA{220, 200, 80, 255}},
	{T: 0.7, Color: color.RGBA{50, 160, 30, 255}},
	{T: 1.0, Color: color.RGBA{10, 130, 40, 255}},
}

// At returns the color at t. Values outside the ramp take the end colors.
func (ramp ColorRamp) At(t float64) color.RGBA {
	if len(ramp) == 0 {
		return color.RGBA{A: 255}
	}
	if t <= ramp[0].T {
		return ramp[0].Color
	}

	i := 0
	for i < len(ramp)-1 && t >= ramp[i+1].T {
		i++
	}
	if i == len(ramp)-1 {
		return ramp[i].Color
	}

	a, b := ramp[i], ramp[i+1]
	f := (t - a.T) / (b.T - a.T)
	return color.RGBA{
		R: lerpChannel(a.Color.R, b.Color.R, f),
		G: lerpChannel(a.Color.G, b.Color.G, f),
		B: lerpChannel(a.Color.B, b.Color.B, f),
		A: 255,
	}
}

// lerpChannel interpolates and truncates to 8 bits.
func lerpChannel(a, b uint8, f float64) uint8 {
	v := float64(a) + f*(float64(b)-float64(a))
	return uint8(math.Max(0, math.Min(255, v)))
}

// NDVIColor maps one NDVI value to a color; NaN is black.
func NDVIColor(ndvi float64) color.RGBA {
	if math.IsNaN(ndvi) {
		return color.RGBA{A: 255}
	}
	t := math.Max(0, math.Min(1, (ndvi+1)/2))
	return NDVIRamp.At(t)
}

// NDVIColormap maps NDVI values through NDVIRamp and returns the three
// channels. NaN values become (0, 0, 0).
func NDVIColormap(ndvi []float64) (r, g, b []uint8) {
	r = make([]uint8, len(ndvi))
	g = make([]uint8, len(ndvi))
	b = make([]uint8, len(ndvi))
	for i, v := range ndvi {
		c := NDVIColor(v)
		r[i], g[i], b[i] = c.R, c.G, c.B
	}
	return r, g, b
}

// NDVI computes (nir-red)/(nir+red) per pixel. Pixels where nir is zero or
// the sum is zero are NaN.
func NDVI(nir, red []float64) []float64 {
	out := make([]float64, len(nir))
	for i := range nir {
		n, r := nir[i], 0.0
		if i < len(red) {
			r = red[i]
		}
		denom := n + r
		if denom != 0 && n != 0 {
			out[i] = (n - r) / denom
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// NDVIVisual renders an NDVI plane of size w x h as an RGBA image.
func NDVIVisual(ndvi []float64, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, v := range ndvi[:min(len(ndvi), w*h)] {
		img.SetRGBA(i%w, i/w, NDVIColor(v))
	}
	return img
}
