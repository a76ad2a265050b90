package srcompare

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
)

// Default percentile stretch bounds.
const (
	DefaultLowPct  = 2
	DefaultHighPct = 98
)

// isNoData reports whether v is a nodata pixel: NaN, exact zero, or one of
// the explicit nodata values.
func isNoData(v float64, nodata []float64) bool {
	if math.IsNaN(v) || v == 0 {
		return true
	}
	for _, nd := range nodata {
		if v == nd {
			return true
		}
	}
	return false
}

// StretchBounds returns the lowPct and highPct percentiles of the valid
// pixels of band. ok is false when no pixel is valid. A constant band gets
// high = low + 1.
func StretchBounds(band []float64, lowPct, highPct float64, nodata ...float64) (low, high float64, ok bool) {
	valid := make([]float64, 0, len(band))
	for _, v := range band {
		if !isNoData(v, nodata) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Float64s(valid)

	low = percentileSorted(valid, lowPct)
	high = percentileSorted(valid, highPct)
	if high <= low {
		high = low + 1
	}
	return low, high, true
}

// ToVisual8Bit contrast-stretches band to 8 bits between its lowPct and
// highPct percentiles. Nodata pixels (NaN, 0 and any value in nodata) are
// excluded from the percentiles and always map to 0. A band with no valid
// pixel maps to all zeros.
func ToVisual8Bit(band []float64, lowPct, highPct float64, nodata ...float64) []uint8 {
	low, high, ok := StretchBounds(band, lowPct, highPct, nodata...)
	if !ok {
		return make([]uint8, len(band))
	}
	return StretchRange(band, low, high, nodata...)
}

// StretchRange maps [low, high] linearly onto [0, 255], clipping values
// outside the range and truncating. Nodata pixels map to 0.
func StretchRange(band []float64, low, high float64, nodata ...float64) []uint8 {
	if high <= low {
		high = low + 1
	}
	out := make([]uint8, len(band))
	for i, v := range band {
		if isNoData(v, nodata) {
			continue
		}
		out[i] = uint8(math.Max(0, math.Min(255, (v-low)/(high-low)*255)))
	}
	return out
}

// rgbImage interleaves three 8-bit planes of size w x h.
func rgbImage(r, g, b []uint8, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		o := i * 4
		img.Pix[o] = r[i]
		img.Pix[o+1] = g[i]
		img.Pix[o+2] = b[i]
		img.Pix[o+3] = 255
	}
	return img
}

// StretchComposite stretches each of the three bands of c independently and
// returns them as an RGB image.
func StretchComposite(c *Composite, lowPct, highPct float64) (*image.RGBA, error) {
	if c.Bands != 3 {
		return nil, fmt.Errorf("composite has %d bands, need 3", c.Bands)
	}
	var nodata []float64
	if c.HasNoData {
		nodata = append(nodata, c.NoData)
	}
	var ch [3][]uint8
	for b := range ch {
		ch[b] = ToVisual8Bit(c.Band(b), lowPct, highPct, nodata...)
	}
	return rgbImage(ch[0], ch[1], ch[2], c.Grid.Width, c.Grid.Height), nil
}

// ByteComposite converts the first three bands of an already 8-bit product
// into an RGB image. Fewer than three bands are shown as grayscale. Values
// are clipped to [0, 255]; NaN is black.
func ByteComposite(d *RasterData) (*image.RGBA, error) {
	if d.Empty() || d.Bands == 0 {
		return nil, fmt.Errorf("no pixels to compose")
	}
	n := d.Width * d.Height
	var ch [3][]uint8
	for b := range ch {
		src := d.Data[min(b, d.Bands-1)*n:][:n]
		plane := make([]uint8, n)
		for i, v := range src {
			if !math.IsNaN(v) {
				plane[i] = uint8(math.Max(0, math.Min(255, v)))
			}
		}
		ch[b] = plane
	}
	return rgbImage(ch[0], ch[1], ch[2], d.Width, d.Height), nil
}

// SpectralBands holds the 1-based indices of the bands used for the visual
// composites.
type SpectralBands struct {
	Blue, Green, Red, NIR int
	// Fallback is set when the descriptions did not name every band and the
	// default Sentinel-2 order was used.
	Fallback bool
}

// DefaultSpectralBands is the band order of a 10-band Sentinel-2 stack:
// B2, B3, B4, B5, B6, B7, B8, ...
var DefaultSpectralBands = SpectralBands{Blue: 1, Green: 2, Red: 3, NIR: 7, Fallback: true}

var bandCandidates = struct {
	blue, green, red, nir []string
}{
	blue:  []string{"B2", "B02", "Blue"},
	green: []string{"B3", "B03", "Green"},
	red:   []string{"B4", "B04", "Red"},
	nir:   []string{"B8", "B08", "NIR"},
}

// ResolveSpectralBands finds blue, green, red and NIR from band
// descriptions. If any of the four is missing, DefaultSpectralBands is
// returned.
func ResolveSpectralBands(descriptions []string) SpectralBands {
	byName := make(map[string]int, len(descriptions))
	for i, d := range descriptions {
		if name := strings.TrimSpace(d); name != "" {
			byName[name] = i + 1
		}
	}
	find := func(candidates []string) int {
		for _, c := range candidates {
			if i, ok := byName[c]; ok {
				return i
			}
		}
		return 0
	}

	sb := SpectralBands{
		Blue:  find(bandCandidates.blue),
		Green: find(bandCandidates.green),
		Red:   find(bandCandidates.red),
		NIR:   find(bandCandidates.nir),
	}
	if sb.Blue == 0 || sb.Green == 0 || sb.Red == 0 || sb.NIR == 0 {
		return DefaultSpectralBands
	}
	return sb
}

// TrueColor returns the bands of the red, green, blue composite.
func (sb SpectralBands) TrueColor() []int { return []int{sb.Red, sb.Green, sb.Blue} }

// FalseColor returns the bands of the NIR, red, green composite.
func (sb SpectralBands) FalseColor() []int { return []int{sb.NIR, sb.Red, sb.Green} }

func (sb SpectralBands) String() string {
	return fmt.Sprintf("B2=%d, B3=%d, B4=%d, B8=%d", sb.Blue, sb.Green, sb.Red, sb.NIR)
}
