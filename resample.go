package srcompare

import (
	"fmt"
	"math"
	"strings"
)

// Resampling selects how a source band is scaled onto target pixels.
type Resampling int

const (
	// Nearest copies the source pixel whose centre is closest. It never
	// blends valid pixels with nodata pixels.
	Nearest Resampling = iota
	// Bilinear interpolates between the four surrounding pixel centres.
	Bilinear
)

func (m Resampling) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return fmt.Sprintf("Resampling(%d)", int(m))
	}
}

// ParseResampling parses "nearest" or "bilinear" (case-insensitive, "" is nearest).
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	default:
		return Nearest, fmt.Errorf("unknown resampling method %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Resampling) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Resampling) UnmarshalText(text []byte) error {
	v, err := ParseResampling(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// resample scales a row-major srcW x srcH plane to dstW x dstH.
func resample(src []float64, srcW, srcH, dstW, dstH int, method Resampling) []float64 {
	if method == Bilinear {
		return resampleBilinear(src, srcW, srcH, dstW, dstH)
	}
	return resampleNearest(src, srcW, srcH, dstW, dstH)
}

// nearestIndex maps a destination pixel to the source pixel containing its centre.
func nearestIndex(dst, srcSize, dstSize int) int {
	i := int(math.Floor((float64(dst) + 0.5) * float64(srcSize) / float64(dstSize)))
	return clampInt(i, 0, srcSize-1)
}

func resampleNearest(src []float64, srcW, srcH, dstW, dstH int) []float64 {
	out := make([]float64, dstW*dstH)
	if srcW == dstW && srcH == dstH {
		copy(out, src)
		return out
	}

	cols := make([]int, dstW)
	for x := range cols {
		cols[x] = nearestIndex(x, srcW, dstW)
	}
	for y := 0; y < dstH; y++ {
		row := src[nearestIndex(y, srcH, dstH)*srcW:]
		dst := out[y*dstW : (y+1)*dstW]
		for x, sx := range cols {
			dst[x] = row[sx]
		}
	}
	return out
}

// bilinearTap holds the two source indices and the weight of the second.
type bilinearTap struct {
	i0, i1 int
	w      float64
}

func bilinearTaps(srcSize, dstSize int) []bilinearTap {
	taps := make([]bilinearTap, dstSize)
	scale := float64(srcSize) / float64(dstSize)
	for d := range taps {
		s := (float64(d)+0.5)*scale - 0.5
		if s < 0 {
			s = 0
		}
		i0 := int(math.Floor(s))
		if i0 > srcSize-1 {
			i0 = srcSize - 1
		}
		i1 := min(i0+1, srcSize-1)
		taps[d] = bilinearTap{i0: i0, i1: i1, w: s - float64(i0)}
		if i0 == i1 {
			taps[d].w = 0
		}
	}
	return taps
}

func resampleBilinear(src []float64, srcW, srcH, dstW, dstH int) []float64 {
	out := make([]float64, dstW*dstH)
	xs := bilinearTaps(srcW, dstW)
	ys := bilinearTaps(srcH, dstH)

	for y, ty := range ys {
		r0 := src[ty.i0*srcW:]
		r1 := src[ty.i1*srcW:]
		for x, tx := range xs {
			top := lerp(r0[tx.i0], r0[tx.i1], tx.w)
			bottom := lerp(r1[tx.i0], r1[tx.i1], tx.w)
			out[y*dstW+x] = lerp(top, bottom, ty.w)
		}
	}
	return out
}

// lerp skips b entirely at w == 0 so a NaN neighbour does not leak in.
func lerp(a, b, w float64) float64 {
	if w == 0 {
		return a
	}
	return a*(1-w) + b*w
}
