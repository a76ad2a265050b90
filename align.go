package srcompare

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Composite is source data placed on a target pixel grid. Data is
// band-sequential with shape (Bands, Grid.Height, Grid.Width). Target pixels
// the source does not cover are zero.
type Composite struct {
	Data  []float64
	Bands int
	Grid  PixelGrid
	// DataType is the source sample type, or DTFloat when nothing overlapped.
	DataType DataType
	// Window is the target sub-rectangle that received source data.
	Window Rectangle
	// Overlap is the geographic intersection of the source and the grid.
	Overlap orb.Bound

	NoData    float64
	HasNoData bool
}

// Width returns the grid width in pixels.
func (c *Composite) Width() int { return c.Grid.Width }

// Height returns the grid height in pixels.
func (c *Composite) Height() int { return c.Grid.Height }

// Band returns the 0-based band b as a row-major plane. The slice aliases Data.
func (c *Composite) Band(b int) []float64 {
	n := c.Grid.Width * c.Grid.Height
	if b < 0 || b >= c.Bands {
		return nil
	}
	return c.Data[b*n : (b+1)*n]
}

// At returns the value of 0-based band b at pixel (x, y).
func (c *Composite) At(b, x, y int) float64 {
	if b < 0 || b >= c.Bands || x < 0 || x >= c.Grid.Width || y < 0 || y >= c.Grid.Height {
		return 0
	}
	return c.Data[(b*c.Grid.Height+y)*c.Grid.Width+x]
}

type alignOptions struct {
	resampling Resampling
}

// AlignOption configures Align.
type AlignOption func(*alignOptions)

// WithResampling selects the resampling method (Nearest by default).
func WithResampling(m Resampling) AlignOption {
	return func(o *alignOptions) {
		o.resampling = m
	}
}

// Align places the given 1-based bands of src onto grid. The overlap of the
// two extents is read at native resolution, resampled to the target pixels it
// covers and written into a zero-filled array of the grid's shape. Disjoint
// extents give an all-zero float32 composite rather than an error.
//
// Both extents are assumed to share one CRS; when both declare one and they
// differ, Align fails with ErrMismatchedCRS.
func Align(src *Raster, grid PixelGrid, bands []int, opts ...AlignOption) (*Composite, error) {
	o := alignOptions{resampling: Nearest}
	for _, opt := range opts {
		opt(&o)
	}

	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if _, err := src.bandIndexes(bands); err != nil {
		return nil, err
	}
	if src.CRS() != "" && grid.CRS != "" && src.CRS() != grid.CRS {
		return nil, fmt.Errorf("%w: %s is %s, target grid is %s", ErrMismatchedCRS, src.path, src.CRS(), grid.CRS)
	}

	n := grid.Width * grid.Height
	out := &Composite{
		Data:     make([]float64, len(bands)*n),
		Bands:    len(bands),
		Grid:     grid,
		DataType: DTFloat,
	}

	ol := intersect(src.Bounds(), grid.Bounds)
	if !overlaps(ol) {
		return out, nil
	}
	out.Overlap = ol

	win := grid.PixelRect(ol)

	data, err := src.ReadBounds(ol, bands)
	if err != nil {
		return nil, err
	}
	out.DataType = data.DataType
	out.NoData, out.HasNoData = data.NoData, data.HasNoData

	if win.Empty() || data.Empty() {
		return out, nil
	}
	out.Window = win

	srcN := data.Width * data.Height
	for b := range bands {
		plane := resample(data.Data[b*srcN:(b+1)*srcN], data.Width, data.Height, win.Width, win.Height, o.resampling)
		dst := out.Band(b)
		for y := 0; y < win.Height; y++ {
			copy(dst[(win.Y+y)*grid.Width+win.X:], plane[y*win.Width:(y+1)*win.Width])
		}
	}

	return out, nil
}

// AlignFile opens path, aligns it onto grid and closes it.
func AlignFile(path string, grid PixelGrid, bands []int, opts ...AlignOption) (*Composite, error) {
	src, err := Open(path, nil)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return Align(src, grid, bands, opts...)
}
