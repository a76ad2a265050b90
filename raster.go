package srcompare

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/valyala/fasthttp"
)

// Raster is an open GeoTIFF. Only the main image (IFD 0) is read; overviews
// and masks are counted but never decoded.
type Raster struct {
	path       string
	reader     io.ReadSeeker
	closer     io.Closer
	size       int64
	tiffReader *TIFFReader
	geo        *GeoTIFFReader
	meta       *GeoTIFFMetadata
}

// RasterData holds pixels read from a raster.
// Data is band-sequential (BSQ): index = band*Height*Width + y*Width + x,
// i.e. the array has shape (Bands, Height, Width).
type RasterData struct {
	Data     []float64
	Width    int
	Height   int
	Bands    int
	DataType DataType
	// Bounds is the geographic extent of the pixels actually read.
	Bounds orb.Bound

	NoData    float64
	HasNoData bool
}

// Empty reports whether the read produced no pixels.
func (d *RasterData) Empty() bool {
	return d.Width == 0 || d.Height == 0
}

// At returns the value at the specified band, x, y coordinates.
func (d *RasterData) At(band, x, y int) float64 {
	if band < 0 || band >= d.Bands || x < 0 || x >= d.Width || y < 0 || y >= d.Height {
		return 0
	}
	return d.Data[(band*d.Height+y)*d.Width+x]
}

// Set sets the value at the specified band, x, y coordinates.
func (d *RasterData) Set(band, x, y int, value float64) {
	if band < 0 || band >= d.Bands || x < 0 || x >= d.Width || y < 0 || y >= d.Height {
		return
	}
	d.Data[(band*d.Height+y)*d.Width+x] = value
}

// Band returns a copy of one band (0-based) as a row-major plane.
func (d *RasterData) Band(band int) []float64 {
	if band < 0 || band >= d.Bands {
		return nil
	}
	n := d.Width * d.Height
	out := make([]float64, n)
	copy(out, d.Data[band*n:(band+1)*n])
	return out
}

// Rectangle represents a rectangle in pixel space
type Rectangle struct {
	X      int // X coordinate of top-left corner
	Y      int // Y coordinate of top-left corner
	Width  int // Width in pixels
	Height int // Height in pixels
}

// Empty reports whether the rectangle covers no pixels.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Read reads a raster from an io.ReadSeeker, resolving all tag values up front.
func Read(r io.ReadSeeker) (*Raster, error) {
	tr, err := NewTIFFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create TIFF reader: %w", err)
	}
	return newRaster("", r, tr)
}

// Open opens a raster from a file path or URL and reads only its metadata.
// URLs (http:// or https://) are read with HTTP range requests. Every failure
// wraps ErrSourceNotFound.
func Open(pathOrURL string, client *fasthttp.Client) (*Raster, error) {
	var reader io.ReadSeeker
	var closer io.Closer
	size := int64(-1)

	if isURL(pathOrURL) {
		if client == nil {
			client = &fasthttp.Client{
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
		}
		rr, err := NewHTTPRangeReader(pathOrURL, client)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
		}
		reader, size = rr, rr.Size()
	} else {
		file, err := os.Open(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, pathOrURL, err)
		}
		if fi, err := file.Stat(); err == nil {
			size = fi.Size()
		}
		reader, closer = file, file
	}

	tr, err := newTIFFReader(reader, true)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, pathOrURL, err)
	}

	r, err := newRaster(pathOrURL, reader, tr)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("%s: %w", pathOrURL, err)
	}
	r.closer = closer
	r.size = size
	return r, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newRaster(path string, reader io.ReadSeeker, tr *TIFFReader) (*Raster, error) {
	gtr, err := newGeoTIFFReader(tr, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return &Raster{
		path:       path,
		reader:     reader,
		size:       -1,
		tiffReader: tr,
		geo:        gtr,
		meta:       gtr.GetMetadata(),
	}, nil
}

// Close releases the underlying file handle, if any.
func (r *Raster) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Path returns the path or URL the raster was opened from.
func (r *Raster) Path() string { return r.path }

// Size returns the size of the source in bytes, or -1 if unknown.
func (r *Raster) Size() int64 { return r.size }

// Bounds returns the geographic bounding box of the main image
func (r *Raster) Bounds() orb.Bound { return r.geo.Bounds() }

// CRS returns the Coordinate Reference System ("EPSG:n") or "" if undeclared.
func (r *Raster) CRS() string { return r.meta.CRS }

// Width returns the width of the main image in pixels
func (r *Raster) Width() int { return r.meta.Width }

// Height returns the height of the main image in pixels
func (r *Raster) Height() int { return r.meta.Height }

// BandCount returns the number of bands
func (r *Raster) BandCount() int { return r.meta.BandCount }

// DataType returns the pixel data type
func (r *Raster) DataType() DataType { return r.meta.DataType }

// Resolution returns the pixel size in map units along X and Y.
func (r *Raster) Resolution() (float64, float64) { return r.geo.Resolution() }

// PixelSize returns the X pixel size in map units.
func (r *Raster) PixelSize() float64 {
	x, _ := r.geo.Resolution()
	return x
}

// NoData returns the declared GDAL nodata value.
func (r *Raster) NoData() (float64, bool) { return r.meta.NoData, r.meta.HasNoData }

// BandDescriptions returns one description per band ("" when unset).
func (r *Raster) BandDescriptions() []string {
	out := make([]string, len(r.meta.BandDescriptions))
	copy(out, r.meta.BandDescriptions)
	return out
}

// BandName returns the description of a 1-based band, or "B<n>".
func (r *Raster) BandName(band int) string {
	if band >= 1 && band <= len(r.meta.BandDescriptions) && r.meta.BandDescriptions[band-1] != "" {
		return r.meta.BandDescriptions[band-1]
	}
	return fmt.Sprintf("B%d", band)
}

// OverviewCount returns the number of IFDs after the main image
// (overviews and masks).
func (r *Raster) OverviewCount() int { return r.tiffReader.IFDCount() - 1 }

// Metadata returns the metadata of the main image.
func (r *Raster) Metadata() *GeoTIFFMetadata { return r.meta }

// Grid returns the raster's own pixel grid.
func (r *Raster) Grid() PixelGrid {
	return PixelGrid{
		Width:  r.meta.Width,
		Height: r.meta.Height,
		Bounds: r.Bounds(),
		CRS:    r.meta.CRS,
	}
}

// AllBands returns the 1-based indices of every band.
func (r *Raster) AllBands() []int {
	bands := make([]int, r.meta.BandCount)
	for i := range bands {
		bands[i] = i + 1
	}
	return bands
}

// bandIndexes validates 1-based band indices and converts them to 0-based.
func (r *Raster) bandIndexes(bands []int) ([]int, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: %s: no bands requested", ErrInvalidBand, r.path)
	}
	idx := make([]int, len(bands))
	for i, b := range bands {
		if b < 1 || b > r.meta.BandCount {
			return nil, fmt.Errorf("%w: %s: band %d (raster has %d bands)", ErrInvalidBand, r.path, b, r.meta.BandCount)
		}
		idx[i] = b - 1
	}
	return idx, nil
}

// ReadBands reads the full extent of the given 1-based bands.
func (r *Raster) ReadBands(bands []int) (*RasterData, error) {
	return r.ReadWindow(Rectangle{Width: r.meta.Width, Height: r.meta.Height}, bands)
}

// ReadBounds reads the pixels covering a geographic window at native
// resolution. The window is clipped to the raster first; a window that
// misses the raster yields an empty RasterData, not an error.
func (r *Raster) ReadBounds(bound orb.Bound, bands []int) (*RasterData, error) {
	if _, err := r.bandIndexes(bands); err != nil {
		return nil, err
	}

	rect := r.boundsToWindow(bound)
	if rect.Empty() {
		return &RasterData{
			Bands:     len(bands),
			DataType:  r.meta.DataType,
			NoData:    r.meta.NoData,
			HasNoData: r.meta.HasNoData,
		}, nil
	}

	return r.ReadWindow(rect, bands)
}

// boundsToWindow converts a geographic window into the pixel rectangle it
// covers, clipped to the image.
func (r *Raster) boundsToWindow(bound orb.Bound) Rectangle {
	img := r.Bounds()
	clip := intersect(img, bound)
	if !overlaps(clip) {
		return Rectangle{}
	}

	resX, resY := r.geo.Resolution()
	colStart := clampInt(int(math.Round((clip.Left()-img.Left())/resX)), 0, r.meta.Width)
	colEnd := clampInt(int(math.Round((clip.Right()-img.Left())/resX)), 0, r.meta.Width)
	rowStart := clampInt(int(math.Round((img.Top()-clip.Top())/resY)), 0, r.meta.Height) // Y is inverted
	rowEnd := clampInt(int(math.Round((img.Top()-clip.Bottom())/resY)), 0, r.meta.Height)

	return Rectangle{
		X:      colStart,
		Y:      rowStart,
		Width:  colEnd - colStart,
		Height: rowEnd - rowStart,
	}
}

// ReadWindow reads a pixel rectangle of the main image for the given 1-based bands.
func (r *Raster) ReadWindow(rect Rectangle, bands []int) (*RasterData, error) {
	idx, err := r.bandIndexes(bands)
	if err != nil {
		return nil, err
	}

	if rect.X < 0 || rect.Y < 0 {
		return nil, fmt.Errorf("rectangle coordinates must be non-negative")
	}
	if rect.Empty() {
		return nil, fmt.Errorf("rectangle dimensions must be positive")
	}
	if rect.X+rect.Width > r.meta.Width {
		return nil, fmt.Errorf("rectangle extends beyond image width")
	}
	if rect.Y+rect.Height > r.meta.Height {
		return nil, fmt.Errorf("rectangle extends beyond image height")
	}

	data, err := r.readPixels(rect, idx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read pixel region: %w", r.path, err)
	}

	x0, y0 := r.geo.pixelToGeo(float64(rect.X), float64(rect.Y))
	x1, y1 := r.geo.pixelToGeo(float64(rect.X+rect.Width), float64(rect.Y+rect.Height))

	return &RasterData{
		Data:     data,
		Width:    rect.Width,
		Height:   rect.Height,
		Bands:    len(bands),
		DataType: r.meta.DataType,
		Bounds: orb.Bound{
			Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
			Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
		},
		NoData:    r.meta.NoData,
		HasNoData: r.meta.HasNoData,
	}, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
