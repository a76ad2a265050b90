package srcompare

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/paulmach/orb"
)

// InspectPercentiles are the percentiles reported for the first band.
var InspectPercentiles = []float64{1, 5, 25, 50, 75, 95, 99}

// Report describes one raster file.
type Report struct {
	Path          string
	Size          int64 // bytes, -1 if unknown
	Width         int
	Height        int
	BandCount     int
	DataType      DataType
	CRS           string
	PixelSize     float64
	Bounds        orb.Bound
	Overviews     int
	Compression   uint16
	BandNames     []string
	NoData        *float64
	Bands         []BandStats
	AllNaN        bool
	Percentiles   []float64 // of band 1, at InspectPercentiles
	HasBandNames  bool
	PlanarConfig  uint16
	SamplesLayout string
}

// Inspect opens path, reads every band and summarizes it.
func Inspect(path string) (*Report, error) {
	r, err := Open(path, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return InspectRaster(r)
}

// InspectRaster summarizes an open raster.
func InspectRaster(r *Raster) (*Report, error) {
	meta := r.Metadata()
	rep := &Report{
		Path:         r.Path(),
		Size:         r.Size(),
		Width:        r.Width(),
		Height:       r.Height(),
		BandCount:    r.BandCount(),
		DataType:     r.DataType(),
		CRS:          r.CRS(),
		PixelSize:    r.PixelSize(),
		Bounds:       r.Bounds(),
		Overviews:    r.OverviewCount(),
		Compression:  meta.Compression,
		PlanarConfig: meta.PlanarConfiguration,
		AllNaN:       true,
	}
	if nd, ok := r.NoData(); ok {
		rep.NoData = &nd
	}
	for b := 1; b <= r.BandCount(); b++ {
		rep.BandNames = append(rep.BandNames, r.BandName(b))
	}
	for _, d := range r.BandDescriptions() {
		if d != "" {
			rep.HasBandNames = true
		}
	}
	rep.SamplesLayout = "interleaved"
	if meta.PlanarConfiguration == PlanarSeparate {
		rep.SamplesLayout = "band"
	}

	data, err := r.ReadBands(r.AllBands())
	if err != nil {
		return nil, err
	}

	for b := 0; b < data.Bands; b++ {
		band := data.Data[b*data.Width*data.Height : (b+1)*data.Width*data.Height]
		st := ComputeBandStats(band, rep.BandNames[b])
		if !st.AllNaN {
			rep.AllNaN = false
		}
		rep.Bands = append(rep.Bands, st)
		if b == 0 {
			rep.Percentiles = Percentiles(band, InspectPercentiles...)
		}
	}
	return rep, nil
}

// WriteText prints the report as an aligned text block.
func (rep *Report) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FILE: %s", rep.Path)
	if rep.Size >= 0 {
		fmt.Fprintf(&sb, "  (%.2f MB)", float64(rep.Size)/(1024*1024))
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "  Dimensions:  %d x %d px, %d bands\n", rep.Width, rep.Height, rep.BandCount)
	fmt.Fprintf(&sb, "  Dtype:       %s\n", rep.DataType)
	crs := rep.CRS
	if crs == "" {
		crs = "unknown"
	}
	fmt.Fprintf(&sb, "  CRS:         %s\n", crs)
	fmt.Fprintf(&sb, "  Pixel size:  %.2f m\n", rep.PixelSize)
	b := rep.Bounds
	fmt.Fprintf(&sb, "  Bounds:      L=%.1f B=%.1f R=%.1f T=%.1f\n", b.Left(), b.Bottom(), b.Right(), b.Top())
	fmt.Fprintf(&sb, "  Extent:      %.0f x %.0f m\n", b.Right()-b.Left(), b.Top()-b.Bottom())
	fmt.Fprintf(&sb, "  Layout:      %s, compression %d, %d overviews\n", rep.SamplesLayout, rep.Compression, rep.Overviews)
	if rep.NoData != nil {
		fmt.Fprintf(&sb, "  NoData:      %g\n", *rep.NoData)
	}
	if rep.HasBandNames {
		fmt.Fprintf(&sb, "  Band names:  %s\n", strings.Join(rep.BandNames, ", "))
	}
	fmt.Fprintf(&sb, "\n  Total pixels per band: %d\n", rep.Width*rep.Height)
	fmt.Fprintf(&sb, "  ALL data is NaN:       %t\n", rep.AllNaN)

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	if rep.AllNaN {
		_, err := io.WriteString(w, "\n  *** WARNING: ALL pixels are NaN - this file contains NO valid data! ***\n")
		return err
	}

	io.WriteString(w, "\n  Band Statistics (NaN-safe):\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Band\tName\tValid\tNaN\tMin\tMax\tMean\tStd\t")
	for i, st := range rep.Bands {
		if st.AllNaN {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t** ALL NaN **\t\t\t\t\n", i+1, st.Name, st.Valid, st.NaN)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.6f\t%.6f\t%.6f\t%.6f\t\n",
			i+1, st.Name, st.Valid, st.NaN, st.Min, st.Max, st.Mean, st.StdDev)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Percentiles) == len(InspectPercentiles) {
		fmt.Fprintf(w, "\n  Percentiles for Band 1 (%s):\n   ", rep.BandNames[0])
		for i, p := range InspectPercentiles {
			fmt.Fprintf(w, " P%g=%.6f", p, rep.Percentiles[i])
		}
		fmt.Fprintln(w)
	}
	return nil
}

// ResolutionComparison relates an original raster to its super-resolved
// counterpart.
type ResolutionComparison struct {
	OriginalWidth, OriginalHeight   int
	EnhancedWidth, EnhancedHeight   int
	OriginalPixelSize               float64
	EnhancedPixelSize               float64
	OriginalBands, EnhancedBands    int
	OriginalPixels, EnhancedPixels  int
	WidthFactor, HeightFactor       float64
	PixelSizeFactor, PixelCountRate float64
}

// CompareResolution computes size and resolution factors of sr relative to orig.
func CompareResolution(orig, sr *Raster) ResolutionComparison {
	c := ResolutionComparison{
		OriginalWidth:     orig.Width(),
		OriginalHeight:    orig.Height(),
		EnhancedWidth:     sr.Width(),
		EnhancedHeight:    sr.Height(),
		OriginalPixelSize: orig.PixelSize(),
		EnhancedPixelSize: sr.PixelSize(),
		OriginalBands:     orig.BandCount(),
		EnhancedBands:     sr.BandCount(),
		OriginalPixels:    orig.Width() * orig.Height(),
		EnhancedPixels:    sr.Width() * sr.Height(),
	}
	c.WidthFactor = ratio(float64(c.EnhancedWidth), float64(c.OriginalWidth))
	c.HeightFactor = ratio(float64(c.EnhancedHeight), float64(c.OriginalHeight))
	c.PixelSizeFactor = ratio(c.OriginalPixelSize, c.EnhancedPixelSize)
	c.PixelCountRate = ratio(float64(c.EnhancedPixels), float64(c.OriginalPixels))
	return c
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// WriteText prints the comparison as a table.
func (c ResolutionComparison) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tOriginal\tSuper-Resolved\tFactor\t")
	fmt.Fprintf(tw, "Width (px)\t%d\t%d\t%.1fx\t\n", c.OriginalWidth, c.EnhancedWidth, c.WidthFactor)
	fmt.Fprintf(tw, "Height (px)\t%d\t%d\t%.1fx\t\n", c.OriginalHeight, c.EnhancedHeight, c.HeightFactor)
	fmt.Fprintf(tw, "Pixel size (m)\t%.1f\t%.1f\t%.1fx\t\n", c.OriginalPixelSize, c.EnhancedPixelSize, c.PixelSizeFactor)
	fmt.Fprintf(tw, "Bands\t%d\t%d\t\t\n", c.OriginalBands, c.EnhancedBands)
	fmt.Fprintf(tw, "Total pixels\t%d\t%d\t%.1fx\t\n", c.OriginalPixels, c.EnhancedPixels, c.PixelCountRate)
	return tw.Flush()
}
