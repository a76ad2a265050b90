package srcompare

import (
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/tingold/srcompare/viewer"
)

// Build aligns the original scene onto the grid of the super-resolved true
// color product, builds the RGB, false color and NDVI composites of both
// sides and returns the page that shows them. Any unreadable file or band
// aborts the build.
func Build(cfg Config, log logrus.FieldLogger) (*viewer.Page, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("reading extents")
	orig, err := Open(cfg.Original, nil)
	if err != nil {
		return nil, err
	}
	descriptions := orig.BandDescriptions()
	origPixel := orig.PixelSize()
	log.WithFields(logrus.Fields{
		"path":       cfg.Original,
		"bounds":     formatBounds(orig.Bounds()),
		"pixel_size": origPixel,
	}).Info("original")
	orig.Close()

	tci, err := Open(cfg.SRTCI, nil)
	if err != nil {
		return nil, err
	}
	grid := tci.Grid()
	srPixel := tci.PixelSize()
	tci.Close()
	log.WithFields(logrus.Fields{
		"path":       cfg.SRTCI,
		"bounds":     formatBounds(grid.Bounds),
		"pixel_size": srPixel,
		"size":       fmt.Sprintf("%dx%d", grid.Width, grid.Height),
	}).Info("super-resolved")

	factor := 0
	if srPixel > 0 {
		factor = int(math.RoundToEven(origPixel / srPixel))
	}
	log.WithField("factor", factor).Info("upsample factor")

	bands := ResolveSpectralBands(descriptions)
	if bands.Fallback {
		log.WithField("descriptions", descriptions).Warn("band names not recognized, using fallback band order")
	}
	log.WithField("bands", bands.String()).Info("resolved spectral bands")

	opts := []AlignOption{WithResampling(cfg.Resampling)}

	log.Info("building original composites")
	rgbOrig, err := alignedVisual(cfg, grid, bands.TrueColor(), opts)
	if err != nil {
		return nil, err
	}
	fcOrig, err := alignedVisual(cfg, grid, bands.FalseColor(), opts)
	if err != nil {
		return nil, err
	}
	ndviOrig, err := alignedNDVI(cfg, grid, bands, opts)
	if err != nil {
		return nil, err
	}

	log.Info("reading super-resolved products")
	srImages := make([]*image.RGBA, 0, 3)
	for _, path := range []string{cfg.SRTCI, cfg.SRIRP, cfg.SRNDVI} {
		img, err := productVisual(path)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"path": path, "size": img.Bounds().Size().String()}).Debug("product")
		srImages = append(srImages, img)
	}

	page := &viewer.Page{
		Title:             cfg.Title,
		Location:          cfg.Location,
		OriginalLabel:     cfg.OriginalLabel,
		EnhancedLabel:     cfg.EnhancedLabel,
		OriginalPixelSize: origPixel,
		EnhancedPixelSize: srPixel,
		UpsampleFactor:    factor,
		ExtentX:           grid.Bounds.Right() - grid.Bounds.Left(),
		ExtentY:           grid.Bounds.Top() - grid.Bounds.Bottom(),
		Width:             grid.Width,
		Height:            grid.Height,
		OriginalDate:      cfg.OriginalDate,
		EnhancedDate:      cfg.EnhancedDate,
		Modes:             viewer.DefaultModes,
	}

	log.Info("encoding images")
	for i, pair := range [][2]*image.RGBA{
		{rgbOrig, srImages[0]},
		{fcOrig, srImages[1]},
		{ndviOrig, srImages[2]},
	} {
		mode := viewer.DefaultModes[i]
		left, err := viewer.EncodeJPEG(pair[0], cfg.MaxDim, cfg.JPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("%s original: %w", mode.Key, err)
		}
		right, err := viewer.EncodeJPEG(pair[1], cfg.MaxDim, cfg.JPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("%s enhanced: %w", mode.Key, err)
		}
		page.SetImages(mode, left, right)
	}
	log.WithField("kb", page.ImageBytes()/1024).Info("encoded images")

	return page, nil
}

// alignedVisual aligns three bands of the original onto grid and stretches them.
func alignedVisual(cfg Config, grid PixelGrid, bands []int, opts []AlignOption) (*image.RGBA, error) {
	c, err := AlignFile(cfg.Original, grid, bands, opts...)
	if err != nil {
		return nil, err
	}
	return StretchComposite(c, cfg.LowPct, cfg.HighPct)
}

// alignedNDVI aligns NIR and red onto grid and renders their NDVI.
func alignedNDVI(cfg Config, grid PixelGrid, bands SpectralBands, opts []AlignOption) (*image.RGBA, error) {
	c, err := AlignFile(cfg.Original, grid, []int{bands.NIR, bands.Red}, opts...)
	if err != nil {
		return nil, err
	}
	ndvi := NDVI(c.Band(0), c.Band(1))
	return NDVIVisual(ndvi, grid.Width, grid.Height), nil
}

// productVisual reads an 8-bit super-resolved product in full.
func productVisual(path string) (*image.RGBA, error) {
	r, err := Open(path, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	bands := r.AllBands()
	if len(bands) > 3 {
		bands = bands[:3]
	}
	data, err := r.ReadBands(bands)
	if err != nil {
		return nil, err
	}
	img, err := ByteComposite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func formatBounds(b orb.Bound) string {
	return fmt.Sprintf("L=%.0f B=%.0f R=%.0f T=%.0f", b.Left(), b.Bottom(), b.Right(), b.Top())
}
