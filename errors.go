package srcompare

import "errors"

// Errors returned by the raster reader and the aligner. They are wrapped with
// the offending path or band, so test them with errors.Is.
var (
	// ErrSourceNotFound means a path or URL does not resolve to a readable raster.
	ErrSourceNotFound = errors.New("raster source not found")

	// ErrInvalidBand means a requested 1-based band index is out of range.
	ErrInvalidBand = errors.New("invalid band index")

	// ErrMismatchedCRS means a source and a target grid declare different CRSs.
	ErrMismatchedCRS = errors.New("mismatched coordinate reference systems")

	// ErrUnsupportedTransform means the raster is rotated or skewed.
	ErrUnsupportedTransform = errors.New("unsupported raster transform")
)
