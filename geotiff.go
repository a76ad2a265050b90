package srcompare

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// GeoTIFF tag IDs
const (
	TagModelPixelScale     = 33550
	TagModelTiepoint       = 33922
	TagModelTransformation = 34264
	TagGeoKeyDirectory     = 34735
	TagGeoDoubleParams     = 34736
	TagGeoAsciiParams      = 34737
)

// GeoKeys
const (
	GTModelTypeGeoKey     = 1024
	GTModelTypeProjected  = 1
	GTModelTypeGeographic = 2

	GTRasterTypeGeoKey       = 1025
	GTRasterTypePixelIsArea  = 1
	GTRasterTypePixelIsPoint = 2

	GeographicTypeGeoKey  = 2048
	GeogCitationGeoKey    = 2049
	ProjectedCSTypeGeoKey = 3072
	PCSCitationGeoKey     = 3073
)

// Planar configurations
const (
	PlanarChunky   = 1
	PlanarSeparate = 2
)

// GeoTIFFMetadata holds everything the reader needs to know about one IFD.
type GeoTIFFMetadata struct {
	PixelScale      [3]float64
	TiePoints       []TiePoint
	Transformation  [16]float64
	GeoKeys         map[uint16]interface{}
	GeoDoubleParams []float64
	GeoAsciiParams  string
	CRS             string

	Width     int
	Height    int
	BandCount int
	DataType  DataType

	PhotometricInterpretation uint16 // 0=WhiteIsZero, 1=BlackIsZero, 2=RGB, 3=Palette
	PlanarConfiguration       uint16
	Compression               uint16
	Predictor                 uint16

	// NoData is the GDAL nodata value when HasNoData is set.
	NoData    float64
	HasNoData bool

	// BandDescriptions are the GDAL band descriptions, one per band ("" when unset).
	BandDescriptions []string
}

// TiePoint represents a georeferencing tie point
type TiePoint struct {
	PixelX, PixelY, PixelZ float64
	GeoX, GeoY, GeoZ       float64
}

// GeoTIFFReader reads GeoTIFF metadata for one IFD
type GeoTIFFReader struct {
	tr       *TIFFReader
	ifd      *IFD
	metadata *GeoTIFFMetadata

	// GDAL-style affine transform: x = gt[0] + col*gt[1] + row*gt[2],
	// y = gt[3] + col*gt[4] + row*gt[5]
	gt        [6]float64
	hasGeoRef bool
}

// NewGeoTIFFReader creates a new GeoTIFF reader for the main image
func NewGeoTIFFReader(tr *TIFFReader) (*GeoTIFFReader, error) {
	return newGeoTIFFReader(tr, 0)
}

func newGeoTIFFReader(tr *TIFFReader, ifdIndex int) (*GeoTIFFReader, error) {
	ifd := tr.GetIFD(ifdIndex)
	if ifd == nil {
		return nil, fmt.Errorf("IFD %d not found", ifdIndex)
	}

	gtr := &GeoTIFFReader{
		tr:  tr,
		ifd: ifd,
		metadata: &GeoTIFFMetadata{
			GeoKeys: make(map[uint16]interface{}),
		},
	}
	if err := gtr.readMetadata(); err != nil {
		return nil, err
	}
	return gtr, nil
}

// readMetadata reads GeoTIFF metadata from the IFD
func (gtr *GeoTIFFReader) readMetadata() error {
	ifd := gtr.ifd
	meta := gtr.metadata

	meta.Width = int(ifd.UintOr(TagImageWidth, 0))
	meta.Height = int(ifd.UintOr(TagImageLength, 0))
	meta.BandCount = int(ifd.UintOr(TagSamplesPerPixel, 1))
	if meta.Width <= 0 || meta.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", meta.Width, meta.Height)
	}
	if meta.BandCount <= 0 {
		return fmt.Errorf("invalid band count %d", meta.BandCount)
	}

	dt, err := gtr.determineDataType()
	if err != nil {
		return err
	}
	meta.DataType = dt

	meta.PhotometricInterpretation = uint16(ifd.UintOr(TagPhotometricInterpretation, 1))
	meta.PlanarConfiguration = uint16(ifd.UintOr(TagPlanarConfiguration, PlanarChunky))
	meta.Compression = uint16(ifd.UintOr(TagCompression, CompressionNone))
	meta.Predictor = uint16(ifd.UintOr(TagPredictor, PredictorNone))

	if v := ifd.Floats(TagModelPixelScale); len(v) >= 2 {
		copy(meta.PixelScale[:], v)
	}
	if v := ifd.Floats(TagModelTiepoint); len(v) >= 6 {
		meta.TiePoints = parseTiePoints(v)
	}
	if v := ifd.Floats(TagModelTransformation); len(v) >= 16 {
		copy(meta.Transformation[:], v[:16])
	}

	if err := gtr.readGeoKeys(); err != nil {
		return fmt.Errorf("failed to read GeoKeys: %w", err)
	}
	meta.CRS = gtr.determineCRS()

	if err := gtr.readGDALTags(); err != nil {
		return err
	}

	return gtr.buildGeoTransform()
}

// determineDataType maps BitsPerSample and SampleFormat to a DataType
func (gtr *GeoTIFFReader) determineDataType() (DataType, error) {
	bitsPerSample := gtr.ifd.UintOr(TagBitsPerSample, 1)
	// 1 = unsigned integer, 2 = signed integer, 3 = IEEE floating point
	sampleFormat := gtr.ifd.UintOr(TagSampleFormat, 1)

	switch {
	case bitsPerSample == 8 && sampleFormat == 1:
		return DTByte, nil
	case bitsPerSample == 8 && sampleFormat == 2:
		return DTSByte, nil
	case bitsPerSample == 16 && sampleFormat == 1:
		return DTSShort, nil
	case bitsPerSample == 16 && sampleFormat == 2:
		return DTSShortS, nil
	case bitsPerSample == 32 && sampleFormat == 1:
		return DTSLong, nil
	case bitsPerSample == 32 && sampleFormat == 2:
		return DTSLongS, nil
	case bitsPerSample == 32 && sampleFormat == 3:
		return DTFloat, nil
	case bitsPerSample == 64 && sampleFormat == 3:
		return DTDouble, nil
	default:
		return 0, fmt.Errorf("unsupported sample layout: %d bits, format %d", bitsPerSample, sampleFormat)
	}
}

// parseTiePoints parses tie point values
func parseTiePoints(values []float64) []TiePoint {
	tiePoints := make([]TiePoint, 0, len(values)/6)
	for i := 0; i+5 < len(values); i += 6 {
		tiePoints = append(tiePoints, TiePoint{
			PixelX: values[i],
			PixelY: values[i+1],
			PixelZ: values[i+2],
			GeoX:   values[i+3],
			GeoY:   values[i+4],
			GeoZ:   values[i+5],
		})
	}
	return tiePoints
}

// lazyLoad resolves a tag value that was outside the metadata buffer.
func (gtr *GeoTIFFReader) lazyLoad(id uint16) error {
	tag := gtr.ifd.Tags[id]
	if tag == nil || tag.Value != nil || !tag.IsOffset {
		return nil
	}
	return gtr.tr.ReadTagValue(gtr.ifd, id)
}

// readGeoKeys reads the GeoKey directory
func (gtr *GeoTIFFReader) readGeoKeys() error {
	if gtr.ifd.Tags[TagGeoKeyDirectory] == nil {
		return nil
	}
	for _, id := range []uint16{TagGeoKeyDirectory, TagGeoDoubleParams, TagGeoAsciiParams} {
		if err := gtr.lazyLoad(id); err != nil {
			return err
		}
	}

	dir := gtr.ifd.Uints(TagGeoKeyDirectory)
	if len(dir) < 4 {
		return fmt.Errorf("GeoKeyDirectory too short")
	}

	gtr.metadata.GeoDoubleParams = gtr.ifd.Floats(TagGeoDoubleParams)
	gtr.metadata.GeoAsciiParams = gtr.ifd.ASCII(TagGeoAsciiParams)

	// Header: version, revision, minor revision, number of keys.
	// Each key: keyID, location, count, value/offset.
	numKeys := int(dir[3])
	for k := 0; k < numKeys; k++ {
		i := 4 + k*4
		if i+3 >= len(dir) {
			break
		}
		keyID := uint16(dir[i])
		location := dir[i+1]
		count := int(dir[i+2])
		valueOrOffset := int(dir[i+3])

		var keyValue interface{}
		switch location {
		case 0:
			keyValue = uint16(valueOrOffset)
		case TagGeoDoubleParams:
			params := gtr.metadata.GeoDoubleParams
			if count == 1 && valueOrOffset < len(params) {
				keyValue = params[valueOrOffset]
			} else if valueOrOffset+count <= len(params) {
				keyValue = params[valueOrOffset : valueOrOffset+count]
			}
		case TagGeoAsciiParams:
			ascii := gtr.metadata.GeoAsciiParams
			if valueOrOffset < len(ascii) {
				end := valueOrOffset + count
				if end > len(ascii) {
					end = len(ascii)
				}
				keyValue = strings.TrimRight(ascii[valueOrOffset:end], "|\x00")
			}
		}

		if keyValue != nil {
			gtr.metadata.GeoKeys[keyID] = keyValue
		}
	}

	return nil
}

// determineCRS determines the CRS from GeoKeys
func (gtr *GeoTIFFReader) determineCRS() string {
	if code, ok := gtr.metadata.GeoKeys[ProjectedCSTypeGeoKey].(uint16); ok && code != 0 && code != 32767 {
		return fmt.Sprintf("EPSG:%d", code)
	}
	if code, ok := gtr.metadata.GeoKeys[GeographicTypeGeoKey].(uint16); ok && code != 0 && code != 32767 {
		return fmt.Sprintf("EPSG:%d", code)
	}
	return ""
}

// gdalMetadata mirrors the XML GDAL writes into the GDAL_METADATA tag.
type gdalMetadata struct {
	Items []struct {
		Name   string `xml:"name,attr"`
		Sample *int   `xml:"sample,attr"`
		Role   string `xml:"role,attr"`
		Value  string `xml:",chardata"`
	} `xml:"Item"`
}

// readGDALTags reads the GDAL nodata and band description tags.
func (gtr *GeoTIFFReader) readGDALTags() error {
	meta := gtr.metadata
	meta.BandDescriptions = make([]string, meta.BandCount)

	for _, id := range []uint16{TagGDALNoData, TagGDALMetadata} {
		if err := gtr.lazyLoad(id); err != nil {
			return err
		}
	}

	if s := strings.TrimSpace(gtr.ifd.ASCII(TagGDALNoData)); s != "" {
		v, err := parseNoData(s)
		if err != nil {
			return fmt.Errorf("invalid GDAL_NODATA %q: %w", s, err)
		}
		meta.NoData = v
		meta.HasNoData = true
	}

	if s := gtr.ifd.ASCII(TagGDALMetadata); s != "" {
		var md gdalMetadata
		if err := xml.Unmarshal([]byte(s), &md); err != nil {
			return fmt.Errorf("invalid GDAL_METADATA: %w", err)
		}
		for _, item := range md.Items {
			if item.Sample == nil || !strings.EqualFold(item.Name, "DESCRIPTION") {
				continue
			}
			if *item.Sample >= 0 && *item.Sample < meta.BandCount {
				meta.BandDescriptions[*item.Sample] = strings.TrimSpace(item.Value)
			}
		}
	}

	return nil
}

// parseNoData parses GDAL's textual nodata value ("nan", "-9999", "0").
func parseNoData(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "nan", "-nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

// buildGeoTransform derives the affine pixel-to-map transform from either
// ModelTransformation or ModelTiepoint + ModelPixelScale.
func (gtr *GeoTIFFReader) buildGeoTransform() error {
	meta := gtr.metadata

	if gtr.hasTransformation() {
		t := meta.Transformation
		gtr.gt = [6]float64{t[3], t[0], t[1], t[7], t[4], t[5]}
		gtr.hasGeoRef = true
	} else if len(meta.TiePoints) > 0 && meta.PixelScale[0] != 0 {
		tp := meta.TiePoints[0]
		sx, sy := meta.PixelScale[0], meta.PixelScale[1]
		gtr.gt = [6]float64{
			tp.GeoX - tp.PixelX*sx, sx, 0,
			tp.GeoY + tp.PixelY*sy, 0, -sy,
		}
		gtr.hasGeoRef = true
	}

	if !gtr.hasGeoRef {
		return nil
	}

	if gtr.gt[2] != 0 || gtr.gt[4] != 0 {
		return fmt.Errorf("%w: rotation terms %g, %g", ErrUnsupportedTransform, gtr.gt[2], gtr.gt[4])
	}

	// PixelIsPoint anchors the tiepoint on the pixel centre
	if rt, ok := meta.GeoKeys[GTRasterTypeGeoKey].(uint16); ok && rt == GTRasterTypePixelIsPoint {
		gtr.gt[0] -= gtr.gt[1] * 0.5
		gtr.gt[3] -= gtr.gt[5] * 0.5
	}

	return nil
}

// hasTransformation checks if ModelTransformation is available
func (gtr *GeoTIFFReader) hasTransformation() bool {
	for _, v := range gtr.metadata.Transformation {
		if v != 0 {
			return true
		}
	}
	return false
}

// pixelToGeo converts pixel coordinates to map coordinates
func (gtr *GeoTIFFReader) pixelToGeo(pixelX, pixelY float64) (float64, float64) {
	if !gtr.hasGeoRef {
		// Ungeoreferenced rasters live in pixel space with Y up
		return pixelX, -pixelY
	}
	return gtr.gt[0] + pixelX*gtr.gt[1] + pixelY*gtr.gt[2],
		gtr.gt[3] + pixelX*gtr.gt[4] + pixelY*gtr.gt[5]
}

// Resolution returns the absolute pixel size in map units.
func (gtr *GeoTIFFReader) Resolution() (float64, float64) {
	if !gtr.hasGeoRef {
		return 1, 1
	}
	return math.Abs(gtr.gt[1]), math.Abs(gtr.gt[5])
}

// Bounds calculates the geographic bounding box
func (gtr *GeoTIFFReader) Bounds() orb.Bound {
	w, h := float64(gtr.metadata.Width), float64(gtr.metadata.Height)

	x0, y0 := gtr.pixelToGeo(0, 0)
	x1, y1 := gtr.pixelToGeo(w, h)

	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// GetMetadata returns the GeoTIFF metadata
func (gtr *GeoTIFFReader) GetMetadata() *GeoTIFFMetadata {
	return gtr.metadata
}

// ParseEPSGCode extracts EPSG code from CRS string
func ParseEPSGCode(crs string) (int, error) {
	if strings.HasPrefix(crs, "EPSG:") {
		code, err := strconv.Atoi(crs[5:])
		if err != nil {
			return 0, err
		}
		return code, nil
	}
	return 0, fmt.Errorf("invalid CRS format: %s", crs)
}
