package srcompare

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// geoTIFF describes a GeoTIFF built in memory for tests.
type geoTIFF struct {
	width, height, bands int
	dtype                DataType // DTByte, DTSShort, DTSShortS, DTFloat or DTDouble
	data                 []float64

	tile         int // tile size; 0 writes strips
	rowsPerStrip int // 0 writes a single strip
	planar       uint16
	compression  uint16
	predictor    uint16
	bigEndian    bool
	whiteIsZero  bool
	overviews    int // extra 1x1 IFDs

	// georeferencing: top-left corner and pixel size; res 0 leaves the file
	// without georeferencing
	left, top    float64
	res          float64
	epsg         uint16
	pixelIsPoint bool
	// transform, when set, is written as ModelTransformation instead of
	// tiepoint and scale
	transform []float64

	nodata       string
	descriptions []string
}

// newGeoTIFF returns a float32 raster of w x h x bands whose top-left corner
// is (left, top) with square pixels of size res. Pixel values are
// 1000*band + 10*y + x + 1, so no value is zero.
func newGeoTIFF(w, h, bands int, left, top, res float64) *geoTIFF {
	g := &geoTIFF{
		width: w, height: h, bands: bands,
		dtype:       DTFloat,
		planar:      PlanarChunky,
		compression: CompressionNone,
		left:        left, top: top, res: res,
		epsg: 32636,
	}
	g.data = make([]float64, w*h*bands)
	for b := 0; b < bands; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.data[(b*h+y)*w+x] = float64(1000*b + 10*y + x + 1)
			}
		}
	}
	return g
}

func (g *geoTIFF) order() binary.ByteOrder {
	if g.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (g *geoTIFF) value(band, x, y int) float64 {
	if x >= g.width || y >= g.height {
		return 0
	}
	return g.data[(band*g.height+y)*g.width+x]
}

func (g *geoTIFF) putSample(dst []byte, v float64) {
	order := g.order()
	switch g.dtype {
	case DTByte:
		dst[0] = uint8(v)
	case DTSShort:
		order.PutUint16(dst, uint16(v))
	case DTSShortS:
		order.PutUint16(dst, uint16(int16(v)))
	case DTFloat:
		order.PutUint32(dst, math.Float32bits(float32(v)))
	case DTDouble:
		order.PutUint64(dst, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unsupported fixture type %v", g.dtype))
	}
}

// differenceRows applies the horizontal predictor to a chunk in place.
func (g *geoTIFF) differenceRows(buf []byte, width, rows, spp int) {
	order := g.order()
	size := g.dtype.Size()
	samples := width * spp
	for y := 0; y < rows; y++ {
		row := buf[y*samples*size : (y+1)*samples*size]
		for i := samples - 1; i >= spp; i-- {
			switch size {
			case 1:
				row[i] -= row[i-spp]
			case 2:
				order.PutUint16(row[i*2:], order.Uint16(row[i*2:])-order.Uint16(row[(i-spp)*2:]))
			case 4:
				order.PutUint32(row[i*4:], order.Uint32(row[i*4:])-order.Uint32(row[(i-spp)*4:]))
			}
		}
	}
}

func (g *geoTIFF) compress(t testing.TB, raw []byte, width, rows int) []byte {
	var buf bytes.Buffer
	switch g.compression {
	case CompressionNone:
		return raw
	case CompressionDeflate, CompressionDeflateAdob:
		zw := zlib.NewWriter(&buf)
		zw.Write(raw)
		zw.Close()
	case CompressionLZW:
		// Small chunks never reach the code width change where the TIFF
		// and GIF flavours of LZW differ
		lw := lzw.NewWriter(&buf, lzw.MSB, 8)
		lw.Write(raw)
		lw.Close()
	case CompressionJPEG:
		img := image.NewGray(image.Rect(0, 0, width, rows))
		copy(img.Pix, raw)
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
			t.Fatalf("jpeg encode: %v", err)
		}
	default:
		t.Fatalf("unsupported fixture compression %d", g.compression)
	}
	return buf.Bytes()
}

// chunks encodes every strip or tile, plane by plane.
func (g *geoTIFF) chunks(t testing.TB) (chunkW, chunkH int, out [][]byte) {
	planes, spp := 1, g.bands
	if g.planar == PlanarSeparate {
		planes, spp = g.bands, 1
	}

	chunkW, chunkH = g.width, g.height
	if g.tile > 0 {
		chunkW, chunkH = g.tile, g.tile
	} else if g.rowsPerStrip > 0 {
		chunkH = g.rowsPerStrip
	}
	across := (g.width + chunkW - 1) / chunkW
	down := (g.height + chunkH - 1) / chunkH
	size := g.dtype.Size()

	for p := 0; p < planes; p++ {
		for cy := 0; cy < down; cy++ {
			for cx := 0; cx < across; cx++ {
				rows := chunkH
				if g.tile == 0 && (cy+1)*chunkH > g.height {
					rows = g.height - cy*chunkH
				}
				raw := make([]byte, chunkW*rows*spp*size)
				for y := 0; y < rows; y++ {
					for x := 0; x < chunkW; x++ {
						for s := 0; s < spp; s++ {
							band := s
							if g.planar == PlanarSeparate {
								band = p
							}
							v := g.value(band, cx*chunkW+x, cy*chunkH+y)
							g.putSample(raw[((y*chunkW+x)*spp+s)*size:], v)
						}
					}
				}
				if g.predictor == PredictorHorizontal {
					g.differenceRows(raw, chunkW, rows, spp)
				}
				out = append(out, g.compress(t, raw, chunkW, rows))
			}
		}
	}
	return chunkW, chunkH, out
}

type fixtureTag struct {
	id    uint16
	typ   DataType
	count uint32
	data  []byte
}

func (g *geoTIFF) shorts(id uint16, v ...uint16) fixtureTag {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		g.order().PutUint16(b[i*2:], x)
	}
	return fixtureTag{id, DTSShort, uint32(len(v)), b}
}

func (g *geoTIFF) longs(id uint16, v ...uint32) fixtureTag {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		g.order().PutUint32(b[i*4:], x)
	}
	return fixtureTag{id, DTSLong, uint32(len(v)), b}
}

func (g *geoTIFF) doubles(id uint16, v ...float64) fixtureTag {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		g.order().PutUint64(b[i*8:], math.Float64bits(x))
	}
	return fixtureTag{id, DTDouble, uint32(len(v)), b}
}

func asciiTag(id uint16, s string) fixtureTag {
	b := append([]byte(s), 0)
	return fixtureTag{id, DTASCII, uint32(len(b)), b}
}

// writeIFD appends an IFD at the end of buf (word aligned) followed by the
// out-of-line tag values, and returns its offset and the position of its
// next-IFD field.
func (g *geoTIFF) writeIFD(buf *bytes.Buffer, tags []fixtureTag) (ifdOffset, nextField int) {
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	order := g.order()
	sort.Slice(tags, func(i, j int) bool { return tags[i].id < tags[j].id })

	ifdOffset = buf.Len()
	extOffset := ifdOffset + 2 + 12*len(tags) + 4

	var entries, ext bytes.Buffer
	for _, tag := range tags {
		e := make([]byte, 12)
		order.PutUint16(e[0:], tag.id)
		order.PutUint16(e[2:], uint16(tag.typ))
		order.PutUint32(e[4:], tag.count)
		if len(tag.data) <= 4 {
			copy(e[8:], tag.data)
		} else {
			order.PutUint32(e[8:], uint32(extOffset+ext.Len()))
			ext.Write(tag.data)
			if ext.Len()%2 == 1 {
				ext.WriteByte(0)
			}
		}
		entries.Write(e)
	}

	count := make([]byte, 2)
	order.PutUint16(count, uint16(len(tags)))
	buf.Write(count)
	buf.Write(entries.Bytes())
	nextField = buf.Len()
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(ext.Bytes())
	return ifdOffset, nextField
}

// encode writes the whole file.
func (g *geoTIFF) encode(t testing.TB) []byte {
	t.Helper()
	order := g.order()
	var buf bytes.Buffer

	header := make([]byte, 8)
	if g.bigEndian {
		copy(header, "MM")
	} else {
		copy(header, "II")
	}
	order.PutUint16(header[2:], 42)
	buf.Write(header)

	chunkW, chunkH, chunks := g.chunks(t)
	offsets := make([]uint32, len(chunks))
	counts := make([]uint32, len(chunks))
	for i, c := range chunks {
		offsets[i] = uint32(buf.Len())
		counts[i] = uint32(len(c))
		buf.Write(c)
	}

	bits := uint16(g.dtype.Size() * 8)
	format := uint16(1)
	switch g.dtype {
	case DTSShortS:
		format = 2
	case DTFloat, DTDouble:
		format = 3
	}
	bitsPer := make([]uint16, g.bands)
	formats := make([]uint16, g.bands)
	for i := range bitsPer {
		bitsPer[i], formats[i] = bits, format
	}

	photometric := uint16(1)
	if g.whiteIsZero {
		photometric = 0
	}

	tags := []fixtureTag{
		g.longs(TagImageWidth, uint32(g.width)),
		g.longs(TagImageLength, uint32(g.height)),
		g.shorts(TagBitsPerSample, bitsPer...),
		g.shorts(TagCompression, g.compression),
		g.shorts(TagPhotometricInterpretation, photometric),
		g.shorts(TagSamplesPerPixel, uint16(g.bands)),
		g.shorts(TagPlanarConfiguration, g.planar),
		g.shorts(TagSampleFormat, formats...),
	}
	if g.predictor != 0 {
		tags = append(tags, g.shorts(TagPredictor, g.predictor))
	}
	if g.tile > 0 {
		tags = append(tags,
			g.shorts(TagTileWidth, uint16(chunkW)),
			g.shorts(TagTileLength, uint16(chunkH)),
			g.longs(TagTileOffsets, offsets...),
			g.longs(TagTileByteCounts, counts...),
		)
	} else {
		tags = append(tags,
			g.longs(TagRowsPerStrip, uint32(chunkH)),
			g.longs(TagStripOffsets, offsets...),
			g.longs(TagStripByteCounts, counts...),
		)
	}

	if len(g.transform) == 16 {
		tags = append(tags, g.doubles(TagModelTransformation, g.transform...))
	} else if g.res > 0 {
		rasterType := uint16(GTRasterTypePixelIsArea)
		tieX, tieY := g.left, g.top
		if g.pixelIsPoint {
			rasterType = GTRasterTypePixelIsPoint
			tieX, tieY = g.left+g.res/2, g.top-g.res/2
		}
		tags = append(tags,
			g.doubles(TagModelPixelScale, g.res, g.res, 0),
			g.doubles(TagModelTiepoint, 0, 0, 0, tieX, tieY, 0),
			g.shorts(TagGeoKeyDirectory,
				1, 1, 0, 3,
				GTModelTypeGeoKey, 0, 1, GTModelTypeProjected,
				GTRasterTypeGeoKey, 0, 1, rasterType,
				ProjectedCSTypeGeoKey, 0, 1, g.epsg,
			),
		)
	}
	if g.nodata != "" {
		tags = append(tags, asciiTag(TagGDALNoData, g.nodata))
	}
	if len(g.descriptions) > 0 {
		var md bytes.Buffer
		md.WriteString("<GDALMetadata>\n")
		for i, d := range g.descriptions {
			fmt.Fprintf(&md, "  <Item name=\"DESCRIPTION\" sample=\"%d\" role=\"description\">%s</Item>\n", i, d)
		}
		md.WriteString("</GDALMetadata>\n")
		tags = append(tags, asciiTag(TagGDALMetadata, md.String()))
	}

	first, next := g.writeIFD(&buf, tags)

	for i := 0; i < g.overviews; i++ {
		pixel := uint32(buf.Len())
		buf.WriteByte(0)
		off, field := g.writeIFD(&buf, []fixtureTag{
			g.longs(TagImageWidth, 1),
			g.longs(TagImageLength, 1),
			g.shorts(TagBitsPerSample, 8),
			g.longs(TagStripOffsets, pixel),
			g.longs(TagStripByteCounts, 1),
		})
		b := buf.Bytes()
		order.PutUint32(b[next:], uint32(off))
		next = field
	}

	b := buf.Bytes()
	order.PutUint32(b[4:], uint32(first))
	return b
}

// writeFile stores the file in a temporary directory and returns its path.
func (g *geoTIFF) writeFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, g.encode(t), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// open writes the file and opens it, closing it when the test ends.
func (g *geoTIFF) open(t testing.TB) *Raster {
	t.Helper()
	r, err := Open(g.writeFile(t, "fixture.tif"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
