package srcompare

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"runtime"
	"sync"

	"golang.org/x/image/tiff/lzw"
)

// chunkLayout describes how the main image is split into strips or tiles.
// Strips are treated as tiles that span the full image width.
type chunkLayout struct {
	tiled         bool
	width, height int // chunk size in pixels
	across, down  int // chunks per plane along X and Y
	offsets       []uint64
	byteCounts    []uint64
}

// layout reads the strip or tile structure, loading the offset arrays on demand.
func (r *Raster) layout() (*chunkLayout, error) {
	ifd := r.geo.ifd
	meta := r.meta
	l := &chunkLayout{}

	var offsetsID, countsID uint16
	switch {
	case ifd.Tags[TagTileOffsets] != nil && ifd.Tags[TagTileByteCounts] != nil:
		l.tiled = true
		l.width = int(ifd.UintOr(TagTileWidth, 256))
		l.height = int(ifd.UintOr(TagTileLength, 256))
		offsetsID, countsID = TagTileOffsets, TagTileByteCounts
	case ifd.Tags[TagStripOffsets] != nil && ifd.Tags[TagStripByteCounts] != nil:
		l.width = meta.Width
		rows := ifd.UintOr(TagRowsPerStrip, uint64(meta.Height))
		if rows == 0 || rows > uint64(meta.Height) {
			rows = uint64(meta.Height)
		}
		l.height = int(rows)
		offsetsID, countsID = TagStripOffsets, TagStripByteCounts
	default:
		return nil, fmt.Errorf("image is neither tiled nor stripped")
	}

	if l.width <= 0 || l.height <= 0 {
		return nil, fmt.Errorf("invalid chunk size %dx%d", l.width, l.height)
	}

	for _, id := range []uint16{offsetsID, countsID} {
		if err := r.tiffReader.ReadTagValue(ifd, id); err != nil {
			return nil, fmt.Errorf("failed to read chunk offsets: %w", err)
		}
	}
	l.offsets = ifd.Uints(offsetsID)
	l.byteCounts = ifd.Uints(countsID)

	l.across = (meta.Width + l.width - 1) / l.width
	l.down = (meta.Height + l.height - 1) / l.height

	planes := 1
	if meta.PlanarConfiguration == PlanarSeparate {
		planes = meta.BandCount
	}
	want := l.across * l.down * planes
	if len(l.offsets) < want || len(l.byteCounts) < want {
		return nil, fmt.Errorf("expected %d chunks, found %d offsets and %d byte counts",
			want, len(l.offsets), len(l.byteCounts))
	}

	return l, nil
}

// readPixels reads a pixel rectangle for the given 0-based bands and returns
// band-sequential float64 samples.
func (r *Raster) readPixels(rect Rectangle, bands []int) ([]float64, error) {
	l, err := r.layout()
	if err != nil {
		return nil, err
	}

	meta := r.meta
	n := rect.Width * rect.Height
	out := make([]float64, len(bands)*n)

	if meta.PlanarConfiguration == PlanarSeparate {
		for i, b := range bands {
			raw, err := r.readRegion(l, b, 1, rect)
			if err != nil {
				return nil, fmt.Errorf("band %d: %w", b+1, err)
			}
			r.decodeSamples(raw, 1, 0, out[i*n:(i+1)*n])
		}
		return out, nil
	}

	raw, err := r.readRegion(l, 0, meta.BandCount, rect)
	if err != nil {
		return nil, err
	}
	for i, b := range bands {
		r.decodeSamples(raw, meta.BandCount, b, out[i*n:(i+1)*n])
	}
	return out, nil
}

// readRegion assembles the raw (decompressed, un-predicted) bytes of a pixel
// rectangle from one plane. spp is the number of samples stored per pixel in
// that plane. Chunks are read sequentially and decompressed in parallel.
func (r *Raster) readRegion(l *chunkLayout, plane, spp int, rect Rectangle) ([]byte, error) {
	meta := r.meta
	bytesPerPixel := spp * meta.DataType.Size()
	output := make([]byte, rect.Width*rect.Height*bytesPerPixel)

	startX := rect.X / l.width
	endX := (rect.X + rect.Width - 1) / l.width
	startY := rect.Y / l.height
	endY := (rect.Y + rect.Height - 1) / l.height
	planeOffset := plane * l.across * l.down

	var tiles []*tileWork
	defer func() {
		for _, t := range tiles {
			PutTileWork(t)
		}
	}()

	for ty := startY; ty <= endY; ty++ {
		for tx := startX; tx <= endX; tx++ {
			tw := GetTileWork()
			tw.tileX, tw.tileY = tx, ty
			tw.tileIndex = planeOffset + ty*l.across + tx
			tw.rows = l.height
			if !l.tiled && (ty+1)*l.height > meta.Height {
				tw.rows = meta.Height - ty*l.height
			}
			tiles = append(tiles, tw)
		}
	}

	// Phase 1: read compressed chunks sequentially (I/O bound)
	for _, tw := range tiles {
		size := l.byteCounts[tw.tileIndex]
		if size == 0 {
			// Sparse chunk: left as zeros
			continue
		}
		tw.compressed = GetBuffer(int(size))
		if _, err := r.reader.Seek(int64(l.offsets[tw.tileIndex]), io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek to chunk %d: %w", tw.tileIndex, err)
		}
		if _, err := io.ReadFull(r.reader, tw.compressed); err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", tw.tileIndex, err)
		}
	}

	jpegTables, err := r.jpegTables()
	if err != nil {
		return nil, err
	}

	decode := func(tw *tileWork) {
		if tw.compressed == nil {
			return
		}
		tw.decompressed, tw.err = r.decompress(tw.compressed, jpegTables, l.width, tw.rows, spp)
		if tw.err == nil {
			tw.err = r.unpredict(tw.decompressed, l.width, tw.rows, spp)
		}
	}

	// Phase 2: decompress (CPU bound)
	if len(tiles) <= 1 || meta.Compression == CompressionNone {
		for _, tw := range tiles {
			decode(tw)
		}
	} else {
		numWorkers := runtime.NumCPU()
		if numWorkers > len(tiles) {
			numWorkers = len(tiles)
		}

		var wg sync.WaitGroup
		workChan := make(chan *tileWork, len(tiles))
		for i := 0; i < numWorkers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for tw := range workChan {
					decode(tw)
				}
			}()
		}
		for _, tw := range tiles {
			workChan <- tw
		}
		close(workChan)
		wg.Wait()
	}

	// Phase 3: copy into the output rectangle
	for _, tw := range tiles {
		if tw.err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %d: %w", tw.tileIndex, tw.err)
		}
		if tw.decompressed == nil {
			continue
		}
		copyChunkToOutput(tw, l, output, rect, bytesPerPixel)
	}

	return output, nil
}

// copyChunkToOutput copies the part of a chunk that intersects rect.
func copyChunkToOutput(tw *tileWork, l *chunkLayout, output []byte, rect Rectangle, bytesPerPixel int) {
	chunkX := tw.tileX * l.width
	chunkY := tw.tileY * l.height

	copyStartX := max(rect.X, chunkX)
	copyStartY := max(rect.Y, chunkY)
	copyEndX := min(rect.X+rect.Width, chunkX+l.width)
	copyEndY := min(rect.Y+rect.Height, chunkY+tw.rows)
	if copyStartX >= copyEndX || copyStartY >= copyEndY {
		return
	}

	rowBytes := (copyEndX - copyStartX) * bytesPerPixel
	for y := copyStartY; y < copyEndY; y++ {
		src := ((y-chunkY)*l.width + (copyStartX - chunkX)) * bytesPerPixel
		dst := ((y-rect.Y)*rect.Width + (copyStartX - rect.X)) * bytesPerPixel
		if src+rowBytes > len(tw.decompressed) {
			break
		}
		copy(output[dst:dst+rowBytes], tw.decompressed[src:src+rowBytes])
	}
}

// jpegTables returns the shared JPEG tables of a JPEG-compressed image.
func (r *Raster) jpegTables() ([]byte, error) {
	if r.meta.Compression != CompressionJPEG || r.geo.ifd.Tags[TagJPEGTables] == nil {
		return nil, nil
	}
	if err := r.tiffReader.ReadTagValue(r.geo.ifd, TagJPEGTables); err != nil {
		return nil, fmt.Errorf("failed to read JPEG tables: %w", err)
	}
	tables, _ := r.geo.ifd.Tags[TagJPEGTables].Value.([]uint8)
	return tables, nil
}

// decompress inflates one chunk to width*rows*spp samples.
func (r *Raster) decompress(data, jpegTables []byte, width, rows, spp int) ([]byte, error) {
	dt := r.meta.DataType
	expected := width * rows * spp * dt.Size()

	switch r.meta.Compression {
	case CompressionNone:
		if len(data) < expected {
			return nil, fmt.Errorf("chunk holds %d bytes, expected %d", len(data), expected)
		}
		return data[:expected], nil

	case CompressionLZW:
		rc := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer rc.Close()
		return readExpected(rc, expected, "LZW")

	case CompressionDeflate, CompressionDeflateAdob:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open Deflate chunk: %w", err)
		}
		defer zr.Close()
		return readExpected(zr, expected, "Deflate")

	case CompressionJPEG:
		if dt != DTByte {
			return nil, fmt.Errorf("JPEG compression requires 8-bit samples, got %s", dt)
		}
		return decodeJPEGChunk(data, jpegTables, width, rows, spp)

	default:
		return nil, fmt.Errorf("unsupported compression type: %d", r.meta.Compression)
	}
}

// readExpected reads exactly n decompressed bytes.
func readExpected(rd io.Reader, n int, codec string) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rd, out); err != nil {
		return nil, fmt.Errorf("%s decompression produced insufficient data (expected %d bytes): %w", codec, n, err)
	}
	return out, nil
}

// decodeJPEGChunk decodes a JPEG strip or tile, splicing in the shared tables
// when the chunk is an abbreviated stream.
func decodeJPEGChunk(data, tables []byte, width, rows, spp int) ([]byte, error) {
	stream := data
	if len(tables) > 4 && len(data) > 2 {
		// tables: SOI ... EOI, chunk: SOI ... EOI
		stream = make([]byte, 0, len(tables)+len(data))
		stream = append(stream, tables[:len(tables)-2]...)
		stream = append(stream, data[2:]...)
	}

	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG chunk: %w", err)
	}

	out := make([]byte, width*rows*spp)
	b := img.Bounds()
	for y := 0; y < rows && y < b.Dy(); y++ {
		for x := 0; x < width && x < b.Dx(); x++ {
			o := (y*width + x) * spp
			if g, ok := img.(*image.Gray); ok {
				v := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				for s := 0; s < spp; s++ {
					out[o+s] = v
				}
				continue
			}
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]byte{uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8)}
			for s := 0; s < spp && s < 3; s++ {
				out[o+s] = px[s]
			}
			if spp == 4 {
				out[o+3] = 255
			}
		}
	}
	return out, nil
}

// unpredict reverses horizontal differencing in place.
func (r *Raster) unpredict(buf []byte, width, rows, spp int) error {
	switch r.meta.Predictor {
	case PredictorNone, 0:
		return nil
	case PredictorHorizontal:
	default:
		return fmt.Errorf("unsupported predictor: %d", r.meta.Predictor)
	}

	dt := r.meta.DataType
	if dt.IsFloat() {
		return fmt.Errorf("horizontal predictor is not valid for %s samples", dt)
	}

	order := r.geo.ifd.ByteOrder
	size := dt.Size()
	samples := width * spp
	rowBytes := samples * size

	for y := 0; y < rows; y++ {
		row := buf[y*rowBytes : (y+1)*rowBytes]
		switch size {
		case 1:
			for i := spp; i < samples; i++ {
				row[i] += row[i-spp]
			}
		case 2:
			for i := spp; i < samples; i++ {
				order.PutUint16(row[i*2:], order.Uint16(row[i*2:])+order.Uint16(row[(i-spp)*2:]))
			}
		case 4:
			for i := spp; i < samples; i++ {
				order.PutUint32(row[i*4:], order.Uint32(row[i*4:])+order.Uint32(row[(i-spp)*4:]))
			}
		}
	}
	return nil
}

// decodeSamples converts one sample of every pixel in raw into dst.
func (r *Raster) decodeSamples(raw []byte, spp, sample int, dst []float64) {
	dt := r.meta.DataType
	order := r.geo.ifd.ByteOrder
	size := dt.Size()

	for p := range dst {
		off := (p*spp + sample) * size
		if off+size > len(raw) {
			break
		}
		dst[p] = decodeSample(raw[off:off+size], dt, order)
	}

	// WhiteIsZero grayscale is inverted so that larger means brighter
	if r.meta.PhotometricInterpretation == 0 && r.meta.BandCount == 1 && !dt.IsFloat() {
		maxValue := maxSampleValue(dt)
		for i := range dst {
			dst[i] = maxValue - dst[i]
		}
	}
}

func decodeSample(b []byte, dt DataType, order binary.ByteOrder) float64 {
	switch dt {
	case DTByte, DTUndefined:
		return float64(b[0])
	case DTSByte:
		return float64(int8(b[0]))
	case DTSShort:
		return float64(order.Uint16(b))
	case DTSShortS:
		return float64(int16(order.Uint16(b)))
	case DTSLong:
		return float64(order.Uint32(b))
	case DTSLongS:
		return float64(int32(order.Uint32(b)))
	case DTFloat:
		return float64(math.Float32frombits(order.Uint32(b)))
	case DTDouble:
		return math.Float64frombits(order.Uint64(b))
	default:
		return float64(b[0])
	}
}

func maxSampleValue(dt DataType) float64 {
	switch dt {
	case DTSByte:
		return math.MaxInt8
	case DTSShort:
		return math.MaxUint16
	case DTSShortS:
		return math.MaxInt16
	case DTSLong:
		return math.MaxUint32
	case DTSLongS:
		return math.MaxInt32
	default:
		return math.MaxUint8
	}
}
