package srcompare

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF constants
const (
	tiffMagicLE = 0x4949 // "II" little-endian
	tiffMagicBE = 0x4D4D // "MM" big-endian
	tiffVersion = 42
)

// Compression types
const (
	CompressionNone        = 1
	CompressionLZW         = 5
	CompressionJPEG        = 6
	CompressionDeflate     = 8
	CompressionDeflateAdob = 32946
)

// Predictor values
const (
	PredictorNone       = 1
	PredictorHorizontal = 2
)

// Baseline and extension tag IDs used by the raster reader
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagSampleFormat              = 339
	TagJPEGTables                = 347
	TagGDALMetadata              = 42112
	TagGDALNoData                = 42113
)

// DataType represents the data type of pixels
type DataType uint16

const (
	DTByte      DataType = 1  // 8-bit unsigned integer
	DTASCII     DataType = 2  // 8-bit ASCII
	DTSShort    DataType = 3  // 16-bit unsigned integer
	DTSLong     DataType = 4  // 32-bit unsigned integer
	DTRational  DataType = 5  // Two longs: numerator, denominator
	DTSByte     DataType = 6  // 8-bit signed integer
	DTUndefined DataType = 7  // 8-bit undefined
	DTSShortS   DataType = 8  // 16-bit signed integer
	DTSLongS    DataType = 9  // 32-bit signed integer
	DTSRational DataType = 10 // Two signed longs
	DTFloat     DataType = 11 // 32-bit IEEE floating point
	DTDouble    DataType = 12 // 64-bit IEEE floating point
)

// String returns the numpy-style name of the sample type.
func (dt DataType) String() string {
	switch dt {
	case DTByte, DTUndefined:
		return "uint8"
	case DTSByte:
		return "int8"
	case DTSShort:
		return "uint16"
	case DTSShortS:
		return "int16"
	case DTSLong:
		return "uint32"
	case DTSLongS:
		return "int32"
	case DTFloat:
		return "float32"
	case DTDouble:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", uint16(dt))
	}
}

// IsFloat reports whether samples are IEEE floating point.
func (dt DataType) IsFloat() bool {
	return dt == DTFloat || dt == DTDouble
}

// Size returns the number of bytes per sample.
func (dt DataType) Size() int {
	switch dt {
	case DTByte, DTASCII, DTSByte, DTUndefined:
		return 1
	case DTSShort, DTSShortS:
		return 2
	case DTSLong, DTSLongS, DTFloat:
		return 4
	case DTRational, DTSRational, DTDouble:
		return 8
	default:
		return 1
	}
}

// Tag represents a TIFF tag
type Tag struct {
	ID       uint16
	Type     DataType
	Count    uint32
	Offset   uint32
	Value    interface{}
	IsOffset bool
}

// IFD represents an Image File Directory
type IFD struct {
	Tags      map[uint16]*Tag
	NextIFD   uint32
	ByteOrder binary.ByteOrder
}

// TIFFReader reads TIFF files
type TIFFReader struct {
	r         io.ReadSeeker
	byteOrder binary.ByteOrder
	ifds      []*IFD
}

// Tags holding large arrays are never read eagerly; they are loaded on demand
// when pixel data is requested.
func isLazyTag(id uint16) bool {
	switch id {
	case TagStripOffsets, TagStripByteCounts, TagTileOffsets, TagTileByteCounts:
		return true
	}
	return false
}

// NewTIFFReader creates a new TIFF reader that resolves every tag value
// except the strip/tile offset arrays.
func NewTIFFReader(r io.ReadSeeker) (*TIFFReader, error) {
	return newTIFFReader(r, false)
}

// newTIFFReader parses the header and all IFDs. In metadataOnly mode tag
// values are served from a single 16K read per IFD and anything outside of it
// is left for ReadTagValue.
func newTIFFReader(r io.ReadSeeker, metadataOnly bool) (*TIFFReader, error) {
	tr := &TIFFReader{r: r}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to TIFF header: %w", err)
	}

	// magic + version + first IFD offset
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read TIFF header: %w", err)
	}

	switch binary.LittleEndian.Uint16(header[0:2]) {
	case tiffMagicLE:
		tr.byteOrder = binary.LittleEndian
	case tiffMagicBE:
		tr.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid TIFF magic: 0x%04x", binary.LittleEndian.Uint16(header[0:2]))
	}

	if version := tr.byteOrder.Uint16(header[2:4]); version != tiffVersion {
		return nil, fmt.Errorf("invalid TIFF version: %d", version)
	}

	offset := tr.byteOrder.Uint32(header[4:8])
	seen := make(map[uint32]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, fmt.Errorf("failed to read IFDs: IFD loop at offset %d", offset)
		}
		seen[offset] = true

		ifd, err := tr.readIFD(offset, metadataOnly)
		if err != nil {
			return nil, fmt.Errorf("failed to read IFDs: %w", err)
		}
		tr.ifds = append(tr.ifds, ifd)
		offset = ifd.NextIFD
	}

	if len(tr.ifds) == 0 {
		return nil, fmt.Errorf("TIFF contains no IFDs")
	}

	return tr, nil
}

// readIFD reads a single IFD
func (tr *TIFFReader) readIFD(offset uint32, metadataOnly bool) (*IFD, error) {
	if _, err := tr.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to IFD: %w", err)
	}

	countBuf := make([]byte, 2)
	if _, err := io.ReadFull(tr.r, countBuf); err != nil {
		return nil, fmt.Errorf("failed to read tag count: %w", err)
	}
	tagCount := int(tr.byteOrder.Uint16(countBuf))

	// Tag entries (12 bytes each) + next IFD offset, in one read
	entries := make([]byte, tagCount*12+4)
	if _, err := io.ReadFull(tr.r, entries); err != nil {
		return nil, fmt.Errorf("failed to read IFD structure: %w", err)
	}

	ifd := &IFD{
		Tags:      make(map[uint16]*Tag, tagCount),
		ByteOrder: tr.byteOrder,
	}

	for i := 0; i < tagCount; i++ {
		e := entries[i*12 : i*12+12]
		tag := &Tag{
			ID:     tr.byteOrder.Uint16(e[0:2]),
			Type:   DataType(tr.byteOrder.Uint16(e[2:4])),
			Count:  tr.byteOrder.Uint32(e[4:8]),
			Offset: tr.byteOrder.Uint32(e[8:12]),
		}
		ifd.Tags[tag.ID] = tag
	}
	ifd.NextIFD = tr.byteOrder.Uint32(entries[tagCount*12:])

	if metadataOnly {
		if err := tr.readTagValuesBuffered(ifd, offset); err != nil {
			return nil, err
		}
		return ifd, nil
	}

	for _, tag := range ifd.Tags {
		if isLazyTag(tag.ID) {
			tag.IsOffset = true
			continue
		}
		if err := tr.loadTagValue(tag); err != nil {
			return nil, fmt.Errorf("failed to read tag %d: %w", tag.ID, err)
		}
	}

	return ifd, nil
}

// readTagValuesBuffered resolves tag values from a single 16K read starting
// at the IFD, which keeps remote sources down to one range request per IFD.
func (tr *TIFFReader) readTagValuesBuffered(ifd *IFD, ifdOffset uint32) error {
	const bufferSize = 16 * 1024

	buffer := make([]byte, bufferSize)
	if _, err := tr.r.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to IFD offset: %w", err)
	}
	n, err := io.ReadFull(tr.r, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("failed to read buffer: %w", err)
	}
	buffer = buffer[:n]

	bufferStart := int64(ifdOffset)
	bufferEnd := bufferStart + int64(len(buffer))

	for _, tag := range ifd.Tags {
		if isLazyTag(tag.ID) {
			tag.IsOffset = true
			continue
		}

		valueSize := tag.valueSize()
		if valueSize <= 4 {
			tag.Value = decodeTagValue(tag, tr.inlineBytes(tag), tr.byteOrder)
			continue
		}

		start := int64(tag.Offset)
		if start >= bufferStart && start+int64(valueSize) <= bufferEnd {
			rel := start - bufferStart
			tag.Value = decodeTagValue(tag, buffer[rel:rel+int64(valueSize)], tr.byteOrder)
			tag.IsOffset = false
		} else {
			tag.IsOffset = true
		}
	}

	return nil
}

// ReadTagValue reads a specific tag value on-demand (for lazy loading)
func (tr *TIFFReader) ReadTagValue(ifd *IFD, tagID uint16) error {
	tag, ok := ifd.Tags[tagID]
	if !ok {
		return fmt.Errorf("tag %d not found", tagID)
	}
	if tag.Value != nil {
		return nil
	}
	return tr.loadTagValue(tag)
}

// loadTagValue resolves a tag value either from the entry itself or from the
// offset it points at.
func (tr *TIFFReader) loadTagValue(tag *Tag) error {
	valueSize := tag.valueSize()
	if valueSize <= 4 {
		tag.Value = decodeTagValue(tag, tr.inlineBytes(tag), tr.byteOrder)
		tag.IsOffset = false
		return nil
	}

	oldPos, _ := tr.r.Seek(0, io.SeekCurrent)
	defer tr.r.Seek(oldPos, io.SeekStart)

	if _, err := tr.r.Seek(int64(tag.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tag value: %w", err)
	}
	raw := make([]byte, valueSize)
	if _, err := io.ReadFull(tr.r, raw); err != nil {
		return fmt.Errorf("failed to read tag value: %w", err)
	}
	tag.Value = decodeTagValue(tag, raw, tr.byteOrder)
	tag.IsOffset = true
	return nil
}

// inlineBytes returns the four bytes of the value/offset field in file order.
// Values shorter than four bytes are left-justified in that field.
func (tr *TIFFReader) inlineBytes(tag *Tag) []byte {
	raw := make([]byte, 4)
	tr.byteOrder.PutUint32(raw, tag.Offset)
	return raw
}

// valueSize returns the size in bytes of the tag's value
func (t *Tag) valueSize() int {
	return t.Type.Size() * int(t.Count)
}

// decodeTagValue converts raw value bytes into a Go value. A single value is
// returned as a scalar, multiple values as a slice, ASCII as a string.
func decodeTagValue(tag *Tag, raw []byte, order binary.ByteOrder) interface{} {
	count := int(tag.Count)
	if count == 0 || len(raw) < tag.valueSize() {
		return nil
	}

	switch tag.Type {
	case DTByte, DTUndefined:
		values := make([]uint8, count)
		copy(values, raw)
		if count == 1 {
			return values[0]
		}
		return values
	case DTSByte:
		values := make([]int8, count)
		for i := range values {
			values[i] = int8(raw[i])
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTSShort:
		values := make([]uint16, count)
		for i := range values {
			values[i] = order.Uint16(raw[i*2:])
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTSShortS:
		values := make([]int16, count)
		for i := range values {
			values[i] = int16(order.Uint16(raw[i*2:]))
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTSLong:
		values := make([]uint32, count)
		for i := range values {
			values[i] = order.Uint32(raw[i*4:])
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTSLongS:
		values := make([]int32, count)
		for i := range values {
			values[i] = int32(order.Uint32(raw[i*4:]))
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTFloat:
		values := make([]float32, count)
		for i := range values {
			values[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTDouble:
		values := make([]float64, count)
		for i := range values {
			values[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTRational:
		values := make([][2]uint32, count)
		for i := range values {
			values[i][0] = order.Uint32(raw[i*8:])
			values[i][1] = order.Uint32(raw[i*8+4:])
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTSRational:
		values := make([][2]int32, count)
		for i := range values {
			values[i][0] = int32(order.Uint32(raw[i*8:]))
			values[i][1] = int32(order.Uint32(raw[i*8+4:]))
		}
		if count == 1 {
			return values[0]
		}
		return values
	case DTASCII:
		buf := raw[:count]
		// Trim the NUL terminator
		for len(buf) > 0 && buf[len(buf)-1] == 0 {
			buf = buf[:len(buf)-1]
		}
		return string(buf)
	default:
		return nil
	}
}

// GetIFD returns the IFD at the specified index (0 = main image)
func (tr *TIFFReader) GetIFD(index int) *IFD {
	if index < 0 || index >= len(tr.ifds) {
		return nil
	}
	return tr.ifds[index]
}

// IFDCount returns the number of IFDs (main image + overviews)
func (tr *TIFFReader) IFDCount() int {
	return len(tr.ifds)
}

// Uint returns the first value of an integer tag.
func (ifd *IFD) Uint(id uint16) (uint64, bool) {
	tag := ifd.Tags[id]
	if tag == nil {
		return 0, false
	}
	switch v := tag.Value.(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case []uint8:
		if len(v) > 0 {
			return uint64(v[0]), true
		}
	case []uint16:
		if len(v) > 0 {
			return uint64(v[0]), true
		}
	case []uint32:
		if len(v) > 0 {
			return uint64(v[0]), true
		}
	}
	return 0, false
}

// UintOr returns the first value of an integer tag or def when absent.
func (ifd *IFD) UintOr(id uint16, def uint64) uint64 {
	if v, ok := ifd.Uint(id); ok {
		return v
	}
	return def
}

// Uints returns every value of an integer tag.
func (ifd *IFD) Uints(id uint16) []uint64 {
	tag := ifd.Tags[id]
	if tag == nil {
		return nil
	}
	switch v := tag.Value.(type) {
	case uint16:
		return []uint64{uint64(v)}
	case uint32:
		return []uint64{uint64(v)}
	case []uint16:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out
	case []uint32:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out
	}
	return nil
}

// Floats returns every value of a floating point tag.
func (ifd *IFD) Floats(id uint16) []float64 {
	tag := ifd.Tags[id]
	if tag == nil {
		return nil
	}
	switch v := tag.Value.(type) {
	case float64:
		return []float64{v}
	case float32:
		return []float64{float64(v)}
	case []float64:
		return v
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	}
	return nil
}

// ASCII returns the value of an ASCII tag.
func (ifd *IFD) ASCII(id uint16) string {
	if tag := ifd.Tags[id]; tag != nil {
		if s, ok := tag.Value.(string); ok {
			return s
		}
	}
	return ""
}
