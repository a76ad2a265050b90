package srcompare

import (
	"sync"
)

// Buffer pools for compressed strip/tile reads

// byteSlicePool pools byte slices of various sizes
type byteSlicePool struct {
	// Small buffers (up to 64KB) - typical for small tiles
	small sync.Pool
	// Medium buffers (up to 256KB) - typical for 256x256 tiles
	medium sync.Pool
	// Large buffers (up to 1MB) - typical for 512x512 tiles or strips
	large sync.Pool
	// XLarge buffers (up to 4MB) - for large tiles or multiple strips
	xlarge sync.Pool
}

const (
	smallBufferSize  = 64 * 1024       // 64KB
	mediumBufferSize = 256 * 1024      // 256KB
	largeBufferSize  = 1024 * 1024     // 1MB
	xlargeBufferSize = 4 * 1024 * 1024 // 4MB
)

func newSizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() interface{} {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var bufferPool = &byteSlicePool{
	small:  newSizedPool(smallBufferSize),
	medium: newSizedPool(mediumBufferSize),
	large:  newSizedPool(largeBufferSize),
	xlarge: newSizedPool(xlargeBufferSize),
}

// GetBuffer returns a byte slice of exactly the requested length from the pool.
// Call PutBuffer when done to return it to the pool.
func GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= smallBufferSize:
		pool = &bufferPool.small
	case size <= mediumBufferSize:
		pool = &bufferPool.medium
	case size <= largeBufferSize:
		pool = &bufferPool.large
	case size <= xlargeBufferSize:
		pool = &bufferPool.xlarge
	default:
		// Very large buffers are not pooled
		return make([]byte, size)
	}
	bufPtr := pool.Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer to the pool.
// The buffer should not be used after calling this function.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]

	switch c {
	case smallBufferSize:
		bufferPool.small.Put(&buf)
	case mediumBufferSize:
		bufferPool.medium.Put(&buf)
	case largeBufferSize:
		bufferPool.large.Put(&buf)
	case xlargeBufferSize:
		bufferPool.xlarge.Put(&buf)
	}
	// Non-standard sizes are dropped
}

// tileWork is one strip or tile of a region read
type tileWork struct {
	tileX, tileY int
	tileIndex    int
	rows         int // rows actually stored (short for the last strip)
	compressed   []byte
	decompressed []byte
	err          error
}

var tileWorkPool = sync.Pool{
	New: func() interface{} {
		return &tileWork{}
	},
}

// GetTileWork returns a zeroed tileWork from the pool
func GetTileWork() *tileWork {
	tw := tileWorkPool.Get().(*tileWork)
	*tw = tileWork{}
	return tw
}

// PutTileWork returns a tileWork to the pool, releasing its buffers
func PutTileWork(tw *tileWork) {
	if tw == nil {
		return
	}
	if tw.compressed != nil {
		PutBuffer(tw.compressed)
	}
	*tw = tileWork{}
	tileWorkPool.Put(tw)
}
