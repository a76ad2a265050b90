package srcompare

import (
	"fmt"
	"io"
	"sync"

	"github.com/valyala/fasthttp"
)

// Default read-ahead window (64KB); TIFF headers and IFDs usually fit in one fetch.
const defaultReadAheadSize = 64 * 1024

// HTTPRangeReader is an io.ReadSeeker over a remote raster, fetched with HTTP
// range requests. Reads are served from a read-ahead window when they fall
// inside the last fetched range.
type HTTPRangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu  sync.Mutex
	pos int64

	window        []byte
	windowStart   int64 // file offset of window[0]
	readAheadSize int
}

// NewHTTPRangeReader checks that url exists with a HEAD request and returns a
// reader positioned at offset 0.
func NewHTTPRangeReader(url string, client *fasthttp.Client) (*HTTPRangeReader, error) {
	rr := &HTTPRangeReader{
		url:           url,
		client:        client,
		readAheadSize: defaultReadAheadSize,
		windowStart:   -1,
	}
	size, err := rr.head()
	if err != nil {
		return nil, err
	}
	rr.size = size
	return rr, nil
}

// SetReadAheadSize sets the minimum number of bytes fetched per request.
func (rr *HTTPRangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if size > 0 {
		rr.readAheadSize = size
	}
}

// head returns the Content-Length of the resource, or -1 when the server
// does not report it.
func (rr *HTTPRangeReader) head() (int64, error) {
	if rr.client == nil {
		return 0, fmt.Errorf("no HTTP client")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := rr.client.Do(req, resp); err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", rr.url, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return 0, fmt.Errorf("HEAD %s: unexpected status code: %d", rr.url, code)
	}

	if n := resp.Header.ContentLength(); n >= 0 {
		return int64(n), nil
	}
	return -1, nil
}

// Read reads from the current position, refilling the read-ahead window
// when the position falls outside it.
func (rr *HTTPRangeReader) Read(p []byte) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	if rr.size >= 0 && rr.pos >= rr.size {
		return 0, io.EOF
	}

	if !rr.inWindow(rr.pos) {
		if err := rr.fill(len(p)); err != nil {
			return 0, err
		}
		if !rr.inWindow(rr.pos) {
			return 0, io.EOF
		}
	}

	n := copy(p, rr.window[rr.pos-rr.windowStart:])
	rr.pos += int64(n)
	return n, nil
}

func (rr *HTTPRangeReader) inWindow(pos int64) bool {
	return rr.windowStart >= 0 && pos >= rr.windowStart && pos < rr.windowStart+int64(len(rr.window))
}

// fill fetches at least want bytes starting at the current position.
func (rr *HTTPRangeReader) fill(want int) error {
	readSize := max(rr.readAheadSize, want)
	end := rr.pos + int64(readSize) - 1
	if rr.size >= 0 && end >= rr.size {
		end = rr.size - 1
	}

	data, err := rr.fetchRange(rr.pos, end)
	if err != nil {
		return err
	}
	rr.window = data
	rr.windowStart = rr.pos
	return nil
}

// fetchRange fetches the inclusive byte range [start, end].
func (rr *HTTPRangeReader) fetchRange(start, end int64) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	if err := rr.client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("GET %s: %w", rr.url, err)
	}

	body := resp.Body()
	switch resp.StatusCode() {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		// Server ignored the Range header and sent the whole file
		if start >= int64(len(body)) {
			return nil, nil
		}
		body = body[start:min(end+1, int64(len(body)))]
	default:
		return nil, fmt.Errorf("GET %s: unexpected status code: %d", rr.url, resp.StatusCode())
	}

	// Copy body since response will be released
	result := make([]byte, len(body))
	copy(result, body)
	return result, nil
}

// Seek sets the offset for the next Read.
func (rr *HTTPRangeReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = rr.pos + offset
	case io.SeekEnd:
		if rr.size < 0 {
			return 0, fmt.Errorf("cannot seek from end: file size unknown")
		}
		newPos = rr.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("negative position: %d", newPos)
	}

	rr.pos = newPos
	return rr.pos, nil
}

// Size returns the resource size in bytes, or -1 if unknown.
func (rr *HTTPRangeReader) Size() int64 {
	return rr.size
}
