// Package viewer renders a before/after comparison as one self-contained
// HTML page. Every image is inlined as a base64 JPEG data URI, so the page
// needs no server and makes no network requests.
package viewer

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	"io"
	"os"

	"golang.org/x/image/draw"
)

// Mode is one display mode of the page.
type Mode struct {
	Key   string
	Label string
}

// The display modes, in tab order.
var (
	ModeRGB        = Mode{Key: "rgb", Label: "RGB"}
	ModeFalseColor = Mode{Key: "fc", Label: "False Color"}
	ModeNDVI       = Mode{Key: "ndvi", Label: "NDVI"}
)

// DefaultModes lists every display mode.
var DefaultModes = []Mode{ModeRGB, ModeFalseColor, ModeNDVI}

// Page holds everything the comparison page shows.
type Page struct {
	Title         string
	Location      string
	OriginalLabel string
	EnhancedLabel string

	OriginalPixelSize float64
	EnhancedPixelSize float64
	UpsampleFactor    int
	ExtentX, ExtentY  float64 // map units
	Width, Height     int     // pixels of the enhanced image

	OriginalDate string
	EnhancedDate string

	Modes []Mode
	// Images maps "<mode>_orig" and "<mode>_sr" to data URIs.
	Images map[string]string
}

// SetImages stores the base64 JPEGs of one mode.
func (p *Page) SetImages(mode Mode, original, enhanced string) {
	if p.Images == nil {
		p.Images = make(map[string]string)
	}
	p.Images[mode.Key+"_orig"] = DataURI(original)
	p.Images[mode.Key+"_sr"] = DataURI(enhanced)
}

// FirstMode returns the key of the mode shown on load.
func (p *Page) FirstMode() string {
	if len(p.Modes) == 0 {
		return ""
	}
	return p.Modes[0].Key
}

// ImageBytes returns the decoded size of all embedded images.
func (p *Page) ImageBytes() int {
	n := 0
	for _, uri := range p.Images {
		n += base64.StdEncoding.DecodedLen(len(uri) - len(dataURIPrefix))
	}
	return n
}

const dataURIPrefix = "data:image/jpeg;base64,"

// DataURI wraps a base64 JPEG as a data URI.
func DataURI(b64 string) string {
	return dataURIPrefix + b64
}

//go:embed page.html.tmpl
var pageTemplate string

var tmpl = template.Must(template.New("page").Parse(pageTemplate))

// Render writes the page as HTML.
func Render(w io.Writer, page *Page) error {
	if len(page.Modes) == 0 {
		return fmt.Errorf("page has no display modes")
	}
	for _, m := range page.Modes {
		for _, suffix := range []string{"_orig", "_sr"} {
			if _, ok := page.Images[m.Key+suffix]; !ok {
				return fmt.Errorf("missing image %s%s", m.Key, suffix)
			}
		}
	}
	return tmpl.Execute(w, page)
}

// WriteFile renders the page into path.
func WriteFile(path string, page *Page) error {
	var buf bytes.Buffer
	if err := Render(&buf, page); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// EncodeJPEG encodes img as a base64 JPEG. Images larger than maxDim on
// their long side are first downscaled, keeping the aspect ratio.
func EncodeJPEG(img image.Image, maxDim, quality int) (string, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("cannot encode empty image")
	}

	if maxDim > 0 && max(w, h) > maxDim {
		scale := float64(maxDim) / float64(max(w, h))
		nw := max(1, int(float64(w)*scale))
		nh := max(1, int(float64(h)*scale))
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
