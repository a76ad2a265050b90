package viewer

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func decode(t *testing.T, b64 string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	return img
}

func TestEncodeJPEG(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"fits", 40, 30, 100, 40, 30},
		{"landscape", 400, 100, 200, 200, 50},
		{"portrait", 120, 300, 150, 60, 150},
		{"no limit", 64, 64, 0, 64, 64},
		{"thin", 1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b64, err := EncodeJPEG(solid(tt.w, tt.h, color.RGBA{200, 100, 50, 255}), tt.maxDim, 90)
			if err != nil {
				t.Fatalf("EncodeJPEG: %v", err)
			}
			b := decode(t, b64).Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
		})
	}

	if _, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 5)), 10, 90); err == nil {
		t.Error("Expected an error for an empty image")
	}
}

func TestEncodeJPEGColor(t *testing.T) {
	b64, err := EncodeJPEG(solid(64, 64, color.RGBA{200, 100, 50, 255}), 32, 100)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	r, g, b, _ := decode(t, b64).At(16, 16).RGBA()
	for i, pair := range [][2]uint32{{r >> 8, 200}, {g >> 8, 100}, {b >> 8, 50}} {
		if d := int(pair[0]) - int(pair[1]); d < -4 || d > 4 {
			t.Errorf("channel %d: got %d, want about %d", i, pair[0], pair[1])
		}
	}
}

func testPage(t *testing.T) *Page {
	t.Helper()
	p := &Page{
		Title:             "Nile <Delta>",
		Location:          "Cairo",
		OriginalLabel:     "Sentinel-2",
		EnhancedLabel:     "SR x4",
		OriginalPixelSize: 10,
		EnhancedPixelSize: 2.5,
		UpsampleFactor:    4,
		ExtentX:           1000,
		ExtentY:           500,
		Width:             400,
		Height:            200,
		OriginalDate:      "2024-06-01",
		Modes:             DefaultModes,
	}
	img, err := EncodeJPEG(solid(4, 4, color.RGBA{10, 20, 30, 255}), 0, 80)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range DefaultModes {
		p.SetImages(m, img, img)
	}
	return p
}

func TestRender(t *testing.T) {
	p := testPage(t)
	if p.FirstMode() != "rgb" {
		t.Errorf("Expected rgb first, got %q", p.FirstMode())
	}
	if len(p.Images) != 6 {
		t.Errorf("Expected 6 images, got %d", len(p.Images))
	}
	if p.ImageBytes() <= 0 {
		t.Error("Expected a positive image size")
	}

	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>Nile &lt;Delta&gt;</title>",
		`data-mode="fc"`,
		"False Color",
		"NDVI",
		"<h3>Cairo</h3>",
		"10 m/px",
		"(4x)",
		"1000 x 500 m",
		"400 &times; 200 px",
		"2024-06-01",
		"data:image/jpeg;base64,",
		"rgb_orig",
		"ndvi_sr",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in the page", want)
		}
	}
	if strings.Contains(out, "<Delta>") {
		t.Error("Title must be escaped")
	}
}

func TestRenderErrors(t *testing.T) {
	p := testPage(t)
	delete(p.Images, "ndvi_sr")
	if err := Render(&bytes.Buffer{}, p); err == nil || !strings.Contains(err.Error(), "ndvi_sr") {
		t.Errorf("Expected a missing image error, got %v", err)
	}

	p = testPage(t)
	p.Modes = nil
	if err := Render(&bytes.Buffer{}, p); err == nil {
		t.Error("Expected an error without modes")
	}

	// A page may show a subset of the modes
	p = testPage(t)
	p.Modes = []Mode{ModeNDVI}
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(buf.String(), `data-mode="rgb"`) {
		t.Error("Expected only the NDVI mode button")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comparison.html")
	if err := WriteFile(path, testPage(t)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("<!DOCTYPE html>")) {
		t.Errorf("Unexpected start of page: %.40q", b)
	}
}
