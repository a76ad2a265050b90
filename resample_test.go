package srcompare

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseResampling(t *testing.T) {
	tests := []struct {
		in      string
		want    Resampling
		wantErr bool
	}{
		{"", Nearest, false},
		{"nearest", Nearest, false},
		{" Bilinear ", Bilinear, false},
		{"cubic", Nearest, true},
	}
	for _, tt := range tests {
		got, err := ParseResampling(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResampling(%q) error = %v, wantErr %t", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseResampling(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	var v struct{ Method Resampling }
	if err := json.Unmarshal([]byte(`{"Method":"bilinear"}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Method != Bilinear {
		t.Errorf("Expected bilinear, got %s", v.Method)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"Method":"bilinear"}` {
		t.Errorf("Unexpected JSON %s", b)
	}
}

func TestResampleNearest(t *testing.T) {
	src := []float64{
		1, 2,
		3, 4,
	}
	got := resample(src, 2, 2, 4, 4, Nearest)
	want := []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	// Non-integer ratio 3 -> 2 picks the pixels holding each centre
	got = resample([]float64{10, 20, 30}, 3, 1, 2, 1, Nearest)
	if got[0] != 10 || got[1] != 30 {
		t.Errorf("Expected [10 30], got %v", got)
	}

	// The identity result is a copy
	same := resample(src, 2, 2, 2, 2, Nearest)
	same[0] = 99
	if src[0] != 1 {
		t.Error("Identity resample must not alias its input")
	}
}

func TestResampleBilinear(t *testing.T) {
	got := resample([]float64{0, 10}, 2, 1, 4, 1, Bilinear)
	want := []float64{0, 2.5, 7.5, 10}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	// A NaN neighbour only spreads into pixels that actually weigh it
	got = resample([]float64{5, math.NaN()}, 2, 1, 4, 1, Bilinear)
	if got[0] != 5 {
		t.Errorf("Expected 5, got %g", got[0])
	}
	if !math.IsNaN(got[1]) || !math.IsNaN(got[3]) {
		t.Errorf("Expected NaN next to the NaN pixel, got %v", got)
	}
}
