package metrics

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5.0}, 5.0},
		{"multiple", []float64{1, 2, 3, 4, 5}, 3.0},
		{"negative", []float64{-2, 0, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mean(tt.input)
			if !approxEqual(got, tt.expect) {
				t.Errorf("Mean(%v) = %f, want %f", tt.input, got, tt.expect)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect float64
	}{
		{"empty", nil, 0},
		{"constant", []float64{4, 4, 4}, 0},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StdDev(tt.input)
			if !approxEqual(got, tt.expect) {
				t.Errorf("StdDev(%v) = %f, want %f", tt.input, got, tt.expect)
			}
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{9, 1, 5}, 5},
		{"even", []float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]float64(nil), tt.input...)
			got := Median(input)
			if !approxEqual(got, tt.expect) {
				t.Errorf("Median(%v) = %f, want %f", tt.input, got, tt.expect)
			}
			for i := range input {
				if input[i] != tt.input[i] {
					t.Fatalf("Median modified its input")
				}
			}
		})
	}
}
