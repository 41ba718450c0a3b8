package transpiler

import (
	"math"
	"testing"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{7000, "7000.0"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{0.0001, "0.0001"},
		{0.00012345, "0.00012345"},
		{2.5e-4, "0.00025"},
		{1e-5, "1e-05"},
		{1e-7, "1e-07"},
		{-0.05, "-0.05"},
		{0.1 + 0.2, "0.30000000000000004"},
		{123456789012345.6, "123456789012345.6"},
		{9999999999999998, "9999999999999998.0"},
		{1e16, "1e+16"},
		{1.5e16, "1.5e+16"},
		{1e22, "1e+22"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatFloat(tt.in); got != tt.want {
				t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   string
		def  float64
		want float64
	}{
		{"7000", 0, 7000},
		{" 7000,5 ", 0, 7000.5},
		{"1e-4", 0, 1e-4},
		{"2,5e3", 0, 2500},
		{"", 3, 3},
		{"abc", 3, 3},
		{"1,2,3", 3, 3},
		{"-0.05", 0, -0.05},
	}

	for _, tt := range tests {
		if got := ToFloat(tt.in, tt.def); got != tt.want {
			t.Errorf("ToFloat(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}

	if got := ToFloat("1e400", 0); !math.IsInf(got, 1) {
		t.Errorf("overflow should saturate, got %v", got)
	}
}

func TestPositiveOrDefault(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5", 5},
		{"0", 10},
		{"-5", 10},
		{"x", 10},
		{"0,5", 0.5},
	}

	for _, tt := range tests {
		if got := PositiveOrDefault(tt.in, 10); got != tt.want {
			t.Errorf("PositiveOrDefault(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStepAttempts(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"50", 50},
		{"12.9", 12},
		{"12,9", 12},
		{"0.5", 50},
		{"0", 50},
		{"-3", 50},
		{"", 50},
		{"many", 50},
		{"inf", 50},
		{"nan", 50},
		{"1e400", 50},
		{"1e20", 1e20},
	}

	for _, tt := range tests {
		if got := StepAttempts(tt.in); got != tt.want {
			t.Errorf("StepAttempts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatWhole(t *testing.T) {
	tests := map[float64]string{
		50:      "50",
		12:      "12",
		1e20:    "100000000000000000000",
		9.99e18: "9990000000000000000",
	}
	for in, want := range tests {
		if got := FormatWhole(in); got != want {
			t.Errorf("FormatWhole(%v) = %q, want %q", in, got, want)
		}
	}
}
