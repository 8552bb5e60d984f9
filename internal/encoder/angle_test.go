package encoder

import (
	"math"
	"testing"
)

func TestPlateAngleAndRotation(t *testing.T) {
	tests := []struct {
		count    int64
		ref      int64
		cpr      int
		wantRot  int
		wantRads float64
	}{
		{count: 2500, ref: 0, cpr: 2400, wantRot: 1, wantRads: 100.0 / 2400.0 * 2 * math.Pi},
		{count: 0, ref: 0, cpr: 2400, wantRot: 0, wantRads: 0},
		{count: 2400, ref: 0, cpr: 2400, wantRot: 1, wantRads: 0},
		{count: 1200, ref: 0, cpr: 2400, wantRot: 0, wantRads: math.Pi},
		{count: -600, ref: 0, cpr: 2400, wantRot: -1, wantRads: 1.5 * math.Pi},
		{count: 5000, ref: 2500, cpr: 2400, wantRot: 1, wantRads: 200.0 / 2400.0 * 2 * math.Pi},
		{count: 2499, ref: 2500, cpr: 2400, wantRot: -1, wantRads: 99.0 / 2400.0 * 2 * math.Pi},
	}

	for _, tt := range tests {
		gotRot := RotationIndex(tt.count, tt.ref, tt.cpr)
		if gotRot != tt.wantRot {
			t.Errorf("RotationIndex(%d, %d, %d) = %d, want %d", tt.count, tt.ref, tt.cpr, gotRot, tt.wantRot)
		}
		got := PlateAngle(tt.count, tt.cpr)
		if math.Abs(got-tt.wantRads) > 1e-12 {
			t.Errorf("PlateAngle(%d, %d) = %f, want %f", tt.count, tt.cpr, got, tt.wantRads)
		}
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("PlateAngle(%d, %d) = %f outside [0, 2π)", tt.count, tt.cpr, got)
		}
	}
}

func TestPlateAngle_ExampleValue(t *testing.T) {
	if got := PlateAngle(2500, 2400); math.Abs(got-0.2618) > 1e-4 {
		t.Errorf("PlateAngle(2500, 2400) = %f, want ≈0.2618", got)
	}
}
