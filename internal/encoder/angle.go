package encoder

import "math"

// PlateAngle converts an absolute count to the plate angle in radians,
// ((count / countsPerRev) mod 1) * 2π, always in [0, 2π).
func PlateAngle(count int64, countsPerRev int) float64 {
	cpr := int64(countsPerRev)
	rem := count % cpr
	if rem < 0 {
		rem += cpr
	}
	angle := float64(rem) / float64(cpr) * 2 * math.Pi
	if angle >= 2*math.Pi {
		angle = 0
	}
	return angle
}

// RotationIndex returns the number of whole revolutions completed since ref,
// floor((count - ref) / countsPerRev).
func RotationIndex(count, ref int64, countsPerRev int) int {
	rel := count - ref
	cpr := int64(countsPerRev)
	q := rel / cpr
	if rel%cpr != 0 && rel < 0 {
		q--
	}
	return int(q)
}
