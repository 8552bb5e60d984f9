package harmonic

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformAngles(n int) []float64 {
	th := make([]float64, n)
	for i := range th {
		th[i] = 2 * math.Pi * float64(i) / float64(n)
	}
	return th
}

func TestFit_RecoversFourthHarmonic(t *testing.T) {
	theta := uniformAngles(36)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 3 + 2*math.Cos(4*th) + math.Sin(4*th)
	}

	res, err := Fit(theta, y, []int{2, 4}, 8)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, res.Intercept, 1e-9)
	t4, ok := res.Term(4)
	require.True(t, ok)
	assert.InDelta(t, 2.0, t4.A, 1e-9)
	assert.InDelta(t, 1.0, t4.B, 1e-9)
	assert.InDelta(t, math.Sqrt(5), t4.Amplitude, 1e-9)

	t2, ok := res.Term(2)
	require.True(t, ok)
	assert.InDelta(t, 0.0, t2.Amplitude, 1e-9)

	assert.InDelta(t, 1.0, res.R2, 1e-9)
	assert.Equal(t, 36, res.N)
	require.True(t, res.HasPsi)
	assert.InDelta(t, math.Atan2(1, 2)/4, res.Psi, 1e-9)
	assert.InDelta(t, math.Atan2(1, 2)/4*180/math.Pi, res.PsiDeg, 1e-6)

	assert.InDelta(t, 3+2*math.Cos(2)+math.Sin(2), res.Eval(0.5), 1e-9)
}

func TestFit_PsiDegWrapsIntoRange(t *testing.T) {
	theta := uniformAngles(24)
	y := make([]float64, len(theta))
	for i, th := range theta {
		// φ₄ = -π/2, ψ = -22.5°, wrapped to 67.5°.
		y[i] = 1 - math.Sin(4*th)
	}
	res, err := Fit(theta, y, []int{4}, 8)
	require.NoError(t, err)
	assert.InDelta(t, 67.5, res.PsiDeg, 1e-6)
	assert.GreaterOrEqual(t, res.PsiDeg, 0.0)
	assert.Less(t, res.PsiDeg, 90.0)
}

func TestFit_NoPsiWithoutFourthOrder(t *testing.T) {
	theta := uniformAngles(16)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 5 + math.Cos(2*th)
	}
	res, err := Fit(theta, y, []int{2}, 4)
	require.NoError(t, err)
	assert.False(t, res.HasPsi)
	assert.NotContains(t, res.Label(), "psi")
}

func TestFit_ConstantSeriesHasNaNR2(t *testing.T) {
	theta := uniformAngles(12)
	y := make([]float64, len(theta))
	for i := range y {
		y[i] = 7
	}
	res, err := Fit(theta, y, []int{2, 4}, 8)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, res.Intercept, 1e-9)
	assert.True(t, math.IsNaN(res.R2))
}

func TestFit_InsufficientPoints(t *testing.T) {
	theta := uniformAngles(10)
	y := make([]float64, 10)
	y[0] = math.NaN()
	theta[1] = math.Inf(1)

	// 8 finite pairs remain; minPoints 9 rejects.
	_, err := Fit(theta, y, []int{2, 4}, 9)
	assert.True(t, errors.Is(err, ErrInsufficientPoints))

	// Model size dominates a small minPoints: 1+2*4 = 9 > 8.
	_, err = Fit(theta, y, []int{1, 2, 3, 4}, 2)
	assert.True(t, errors.Is(err, ErrInsufficientPoints))

	res, err := Fit(theta, y, []int{2, 4}, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, res.N)
}

func TestFit_Singular(t *testing.T) {
	theta := make([]float64, 10)
	y := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	_, err := Fit(theta, y, []int{2}, 3)
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestFit_BadInput(t *testing.T) {
	_, err := Fit([]float64{1}, []float64{1, 2}, []int{2}, 1)
	assert.Error(t, err)

	_, err = Fit(nil, nil, nil, 1)
	assert.True(t, errors.Is(err, ErrBadOrders))

	_, err = Fit(nil, nil, []int{4, 4}, 1)
	assert.True(t, errors.Is(err, ErrBadOrders))

	_, err = Fit(nil, nil, []int{0}, 1)
	assert.True(t, errors.Is(err, ErrBadOrders))
}

func TestResult_CurveAndLabel(t *testing.T) {
	res := &Result{
		Intercept: 1,
		Terms:     []Term{{Order: 4, A: 1, Amplitude: 1}},
		R2:        0.5,
		N:         10,
		HasPsi:    true,
		PsiDeg:    12.345,
	}
	th, y := res.Curve(4)
	require.Len(t, th, 4)
	assert.InDelta(t, math.Pi/2, th[1], 1e-12)
	assert.InDelta(t, 2.0, y[0], 1e-12)
	assert.InDelta(t, 2.0, y[1], 1e-12, "cos(4·π/2) = 1")

	th, y = res.Curve(0)
	assert.Nil(t, th)
	assert.Nil(t, y)

	label := res.Label()
	assert.True(t, strings.HasPrefix(label, "a0=1.000"), label)
	assert.Contains(t, label, "A4=1.000")
	assert.Contains(t, label, "psi=12.35deg")
	assert.Contains(t, label, "R2=0.5000 n=10")
}
