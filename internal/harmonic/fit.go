// Package harmonic fits truncated Fourier series in the plate angle,
//
//	y(θ) = a₀ + Σₖ (aₖ cos kθ + bₖ sin kθ)
//
// by ordinary least squares and derives the polarization angle from the
// fourth harmonic.
package harmonic

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientPoints means fewer finite points than the model needs.
	ErrInsufficientPoints = errors.New("insufficient points for fit")
	// ErrSingular means the least-squares system could not be solved.
	ErrSingular = errors.New("singular least-squares system")
	// ErrBadOrders means the harmonic order list is empty or invalid.
	ErrBadOrders = errors.New("invalid harmonic orders")
)

// PsiOrder is the harmonic whose phase carries the polarization angle.
const PsiOrder = 4

// Term is one fitted harmonic: A cos(kθ) + B sin(kθ).
type Term struct {
	Order     int
	A         float64
	B         float64
	Amplitude float64
	Phase     float64 // atan2(B, A), radians
}

// Result is an immutable fitted model.
type Result struct {
	Intercept float64
	Terms     []Term
	R2        float64 // NaN when the input series is constant
	N         int
	HasPsi    bool
	Psi       float64 // radians, φ₄/4
	PsiDeg    float64 // degrees in [0, 90)
}

// Fit fits the given harmonic orders to (theta, y). Pairs with a non-finite
// member are dropped. At least max(minPoints, 1+2K) points must remain.
func Fit(theta, y []float64, orders []int, minPoints int) (*Result, error) {
	if len(theta) != len(y) {
		return nil, fmt.Errorf("theta and y length mismatch: %d != %d", len(theta), len(y))
	}
	if len(orders) == 0 {
		return nil, ErrBadOrders
	}
	seen := make(map[int]bool, len(orders))
	for _, k := range orders {
		if k <= 0 || seen[k] {
			return nil, fmt.Errorf("%w: %v", ErrBadOrders, orders)
		}
		seen[k] = true
	}

	xs := make([]float64, 0, len(theta))
	ys := make([]float64, 0, len(y))
	for i := range theta {
		if isFinite(theta[i]) && isFinite(y[i]) {
			xs = append(xs, theta[i])
			ys = append(ys, y[i])
		}
	}

	n := len(xs)
	cols := 1 + 2*len(orders)
	need := max(minPoints, cols)
	if n < need {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientPoints, n, need)
	}

	A := mat.NewDense(n, cols, nil)
	B := mat.NewVecDense(n, ys)
	for i, th := range xs {
		A.Set(i, 0, 1)
		for j, k := range orders {
			A.Set(i, 1+2*j, math.Cos(float64(k)*th))
			A.Set(i, 2+2*j, math.Sin(float64(k)*th))
		}
	}

	var qr mat.QR
	qr.Factorize(A)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	for i := 0; i < cols; i++ {
		if !isFinite(params.AtVec(i)) {
			return nil, ErrSingular
		}
	}

	res := &Result{
		Intercept: params.AtVec(0),
		Terms:     make([]Term, len(orders)),
		N:         n,
	}
	for j, k := range orders {
		a, b := params.AtVec(1+2*j), params.AtVec(2+2*j)
		res.Terms[j] = Term{
			Order:     k,
			A:         a,
			B:         b,
			Amplitude: math.Hypot(a, b),
			Phase:     math.Atan2(b, a),
		}
		if k == PsiOrder {
			res.HasPsi = true
			res.Psi = res.Terms[j].Phase / PsiOrder
			deg := math.Mod(res.Psi*180/math.Pi, 90)
			if deg < 0 {
				deg += 90
			}
			res.PsiDeg = deg
		}
	}

	res.R2 = rSquared(xs, ys, res)
	return res, nil
}

func rSquared(xs, ys []float64, r *Result) float64 {
	mean := stat.Mean(ys, nil)
	var ssRes, ssTot float64
	for i, th := range xs {
		d := ys[i] - r.Eval(th)
		ssRes += d * d
		t := ys[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

// Eval evaluates the fitted model at theta.
func (r *Result) Eval(theta float64) float64 {
	v := r.Intercept
	for _, t := range r.Terms {
		k := float64(t.Order)
		v += t.A*math.Cos(k*theta) + t.B*math.Sin(k*theta)
	}
	return v
}

// Curve samples the model at n uniformly spaced angles in [0, 2π).
func (r *Result) Curve(n int) (theta, y []float64) {
	if n <= 0 {
		return nil, nil
	}
	theta = make([]float64, n)
	y = make([]float64, n)
	for i := range theta {
		theta[i] = 2 * math.Pi * float64(i) / float64(n)
		y[i] = r.Eval(theta[i])
	}
	return theta, y
}

// Term returns the fitted term of order k.
func (r *Result) Term(k int) (Term, bool) {
	for _, t := range r.Terms {
		if t.Order == k {
			return t, true
		}
	}
	return Term{}, false
}

// Label summarises the fit on one line, e.g.
// "a0=3.000 A2=0.000 A4=2.236 psi=6.64deg R2=1.0000 n=36".
func (r *Result) Label() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "a0=%.3f", r.Intercept)
	for _, t := range r.Terms {
		fmt.Fprintf(&sb, " A%d=%.3f", t.Order, t.Amplitude)
	}
	if r.HasPsi {
		fmt.Fprintf(&sb, " psi=%.2fdeg", r.PsiDeg)
	}
	fmt.Fprintf(&sb, " R2=%.4f n=%d", r.R2, r.N)
	return sb.String()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
