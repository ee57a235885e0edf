package regressor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Ridge is an L2-regularized linear regressor solved in closed form via the
// normal equations. It is the "stable" half of the ensemble: smooth, hard to
// overfit, and insensitive to small input perturbations.
type Ridge struct {
	Lambda    float64   `json:"lambda"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// NewRidge creates an unfitted ridge regressor with the given penalty.
func NewRidge(lambda float64) *Ridge {
	return &Ridge{Lambda: lambda}
}

func (r *Ridge) Name() string { return "ridge" }

// Fit solves (XᵀX + λI) w = Xᵀy with an intercept column appended.
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 || n != len(y) {
		return errors.New("ridge: empty or mismatched training data")
	}
	d := len(X[0])
	if d == 0 {
		return errors.New("ridge: zero-width rows")
	}

	// Design matrix with a trailing bias column.
	a := mat.NewDense(n, d+1, nil)
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("ridge: row %d has width %d, want %d", i, len(row), d)
		}
		for j, v := range row {
			a.Set(i, j, v)
		}
		a.Set(i, d, 1)
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	sym := mat.NewSymDense(d+1, nil)
	for i := 0; i <= d; i++ {
		for j := i; j <= d; j++ {
			v := ata.At(i, j)
			if i == j && i < d {
				v += r.Lambda
			}
			sym.SetSym(i, j, v)
		}
	}

	yVec := mat.NewVecDense(n, y)
	var aty mat.VecDense
	aty.MulVec(a.T(), yVec)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return errors.New("ridge: normal equations not positive definite")
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &aty); err != nil {
		return fmt.Errorf("ridge: solve: %w", err)
	}

	r.Weights = make([]float64, d)
	for j := 0; j < d; j++ {
		r.Weights[j] = w.AtVec(j)
	}
	r.Intercept = w.AtVec(d)
	return nil
}

func (r *Ridge) Predict(x []float64) (float64, error) {
	if len(r.Weights) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != len(r.Weights) {
		return 0, fmt.Errorf("ridge: input width %d, fitted width %d", len(x), len(r.Weights))
	}
	out := r.Intercept
	for j, v := range x {
		out += r.Weights[j] * v
	}
	return out, nil
}
