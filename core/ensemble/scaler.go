package ensemble

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance. Parameters
// are frozen at fit time; inference always transforms with the training
// statistics.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation.
func FitScaler(X [][]float64) (*Scaler, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, errors.New("scaler: no data to fit")
	}
	d := len(X[0])
	s := &Scaler{Mean: make([]float64, d), Std: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			// Constant column: pass through unscaled.
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s, nil
}

// Transform returns a standardized copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, &ShapeError{Got: len(x), Want: len(s.Mean)}
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformAll standardizes every row.
func (s *Scaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
