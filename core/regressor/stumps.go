package regressor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const thresholdCandidates = 16

// Stump is a depth-one decision rule on a single feature.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
	Gain      float64 `json:"gain"`
}

// BoostedStumps fits depth-one trees to the running residual, one per round.
// It is the "reactive" half of the ensemble: piecewise-constant, quick to
// latch onto rush-hour bands and threshold effects the linear model smooths
// over.
type BoostedStumps struct {
	Rounds       int     `json:"rounds"`
	LearningRate float64 `json:"learning_rate"`
	Base         float64 `json:"base"`
	Features     int     `json:"features"`
	Stumps       []Stump `json:"stumps"`
}

// NewBoostedStumps creates an unfitted boosted-stump regressor.
func NewBoostedStumps(rounds int, learningRate float64) *BoostedStumps {
	return &BoostedStumps{Rounds: rounds, LearningRate: learningRate}
}

func (b *BoostedStumps) Name() string { return "boosted_stumps" }

// Fit boosts stumps against the residual of the previous rounds. Fitting is
// deterministic for a given data set.
func (b *BoostedStumps) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 || n != len(y) {
		return errors.New("boosted_stumps: empty or mismatched training data")
	}
	d := len(X[0])
	if d == 0 {
		return errors.New("boosted_stumps: zero-width rows")
	}
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("boosted_stumps: row %d has width %d, want %d", i, len(row), d)
		}
	}

	b.Features = d
	b.Base = stat.Mean(y, nil)
	b.Stumps = b.Stumps[:0]

	residual := make([]float64, n)
	for i, v := range y {
		residual[i] = v - b.Base
	}

	thresholds := candidateThresholds(X, d)

	for round := 0; round < b.Rounds; round++ {
		best, ok := bestStump(X, residual, thresholds)
		if !ok {
			break
		}
		b.Stumps = append(b.Stumps, best)
		for i, row := range X {
			residual[i] -= b.LearningRate * best.apply(row)
		}
	}
	return nil
}

func (b *BoostedStumps) Predict(x []float64) (float64, error) {
	if b.Features == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != b.Features {
		return 0, fmt.Errorf("boosted_stumps: input width %d, fitted width %d", len(x), b.Features)
	}
	out := b.Base
	for _, s := range b.Stumps {
		out += b.LearningRate * s.apply(x)
	}
	return out, nil
}

// FeatureGains returns the residual-variance reduction attributed to each
// feature over all boosting rounds.
func (b *BoostedStumps) FeatureGains() []float64 {
	gains := make([]float64, b.Features)
	for _, s := range b.Stumps {
		gains[s.Feature] += s.Gain
	}
	return gains
}

func (s Stump) apply(x []float64) float64 {
	if x[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// candidateThresholds picks evenly spaced split points per feature from the
// sorted column values.
func candidateThresholds(X [][]float64, d int) [][]float64 {
	out := make([][]float64, d)
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		sort.Float64s(col)
		uniq := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				uniq = append(uniq, v)
			}
		}
		if len(uniq) < 2 {
			out[j] = nil
			continue
		}
		k := thresholdCandidates
		if len(uniq)-1 < k {
			k = len(uniq) - 1
		}
		ts := make([]float64, 0, k)
		for c := 1; c <= k; c++ {
			idx := c * (len(uniq) - 1) / (k + 1)
			ts = append(ts, (uniq[idx]+uniq[idx+1])/2)
		}
		out[j] = ts
	}
	return out
}

// bestStump scans every feature/threshold pair and keeps the split with the
// largest squared-error reduction over the residual.
func bestStump(X [][]float64, residual []float64, thresholds [][]float64) (Stump, bool) {
	var total, totalSq float64
	for _, r := range residual {
		total += r
		totalSq += r * r
	}
	n := float64(len(residual))
	baseSSE := totalSq - total*total/n

	var best Stump
	found := false
	for j, ts := range thresholds {
		for _, t := range ts {
			var leftSum, leftSq, leftN float64
			for i, row := range X {
				if row[j] <= t {
					leftSum += residual[i]
					leftSq += residual[i] * residual[i]
					leftN++
				}
			}
			rightN := n - leftN
			if leftN == 0 || rightN == 0 {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			gain := baseSSE - sse
			if gain <= 1e-12 {
				continue
			}
			if !found || gain > best.Gain {
				best = Stump{
					Feature:   j,
					Threshold: t,
					Left:      leftSum / leftN,
					Right:     rightSum / rightN,
					Gain:      gain,
				}
				found = true
			}
		}
	}
	if !found || math.IsNaN(best.Left) || math.IsNaN(best.Right) {
		return Stump{}, false
	}
	return best, true
}
