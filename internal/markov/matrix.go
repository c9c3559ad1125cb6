// Package markov builds and samples the agent transition matrix. Each
// agent is a state: the diagonal holds the self-transition (reflection)
// probability, off-diagonal entries hold conversation probabilities
// shaped by pairwise affinity weights.
package markov

import (
	"fmt"
	"math"
	"math/rand"
)

// RowSumTolerance is the allowed deviation of a row sum from 1.
const RowSumTolerance = 1e-6

// BuildMatrix constructs an n×n row-stochastic transition matrix.
// selfProb goes on the diagonal; interactionProb is split across the
// off-diagonal entries of each row in proportion to weights[i][j].
// A nil weights slice, or a row whose off-diagonal weights sum to
// zero, falls back to a uniform split for that row.
func BuildMatrix(n int, selfProb, interactionProb float64, weights [][]float64) ([][]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 states, got %d", n)
	}
	if selfProb < 0 || selfProb > 1 || interactionProb < 0 {
		return nil, fmt.Errorf("invalid probabilities: self=%v interaction=%v", selfProb, interactionProb)
	}

	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = selfProb

		total := 0.0
		if weights != nil && i < len(weights) {
			for j := 0; j < n && j < len(weights[i]); j++ {
				if j != i && weights[i][j] > 0 {
					total += weights[i][j]
				}
			}
		}

		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if total > 0 {
				m[i][j] = interactionProb * weights[i][j] / total
			} else {
				m[i][j] = interactionProb / float64(n-1)
			}
		}

		// Renormalize so each row sums to exactly 1 regardless of how
		// selfProb and interactionProb were chosen.
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += m[i][j]
		}
		if sum <= 0 {
			return nil, fmt.Errorf("row %d has zero mass", i)
		}
		for j := 0; j < n; j++ {
			m[i][j] /= sum
		}
	}
	return m, nil
}

// Validate checks that m is square and row-stochastic.
func Validate(m [][]float64) error {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("row %d has %d entries, want %d", i, len(row), n)
		}
		sum := 0.0
		for j, p := range row {
			if p < 0 {
				return fmt.Errorf("negative probability at [%d][%d]: %v", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > RowSumTolerance {
			return fmt.Errorf("row %d sums to %v, want 1", i, sum)
		}
	}
	return nil
}

// Step samples the next state from the current row of m.
func Step(current int, m [][]float64, rng *rand.Rand) int {
	row := m[current]
	draw := rng.Float64()
	cum := 0.0
	for j, p := range row {
		cum += p
		if draw < cum {
			return j
		}
	}
	// Floating-point slack: the cumulative sum can land a hair below 1.
	return len(row) - 1
}
