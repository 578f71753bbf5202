package spindle

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MatchingAlgorithm is for algorithm type for matching previous instances to current ones
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

var (
	// ErrAssignmentShape is returned when solver output doesn't fit the cost matrix.
	// This is a logic error and aborts the run.
	ErrAssignmentShape = errors.New("assignment doesn't match cost matrix shape")
	// ErrUnknownAlgorithm is returned for unsupported matching algorithm names
	ErrUnknownAlgorithm = errors.New("unknown matching algorithm")
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("MatchingAlgorithm(%d)", uint16(algorithm))
	}
}

// ParseMatchingAlgorithm converts name ("hungarian" or "greedy") into MatchingAlgorithm
func ParseMatchingAlgorithm(name string) (MatchingAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hungarian":
		return MatchingAlgorithmHungarian, nil
	case "greedy":
		return MatchingAlgorithmGreedy, nil
	default:
		return 0, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
	}
}

// distanceMatrix builds |previous| x |current| matrix of Euclidean distances between centroids
func distanceMatrix(previous, current []Instance) *mat.Dense {
	if len(previous) == 0 || len(current) == 0 {
		return nil
	}
	cost := mat.NewDense(len(previous), len(current), nil)
	for i := range previous {
		for j := range current {
			cost.Set(i, j, euclideanDistance(previous[i].Centroid, current[j].Centroid))
		}
	}
	return cost
}

// solveAssignment pairs rows with columns of the cost matrix minimizing total cost.
// Returns slice of {rowIndex, columnIndex} pairs sorted by row.
// Nil cost matrix (empty side) yields no pairs.
func solveAssignment(cost *mat.Dense, algorithm MatchingAlgorithm) ([][2]int, error) {
	if cost == nil {
		return [][2]int{}, nil
	}
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return solveHungarian(cost)
	case MatchingAlgorithmGreedy:
		return solveGreedy(cost), nil
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%s", algorithm)
	}
}

// solveHungarian solves the rectangular minimum-cost assignment problem with
// Kuhn-Munkres on row and column potentials, O(n^3) for n = max(rows, cols).
// The matrix is padded to a square with zero costs. Padded rows/columns absorb
// the excess side and are dropped from the result, so min(rows, cols) pairs are returned.
func solveHungarian(cost *mat.Dense) ([][2]int, error) {
	numRows, numCols := cost.Dims()
	dim := maxInt(numRows, numCols)
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		if i >= numRows {
			continue
		}
		for j := 0; j < numCols; j++ {
			c[i][j] = cost.At(i, j)
		}
	}

	// 1-indexed: column 0 is virtual and p[j] = 0 means column j is free
	inf := math.Inf(1)
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				return nil, errors.Wrapf(ErrAssignmentShape, "no augmenting path for row %d of %dx%d matrix", i-1, numRows, numCols)
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the path
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	matches := make([][2]int, 0, minInt(numRows, numCols))
	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row < 0 {
			return nil, errors.Wrapf(ErrAssignmentShape, "column %d left unassigned in %dx%d padded matrix", col, dim, dim)
		}
		if row < numRows && col < numCols {
			matches = append(matches, [2]int{row, col})
		}
	}
	if len(matches) != minInt(numRows, numCols) {
		return nil, errors.Wrapf(ErrAssignmentShape, "expected %d matched pairs for %dx%d matrix, got %d", minInt(numRows, numCols), numRows, numCols, len(matches))
	}
	sort.Slice(matches, func(a, b int) bool {
		return matches[a][0] < matches[b][0]
	})
	return matches, nil
}

// solveGreedy pairs every row, in order, with the nearest column not taken yet
func solveGreedy(cost *mat.Dense) [][2]int {
	numRows, numCols := cost.Dims()
	matches := make([][2]int, 0, minInt(numRows, numCols))
	// Keep track of columns that are already matched
	matchedCols := make(map[int]struct{})
	for i := 0; i < numRows; i++ {
		bestCost := -1.0
		bestCol := -1
		for j := 0; j < numCols; j++ {
			if _, found := matchedCols[j]; found {
				continue
			}
			if c := cost.At(i, j); bestCol == -1 || c < bestCost {
				bestCost = c
				bestCol = j
			}
		}
		if bestCol != -1 {
			matches = append(matches, [2]int{i, bestCol})
			matchedCols[bestCol] = struct{}{}
		}
	}
	return matches
}
