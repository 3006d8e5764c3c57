package detector

import (
	"math"
	"math/rand"
	"sort"
)

// isolation forest internals. Trees isolate points by random axis-aligned
// splits; anomalous points isolate in fewer splits. Scoring follows the
// standard formulation: s(x) = 2^(-E[h(x)]/c(psi)).

type treeNode struct {
	// internal node
	splitFeature int
	splitValue   float64
	left, right  *treeNode
	// external node
	external bool
	size     int
}

type isolationTree struct {
	root *treeNode
}

type forest struct {
	trees         []isolationTree
	subsampleSize int
}

// averagePathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		f := float64(n)
		return 2*(math.Log(f-1)+0.5772156649015329) - 2*(f-1)/f
	}
}

func fitForest(matrix [][]float64, numTrees, subsample int, rng *rand.Rand) *forest {
	n := len(matrix)
	if subsample > n {
		subsample = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(subsample))))

	f := &forest{trees: make([]isolationTree, 0, numTrees), subsampleSize: subsample}
	for t := 0; t < numTrees; t++ {
		perm := rng.Perm(n)
		sample := make([][]float64, subsample)
		for i := 0; i < subsample; i++ {
			sample[i] = matrix[perm[i]]
		}
		f.trees = append(f.trees, isolationTree{root: buildTree(sample, 0, heightLimit, rng)})
	}
	return f
}

func buildTree(data [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if depth >= heightLimit || len(data) <= 1 {
		return &treeNode{external: true, size: len(data)}
	}

	dims := len(data[0])
	// Candidate features must have spread; constant columns cannot split.
	splittable := make([]int, 0, dims)
	for q := 0; q < dims; q++ {
		minV, maxV := data[0][q], data[0][q]
		for _, row := range data[1:] {
			if row[q] < minV {
				minV = row[q]
			}
			if row[q] > maxV {
				maxV = row[q]
			}
		}
		if maxV > minV {
			splittable = append(splittable, q)
		}
	}
	if len(splittable) == 0 {
		return &treeNode{external: true, size: len(data)}
	}

	q := splittable[rng.Intn(len(splittable))]
	minV, maxV := data[0][q], data[0][q]
	for _, row := range data[1:] {
		if row[q] < minV {
			minV = row[q]
		}
		if row[q] > maxV {
			maxV = row[q]
		}
	}
	split := minV + rng.Float64()*(maxV-minV)

	var left, right [][]float64
	for _, row := range data {
		if row[q] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{external: true, size: len(data)}
	}

	return &treeNode{
		splitFeature: q,
		splitValue:   split,
		left:         buildTree(left, depth+1, heightLimit, rng),
		right:        buildTree(right, depth+1, heightLimit, rng),
	}
}

func (t *isolationTree) pathLength(x []float64) float64 {
	node := t.root
	depth := 0.0
	for !node.external {
		if x[node.splitFeature] < node.splitValue {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + averagePathLength(node.size)
}

// anomalyMeasure returns s(x) in (0, 1]; larger = more anomalous.
func (f *forest) anomalyMeasure(x []float64) float64 {
	var total float64
	for i := range f.trees {
		total += f.trees[i].pathLength(x)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/averagePathLength(f.subsampleSize))
}

// scoreSample mirrors the sklearn convention: higher = more normal.
func (f *forest) scoreSample(x []float64) float64 {
	return -f.anomalyMeasure(x)
}

// percentile computes the q-th percentile (0..100) with linear interpolation
// between closest ranks, matching numpy's default.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
