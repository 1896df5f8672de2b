package forest

import (
	"math/rand"
	"sort"
)

// TreeNode is a node of a fitted decision tree. Leaves carry the class
// distribution of the training samples that reached them.
type TreeNode struct {
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"` // leaf class probabilities, indexed like Classes
	FeatureIndex int       `json:"feature_index"`
	Threshold    float64   `json:"threshold"`
	Left         *TreeNode `json:"left,omitempty"`  // x[FeatureIndex] <= Threshold
	Right        *TreeNode `json:"right,omitempty"` // x[FeatureIndex] > Threshold
	SamplesCount int       `json:"samples_count"`
}

// DecisionTree is a CART classification tree using Gini impurity and a
// random feature subset at every split
type DecisionTree struct {
	Root *TreeNode `json:"root"`

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	numClasses      int
	rng             *rand.Rand
	importance      []float64
	x               [][]float64
	y               []int
}

func newDecisionTree(maxDepth, minSamplesSplit, minSamplesLeaf, maxFeatures, numClasses int, rng *rand.Rand) *DecisionTree {
	return &DecisionTree{
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		minSamplesLeaf:  minSamplesLeaf,
		maxFeatures:     maxFeatures,
		numClasses:      numClasses,
		rng:             rng,
	}
}

// fit grows the tree on the given sample indices and returns the
// impurity-decrease importance per feature, normalized to sum to one.
func (dt *DecisionTree) fit(X [][]float64, y []int, indices []int) []float64 {
	dt.x, dt.y = X, y
	dt.importance = make([]float64, len(X[0]))
	dt.Root = dt.buildTree(indices, 0)

	total := 0.0
	for _, v := range dt.importance {
		total += v
	}
	if total > 0 {
		for i := range dt.importance {
			dt.importance[i] /= total
		}
	}
	imp := dt.importance
	dt.x, dt.y, dt.importance, dt.rng = nil, nil, nil, nil
	return imp
}

func (dt *DecisionTree) buildTree(indices []int, depth int) *TreeNode {
	counts := make([]int, dt.numClasses)
	for _, idx := range indices {
		counts[dt.y[idx]]++
	}
	n := len(indices)
	node := &TreeNode{SamplesCount: n}

	impurity := gini(counts, n)
	if impurity == 0 || n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		return leaf(node, counts, n)
	}

	feature, threshold, childImpurity, ok := dt.findBestSplit(indices)
	if !ok {
		return leaf(node, counts, n)
	}

	var left, right []int
	for _, idx := range indices {
		if dt.x[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	dt.importance[feature] += float64(n)*impurity - childImpurity

	node.FeatureIndex = feature
	node.Threshold = threshold
	node.Left = dt.buildTree(left, depth+1)
	node.Right = dt.buildTree(right, depth+1)
	return node
}

func leaf(node *TreeNode, counts []int, n int) *TreeNode {
	node.IsLeaf = true
	node.Distribution = make([]float64, len(counts))
	for c, k := range counts {
		node.Distribution[c] = float64(k) / float64(n)
	}
	return node
}

type sample struct {
	value float64
	class int
}

// findBestSplit scans up to maxFeatures randomly ordered non-constant
// features. For each, samples are sorted by value and class counts are
// accumulated left to right, so every threshold costs O(classes).
// childImpurity is the sample-weighted Gini of the two children.
func (dt *DecisionTree) findBestSplit(indices []int) (int, float64, float64, bool) {
	n := len(indices)
	bestFeature, bestThreshold := -1, 0.0
	bestScore := 0.0

	samples := make([]sample, n)
	leftCounts := make([]int, dt.numClasses)
	rightCounts := make([]int, dt.numClasses)

	visited := 0
	for _, f := range dt.rng.Perm(len(dt.x[0])) {
		if visited >= dt.maxFeatures && bestFeature >= 0 {
			break
		}
		for i, idx := range indices {
			samples[i] = sample{value: dt.x[idx][f], class: dt.y[idx]}
		}
		sort.Slice(samples, func(a, b int) bool { return samples[a].value < samples[b].value })
		if samples[0].value == samples[n-1].value {
			continue
		}
		visited++

		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = 0
		}
		for _, s := range samples {
			rightCounts[s.class]++
		}

		for i := 0; i < n-1; i++ {
			leftCounts[samples[i].class]++
			rightCounts[samples[i].class]--
			if samples[i].value == samples[i+1].value {
				continue
			}
			nl, nr := i+1, n-i-1
			if nl < dt.minSamplesLeaf || nr < dt.minSamplesLeaf {
				continue
			}
			score := float64(nl)*gini(leftCounts, nl) + float64(nr)*gini(rightCounts, nr)
			if bestFeature < 0 || score < bestScore {
				bestFeature = f
				bestThreshold = samples[i].value + (samples[i+1].value-samples[i].value)/2
				if bestThreshold >= samples[i+1].value {
					bestThreshold = samples[i].value
				}
				bestScore = score
			}
		}
	}
	return bestFeature, bestThreshold, bestScore, bestFeature >= 0
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

// leafFor walks x down to its leaf
func (dt *DecisionTree) leafFor(x []float64) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if x[node.FeatureIndex] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// depth returns the longest root-to-leaf path
func (n *TreeNode) depth() int {
	if n == nil || n.IsLeaf {
		return 0
	}
	l, r := n.Left.depth(), n.Right.depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// valid reports whether every internal node has both children and every
// leaf has a distribution of width k
func (n *TreeNode) valid(k, features int) bool {
	if n == nil {
		return false
	}
	if n.IsLeaf {
		return len(n.Distribution) == k
	}
	if n.FeatureIndex < 0 || n.FeatureIndex >= features {
		return false
	}
	return n.Left.valid(k, features) && n.Right.valid(k, features)
}
