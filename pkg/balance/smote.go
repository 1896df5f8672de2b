// Package balance oversamples minority classes with SMOTE. It is applied to
// the encoded training partition only.
package balance

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// DefaultNeighbors is the neighbour count used when K is zero
const DefaultNeighbors = 5

// SMOTE synthesizes minority samples by interpolating between a sample and
// one of its K nearest same-class neighbours until every class matches the
// majority count.
type SMOTE struct {
	K    int
	Seed int64
}

// NewSMOTE creates a balancer with k neighbours and a fixed seed
func NewSMOTE(k int, seed int64) *SMOTE {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &SMOTE{K: k, Seed: seed}
}

// CheckClassCounts fails with ErrInsufficientClassData when a class that
// will be oversampled has fewer than K+1 members, the minimum for K
// same-class neighbours. Majority classes are never resampled and are not
// checked.
func (s *SMOTE) CheckClassCounts(y []string) error {
	counts := ClassCounts(y)
	majority := 0
	for _, n := range counts {
		majority = max(majority, n)
	}
	for _, c := range sortedKeys(counts) {
		if counts[c] < majority && counts[c] < s.K+1 {
			return fmt.Errorf("%w: class %q has %d training samples, oversampling with %d neighbours needs at least %d",
				models.ErrInsufficientClassData, c, counts[c], s.K, s.K+1)
		}
	}
	return nil
}

// Resample returns the input samples followed by synthetic ones. The inputs
// are not modified.
func (s *SMOTE) Resample(X [][]float64, y []string) ([][]float64, []string, error) {
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(X) == 0 {
		return nil, nil, fmt.Errorf("cannot resample an empty training set")
	}
	if err := s.CheckClassCounts(y); err != nil {
		return nil, nil, err
	}

	byClass := make(map[string][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	target := 0
	for _, idx := range byClass {
		if len(idx) > target {
			target = len(idx)
		}
	}

	outX := make([][]float64, len(X), len(X)+target*len(byClass))
	copy(outX, X)
	outY := make([]string, len(y), cap(outX))
	copy(outY, y)

	rng := rand.New(rand.NewSource(s.Seed))
	for _, class := range sortedKeys(byClass) {
		members := byClass[class]
		need := target - len(members)
		if need == 0 {
			continue
		}
		neighbors := s.nearestNeighbors(X, members)
		width := len(X[members[0]])
		for n := 0; n < need; n++ {
			i := rng.Intn(len(members))
			nn := neighbors[i][rng.Intn(s.K)]
			gap := rng.Float64()

			x := X[members[i]]
			diff := make([]float64, width)
			floats.SubTo(diff, X[nn], x)
			synthetic := make([]float64, width)
			floats.AddScaledTo(synthetic, x, gap, diff)

			outX = append(outX, synthetic)
			outY = append(outY, class)
		}
	}
	return outX, outY, nil
}

// nearestNeighbors returns, for each member, the row indices of its K
// closest other members by Euclidean distance. Ties go to the lower index.
func (s *SMOTE) nearestNeighbors(X [][]float64, members []int) [][]int {
	type candidate struct {
		row  int
		dist float64
	}
	out := make([][]int, len(members))
	cands := make([]candidate, 0, len(members)-1)
	for i, a := range members {
		cands = cands[:0]
		for j, b := range members {
			if i == j {
				continue
			}
			cands = append(cands, candidate{row: b, dist: floats.Distance(X[a], X[b], 2)})
		}
		sort.SliceStable(cands, func(p, q int) bool { return cands[p].dist < cands[q].dist })
		nn := make([]int, s.K)
		for k := 0; k < s.K; k++ {
			nn[k] = cands[k].row
		}
		out[i] = nn
	}
	return out
}

// ClassCounts tallies labels
func ClassCounts(y []string) map[string]int {
	counts := make(map[string]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
