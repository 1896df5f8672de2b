package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// StratifiedSplit partitions row indices into train and test sets so that
// every class keeps roughly its share in both. The test set holds
// ceil(testFraction*n) rows; per-class test counts are allocated by largest
// remainder and every class keeps at least one row on each side. A class
// with fewer than two rows cannot be stratified and fails with
// ErrInsufficientClassData.
func StratifiedSplit(y []string, testFraction float64, seed int64) (train, test []int, err error) {
	n := len(y)
	if n == 0 {
		return nil, nil, fmt.Errorf("empty data")
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	// Group indices by class
	classSamples := make(map[string][]int)
	for idx, class := range y {
		classSamples[class] = append(classSamples[class], idx)
	}
	classes := make([]string, 0, len(classSamples))
	for class, samples := range classSamples {
		if len(samples) < 2 {
			return nil, nil, fmt.Errorf("%w: class %q has %d row(s), a stratified split needs at least 2",
				models.ErrInsufficientClassData, class, len(samples))
		}
		classes = append(classes, class)
	}
	sort.Strings(classes)

	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < len(classes) || n-nTest < len(classes) {
		return nil, nil, fmt.Errorf("%w: %d test rows cannot cover %d classes in both partitions",
			models.ErrInsufficientClassData, nTest, len(classes))
	}

	alloc := allocate(classes, classSamples, nTest, n)

	rng := rand.New(rand.NewSource(seed))
	train = make([]int, 0, n-nTest)
	test = make([]int, 0, nTest)
	for _, class := range classes {
		samples := append([]int(nil), classSamples[class]...)
		rng.Shuffle(len(samples), func(i, j int) {
			samples[i], samples[j] = samples[j], samples[i]
		})
		test = append(test, samples[:alloc[class]]...)
		train = append(train, samples[alloc[class]:]...)
	}

	rng.Shuffle(len(train), func(i, j int) {
		train[i], train[j] = train[j], train[i]
	})
	rng.Shuffle(len(test), func(i, j int) {
		test[i], test[j] = test[j], test[i]
	})
	return train, test, nil
}

// allocate distributes nTest rows over classes proportionally to their size
func allocate(classes []string, samples map[string][]int, nTest, n int) map[string]int {
	type share struct {
		class     string
		remainder float64
	}

	alloc := make(map[string]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, class := range classes {
		quota := float64(nTest) * float64(len(samples[class])) / float64(n)
		floor := int(math.Floor(quota))
		alloc[class] = floor
		assigned += floor
		shares = append(shares, share{class: class, remainder: quota - float64(floor)})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder > shares[j].remainder
	})
	for i := 0; assigned < nTest; i++ {
		alloc[shares[i%len(shares)].class]++
		assigned++
	}

	// Keep one row of every class on each side, then restore the total by
	// moving rows between the classes with the most slack.
	for _, class := range classes {
		size := len(samples[class])
		if alloc[class] < 1 {
			assigned += 1 - alloc[class]
			alloc[class] = 1
		}
		if alloc[class] > size-1 {
			assigned -= alloc[class] - (size - 1)
			alloc[class] = size - 1
		}
	}
	for assigned > nTest {
		best := ""
		for _, class := range classes {
			if alloc[class] > 1 && (best == "" || alloc[class] > alloc[best]) {
				best = class
			}
		}
		alloc[best]--
		assigned--
	}
	for assigned < nTest {
		best := ""
		for _, class := range classes {
			room := len(samples[class]) - 1 - alloc[class]
			if room > 0 && (best == "" || room > len(samples[best])-1-alloc[best]) {
				best = class
			}
		}
		alloc[best]++
		assigned++
	}
	return alloc
}

// selectLabels picks labels by row index
func selectLabels(y []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
