// Package forest implements a deterministic random forest classifier.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// ErrNotTrained is returned when predicting with an unfitted forest
var ErrNotTrained = errors.New("forest is not trained")

// Options configures a RandomForest
type Options struct {
	NumTrees        int
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	Workers         int // 0 uses GOMAXPROCS
}

// RandomForest is an ensemble of bootstrapped decision trees. Given the
// same seed and data, Fit produces the same forest regardless of how many
// workers build it.
type RandomForest struct {
	Trees             []*DecisionTree `json:"trees"`
	NumTrees          int             `json:"num_trees"`
	MaxDepth          int             `json:"max_depth"`
	MinSamplesSplit   int             `json:"min_samples_split"`
	MinSamplesLeaf    int             `json:"min_samples_leaf"`
	MaxFeatures       int             `json:"max_features"` // features tried per split
	Classes           []string        `json:"classes"`      // sorted
	FeatureNames      []string        `json:"feature_names"`
	FeatureImportance []float64       `json:"feature_importance"`
	Seed              int64           `json:"seed"`

	workers int
}

// New creates an unfitted forest
func New(opts Options) *RandomForest {
	if opts.NumTrees <= 0 {
		opts.NumTrees = 100
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.MinSamplesLeaf <= 0 {
		opts.MinSamplesLeaf = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &RandomForest{
		NumTrees:        opts.NumTrees,
		MaxDepth:        opts.MaxDepth,
		MinSamplesSplit: opts.MinSamplesSplit,
		MinSamplesLeaf:  opts.MinSamplesLeaf,
		Seed:            opts.Seed,
		workers:         opts.Workers,
	}
}

// Fit trains the forest on X and labels y
func (rf *RandomForest) Fit(X [][]float64, y []string, featureNames []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X and y must have same number of samples")
	}
	numFeatures := len(X[0])
	if numFeatures == 0 {
		return fmt.Errorf("training data has no features")
	}
	if len(featureNames) != numFeatures {
		return fmt.Errorf("feature names must match number of features")
	}
	for i, row := range X {
		if len(row) != numFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), numFeatures)
		}
	}

	rf.FeatureNames = append([]string(nil), featureNames...)
	rf.Classes = models.SortedLabels(y)
	classIndex := make(map[string]int, len(rf.Classes))
	for i, c := range rf.Classes {
		classIndex[c] = i
	}
	encoded := make([]int, len(y))
	for i, label := range y {
		encoded[i] = classIndex[label]
	}

	rf.MaxFeatures = int(math.Sqrt(float64(numFeatures)))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	// Seeds are drawn up front so tree i is the same no matter which worker builds it.
	master := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	rf.Trees = make([]*DecisionTree, rf.NumTrees)
	importances := make([][]float64, rf.NumTrees)

	workers := rf.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > rf.NumTrees {
		workers = rf.NumTrees
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(seeds[i]))
				indices := bootstrap(rng, len(X))
				tree := newDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, rf.MinSamplesLeaf, rf.MaxFeatures, len(rf.Classes), rng)
				importances[i] = tree.fit(X, encoded, indices)
				rf.Trees[i] = tree
			}
		}()
	}
	for i := 0; i < rf.NumTrees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	rf.FeatureImportance = make([]float64, numFeatures)
	for _, imp := range importances {
		for j, v := range imp {
			rf.FeatureImportance[j] += v
		}
	}
	for j := range rf.FeatureImportance {
		rf.FeatureImportance[j] /= float64(rf.NumTrees)
	}
	return nil
}

func bootstrap(rng *rand.Rand, n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}

// PredictProba returns the mean leaf class distribution over all trees,
// indexed like Classes
func (rf *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if len(x) != len(rf.FeatureNames) {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", models.ErrSchemaMismatch, len(x), len(rf.FeatureNames))
	}
	proba := make([]float64, len(rf.Classes))
	for _, tree := range rf.Trees {
		dist := tree.leafFor(x).Distribution
		for c, p := range dist {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(rf.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class. Ties go to the class that
// sorts first.
func (rf *RandomForest) Predict(x []float64) (string, error) {
	proba, err := rf.PredictProba(x)
	if err != nil {
		return "", err
	}
	return rf.Classes[argmax(proba)], nil
}

// PredictBatch predicts every row of X
func (rf *RandomForest) PredictBatch(X [][]float64) ([]string, error) {
	out := make([]string, len(X))
	for i, x := range X {
		label, err := rf.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Importance returns feature importances keyed by feature name
func (rf *RandomForest) Importance() map[string]float64 {
	out := make(map[string]float64, len(rf.FeatureNames))
	for j, name := range rf.FeatureNames {
		if j < len(rf.FeatureImportance) {
			out[name] = rf.FeatureImportance[j]
		}
	}
	return out
}

// TopFeatures returns up to n feature names by descending importance
func (rf *RandomForest) TopFeatures(n int) []string {
	names := append([]string(nil), rf.FeatureNames...)
	imp := rf.Importance()
	sort.SliceStable(names, func(a, b int) bool { return imp[names[a]] > imp[names[b]] })
	if n < len(names) {
		names = names[:n]
	}
	return names
}

// Info returns summary information about the forest
func (rf *RandomForest) Info() map[string]interface{} {
	avgDepth := 0
	for _, tree := range rf.Trees {
		if tree != nil {
			avgDepth += tree.Root.depth()
		}
	}
	if len(rf.Trees) > 0 {
		avgDepth /= len(rf.Trees)
	}
	return map[string]interface{}{
		"algorithm":         "random_forest",
		"num_trees":         rf.NumTrees,
		"num_features":      len(rf.FeatureNames),
		"num_classes":       len(rf.Classes),
		"max_depth":         rf.MaxDepth,
		"avg_tree_depth":    avgDepth,
		"max_features":      rf.MaxFeatures,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"seed":              rf.Seed,
	}
}

// Validate checks if the model is valid and ready for predictions
func (rf *RandomForest) Validate() error {
	if len(rf.Trees) == 0 {
		return ErrNotTrained
	}
	if len(rf.Trees) != rf.NumTrees {
		return fmt.Errorf("forest has %d trees, expected %d", len(rf.Trees), rf.NumTrees)
	}
	if len(rf.Classes) == 0 {
		return fmt.Errorf("model has no classes")
	}
	if !sort.StringsAreSorted(rf.Classes) {
		return fmt.Errorf("model classes are not sorted")
	}
	if len(rf.FeatureNames) == 0 {
		return fmt.Errorf("model has no feature names")
	}
	for i, tree := range rf.Trees {
		if tree == nil || !tree.Root.valid(len(rf.Classes), len(rf.FeatureNames)) {
			return fmt.Errorf("tree %d is malformed", i)
		}
	}
	return nil
}
