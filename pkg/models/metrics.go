package models

import "fmt"

// ClassMetrics holds precision/recall/F1 for one class or an average row
type ClassMetrics struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// MetricsReport is the structured summary of one evaluated training run
type MetricsReport struct {
	Accuracy          float64            `json:"accuracy"`
	TrainSize         int                `json:"n_train"`
	TestSize          int                `json:"n_test"`
	BalancedTrainSize int                `json:"n_train_balanced"`
	Classes           []string           `json:"classes"`
	ConfusionMatrix   [][]int            `json:"confusion_matrix"` // rows: true class, cols: predicted
	PerClass          []ClassMetrics     `json:"per_class"`
	MacroAvg          ClassMetrics       `json:"macro_avg"`
	WeightedAvg       ClassMetrics       `json:"weighted_avg"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	MinAccuracy       float64            `json:"min_accuracy"`
	GatePassed        bool               `json:"gate_passed"`
}

// Validate checks internal consistency of the report
func (r *MetricsReport) Validate() error {
	k := len(r.Classes)
	if k == 0 {
		return fmt.Errorf("report has no classes")
	}
	if r.Accuracy < 0 || r.Accuracy > 1 {
		return fmt.Errorf("accuracy %v out of range", r.Accuracy)
	}
	if len(r.ConfusionMatrix) != k {
		return fmt.Errorf("confusion matrix has %d rows, want %d", len(r.ConfusionMatrix), k)
	}
	total := 0
	for i, row := range r.ConfusionMatrix {
		if len(row) != k {
			return fmt.Errorf("confusion matrix row %d has %d columns, want %d", i, len(row), k)
		}
		for _, v := range row {
			total += v
		}
	}
	if total != r.TestSize {
		return fmt.Errorf("confusion matrix total %d does not match test size %d", total, r.TestSize)
	}
	if len(r.PerClass) != k {
		return fmt.Errorf("per-class metrics has %d entries, want %d", len(r.PerClass), k)
	}
	return nil
}
