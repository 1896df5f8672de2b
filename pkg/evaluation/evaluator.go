// Package evaluation computes classification metrics over a held-out
// partition and renders them as a report.
package evaluation

import (
	"fmt"
	"math"

	"github.com/sjwhitworth/golearn/evaluation"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// ConfusionMatrix builds a golearn confusion matrix (actual -> predicted ->
// count) with every class pair initialized, so classes absent from yTrue or
// yPred still appear.
func ConfusionMatrix(yTrue, yPred, classes []string) (evaluation.ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("yTrue and yPred must have same length")
	}
	cm := make(evaluation.ConfusionMatrix, len(classes))
	for _, actual := range classes {
		cm[actual] = make(map[string]int, len(classes))
		for _, pred := range classes {
			cm[actual][pred] = 0
		}
	}
	for i := range yTrue {
		row, ok := cm[yTrue[i]]
		if !ok {
			return nil, fmt.Errorf("unknown true label %q at index %d", yTrue[i], i)
		}
		if _, ok := row[yPred[i]]; !ok {
			return nil, fmt.Errorf("unknown predicted label %q at index %d", yPred[i], i)
		}
		row[yPred[i]]++
	}
	return cm, nil
}

// Evaluate computes accuracy, the confusion grid and per-class metrics.
// Rows and columns of the grid follow classes; undefined precision or
// recall (no predictions or no support) is reported as 0.
func Evaluate(yTrue, yPred, classes []string) (*models.MetricsReport, error) {
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("empty evaluation set")
	}
	cm, err := ConfusionMatrix(yTrue, yPred, classes)
	if err != nil {
		return nil, err
	}

	report := &models.MetricsReport{
		Accuracy:        zeroNaN(evaluation.GetAccuracy(cm)),
		TestSize:        len(yTrue),
		Classes:         append([]string(nil), classes...),
		ConfusionMatrix: make([][]int, len(classes)),
		PerClass:        make([]models.ClassMetrics, len(classes)),
	}

	total := float64(len(yTrue))
	for i, actual := range classes {
		row := make([]int, len(classes))
		support := 0
		for j, pred := range classes {
			row[j] = cm[actual][pred]
			support += row[j]
		}
		report.ConfusionMatrix[i] = row

		m := models.ClassMetrics{
			Class:     actual,
			Precision: zeroNaN(evaluation.GetPrecision(actual, cm)),
			Recall:    zeroNaN(evaluation.GetRecall(actual, cm)),
			Support:   support,
		}
		m.F1Score = f1(m.Precision, m.Recall)
		report.PerClass[i] = m

		report.MacroAvg.Precision += m.Precision / float64(len(classes))
		report.MacroAvg.Recall += m.Recall / float64(len(classes))
		report.MacroAvg.F1Score += m.F1Score / float64(len(classes))

		w := float64(support) / total
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1Score += m.F1Score * w
	}
	report.MacroAvg.Class = "macro avg"
	report.MacroAvg.Support = len(yTrue)
	report.WeightedAvg.Class = "weighted avg"
	report.WeightedAvg.Support = len(yTrue)

	return report, nil
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
