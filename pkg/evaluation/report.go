package evaluation

import (
	"fmt"
	"strings"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// ClassificationReport renders per-class precision, recall, F1 and support
// followed by accuracy, macro and weighted averages, in fixed-width columns
func ClassificationReport(r *models.MetricsReport, digits int) string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		if len(c) > width {
			width = len(c)
		}
	}
	if digits > width {
		width = digits
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")

	row := func(name string, m models.ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.*f %9.*f %9.*f %9d\n",
			width, name, digits, m.Precision, digits, m.Recall, digits, m.F1Score, m.Support)
	}
	for _, m := range r.PerClass {
		row(m.Class, m)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, r.Accuracy, r.TestSize)
	row(r.MacroAvg.Class, r.MacroAvg)
	row(r.WeightedAvg.Class, r.WeightedAvg)
	return b.String()
}

// ConfusionTable renders the confusion grid with abbreviated headers
func ConfusionTable(r *models.MetricsReport) string {
	width := 0
	for _, c := range r.Classes {
		if len(c) > width {
			width = len(c)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s", width, "")
	for j := range r.Classes {
		fmt.Fprintf(&b, " %6s", fmt.Sprintf("[%d]", j))
	}
	b.WriteByte('\n')
	for i, c := range r.Classes {
		fmt.Fprintf(&b, "%*s", width, c)
		for _, v := range r.ConfusionMatrix[i] {
			fmt.Fprintf(&b, " %6d", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
