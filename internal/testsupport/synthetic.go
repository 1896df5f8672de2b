// Package testsupport generates deterministic synthetic questionnaire data
// for tests.
package testsupport

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// DatasetRows is the size of the reference questionnaire dataset
const DatasetRows = 2111

// ReferenceCounts is the class distribution of the reference dataset.
var ReferenceCounts = map[models.ObesityLevel]int{
	models.ObesityTypeI:       351,
	models.ObesityTypeIII:     324,
	models.ObesityTypeII:      297,
	models.OverweightLevelI:   290,
	models.OverweightLevelII:  290,
	models.NormalWeight:       287,
	models.InsufficientWeight: 272,
}

var bmiRanges = map[models.ObesityLevel][2]float64{
	models.InsufficientWeight: {15.0, 18.4},
	models.NormalWeight:       {18.6, 24.8},
	models.OverweightLevelI:   {25.1, 27.3},
	models.OverweightLevelII:  {27.6, 29.8},
	models.ObesityTypeI:       {30.2, 34.8},
	models.ObesityTypeII:      {35.2, 39.8},
	models.ObesityTypeIII:     {40.2, 50.0},
}

// Options controls the generator
type Options struct {
	Seed int64
	// Counts per class; nil uses ReferenceCounts
	Counts map[models.ObesityLevel]int
	// LabelNoise is the fraction of rows whose label is replaced at random
	LabelNoise float64
}

// Generate returns questionnaires and their labels. Label order follows
// models.SeverityOrder blocks, so callers must not rely on shuffling.
func Generate(opts Options) ([]models.Questionnaire, []string) {
	counts := opts.Counts
	if counts == nil {
		counts = ReferenceCounts
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var records []models.Questionnaire
	var labels []string
	for _, level := range models.SeverityOrder {
		n := counts[level]
		r := bmiRanges[level]
		for i := 0; i < n; i++ {
			q := randomQuestionnaire(rng)
			bmi := r[0] + rng.Float64()*(r[1]-r[0])
			q.Weight = round2(bmi * q.Height * q.Height)
			label := string(level)
			if opts.LabelNoise > 0 && rng.Float64() < opts.LabelNoise {
				label = string(models.SeverityOrder[rng.Intn(len(models.SeverityOrder))])
			}
			records = append(records, q)
			labels = append(labels, label)
		}
	}
	return records, labels
}

func randomQuestionnaire(rng *rand.Rand) models.Questionnaire {
	pick := func(values ...string) string { return values[rng.Intn(len(values))] }
	return models.Questionnaire{
		Gender:        pick("Female", "Male"),
		Age:           round2(14 + rng.Float64()*47),
		Height:        round2(1.45 + rng.Float64()*0.53),
		FamilyHistory: pick("yes", "no"),
		FAVC:          pick("yes", "no"),
		FCVC:          noisyCounter(rng, 1, 3),
		NCP:           noisyCounter(rng, 1, 4),
		CAEC:          pick("no", "Sometimes", "Frequently", "Always"),
		SMOKE:         pick("yes", "no"),
		CH2O:          noisyCounter(rng, 1, 3),
		SCC:           pick("yes", "no"),
		FAF:           noisyCounter(rng, 0, 3),
		TUE:           noisyCounter(rng, 0, 2),
		CALC:          pick("no", "Sometimes", "Frequently"),
		MTRANS:        pick("Public_Transportation", "Automobile", "Walking", "Motorbike", "Bike"),
	}
}

// noisyCounter returns an integer in [lo, hi] with decimal noise, as the
// source survey data has.
func noisyCounter(rng *rand.Rand, lo, hi int) float64 {
	base := float64(lo + rng.Intn(hi-lo+1))
	noise := (rng.Float64() - 0.5) * 0.8
	return math.Max(float64(lo), math.Min(float64(hi), round2(base+noise)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CSV renders records and labels as a raw table with the label column
// named target. Some text cells carry stray whitespace.
func CSV(records []models.Questionnaire, labels []string, target string) string {
	var b strings.Builder
	header := append(append([]string{}, models.InputColumns...), target)
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for i, q := range records {
		num := q.Numeric()
		text := q.Text()
		cells := make([]string, 0, len(header))
		for _, col := range models.InputColumns {
			if v, ok := num[col]; ok {
				cells = append(cells, strconv.FormatFloat(v, 'f', -1, 64))
				continue
			}
			s := text[col]
			if i%17 == 0 {
				s = " " + s + " "
			}
			cells = append(cells, s)
		}
		if labels != nil {
			cells = append(cells, labels[i])
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteDataset writes a generated raw table to dir and returns its path
func WriteDataset(t testing.TB, dir string, opts Options) string {
	t.Helper()
	records, labels := Generate(opts)
	path := filepath.Join(dir, fmt.Sprintf("obesity_%d.csv", opts.Seed))
	if err := os.WriteFile(path, []byte(CSV(records, labels, models.DefaultRawTarget)), 0644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	return path
}

// Sample returns a valid single questionnaire: a 21 year old woman, 1.62 m, 64 kg.
func Sample() models.Questionnaire {
	return models.Questionnaire{
		Gender: "Female", Age: 21, Height: 1.62, Weight: 64,
		FamilyHistory: "yes", FAVC: "no", FCVC: 2, NCP: 3, CAEC: "Sometimes",
		SMOKE: "no", CH2O: 2, SCC: "no", FAF: 0, TUE: 1, CALC: "no",
		MTRANS: "Public_Transportation",
	}
}
