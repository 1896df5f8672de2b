package inference

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/internal/testsupport/fixture"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

var modelPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "inference-test")
	if err != nil {
		panic(err)
	}
	path, err := fixture.TrainModel(dir, 21)
	if err != nil {
		os.RemoveAll(dir)
		panic(err)
	}
	modelPath = path

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func loadService(t *testing.T) *Service {
	t.Helper()
	svc, err := Load(modelPath, models.DefaultRawTarget)
	require.NoError(t, err)
	return svc
}

func TestPredictSample(t *testing.T) {
	svc := loadService(t)

	pred, err := svc.Predict(testsupport.Sample())
	require.NoError(t, err)

	level := models.ObesityLevel(pred.Label)
	assert.True(t, level.IsValid(), "unexpected label %q", pred.Label)
	require.NotNil(t, pred.BMI)
	assert.InDelta(t, 24.39, *pred.BMI, 0.01)

	assert.Len(t, pred.Probabilities, 7)
	sum := 0.0
	for _, p := range pred.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, pred.Probabilities[pred.Label], pred.Confidence)
}

func TestPredictIsDeterministic(t *testing.T) {
	svc := loadService(t)
	a, err := svc.Predict(testsupport.Sample())
	require.NoError(t, err)
	b, err := svc.Predict(testsupport.Sample())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredictUnknownCategory(t *testing.T) {
	svc := loadService(t)
	q := testsupport.Sample()
	q.MTRANS = "Hoverboard"

	pred, err := svc.Predict(q)
	require.NoError(t, err)
	assert.True(t, models.ObesityLevel(pred.Label).IsValid())
}

func TestPredictZeroHeight(t *testing.T) {
	svc := loadService(t)
	q := testsupport.Sample()
	q.Height = 0

	pred, err := svc.Predict(q)
	require.NoError(t, err)
	assert.Nil(t, pred.BMI)
	assert.True(t, models.ObesityLevel(pred.Label).IsValid())
}

func TestPredictInvalidRecord(t *testing.T) {
	svc := loadService(t)
	q := testsupport.Sample()
	q.Gender = ""

	_, err := svc.Predict(q)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestPredictFrameSchemaMismatch(t *testing.T) {
	svc := loadService(t)
	records, labels := testsupport.Generate(testsupport.Options{
		Seed:   4,
		Counts: map[models.ObesityLevel]int{models.NormalWeight: 3},
	})

	raw, err := dataset.ReadCSV(strings.NewReader(testsupport.CSV(records, labels, models.DefaultRawTarget)))
	require.NoError(t, err)
	raw.Drop(models.ColMTRANS)

	_, err = svc.PredictFrame(raw)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), models.ColMTRANS)

	raw, err = dataset.ReadCSV(strings.NewReader(testsupport.CSV(records, labels, models.DefaultRawTarget)))
	require.NoError(t, err)
	require.NoError(t, raw.SetText("Shoe_size", []string{"40", "41", "42"}))
	_, err = svc.PredictFrame(raw)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestPredictFrameBatch(t *testing.T) {
	svc := loadService(t)
	records, labels := testsupport.Generate(testsupport.Options{
		Seed: 8,
		Counts: map[models.ObesityLevel]int{
			models.InsufficientWeight: 5,
			models.ObesityTypeIII:     5,
		},
	})

	raw, err := dataset.ReadCSV(strings.NewReader(testsupport.CSV(records, labels, models.DefaultRawTarget)))
	require.NoError(t, err)

	preds, err := svc.PredictFrame(raw)
	require.NoError(t, err)
	require.Len(t, preds, 10)

	correct := 0
	for i, p := range preds {
		if p.Label == labels[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 8)
}

func TestConcurrentPredict(t *testing.T) {
	svc := loadService(t)
	want, err := svc.Predict(testsupport.Sample())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Predict(testsupport.Sample())
			if err != nil {
				errs <- err
				return
			}
			if got.Label != want.Label {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLoadMissingBundle(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), models.DefaultRawTarget)
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestLoadCorruptBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format_version": 1, "forest": {`), 0644))
	_, err := Load(path, models.DefaultRawTarget)
	assert.ErrorIs(t, err, models.ErrSerializationFailure)
}
