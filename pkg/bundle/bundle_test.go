package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/features"
	"github.com/mimir-aip/obesity-tc/pkg/forest"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

func fitBundle(t *testing.T) (*Bundle, [][]float64) {
	t.Helper()
	counts := map[models.ObesityLevel]int{}
	for _, l := range models.SeverityOrder {
		counts[l] = 12
	}
	records, labels := testsupport.Generate(testsupport.Options{Seed: 3, Counts: counts})

	raw := dataset.FromQuestionnaires(records)
	require.NoError(t, raw.SetText(models.DefaultRawTarget, labels))
	f, err := dataset.NewPreprocessor(models.DefaultRawTarget).Apply(raw)
	require.NoError(t, err)
	schema, err := dataset.InferSchema(f, models.TargetColumn)
	require.NoError(t, err)
	require.NoError(t, dataset.Coerce(f, schema))

	ct := features.NewColumnTransformer(schema, false)
	X, err := ct.FitTransform(f)
	require.NoError(t, err)
	y, err := f.Labels(models.TargetColumn)
	require.NoError(t, err)

	rf := forest.New(forest.Options{NumTrees: 5, Seed: 42})
	require.NoError(t, rf.Fit(X, y, ct.FeatureNames()))

	return New("run-1", *schema, ct, BalancerInfo{Method: "smote", Neighbors: 5, Seed: 42}, rf), X
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b, X := fitBundle(t)
	path := filepath.Join(t.TempDir(), "models", "bundle.json")

	require.NoError(t, Save(path, b))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, b.Schema, loaded.Schema)
	assert.Equal(t, b.Classes, loaded.Classes)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Len(t, loaded.Classes, 7)

	for _, x := range X[:20] {
		want, err := b.Forest.PredictProba(x)
		require.NoError(t, err)
		got, err := loaded.Forest.PredictProba(x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestLoadCorrupt(t *testing.T) {
	b, _ := fitBundle(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, Save(path, b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0644))

	_, err = Load(path)
	assert.ErrorIs(t, err, models.ErrSerializationFailure)
}

func TestLoadInconsistent(t *testing.T) {
	b, _ := fitBundle(t)
	b.Schema.Numeric = b.Schema.Numeric[1:]
	path := filepath.Join(t.TempDir(), "bundle.json")

	err := Save(path, b)
	require.ErrorIs(t, err, models.ErrSerializationFailure)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "invalid bundle must not be written")
}
