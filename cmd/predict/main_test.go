package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/cli"
	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/internal/testsupport/fixture"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

var modelPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "predict-cmd-test")
	if err != nil {
		panic(err)
	}
	path, err := fixture.TrainModel(dir, 41)
	if err != nil {
		os.RemoveAll(dir)
		panic(err)
	}
	modelPath = path

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestPredictRecord(t *testing.T) {
	record, err := json.Marshal(testsupport.Sample())
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-model", modelPath, "-record", string(record)}, nil, &stdout, &stderr)
	require.Equal(t, cli.ExitOK, code, stderr.String())

	var pred models.Prediction
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &pred))
	assert.True(t, models.ObesityLevel(pred.Label).IsValid())
	require.NotNil(t, pred.BMI)
	assert.InDelta(t, 24.39, *pred.BMI, 0.01)
}

func TestPredictRecordFromStdin(t *testing.T) {
	record, err := json.Marshal(testsupport.Sample())
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-model", modelPath, "-record", "-"}, bytes.NewReader(record), &stdout, &stderr)
	require.Equal(t, cli.ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"label"`)
}

func TestPredictFile(t *testing.T) {
	dir := t.TempDir()
	records, labels := testsupport.Generate(testsupport.Options{
		Seed:   6,
		Counts: map[models.ObesityLevel]int{models.NormalWeight: 3, models.ObesityTypeII: 3},
	})
	input := filepath.Join(dir, "batch.csv")
	require.NoError(t, os.WriteFile(input, []byte(testsupport.CSV(records, labels, models.DefaultRawTarget)), 0644))
	output := filepath.Join(dir, "out", "predictions.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-model", modelPath, "-input", input, "-output", output}, nil, &stdout, &stderr)
	require.Equal(t, cli.ExitOK, code, stderr.String())

	frame, err := dataset.ReadCSVFile(output)
	require.NoError(t, err)
	assert.Equal(t, 6, frame.Len())
	preds, err := frame.Labels("prediction")
	require.NoError(t, err)
	for _, p := range preds {
		assert.True(t, models.ObesityLevel(p).IsValid(), p)
	}
	assert.True(t, frame.Has("confidence"))
}

func TestPredictFailures(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-model", modelPath}, nil, &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)

	code = run([]string{"-model", filepath.Join(t.TempDir(), "none.json"), "-record", "{}"}, nil, &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, stderr.String(), "none.json")

	stderr.Reset()
	code = run([]string{"-model", modelPath, "-record", `{"Gender": "Female", "Shoe_size": 40}`}, nil, &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)
	assert.True(t, strings.Contains(stderr.String(), "Shoe_size"), stderr.String())
}

func TestPredictRecordRequiresEveryField(t *testing.T) {
	record, err := json.Marshal(testsupport.Sample())
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(record, &fields))
	delete(fields, models.ColAge)
	delete(fields, models.ColFCVC)
	partial, err := json.Marshal(fields)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-model", modelPath, "-record", string(partial)}, nil, &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "missing fields [Age, FCVC]")
}
