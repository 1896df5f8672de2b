package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/cli"
	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
)

func trainArgs(dir, data string, extra ...string) []string {
	return append([]string{
		"-data", data,
		"-model-out", filepath.Join(dir, "model.json"),
		"-reports-dir", filepath.Join(dir, "reports"),
		"-run-db", filepath.Join(dir, "runs.db"),
		"-trees", "10",
	}, extra...)
}

func TestRunSucceeds(t *testing.T) {
	dir := t.TempDir()
	data := testsupport.WriteDataset(t, dir, testsupport.Options{Seed: 17, LabelNoise: 0.05})

	var stdout, stderr bytes.Buffer
	code := run(trainArgs(dir, data, "-processed-out", filepath.Join(dir, "processed.csv")), &stdout, &stderr)
	require.Equal(t, cli.ExitOK, code, stderr.String())

	assert.Contains(t, stdout.String(), "accuracy")
	for _, name := range []string{"model.json", "reports/metrics.json", "reports/classification_report.txt", "processed.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	store, err := runstore.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSucceeded, runs[0].Status)
}

func TestRunGateFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	data := testsupport.WriteDataset(t, dir, testsupport.Options{Seed: 19, LabelNoise: 0.4})

	var stdout, stderr bytes.Buffer
	code := run(trainArgs(dir, data, "-min-accuracy", "0.99", "-no-registry"), &stdout, &stderr)
	assert.Equal(t, cli.ExitGateFailed, code)
	assert.Contains(t, stderr.String(), "Accuracy gate failed")

	_, err := os.Stat(filepath.Join(dir, "model.json"))
	assert.NoError(t, err, "artifacts are kept when the gate fails")
	_, err = os.Stat(filepath.Join(dir, "runs.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	code := run(trainArgs(dir, filepath.Join(dir, "missing.csv")), &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, stderr.String(), "missing.csv")

	code = run([]string{"-no-such-flag"}, &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)

	code = run(trainArgs(dir, filepath.Join(dir, "missing.csv"), "-test-size", "1.5"), &stdout, &stderr)
	assert.Equal(t, cli.ExitFailure, code)
}
