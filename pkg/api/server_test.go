package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/internal/testsupport/fixture"
	"github.com/mimir-aip/obesity-tc/pkg/inference"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/metrics"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
	"github.com/mimir-aip/obesity-tc/pkg/scheduler"
)

var modelPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "api-test")
	if err != nil {
		panic(err)
	}
	path, err := fixture.TrainModel(dir, 31)
	if err != nil {
		os.RemoveAll(dir)
		panic(err)
	}
	modelPath = path

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func setupTestServer(t *testing.T, withModel bool) (*Server, *runstore.SQLiteStore) {
	t.Helper()
	store, err := runstore.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := NewServer(Options{
		Addr:      ":0",
		Logger:    logger.Nop(),
		Metrics:   metrics.New(),
		Runs:      store,
		Scheduler: scheduler.NewService(logger.Nop(), nil),
	})
	if withModel {
		svc, err := inference.Load(modelPath, models.DefaultRawTarget)
		require.NoError(t, err)
		s.SetModel(svc)
	}
	return s, store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	s, _ := setupTestServer(t, false)

	rec := do(t, s, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, "GET", "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, "POST", "/api/predict", models.PredictionRequest{Record: ptr(testsupport.Sample())})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc, err := inference.Load(modelPath, models.DefaultRawTarget)
	require.NoError(t, err)
	s.SetModel(svc)
	rec = do(t, s, "GET", "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictEndpoint(t *testing.T) {
	s, _ := setupTestServer(t, true)

	rec := do(t, s, "POST", "/api/predict", models.PredictionRequest{Record: ptr(testsupport.Sample())})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pred models.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.True(t, models.ObesityLevel(pred.Label).IsValid())
	require.NotNil(t, pred.BMI)
	assert.InDelta(t, 24.39, *pred.BMI, 0.01)
	assert.Len(t, pred.Probabilities, 7)

	metricsBody := do(t, s, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, metricsBody, `obesity_predictions_total{class="`+pred.Label+`"} 1`)
}

func TestPredictRejectsBadInput(t *testing.T) {
	s, _ := setupTestServer(t, true)

	rec := do(t, s, "POST", "/api/predict", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/predict", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/predict", `{"record": {"Gender": "Female", "Shoe_size": 40}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q := testsupport.Sample()
	q.Age = -1
	rec = do(t, s, "POST", "/api/predict", models.PredictionRequest{Record: &q})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "GET", "/api/predict", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = do(t, s, "DELETE", "/api/runs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = do(t, s, "GET", "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	metricsBody := do(t, s, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, metricsBody, `obesity_prediction_errors_total{reason="bad_request"} 1`)
	assert.Contains(t, metricsBody, `obesity_prediction_errors_total{reason="schema_mismatch"} 3`)
}

func TestPredictRejectsIncompleteRecord(t *testing.T) {
	s, _ := setupTestServer(t, true)

	textOnly := `{"record": {"Gender": "Female", "family_history": "yes", "FAVC": "no", "CAEC": "Sometimes",
		"SMOKE": "no", "SCC": "no", "CALC": "no", "MTRANS": "Walking"}}`
	rec := do(t, s, "POST", "/api/predict", textOnly)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	for _, col := range []string{models.ColAge, models.ColHeight, models.ColWeight, models.ColFCVC,
		models.ColNCP, models.ColCH2O, models.ColFAF, models.ColTUE} {
		assert.Contains(t, rec.Body.String(), col)
	}

	full, err := json.Marshal(testsupport.Sample())
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(full, &fields))
	fields[models.ColAge] = nil
	rec = do(t, s, "POST", "/api/predict", map[string]any{"record": fields})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ColAge)

	metricsBody := do(t, s, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, metricsBody, `obesity_prediction_errors_total{reason="schema_mismatch"} 2`)
	assert.NotContains(t, metricsBody, `obesity_predictions_total{`)
}

type modelBody struct {
	RunID    string              `json:"run_id"`
	Schema   models.Schema       `json:"schema"`
	Classes  []string            `json:"classes"`
	Latest   *models.TrainingRun `json:"latest_successful_run"`
	IsLatest *bool               `json:"is_latest"`
}

func TestGetModel(t *testing.T) {
	s, store := setupTestServer(t, true)

	rec := do(t, s, "GET", "/api/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body modelBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RunID)
	assert.Len(t, body.Classes, 7)
	assert.Equal(t, models.TargetColumn, body.Schema.Target)
	assert.Contains(t, body.Schema.Numeric, models.ColBMI)
	assert.Nil(t, body.Latest, "empty registry")

	now := time.Now().UTC()
	require.NoError(t, store.SaveRun(context.Background(), &models.TrainingRun{
		ID: body.RunID, Status: models.RunStatusSucceeded, State: models.StatePersisted, StartedAt: now.Add(-time.Minute),
	}))
	rec = do(t, s, "GET", "/api/model", nil)
	body = modelBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Latest)
	assert.Equal(t, body.RunID, body.Latest.ID)
	require.NotNil(t, body.IsLatest)
	assert.True(t, *body.IsLatest)

	require.NoError(t, store.SaveRun(context.Background(), &models.TrainingRun{
		ID: "newer", Status: models.RunStatusSucceeded, State: models.StatePersisted, StartedAt: now,
	}))
	rec = do(t, s, "GET", "/api/model", nil)
	body = modelBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Latest)
	assert.Equal(t, "newer", body.Latest.ID)
	assert.False(t, *body.IsLatest)
}

func TestRunEndpoints(t *testing.T) {
	s, store := setupTestServer(t, false)
	now := time.Now().UTC()
	require.NoError(t, store.SaveRun(context.Background(), &models.TrainingRun{
		ID:        "run-1",
		Status:    models.RunStatusSucceeded,
		State:     models.StatePersisted,
		Accuracy:  0.9,
		StartedAt: now,
	}))

	rec := do(t, s, "GET", "/api/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs  []models.TrainingRun `json:"runs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = do(t, s, "GET", "/api/runs/run-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "GET", "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshJobEndpoints(t *testing.T) {
	s, _ := setupTestServer(t, false)
	dir := t.TempDir()
	source := testsupport.WriteDataset(t, dir, testsupport.Options{
		Seed:   3,
		Counts: map[models.ObesityLevel]int{models.NormalWeight: 4},
	})
	job, err := s.scheduler.Create(&models.RefreshJobCreateRequest{
		Name:       "refresh",
		Schedule:   "@every 1h",
		SourcePath: source,
		OutputPath: filepath.Join(dir, "processed.csv"),
		Enabled:    true,
	})
	require.NoError(t, err)

	rec := do(t, s, "GET", "/api/refresh/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.ID)

	rec = do(t, s, "POST", "/api/refresh/jobs/"+job.ID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exec models.RefreshExecution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, models.RefreshRebuilt, exec.Outcome)

	rec = do(t, s, "POST", "/api/refresh/jobs/unknown/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func ptr[T any](v T) *T {
	return &v
}
