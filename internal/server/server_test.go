package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/observability/metrics"
	"github.com/seqforge/seqnet/internal/registry"
	"github.com/seqforge/seqnet/internal/storage/file"
	"github.com/seqforge/seqnet/internal/training"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	logger := newTestLogger()
	store, err := file.NewFileStore(&file.FileConfig{Directory: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { store.Close() })

	reg, err := registry.NewRegistry(store, logger)
	require.NoError(t, err)
	return reg
}

// newTestServer wires a server with a running job processor and a file-backed
// registry. The processor is stopped when the test finishes.
func newTestServer(t *testing.T, m *metrics.Metrics) *Server {
	t.Helper()

	logger := newTestLogger()
	factory := datasets.NewFactory(logger)
	reg := newTestRegistry(t)
	processor := training.NewProcessor(&training.Config{Concurrency: 2, QueueSize: 16}, factory, reg, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Start(ctx)
	}()
	t.Cleanup(func() {
		processor.Stop()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			t.Error("processor did not stop in time")
		}
		cancel()
	})

	config := DefaultConfig()
	config.EnableMetrics = m != nil
	handlers := NewHandlers(factory, processor, reg, logger, "test")
	server, err := NewServer(config, handlers, m, logger)
	require.NoError(t, err)
	return server
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) *errors.ErrorResponse {
	t.Helper()

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	require.NotNil(t, resp.Error)
	return &resp
}

// waitForJobHTTP polls the job endpoint until the job reaches a terminal
// status.
func waitForJobHTTP(t *testing.T, s *Server, jobID string) models.Job {
	t.Helper()

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		rec := doRequest(s, http.MethodGet, "/api/v1/jobs/"+jobID, nil)
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

		var job models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

		switch job.Status {
		case constants.JobStatusCompleted, constants.JobStatusFailed, constants.JobStatusCancelled:
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("job %s did not finish", jobID)
	return models.Job{}
}

func serverTrainSpec() models.TrainingSpec {
	return models.TrainingSpec{
		Name: "sine-classifier",
		Dataset: models.DatasetSpec{
			Type: constants.DatasetTypeNoisySines,
			Seed: 42,
			Parameters: map[string]interface{}{
				"points":    10,
				"sequences": 4,
			},
		},
		Model: models.ModelSpec{
			Type: constants.ModelTypeRNN,
			Rho:  10,
			Loss: constants.LossNegativeLogLikelihood,
			Seed: 7,
			Layers: []models.LayerSpec{
				{Type: constants.LayerTypeLinear, In: 1, Out: 6},
				{Type: constants.LayerTypeSigmoid},
				{Type: constants.LayerTypeLinear, In: 6, Out: 2},
				{Type: constants.LayerTypeLogSoftMax},
			},
		},
		Optimizer: models.OptimizerSpec{
			Type:          constants.OptimizerSGD,
			StepSize:      0.05,
			BatchSize:     8,
			MaxIterations: 40,
			Tolerance:     -1,
		},
		Epochs: 1,
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.ContentTypeJSON, rec.Header().Get(constants.HeaderContentType))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "jobs")
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, constants.AppName, body["name"])
	assert.Equal(t, "test", body["version"])
}

func TestRequestIDEcho(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(constants.HeaderRequestID, "my-request")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, "my-request", rec.Header().Get(constants.HeaderRequestID))
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListGenerators(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/generators", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 4, body["count"])

	generators, ok := body["generators"].([]interface{})
	require.True(t, ok)

	types := make([]string, 0, len(generators))
	for _, raw := range generators {
		entry, ok := raw.(map[string]interface{})
		require.True(t, ok)
		types = append(types, entry["type"].(string))
		assert.NotEmpty(t, entry["name"])
		assert.NotEmpty(t, entry["description"])
	}
	assert.Contains(t, types, constants.DatasetTypeNoisySines)
	assert.Contains(t, types, constants.DatasetTypeDistractedSequence)
}

func TestGenerateDatasetJSON(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/datasets/generate", map[string]interface{}{
		"type": constants.DatasetTypeNoisySines,
		"seed": 42,
		"parameters": map[string]interface{}{
			"points":    5,
			"sequences": 2,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, constants.ContentTypeJSON, rec.Header().Get(constants.HeaderContentType))

	var doc datasets.ExportDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, constants.DatasetTypeNoisySines, doc.Info.Type)
	assert.Equal(t, 4, doc.Info.Columns)
	assert.Equal(t, 5, doc.Info.Steps)
	require.Len(t, doc.Sequences, 4)
	assert.Len(t, doc.Sequences[0].Values, 5)
	require.NotNil(t, doc.Sequences[0].Label)
	assert.Equal(t, 0, *doc.Sequences[0].Label)
	require.NotNil(t, doc.Sequences[3].Label)
	assert.Equal(t, 1, *doc.Sequences[3].Label)
}

func TestGenerateDatasetCSV(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/datasets/generate", map[string]interface{}{
		"type":   constants.DatasetTypeNoisySines,
		"seed":   42,
		"format": "csv",
		"parameters": map[string]interface{}{
			"points":    5,
			"sequences": 2,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, constants.ContentTypeCSV, rec.Header().Get(constants.HeaderContentType))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "noisy_sines.csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)

	// Header plus 4 sequences of 5 steps.
	require.Len(t, records, 21)
	assert.Equal(t, []string{"sequence", "step", "x0", "y0", "label"}, records[0])
	assert.Equal(t, "0", records[1][0])
	assert.Equal(t, "0", records[1][1])
}

func TestGenerateDatasetValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{
			name:     "missing type",
			body:     map[string]interface{}{"parameters": map[string]interface{}{}},
			wantCode: errors.CodeMissingField,
		},
		{
			name:     "unknown type",
			body:     map[string]interface{}{"type": "stock_prices"},
			wantCode: errors.CodeUnsupportedType,
		},
		{
			name:     "unknown format",
			body:     map[string]interface{}{"type": constants.DatasetTypeNoisySines, "format": "parquet"},
			wantCode: errors.CodeInvalidFormat,
		},
		{
			name: "bad parameters",
			body: map[string]interface{}{
				"type":       constants.DatasetTypeNoisySines,
				"parameters": map[string]interface{}{"points": -5},
			},
			wantCode: errors.CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/v1/datasets/generate", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", rec.Body.String())

			resp := decodeErrorResponse(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "/api/v1/datasets/generate", resp.Path)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestGenerateDatasetBadJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/generate",
		strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, errors.CodeInvalidInput, resp.Error.Code)
}

func TestSubmitAndPollJob(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/jobs", models.Job{
		Type: constants.JobTypeTrain,
		Spec: serverTrainSpec(),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, "body: %s", rec.Body.String())

	var submitted models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.ID)
	assert.Equal(t, constants.JobStatusPending, submitted.Status)

	job := waitForJobHTTP(t, s, submitted.ID)
	require.Equal(t, constants.JobStatusCompleted, job.Status, "error: %s", job.Error)
	require.NotNil(t, job.Result)
	assert.Contains(t, job.Result, "metrics")
	assert.Contains(t, job.Result, "dataset")
}

func TestSubmitJobValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/jobs", models.Job{
		Type: "migrate",
		Spec: serverTrainSpec(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, errors.CodeUnsupportedType, resp.Error.Code)
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, nil)

	spec := models.TrainingSpec{
		Dataset: models.DatasetSpec{
			Type: constants.DatasetTypeNoisySines,
			Parameters: map[string]interface{}{
				"points":    4,
				"sequences": 2,
			},
		},
	}
	for i := 0; i < 2; i++ {
		rec := doRequest(s, http.MethodPost, "/api/v1/jobs", models.Job{
			Type: constants.JobTypeGenerate,
			Spec: spec,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := doRequest(s, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/jobs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, errors.CodeJobNotFound, resp.Error.Code)
	assert.Equal(t, "/api/v1/jobs/nope", resp.Path)
}

func TestModelEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["count"])

	// Train with a save format so the registry gets an entry.
	spec := serverTrainSpec()
	spec.SaveFormat = constants.FormatJSON
	rec = doRequest(s, http.MethodPost, "/api/v1/jobs", models.Job{
		Type: constants.JobTypeTrain,
		Spec: spec,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	job := waitForJobHTTP(t, s, submitted.ID)
	require.Equal(t, constants.JobStatusCompleted, job.Status, "error: %s", job.Error)

	modelID, ok := job.Result["model_id"].(string)
	require.True(t, ok, "result: %v", job.Result)

	rec = doRequest(s, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = doRequest(s, http.MethodGet, "/api/v1/models/"+modelID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "sine-classifier", info.Name)
	assert.Len(t, info.Versions, 1)

	rec = doRequest(s, http.MethodDelete, "/api/v1/models/"+modelID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/models/"+modelID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeModelNotFound, decodeErrorResponse(t, rec).Error.Code)
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, errors.CodeInvalidInput, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no route")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodDelete, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, nil)
	s.Router().HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}).Methods("GET")

	rec := doRequest(s, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRequestSizeLimit(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/generate",
		strings.NewReader("{}"))
	req.ContentLength = constants.MaxRequestSize + 1
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "REQUEST_TOO_LARGE")
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := metrics.New(nil, newTestLogger())
	require.NoError(t, err)
	s := newTestServer(t, m)

	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, constants.DefaultMetricsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seqnet_server_http_requests_total")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "bad read timeout", mutate: func(c *Config) { c.ReadTimeout = 0 }, wantErr: true},
		{name: "bad shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeOutOfRange))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	config := DefaultConfig()
	config.Port = -1

	_, err := NewServer(config, nil, nil, newTestLogger())
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, constants.DefaultHost, config.Host)
	assert.Equal(t, constants.DefaultPort, config.Port)
	assert.True(t, config.EnableCORS)
	assert.Equal(t, fmt.Sprintf("%s:%d", constants.DefaultHost, constants.DefaultPort), config.Address())
}
