package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/storage/badger"
)

type fakeRunner struct {
	busy  atomic.Bool
	calls atomic.Int32
	done  chan struct{}
}

func (f *fakeRunner) RunBatch(ctx context.Context) (*models.BatchReport, error) {
	f.calls.Add(1)
	defer close(f.done)
	return &models.BatchReport{}, nil
}

func (f *fakeRunner) IsRunning() bool { return f.busy.Load() }

func newJobHandler(t *testing.T) (*JobHandler, interfaces.StorageManager, *fakeRunner) {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	runner := &fakeRunner{done: make(chan struct{})}
	return NewJobHandler(context.Background(), storage, runner, nil, logger), storage, runner
}

func TestCreateJobHandler(t *testing.T) {
	h, storage, _ := newJobHandler(t)
	require.NoError(t, storage.ArticleStore().SaveArticle(context.Background(), &models.Article{
		ID: "a1", Title: "Jean", Price: 10, Photos: []string{"https://x/1.jpg"},
	}))

	runAt := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)
	body := `{"article_id":"a1","run_at":"2030-01-02T15:04:05Z"}`
	rec := httptest.NewRecorder()
	h.CreateJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var job models.PublicationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "a1", job.ArticleID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.True(t, runAt.Equal(job.RunAt))

	stored, err := storage.JobQueue().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", stored.ArticleID)
}

func TestCreateJobHandler_Errors(t *testing.T) {
	h, _, _ := newJobHandler(t)

	cases := map[string]struct {
		body string
		code int
	}{
		"malformed":       {`{`, http.StatusBadRequest},
		"missing article": {`{"article_id":"  "}`, http.StatusBadRequest},
		"unknown article": {`{"article_id":"ghost"}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CreateJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(tc.body)))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestListAndGetJob(t *testing.T) {
	h, storage, _ := newJobHandler(t)
	job := models.NewPublicationJob("a1", time.Time{})
	require.NoError(t, storage.JobQueue().Enqueue(context.Background(), job))

	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs  []models.PublicationJob `json:"jobs"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = httptest.NewRecorder()
	h.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunBatchHandler(t *testing.T) {
	h, _, runner := newJobHandler(t)

	runner.busy.Store(true)
	rec := httptest.NewRecorder()
	h.RunBatchHandler(rec, httptest.NewRequest(http.MethodPost, "/api/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	runner.busy.Store(false)
	rec = httptest.NewRecorder()
	h.RunBatchHandler(rec, httptest.NewRequest(http.MethodPost, "/api/run", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not started")
	}
	assert.Equal(t, int32(1), runner.calls.Load())

	rec = httptest.NewRecorder()
	h.RunBatchHandler(rec, httptest.NewRequest(http.MethodGet, "/api/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	h := NewStatusHandler(nil)
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "stopped", body["scheduler"])
}
