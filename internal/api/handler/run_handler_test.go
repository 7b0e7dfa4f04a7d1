package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/internal/store"
	"go-ocr-throughput/pkg/utils"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, store.InitDB(filepath.Join(dir, "runs.db")))
	t.Cleanup(func() { _ = store.Close() })

	SetOutputManager(utils.NewOutputManager(filepath.Join(dir, "outputs")))

	spec := model.RunSpec{InputDir: "/in", Extension: ".jpg", Mode: model.ModeThreads, Concurrency: 2}
	require.NoError(t, store.SaveRun("run-a", spec, 3))
	require.NoError(t, store.CompleteRun("run-a", model.RunReport{
		TotalJobs: 3, Succeeded: 2, Failed: 1, Elapsed: time.Second, Rate: 3, RateDefined: true,
	}, model.StatusCompleted, nil))
	require.NoError(t, store.SaveJobErrors("run-a", []model.JobFailure{
		{Job: "/in/bad.jpg", Unit: 1, Stage: model.StageRecognize, Message: "bad"},
	}))
	require.NoError(t, store.SaveUnitStats("run-a", []model.UnitStats{{Unit: 0, Jobs: 2}, {Unit: 1, Jobs: 1, Failed: 1}}))
	return dir
}

func get(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListAndGetRun(t *testing.T) {
	setup(t)

	rec := get(t, ListRuns, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = get(t, GetRun, "/api/v1/runs/run-a")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.StatusCompleted, run.Status)
	require.NotNil(t, run.Rate)
	assert.InDelta(t, 3.0, *run.Rate, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, GetRun, "/api/v1/runs/missing").Code)
}

func TestRunErrorsAndUnits(t *testing.T) {
	setup(t)

	rec := get(t, GetRunErrors, "/api/v1/runs/run-a/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	var errs struct {
		RunID  string                 `json:"run_id"`
		Errors []store.JobErrorRecord `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errs))
	assert.Equal(t, "run-a", errs.RunID)
	require.Len(t, errs.Errors, 1)
	assert.Equal(t, "/in/bad.jpg", errs.Errors[0].Job)

	rec = get(t, GetRunUnits, "/api/v1/runs/run-a/units")
	require.Equal(t, http.StatusOK, rec.Code)
	var units struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	assert.Equal(t, 2, units.Count)
}

func TestRunFilesAndDownload(t *testing.T) {
	dir := setup(t)

	rec := get(t, GetRunFiles, "/api/v1/runs/run-a/files")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	runDir := filepath.Join(dir, "outputs", "run-a")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "results.jsonl"), []byte(`{"path":"a.jpg"}`+"\n"), 0644))

	rec = get(t, GetRunFiles, "/api/v1/runs/run-a/files")
	require.Equal(t, http.StatusOK, rec.Code)
	var files struct {
		Files []utils.OutputFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "jsonl", files.Files[0].Type)
	assert.Equal(t, "/api/v1/runs/run-a/files/results.jsonl", files.Files[0].DownloadURL)

	rec = get(t, DownloadFile, "/api/v1/runs/run-a/files/results.jsonl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.jpg")

	assert.Equal(t, http.StatusNotFound, get(t, DownloadFile, "/api/v1/runs/run-a/files/nope.jsonl").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, DownloadFile, "/api/v1/runs/run-a/other").Code)
}
