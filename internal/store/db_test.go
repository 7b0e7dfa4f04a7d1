package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ocr-throughput/internal/model"
)

func openTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "data", "runs.db")))
	t.Cleanup(func() { _ = Close() })
}

func testSpec() model.RunSpec {
	return model.RunSpec{
		InputDir:    "/images",
		Extension:   ".jpg",
		Mode:        model.ModeProcesses,
		Concurrency: 3,
		Engine:      model.EngineSpec{Backend: "simulated", Language: "en"},
	}
}

func TestRunLifecycle(t *testing.T) {
	openTestDB(t)
	assert.True(t, Enabled())

	require.NoError(t, SaveRun("run-1", testSpec(), 12))

	r, err := GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, r.Status)
	assert.Equal(t, model.ModeProcesses, r.Mode)
	assert.Equal(t, 12, r.TotalJobs)
	assert.Equal(t, "simulated", r.Spec.Engine.Backend)
	assert.Nil(t, r.Rate)

	report := model.RunReport{
		TotalJobs:   12,
		Succeeded:   11,
		Failed:      1,
		Elapsed:     1500 * time.Millisecond,
		Rate:        8,
		RateDefined: true,
	}
	require.NoError(t, CompleteRun("run-1", report, model.StatusFailed, errors.New("worker 1 exited with status 3")))

	r, err = GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Equal(t, int64(11), r.Succeeded)
	assert.Equal(t, int64(1500), r.ElapsedMS)
	require.NotNil(t, r.Rate)
	assert.InDelta(t, 8.0, *r.Rate, 1e-9)
	assert.Contains(t, r.Error, "status 3")

	require.NoError(t, UpdateRunStatus("run-1", model.StatusCompleted))
	r, err = GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)
}

func TestGetRunNotFound(t *testing.T) {
	openTestDB(t)
	_, err := GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	openTestDB(t)

	runs, err := ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, SaveRun("old", testSpec(), 1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, SaveRun("new", testSpec(), 2))

	runs, err = ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestJobErrorsAndUnits(t *testing.T) {
	openTestDB(t)
	require.NoError(t, SaveRun("run-2", testSpec(), 3))

	require.NoError(t, SaveJobErrors("run-2", nil))
	require.NoError(t, SaveJobErrors("run-2", []model.JobFailure{
		{Job: "/images/a.jpg", Unit: 0, Stage: model.StageRecognize, Message: "bad image"},
		{Job: "/images/b.jpg", Unit: -1, Stage: model.StageSkipped, Message: "not processed"},
	}))

	errs, err := GetRunErrors("run-2")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "/images/a.jpg", errs[0].Job)
	assert.Equal(t, model.StageSkipped, errs[1].Stage)
	assert.Equal(t, -1, errs[1].Unit)

	require.NoError(t, SaveUnitStats("run-2", []model.UnitStats{
		{Unit: 1, Jobs: 1, Inits: 1, InitDuration: 2 * time.Second},
		{Unit: 0, Jobs: 2, Failed: 1, Inits: 1, BusyDuration: 300 * time.Millisecond},
	}))

	units, err := GetRunUnits("run-2")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 0, units[0].Unit)
	assert.Equal(t, int64(300), units[0].BusyDurationMS)
	assert.Equal(t, int64(2000), units[1].InitDurationMS)

	other, err := GetRunUnits("run-other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCloseDisables(t *testing.T) {
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "runs.db")))
	require.NoError(t, Close())
	assert.False(t, Enabled())
	assert.NoError(t, Close())
}
