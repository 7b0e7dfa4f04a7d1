package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-ocr-throughput/internal/store"
	"go-ocr-throughput/pkg/utils"
)

const runsPrefix = "/api/v1/runs/"

var outputs = utils.NewOutputManager("outputs")

// SetOutputManager points file listing and downloads at a results directory
func SetOutputManager(om *utils.OutputManager) {
	outputs = om
}

// runSegments returns the path segments after /api/v1/runs/
func runSegments(path string) []string {
	if !strings.HasPrefix(path, runsPrefix) {
		return nil
	}
	return strings.Split(strings.Trim(path[len(runsPrefix):], "/"), "/")
}

// runIDFromPath extracts the run ID, the first segment after /api/v1/runs/
func runIDFromPath(path string) string {
	segs := runSegments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListRuns retrieves all recorded runs
// @Summary List runs
// @Description Get every recorded benchmark run, newest first
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]interface{} "Runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := store.ListRuns()
	if err != nil {
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun retrieves one run
// @Summary Get run
// @Description Get the spec, status and throughput of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} store.RunRecord "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func GetRun(w http.ResponseWriter, r *http.Request) {
	runID := runIDFromPath(r.URL.Path)
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	run, err := store.GetRun(runID)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to retrieve run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRunErrors retrieves the failed and skipped jobs of a run
// @Summary Get run errors
// @Description Retrieve every job that failed or was skipped during a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/errors [get]
func GetRunErrors(w http.ResponseWriter, r *http.Request) {
	runID := runIDFromPath(r.URL.Path)

	jobErrors, err := store.GetRunErrors(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve errors", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"errors": jobErrors,
		"count":  len(jobErrors),
	})
}

// GetRunUnits retrieves per-unit stats of a run
// @Summary Get run units
// @Description Retrieve what every goroutine unit or worker process did during a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run units"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/units [get]
func GetRunUnits(w http.ResponseWriter, r *http.Request) {
	runID := runIDFromPath(r.URL.Path)

	units, err := store.GetRunUnits(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve units", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"units":  units,
		"count":  len(units),
	})
}

// GetRunFiles lists the result files kept for a run
// @Summary List run files
// @Description List the recognized-text files kept for a run
// @Tags files
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run files"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/files [get]
func GetRunFiles(w http.ResponseWriter, r *http.Request) {
	runID := runIDFromPath(r.URL.Path)

	files, err := outputs.ListRunFiles(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve files", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"files":  files,
		"count":  len(files),
	})
}

// DownloadFile serves a kept result file
// @Summary Download file
// @Description Download a result file of a run
// @Tags files
// @Produce application/octet-stream
// @Param id path string true "Run ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 400 {object} map[string]interface{} "Invalid URL format"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /runs/{id}/files/{filename} [get]
func DownloadFile(w http.ResponseWriter, r *http.Request) {
	// URL format: /api/v1/runs/{id}/files/{filename}
	segs := runSegments(r.URL.Path)
	if len(segs) != 3 || segs[1] != "files" {
		http.Error(w, "Invalid URL format", http.StatusBadRequest)
		return
	}
	runID, fileName := segs[0], filepath.Base(segs[2])

	filePath := filepath.Join(outputs.RunDir(runID), fileName)
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, filePath)
}
