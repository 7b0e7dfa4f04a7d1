package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OutputManager handles the per-run directories that hold kept results
type OutputManager struct {
	BaseOutputDir string
}

// OutputFile describes one file kept for a run
type OutputFile struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// RunDir returns the directory of a run without creating it
func (om *OutputManager) RunDir(runID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(runID))
}

// CreateRunOutputDir creates the directory holding a run's outputs
func (om *OutputManager) CreateRunOutputDir(runID string) (string, error) {
	runDir := om.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}
	return runDir, nil
}

// GetOutputFilePath generates a full path for an output file, creating the
// run directory if needed
func (om *OutputManager) GetOutputFilePath(runID, fileName string) (string, error) {
	runDir, err := om.CreateRunOutputDir(runID)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// ListRunFiles lists the files kept for a run, sorted by name. A run without
// an output directory has no files.
func (om *OutputManager) ListRunFiles(runID string) ([]OutputFile, error) {
	entries, err := os.ReadDir(om.RunDir(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return []OutputFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]OutputFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		size, err := om.GetFileSize(filepath.Join(om.RunDir(runID), e.Name()))
		if err != nil {
			continue
		}
		files = append(files, OutputFile{
			Name:        e.Name(),
			Type:        om.GetFileType(e.Name()),
			Size:        size,
			DownloadURL: om.GetDownloadURL(runID, e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// GetDownloadURL generates a download URL for a file
func (om *OutputManager) GetDownloadURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/runs/%s/files/%s", runID, filepath.Base(fileName))
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jsonl":
		return "jsonl"
	case ".json":
		return "json"
	case ".txt":
		return "text"
	default:
		return "unknown"
	}
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}
