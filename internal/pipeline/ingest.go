package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
)

// ------------------- Job Enumeration -------------------

// EnumerateJobs lists the files in dir whose extension matches ext
// (case-insensitive, e.g. ".jpg"). Order follows directory iteration.
// An unreadable directory is fatal; entries that cannot be inspected are
// skipped, and so are names that cannot be written as one batch file line.
func EnumerateJobs(dir, ext string) ([]model.Job, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, ecode.IO("open input dir", dir, err)
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil && len(entries) == 0 {
		return nil, ecode.IO("read input dir", dir, err)
	}

	jobs := make([]model.Job, 0, len(entries))
	for _, entry := range entries {
		if !matchesExtension(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !lineSafe(path) {
			logging.Entry().WithField(logging.JobKey, strconv.Quote(path)).
				Warn("Skipping image with a name that cannot be listed in a batch file")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // vanished or unreadable entry
		}
		if info.IsDir() {
			continue
		}
		jobs = append(jobs, model.Job(path))
	}
	return jobs, nil
}

func matchesExtension(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// lineSafe reports whether s survives a WriteBatch/ReadBatch round trip
func lineSafe(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsAny(s, "\n\r\x00")
}

// ------------------- Batch Files -------------------

// WriteBatch materializes a batch as a uniquely named file in dir, one job per
// line, and returns its path. Jobs that do not fit on one line are left out;
// the controller counts them as skipped when it reconciles worker stats.
func WriteBatch(dir string, batch model.Batch) (string, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("batch-%03d-*.txt", batch.Index))
	if err != nil {
		return "", ecode.IO("create batch file in", dir, err)
	}

	w := bufio.NewWriter(f)
	for _, job := range batch.Jobs {
		if !lineSafe(string(job)) {
			continue
		}
		w.WriteString(string(job))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", ecode.IO("write batch file", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", ecode.IO("close batch file", f.Name(), err)
	}
	return f.Name(), nil
}

// ReadBatch reads a batch file written by WriteBatch. Blank lines and lines
// that cannot be a path (invalid UTF-8, NUL bytes) are skipped.
func ReadBatch(path string) ([]model.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ecode.IO("open batch file", path, err)
	}
	defer f.Close()

	var jobs []model.Job
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !lineSafe(line) {
			continue
		}
		jobs = append(jobs, model.Job(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, ecode.IO("read batch file", path, err)
	}
	return jobs, nil
}
