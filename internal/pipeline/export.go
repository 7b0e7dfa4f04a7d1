package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/engine"
)

// Result file names inside a run's output directory
const (
	ResultsFile       = "results.jsonl"
	resultsFileFormat = "results-%03d.jsonl"
)

// ShardResultsFile names the results file written by worker process index
func ShardResultsFile(index int) string {
	return fmt.Sprintf(resultsFileFormat, index)
}

// ResultSink receives successful recognition outcomes. Implementations must
// be safe for concurrent use.
type ResultSink interface {
	Put(engine.Outcome) error
}

// ExportRecord is one line of a results file
type ExportRecord struct {
	Path       string    `json:"path"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	DurationMS int64     `json:"duration_ms"`
	ExportedAt time.Time `json:"exported_at"`
}

// JSONLSink appends one JSON record per outcome to a file
type JSONLSink struct {
	Path string

	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewJSONLSink creates (or truncates) path and its parent directory
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ecode.IO("create results directory", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ecode.IO("create results file", path, err)
	}
	buf := bufio.NewWriter(f)
	return &JSONLSink{Path: path, file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Put writes one outcome
func (s *JSONLSink) Put(out engine.Outcome) error {
	rec := ExportRecord{
		Path:       out.Path,
		Text:       out.Text,
		Confidence: out.Confidence,
		DurationMS: out.Duration.Milliseconds(),
		ExportedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("results sink %s is closed", s.Path)
	}
	if err := s.enc.Encode(rec); err != nil {
		return ecode.IO("write result", s.Path, err)
	}
	s.count++
	return nil
}

// Count returns the number of records written so far
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	s.enc = nil

	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return ecode.IO("flush results", s.Path, flushErr)
	}
	if closeErr != nil {
		return ecode.IO("close results", s.Path, closeErr)
	}
	return nil
}
