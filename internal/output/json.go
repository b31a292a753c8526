/*
PURPOSE:
  Mirrors committed benchmark records to a JSON Lines file (NDJSON).
  Optimized for machine parsing (jq, vecq).

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - JSON Lines is append-friendly, so unlike the CSV it is never rewritten.
  - Each line carries the run ID so several sweeps can share one file.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use goccy/go-json encoder (drop-in for encoding/json).
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("results.jsonl", runID)
  w.Write(record)
  w.Close()

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/daryltucker/packbench/internal/model"
)

type jsonLine struct {
	RunID     string    `json:"run_id"`
	Committed time.Time `json:"committed"`
	model.Record
}

// JSONWriter handles writing results to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	runID   string
	now     func() time.Time
	mu      sync.Mutex
}

// NewJSONWriter opens path for appending.
func NewJSONWriter(path, runID string) (*JSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
		runID:   runID,
		now:     time.Now,
	}, nil
}

// Write writes a single record as a JSON line.
func (jw *JSONWriter) Write(r model.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(jsonLine{RunID: jw.runID, Committed: jw.now().UTC(), Record: r})
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}
