/*
PURPOSE:
  Persists the accumulated ResultSet to a CSV file and reads it back.
  Every Persist leaves a complete, valid table on disk.

REQUIREMENTS:
  User-specified:
  - Output to CSV with header dataset,algorithm,execution_time_ms,profit.
  - A crash mid-sweep must lose at most the in-flight unit of work.

  Implementation-discovered:
  - The original collector rewrote the whole file after each dataset, so the
    file is overwritten with the growing set instead of appended to.
  - Overwriting in place can leave a half-written row; write a temp file and rename.
  - Report, server and export all need the same loader with an optional filter.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Persist), internal/report, internal/server, internal/cli (Load)
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns wrapped errors (pkg/errors) on create/write/sync/rename failure.
  - Temp file is removed on any failure.
  - Load rejects files whose header does not match.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush, check writer error, fsync and close before rename.
  - Temp file lives in the target directory so rename stays atomic.

USAGE:
  s := output.NewCSVStore(output.TimestampedPath(dir, time.Now()))
  path, err := s.Persist(records)
  recs, err := output.Load(path, output.Filter{Datasets: []int{1, 2}})

RELATED FILES:
  - internal/model/types.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update Header and recordRow/parseRow together.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/daryltucker/packbench/internal/model"
)

// Header is the fixed column layout of a persisted result file.
var Header = []string{"dataset", "algorithm", "execution_time_ms", "profit"}

// TimestampedPath returns the default result file path for a run started at t.
func TimestampedPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("performance_data_%s.csv", t.Format("20060102_150405")))
}

// PersistError means the result file could not be written even after retries.
type PersistError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist results to %s failed after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// CSVStore overwrites one result file with the full ResultSet on every Persist.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore creates a store for path. Nothing is written until Persist.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file the store writes.
func (s *CSVStore) Path() string {
	return s.path
}

// Persist atomically replaces the file with records.
// It is safe for concurrent use; writes are serialized.
func (s *CSVStore) Persist(records []model.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return "", errors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := WriteCSV(tmp, records); err != nil {
		return "", errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return "", errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return "", errors.Wrapf(err, "rename %s to %s", tmpName, s.path)
	}
	committed = true
	return s.path, nil
}

// WriteCSV writes the header and one row per record to w.
func WriteCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(recordRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordRow(r model.Record) []string {
	return []string{
		strconv.Itoa(r.Dataset),
		r.Algorithm,
		strconv.FormatFloat(r.ExecutionTimeMS, 'f', -1, 64),
		strconv.FormatInt(r.Profit, 10),
	}
}

// Filter narrows the records returned by Load. Zero value keeps everything.
type Filter struct {
	Datasets  []int
	Algorithm string // case-insensitive substring
}

// Match reports whether r passes the filter.
func (f Filter) Match(r model.Record) bool {
	if len(f.Datasets) > 0 {
		found := false
		for _, d := range f.Datasets {
			if d == r.Dataset {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Algorithm != "" && !strings.Contains(strings.ToLower(r.Algorithm), strings.ToLower(f.Algorithm)) {
		return false
	}
	return true
}

// Load reads a persisted result file and returns the records passing filter.
func Load(path string, filter Filter) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open results")
	}
	defer f.Close()
	return ReadCSV(f, filter)
}

// ReadCSV parses a result table from r.
func ReadCSV(r io.Reader, filter Filter) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("results file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i, col := range Header {
		if strings.TrimSpace(head[i]) != col {
			return nil, errors.Errorf("unexpected header %v, want %v", head, Header)
		}
	}

	var out []model.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		rec, err := parseRow(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func parseRow(row []string) (model.Record, error) {
	ds, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return model.Record{}, errors.Wrap(err, "dataset")
	}
	ms, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return model.Record{}, errors.Wrap(err, "execution_time_ms")
	}
	profit, err := strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64)
	if err != nil {
		return model.Record{}, errors.Wrap(err, "profit")
	}
	return model.Record{Dataset: ds, Algorithm: row[1], ExecutionTimeMS: ms, Profit: profit}, nil
}
