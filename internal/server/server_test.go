package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
	"github.com/daryltucker/packbench/internal/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "r.csv")
	recs := []model.Record{
		{Dataset: 1, Algorithm: "Dynamic Programming", ExecutionTimeMS: 12, Profit: 500},
		{Dataset: 1, Algorithm: "Greedy Ratio", ExecutionTimeMS: 1.5, Profit: 480},
		{Dataset: 2, Algorithm: "Greedy Ratio", ExecutionTimeMS: 2, Profit: 300},
	}
	if _, err := output.NewCSVStore(path).Persist(recs); err != nil {
		t.Fatal(err)
	}
	return path
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestRecords(t *testing.T) {
	srv := New(fixture(t), output.Filter{})

	tests := []struct {
		url  string
		want int
	}{
		{"/api/records", 3},
		{"/api/records?dataset=2", 1},
		{"/api/records?algorithm=greedy", 2},
		{"/api/records?dataset=1&algorithm=dynamic", 1},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w := get(t, srv, tt.url)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body)
			}
			var recs []model.Record
			if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
				t.Fatal(err)
			}
			if len(recs) != tt.want {
				t.Errorf("got %d records, want %d", len(recs), tt.want)
			}
		})
	}
}

func TestDefaultFilter(t *testing.T) {
	srv := New(fixture(t), output.Filter{Datasets: []int{2}})
	var recs []model.Record
	json.Unmarshal(get(t, srv, "/api/records").Body.Bytes(), &recs)
	if len(recs) != 1 || recs[0].Dataset != 2 {
		t.Errorf("default filter not applied: %+v", recs)
	}
}

func TestSummary(t *testing.T) {
	w := get(t, New(fixture(t), output.Filter{}), "/api/summary")
	var s report.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Records != 3 || s.Fastest != "Greedy Ratio" {
		t.Errorf("summary = %+v", s)
	}
}

func TestPage(t *testing.T) {
	w := get(t, New(fixture(t), output.Filter{}), "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("status %d, content type %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "Key Findings") {
		t.Error("page has no findings section")
	}
}

func TestErrors(t *testing.T) {
	srv := New(fixture(t), output.Filter{})
	if w := get(t, srv, "/api/records?dataset=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad dataset: status %d", w.Code)
	}
	missing := New(filepath.Join(t.TempDir(), "none.csv"), output.Filter{})
	if w := get(t, missing, "/api/summary"); w.Code != http.StatusInternalServerError {
		t.Errorf("missing file: status %d", w.Code)
	}
	if w := get(t, srv, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz: status %d", w.Code)
	}
}

func TestParseDatasets(t *testing.T) {
	got, err := ParseDatasets("1, 3,,10")
	if err != nil || len(got) != 3 || got[2] != 10 {
		t.Errorf("ParseDatasets = %v, %v", got, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := ParseDatasets(bad); err == nil {
			t.Errorf("ParseDatasets(%q) should fail", bad)
		}
	}
}
