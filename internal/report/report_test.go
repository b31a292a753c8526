package report

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
)

var records = []model.Record{
	{Dataset: 1, Algorithm: "Dynamic Programming", ExecutionTimeMS: 10, Profit: 500},
	{Dataset: 1, Algorithm: "Greedy Ratio", ExecutionTimeMS: 1, Profit: 480},
	{Dataset: 2, Algorithm: "Dynamic Programming", ExecutionTimeMS: 30, Profit: 700},
	{Dataset: 2, Algorithm: "Greedy Ratio", ExecutionTimeMS: 0, Profit: 600},
}

func TestSummarize(t *testing.T) {
	s := Summarize(records)
	if s.Records != 4 || len(s.Datasets) != 2 || s.Datasets[0] != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Fastest != "Greedy Ratio" || s.Slowest != "Dynamic Programming" || s.BestProfit != "Dynamic Programming" {
		t.Errorf("findings = %q / %q / %q", s.Fastest, s.Slowest, s.BestProfit)
	}

	dp := s.Algorithms[0]
	if dp.Name != "Dynamic Programming" || dp.Runs != 2 || dp.MeanTimeMS != 20 || dp.MeanProfit != 600 {
		t.Errorf("dp stats = %+v", dp)
	}
	greedy := s.Algorithms[1]
	// The zero-time record is left out of efficiency.
	if greedy.Efficiency != 480 {
		t.Errorf("greedy efficiency = %v", greedy.Efficiency)
	}
	if got := s.Times["Dynamic Programming"][2]; got != 30 {
		t.Errorf("pivot cell = %v", got)
	}
	if math.IsNaN(greedy.MeanTimeMS) {
		t.Error("mean time is NaN")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Records != 0 || len(s.Algorithms) != 0 || s.Fastest != "" {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, append(records, model.Record{Dataset: 3, Algorithm: "<script>", ExecutionTimeMS: 5, Profit: 1}), "Report"); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	for _, want := range []string{
		"<strong>Fastest Algorithm:</strong> Greedy Ratio",
		"<td>Dynamic Programming</td>",
		"<th>3</th>",
		"&lt;script&gt;",
		"<svg",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("algorithm names are not escaped")
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "performance_data_20261017_120000.csv")
	if _, err := output.NewCSVStore(csvPath).Persist(records); err != nil {
		t.Fatal(err)
	}

	path, err := Generate(csvPath, "", output.Filter{Algorithm: "greedy"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := filepath.Join(dir, "visualization_performance_data_20261017_120000", FileName); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "<td>Dynamic Programming</td>") {
		t.Error("filter not applied")
	}
}

func TestGenerateMissingFile(t *testing.T) {
	if _, err := Generate(filepath.Join(t.TempDir(), "none.csv"), "", output.Filter{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatch(t *testing.T) {
	DebounceDelay = 20 * time.Millisecond
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "r.csv")
	store := output.NewCSVStore(csvPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fired := make(chan struct{}, 10)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, csvPath, func() error {
			fired <- struct{}{}
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if _, err := store.Persist(records); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("callback not called after persist")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
