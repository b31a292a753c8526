/*
PURPOSE:
  Turns a persisted result file into a static HTML report: key findings,
  per-algorithm means, and a dataset x algorithm time table.

REQUIREMENTS:
  User-specified:
  - Report fastest, slowest and best-profit algorithm.
  - Optional dataset filter; greedy-only comparison via algorithm filter.

  Implementation-discovered:
  - Charts are inline SVG so the report is a single self-contained file.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (report), internal/server
  - Consumes: output.Load

ERROR HANDLING:
  - Returns wrapped errors on load/write failure.

RELATED FILES:
  - internal/report/report.html.tmpl
  - internal/report/watch.go
*/

package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
)

// FileName is the report written by Generate.
const FileName = "performance_report.html"

// AlgorithmStats aggregates every record of one algorithm.
type AlgorithmStats struct {
	Name       string  `json:"name"`
	Runs       int     `json:"runs"`
	MeanTimeMS float64 `json:"mean_time_ms"`
	MeanProfit float64 `json:"mean_profit"`
	// Efficiency is mean profit per millisecond over records with a non-zero time.
	Efficiency float64 `json:"efficiency"`
}

// Summary is the data behind a report.
type Summary struct {
	Records    int              `json:"records"`
	Datasets   []int            `json:"datasets"`
	Algorithms []AlgorithmStats `json:"algorithms"`
	Fastest    string           `json:"fastest"`
	Slowest    string           `json:"slowest"`
	BestProfit string           `json:"best_profit"`
	// Times maps algorithm -> dataset -> mean execution time (ms).
	Times map[string]map[int]float64 `json:"times"`
}

// Summarize aggregates records. Algorithms keep first-seen order.
func Summarize(records []model.Record) Summary {
	type acc struct {
		runs         int
		time, profit float64
		effSum       float64
		effN         int
	}
	var order []string
	accs := map[string]*acc{}
	cells := map[string]map[int][]float64{}
	datasets := map[int]bool{}

	for _, r := range records {
		a, ok := accs[r.Algorithm]
		if !ok {
			a = &acc{}
			accs[r.Algorithm] = a
			order = append(order, r.Algorithm)
			cells[r.Algorithm] = map[int][]float64{}
		}
		a.runs++
		a.time += r.ExecutionTimeMS
		a.profit += float64(r.Profit)
		if r.ExecutionTimeMS > 0 {
			a.effSum += float64(r.Profit) / r.ExecutionTimeMS
			a.effN++
		}
		cells[r.Algorithm][r.Dataset] = append(cells[r.Algorithm][r.Dataset], r.ExecutionTimeMS)
		datasets[r.Dataset] = true
	}

	s := Summary{Records: len(records), Times: map[string]map[int]float64{}}
	for ds := range datasets {
		s.Datasets = append(s.Datasets, ds)
	}
	sort.Ints(s.Datasets)

	fastest, slowest, best := math.Inf(1), math.Inf(-1), math.Inf(-1)
	for _, name := range order {
		a := accs[name]
		st := AlgorithmStats{
			Name:       name,
			Runs:       a.runs,
			MeanTimeMS: a.time / float64(a.runs),
			MeanProfit: a.profit / float64(a.runs),
		}
		if a.effN > 0 {
			st.Efficiency = a.effSum / float64(a.effN)
		}
		s.Algorithms = append(s.Algorithms, st)

		if st.MeanTimeMS < fastest {
			fastest, s.Fastest = st.MeanTimeMS, name
		}
		if st.MeanTimeMS > slowest {
			slowest, s.Slowest = st.MeanTimeMS, name
		}
		if st.MeanProfit > best {
			best, s.BestProfit = st.MeanProfit, name
		}

		s.Times[name] = map[int]float64{}
		for ds, ts := range cells[name] {
			var sum float64
			for _, v := range ts {
				sum += v
			}
			s.Times[name][ds] = sum / float64(len(ts))
		}
	}
	return s
}

//go:embed report.html.tmpl
var pageSource string

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms":   func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"num":  func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"cell": cell,
}).Parse(pageSource))

func cell(times map[string]map[int]float64, algo string, ds int) string {
	v, ok := times[algo][ds]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

// Bar is one horizontal bar of an inline SVG chart.
type Bar struct {
	Label string
	Value string
	Y     int
	Width float64
}

const barMaxWidth = 480.0

func bars(stats []AlgorithmStats, value func(AlgorithmStats) float64, format func(float64) string) []Bar {
	max := 0.0
	for _, st := range stats {
		max = math.Max(max, value(st))
	}
	out := make([]Bar, len(stats))
	for i, st := range stats {
		w := 0.0
		if max > 0 {
			w = value(st) / max * barMaxWidth
		}
		out[i] = Bar{Label: st.Name, Value: format(value(st)), Y: i * 24, Width: w}
	}
	return out
}

type pageData struct {
	Title      string
	Summary    Summary
	TimeBars   []Bar
	ProfitBars []Bar
	Height     int
}

// WriteHTML renders the report for records to w.
func WriteHTML(w io.Writer, records []model.Record, title string) error {
	s := Summarize(records)
	data := pageData{
		Title:   title,
		Summary: s,
		TimeBars: bars(s.Algorithms, func(a AlgorithmStats) float64 { return a.MeanTimeMS },
			func(v float64) string { return fmt.Sprintf("%.3f ms", v) }),
		ProfitBars: bars(s.Algorithms, func(a AlgorithmStats) float64 { return a.MeanProfit },
			func(v float64) string { return fmt.Sprintf("%.1f", v) }),
		Height: len(s.Algorithms)*24 + 4,
	}
	return page.Execute(w, data)
}

// DefaultDir is where Generate writes when no directory is given:
// visualization_<csv stem> next to the CSV.
func DefaultDir(csvPath string) string {
	stem := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	return filepath.Join(filepath.Dir(csvPath), "visualization_"+stem)
}

// Generate loads csvPath through filter and writes the report into outDir.
func Generate(csvPath, outDir string, filter output.Filter) (string, error) {
	records, err := output.Load(csvPath, filter)
	if err != nil {
		return "", err
	}
	if outDir == "" {
		outDir = DefaultDir(csvPath)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", outDir, err)
	}

	path := filepath.Join(outDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteHTML(f, records, "Truck Packing Algorithm Performance Report"); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	output.Logger.Info("Report written", "path", path, "records", len(records))
	return path, nil
}
