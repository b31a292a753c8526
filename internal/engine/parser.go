/*
PURPOSE:
  Extracts BenchmarkRecords from the solver's free-form stdout.

REQUIREMENTS:
  User-specified:
  - Single mode: "Execution time: <float> ms" and optional "Total profit: <int>".
  - Comparison mode: pipe-delimited rows after "Algorithm Performance Comparison:".
  - Malformed lines never abort parsing; they become warnings.

  Implementation-discovered:
  - The solver marks the best profit as "500 *"; some builds print "500*".
  - The table is framed by dashed separators and followed by a "* Indicates..." footer.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Produces: model.Record, model.Warning

ERROR HANDLING:
  - No errors. Everything unparsable is reported as a model.Warning.
*/

package engine

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/daryltucker/packbench/internal/model"
)

// ComparisonMarker introduces the comparison table.
const ComparisonMarker = "Algorithm Performance Comparison:"

var (
	execTimeRe = regexp.MustCompile(`Execution time: ([0-9]+(?:\.[0-9]+)?) ms`)
	profitRe   = regexp.MustCompile(`Total profit: ([0-9]+)`)
	leadingInt = regexp.MustCompile(`^[0-9]+`)

	// decimalMS is a plain non-negative decimal; ParseFloat alone would take NaN and Inf.
	decimalMS = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
)

// Parse dispatches on the request mode.
func Parse(raw *model.RawOutput, req model.Request) ([]model.Record, []model.Warning) {
	if req.Mode() == model.ModeCompare {
		return ParseComparison(raw.Stdout, req.Dataset)
	}
	return ParseSingle(raw.Stdout, req)
}

// ParseSingle extracts at most one record from a single-algorithm run.
func ParseSingle(stdout string, req model.Request) ([]model.Record, []model.Warning) {
	name := req.Label()
	m := execTimeRe.FindStringSubmatch(stdout)
	if m == nil {
		return nil, []model.Warning{{
			Dataset:   req.Dataset,
			Algorithm: name,
			Message:   "couldn't extract execution time",
		}}
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, []model.Warning{{Dataset: req.Dataset, Algorithm: name, Line: m[0], Message: "invalid execution time"}}
	}

	var profit int64
	if pm := profitRe.FindStringSubmatch(stdout); pm != nil {
		// An overflowing profit is the only way this fails; keep the record with profit 0.
		profit, _ = strconv.ParseInt(pm[1], 10, 64)
	}
	return []model.Record{{
		Dataset:         req.Dataset,
		Algorithm:       name,
		ExecutionTimeMS: ms,
		Profit:          profit,
	}}, nil
}

// ParseComparison extracts one record per table row.
func ParseComparison(stdout string, dataset int) ([]model.Record, []model.Warning) {
	var (
		records  []model.Record
		warnings []model.Warning
		inRegion bool
		inTable  bool
		seen     bool
	)

	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, ComparisonMarker) {
			inRegion, inTable, seen = true, false, true
			continue
		}
		if !inRegion {
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case isSeparator(trimmed):
			continue
		case !strings.Contains(trimmed, "|"):
			if inTable {
				inRegion = false
			}
			continue
		}
		inTable = true

		parts := strings.Split(trimmed, "|")
		if strings.TrimSpace(parts[0]) == "Algorithm" {
			continue
		}
		rec, msg := parseRow(parts, dataset)
		if msg != "" {
			warnings = append(warnings, model.Warning{
				Dataset:   dataset,
				Algorithm: strings.TrimSpace(parts[0]),
				Line:      trimmed,
				Message:   msg,
			})
			continue
		}
		records = append(records, rec)
	}

	if !seen {
		warnings = append(warnings, model.Warning{Dataset: dataset, Message: "comparison table not found"})
	}
	return records, warnings
}

func parseRow(parts []string, dataset int) (model.Record, string) {
	if len(parts) < 3 {
		return model.Record{}, "row has fewer than 3 fields"
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return model.Record{}, "row has no algorithm name"
	}
	field := strings.TrimSpace(parts[1])
	if !decimalMS.MatchString(field) {
		return model.Record{}, "couldn't parse execution time"
	}
	ms, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return model.Record{}, "couldn't parse execution time"
	}
	// Strip the best-profit annotation ("500 *", "480*").
	digits := leadingInt.FindString(strings.TrimSpace(parts[2]))
	if digits == "" {
		return model.Record{}, "couldn't parse profit"
	}
	profit, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return model.Record{}, "couldn't parse profit"
	}
	return model.Record{Dataset: dataset, Algorithm: name, ExecutionTimeMS: ms, Profit: profit}, ""
}

// isSeparator matches blank lines and rules like "-----" or "---+---".
func isSeparator(s string) bool {
	return strings.Trim(s, "-+=| \t") == ""
}
