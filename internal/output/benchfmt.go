/*
PURPOSE:
  Exports result records in the Go benchmark text format so two sweeps can
  be compared with benchstat.

REQUIREMENTS:
  Implementation-discovered:
  - Benchmark names cannot contain spaces; algorithm names are squeezed.
  - Execution time is reported as ns/op, profit as a custom unit.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (export)

ERROR HANDLING:
  - Returns the first write error from the benchfmt writer.

USAGE:
  output.WriteBenchfmt(os.Stdout, records)
*/

package output

import (
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/perf/benchfmt"

	"github.com/daryltucker/packbench/internal/model"
)

// WriteBenchfmt writes records in the Go benchmark format so benchstat can
// diff two sweeps. Each record becomes one iteration of
// Benchmark<Algorithm>/dataset=<n> with ns/op and profit values.
func WriteBenchfmt(w io.Writer, records []model.Record) error {
	bw := benchfmt.NewWriter(w)
	for _, r := range records {
		res := &benchfmt.Result{
			Config: []benchfmt.Config{
				{Key: "tool", Value: []byte("packbench"), File: true},
			},
			Name:  benchfmt.Name(benchName(r.Algorithm) + "/dataset=" + strconv.Itoa(r.Dataset)),
			Iters: 1,
			Values: []benchfmt.Value{
				{Value: r.ExecutionTimeMS * 1e6, Unit: "ns/op"},
				{Value: float64(r.Profit), Unit: "profit"},
			},
		}
		if err := bw.Write(res); err != nil {
			return err
		}
	}
	return nil
}

// benchName turns "Greedy Ratio" into "GreedyRatio"; benchmark names cannot hold spaces.
func benchName(algorithm string) string {
	var b strings.Builder
	for _, r := range algorithm {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Unknown"
	}
	return b.String()
}
