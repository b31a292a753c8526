/*
PURPOSE:
  Defines the core data structures used throughout packbench.
  These models describe a unit of benchmark work, what the solver printed for it,
  and the records extracted from that output.

REQUIREMENTS:
  User-specified:
  - Record dataset, algorithm name, execution time (ms) and profit.
  - Fixed algorithm catalog whose order matches the solver's menu.

  Implementation-discovered:
  - The greedy menu entry prompts for a sub-variant; the record label follows the variant.
  - Need JSON tags for the JSONL mirror and the HTTP API.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/output, internal/report, internal/server
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Records are values; never mutate one after the parser creates it.

USAGE:
  req := model.CompareRequest(3)
  rec := model.Record{Dataset: 3, Algorithm: "Dynamic Programming", ExecutionTimeMS: 12.5, Profit: 500}

SELF-HEALING INSTRUCTIONS:
  - If the solver menu gains an algorithm, append it to catalog and bump nothing else.

RELATED FILES:
  - internal/engine/script.go
  - internal/output/csv.go

MAINTENANCE:
  - Update when the solver adds metrics to its output.
*/

package model

import (
	"fmt"
	"time"
)

// catalog is ordered: position i is selected with menu code i+1.
var catalog = [...]string{
	"Exhaustive Search",
	"Dynamic Programming",
	"Backtracking",
	"Greedy Ratio",
	"Greedy Profit",
	"Greedy Maximum",
	"Integer LP",
}

const (
	// GreedyEntry is the catalog index of the menu entry that prompts for a greedy sub-variant.
	GreedyEntry = 3
	// GreedyVariants is how many sub-variants the greedy prompt offers.
	GreedyVariants = 3

	// CompareAll is the Algorithm sentinel for the all-algorithms comparison mode.
	CompareAll = -1
)

// Catalog returns a copy of the algorithm display names in menu order.
func Catalog() []string {
	out := make([]string, len(catalog))
	copy(out, catalog[:])
	return out
}

// AlgorithmName returns the display name for a 0-based catalog index.
func AlgorithmName(index int) (string, bool) {
	if index < 0 || index >= len(catalog) {
		return "", false
	}
	return catalog[index], true
}

// Mode distinguishes single-algorithm runs from the comparison mode.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeCompare Mode = "compare"
)

// Request identifies one unit of work. Construct with NewRequest or CompareRequest.
type Request struct {
	Dataset   int `json:"dataset"`
	Algorithm int `json:"algorithm"` // 0-based catalog index or CompareAll
	Variant   int `json:"variant"`   // greedy sub-variant, 0-based; ignored for other algorithms
}

// NewRequest builds a single-algorithm request.
func NewRequest(dataset, algorithm, variant int) Request {
	return Request{Dataset: dataset, Algorithm: algorithm, Variant: variant}
}

// CompareRequest builds an all-algorithms comparison request.
func CompareRequest(dataset int) Request {
	return Request{Dataset: dataset, Algorithm: CompareAll}
}

func (r Request) Mode() Mode {
	if r.Algorithm == CompareAll {
		return ModeCompare
	}
	return ModeSingle
}

// Label is the algorithm name a single-mode record is filed under.
// Greedy requests are labelled after the selected sub-variant.
func (r Request) Label() string {
	if r.Mode() == ModeCompare {
		return "comparison"
	}
	idx := r.Algorithm
	if idx == GreedyEntry {
		idx += r.Variant
	}
	name, ok := AlgorithmName(idx)
	if !ok {
		return fmt.Sprintf("algorithm #%d", r.Algorithm+1)
	}
	return name
}

func (r Request) String() string {
	return fmt.Sprintf("dataset=%d %s", r.Dataset, r.Label())
}

// Status is the terminal outcome of one process invocation.
type Status int

const (
	StatusSuccess Status = iota
	StatusNonZeroExit
	StatusTimeout
	StatusSpawnFailure
	// StatusCanceled means the caller gave up (e.g. SIGINT) before any deadline.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNonZeroExit:
		return "non_zero_exit"
	case StatusTimeout:
		return "timeout"
	case StatusSpawnFailure:
		return "spawn_failure"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// RawOutput is everything captured from one invocation of the external program.
type RawOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int // -1 when the process never exited on its own
	Status   Status
	Duration time.Duration
}

// Record is the unit of persisted data.
type Record struct {
	Dataset         int     `json:"dataset"`
	Algorithm       string  `json:"algorithm"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
	Profit          int64   `json:"profit"`
}

// Warning reports output that could not be turned into a Record.
type Warning struct {
	Dataset   int    `json:"dataset"`
	Algorithm string `json:"algorithm,omitempty"`
	Line      string `json:"line,omitempty"`
	Message   string `json:"message"`
}

func (w Warning) String() string {
	s := fmt.Sprintf("dataset %d", w.Dataset)
	if w.Algorithm != "" {
		s += ", " + w.Algorithm
	}
	s += ": " + w.Message
	if w.Line != "" {
		s += fmt.Sprintf(" (line %q)", w.Line)
	}
	return s
}

// UnitState tracks a unit of work through the sweep.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitRunning   UnitState = "running"
	UnitCompleted UnitState = "completed"
	UnitFailed    UnitState = "failed"
)

// Unit is the sweep's bookkeeping for one request.
type Unit struct {
	Request  Request
	State    UnitState
	Attempts int
	Records  []Record
	Warnings []Warning
	Err      error
}
