/*
PURPOSE:
  Composes the line-oriented input the solver's interactive menu expects for one request.
  This is the only place that knows the menu codes.

REQUIREMENTS:
  User-specified:
  - Single run: predefined dataset, dataset number, algorithm, exit.
  - Comparison run: predefined dataset, dataset number, compare, dismiss pager, exit.

  Implementation-discovered:
  - The greedy entry prompts for a sub-variant right after it is selected.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Uses: internal/model

ERROR HANDLING:
  - Invalid requests (dataset < 1, unknown algorithm, bad variant) return an error.

IMPLEMENTATION RULES:
  - Pure function of the request and the Menu value. No I/O.

SELF-HEALING INSTRUCTIONS:
  - If the solver's menu is renumbered, change DefaultMenu and nothing else.
*/

package engine

import (
	"fmt"
	"strconv"

	"github.com/daryltucker/packbench/internal/model"
)

// Menu holds the solver's menu codes.
type Menu struct {
	PredefinedDataset string
	Compare           string
	Exit              string
	GreedyEntry       int // catalog index that prompts for a sub-variant
}

// DefaultMenu matches the reference solver build.
var DefaultMenu = Menu{
	PredefinedDataset: "2",
	Compare:           "6",
	Exit:              "8",
	GreedyEntry:       model.GreedyEntry,
}

// BuildScript returns the input lines for req using DefaultMenu.
func BuildScript(req model.Request) ([]string, error) {
	return DefaultMenu.Script(req)
}

// Script returns the input lines that drive the solver through req and exit.
func (m Menu) Script(req model.Request) ([]string, error) {
	if req.Dataset < 1 {
		return nil, fmt.Errorf("dataset %d: must be positive", req.Dataset)
	}
	ds := strconv.Itoa(req.Dataset)

	if req.Mode() == model.ModeCompare {
		return []string{m.PredefinedDataset, ds, m.Compare, "", m.Exit}, nil
	}

	if _, ok := model.AlgorithmName(req.Algorithm); !ok {
		return nil, fmt.Errorf("algorithm index %d is not in the catalog", req.Algorithm)
	}
	lines := []string{m.PredefinedDataset, ds, strconv.Itoa(req.Algorithm + 1)}
	if req.Algorithm == m.GreedyEntry {
		if req.Variant < 0 || req.Variant >= model.GreedyVariants {
			return nil, fmt.Errorf("greedy variant %d is outside 0-%d", req.Variant, model.GreedyVariants-1)
		}
		lines = append(lines, strconv.Itoa(req.Variant+1))
	}
	return append(lines, m.Exit), nil
}
