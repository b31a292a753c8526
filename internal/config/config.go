/*
PURPOSE:
  Defines the configuration structure and loading logic for packbench.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of the solver path, datasets, mode and timeouts.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (PACKBENCH_...).
  - Comparison runs need a larger timeout than single runs.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default config files fall back to defaults.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults mirror the original collector (datasets 1-10, 10m / 30m timeouts).
  - The runner treats the loaded Config as read-only.

USAGE:
  cfg, err := config.Load("packbench.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig() and Validate().

RELATED FILES:
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/packbench/internal/model"
)

// Prompt is a solver prompt the driver answers if it shows up on stdout.
type Prompt struct {
	Match string `yaml:"match"`
	Reply string `yaml:"reply"`
}

// Config represents the full configuration for packbench.
type Config struct {
	Program        string   `yaml:"program"`
	ProgramArgs    []string `yaml:"program_args"`
	WorkDir        string   `yaml:"work_dir"`
	MakeExecutable bool     `yaml:"make_executable"`

	Datasets      []int      `yaml:"datasets"`
	Mode          model.Mode `yaml:"mode"`
	Algorithms    []int      `yaml:"algorithms"` // 0-based catalog indices, single mode only
	GreedyVariant int        `yaml:"greedy_variant"`

	Timeout        time.Duration `yaml:"timeout"`
	CompareTimeout time.Duration `yaml:"compare_timeout"`
	PromptTimeout  time.Duration `yaml:"prompt_timeout"`
	Prompts        []Prompt      `yaml:"prompts"`
	TimeoutRetries int           `yaml:"timeout_retries"`

	// MaxRetries and RetryDelay govern persistence retries.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	Parallelism int `yaml:"parallelism"`

	OutputDir   string `yaml:"output_dir"`
	OutputFile  string `yaml:"output_file"` // empty means performance_data_<timestamp>.csv
	JSONFile    string `yaml:"json_file"`
	MetricsFile string `yaml:"metrics_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	algos := make([]int, len(model.Catalog()))
	for i := range algos {
		algos[i] = i
	}
	return &Config{
		Program:        "./build/DA2425_PROJ2",
		MakeExecutable: true,
		Datasets:       []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		Mode:           model.ModeCompare,
		Algorithms:     algos,
		Timeout:        10 * time.Minute,
		CompareTimeout: 30 * time.Minute,
		PromptTimeout:  time.Minute,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		Parallelism:    1,
		OutputDir:      "performance_results",
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
// Environment overrides are applied last in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		defaults := []string{"packbench.yaml", "packbench.yml", ".packbench.yaml"}
		for _, name := range defaults {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PACKBENCH_PROGRAM"); v != "" {
		c.Program = v
	}
	if v := os.Getenv("PACKBENCH_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
}

// Validate checks the configuration for values the sweep cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Program == "" {
		errs = append(errs, errors.New("program path is empty"))
	}
	if len(c.Datasets) == 0 {
		errs = append(errs, errors.New("no datasets configured"))
	}
	for _, d := range c.Datasets {
		if d < 1 {
			errs = append(errs, fmt.Errorf("dataset %d: must be a positive integer", d))
		}
	}
	switch c.Mode {
	case model.ModeCompare:
	case model.ModeSingle:
		if len(c.Algorithms) == 0 {
			errs = append(errs, errors.New("single mode needs at least one algorithm"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q (want %q or %q)", c.Mode, model.ModeSingle, model.ModeCompare))
	}
	for _, a := range c.Algorithms {
		if _, ok := model.AlgorithmName(a); !ok {
			errs = append(errs, fmt.Errorf("algorithm index %d is outside the catalog (0-%d)", a, len(model.Catalog())-1))
		}
	}
	if c.GreedyVariant < 0 || c.GreedyVariant >= model.GreedyVariants {
		errs = append(errs, fmt.Errorf("greedy_variant %d is outside 0-%d", c.GreedyVariant, model.GreedyVariants-1))
	}
	if c.Timeout <= 0 || c.CompareTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if len(c.Prompts) > 0 && c.PromptTimeout <= 0 {
		errs = append(errs, errors.New("prompt_timeout must be positive when prompts are configured"))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism %d: must be at least 1", c.Parallelism))
	}
	if c.MaxRetries < 0 || c.TimeoutRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	return errors.Join(errs...)
}

// TimeoutFor returns the per-invocation budget for a mode.
func (c *Config) TimeoutFor(m model.Mode) time.Duration {
	if m == model.ModeCompare {
		return c.CompareTimeout
	}
	return c.Timeout
}
