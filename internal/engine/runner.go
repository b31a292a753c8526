/*
PURPOSE:
  High-level runner that orchestrates the benchmarking process.
  Loops through datasets -> (algorithms | comparison) and executes the solver.

REQUIREMENTS:
  User-specified:
  - Run the configured sweep over all datasets.
  - Persist the whole result set after every unit of work.
  - A failed dataset/algorithm never aborts the sweep.

  Implementation-discovered:
  - A missing solver binary is fatal; check once before the first unit.
  - Optional parallelism still commits units in plan order, so the file on
    disk always holds a prefix of the plan.
  - Persist failures retry with backoff; giving up aborts the run.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/engine (script, driver, parser), internal/output

ERROR HANDLING:
  - Timeouts and parse warnings are logged and absorbed (resilience).
  - SpawnError and PersistError propagate.

IMPLEMENTATION RULES:
  - Datasets ascending; one invocation per dataset in comparison mode.
  - Runner keeps its own copy of the config.

USAGE:
  summary, err := engine.Run(ctx, cfg)

RELATED FILES:
  - internal/engine/driver.go
  - internal/output/csv.go

MAINTENANCE:
  - Update Plan() when new sweep modes are added.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/packbench/internal/config"
	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
)

// Invoker runs the external program. *Driver implements it.
type Invoker interface {
	Check() error
	Run(ctx context.Context, inv Invocation) (*model.RawOutput, error)
}

// Store persists the full result set. *output.CSVStore implements it.
type Store interface {
	Persist(records []model.Record) (string, error)
	Path() string
}

// RecordSink receives every committed record. *output.JSONWriter implements it.
type RecordSink interface {
	Write(r model.Record) error
}

// Summary describes a finished (or aborted) sweep.
type Summary struct {
	RunID    string
	Path     string
	Units    []model.Unit
	Records  []model.Record
	Warnings int
	Failed   int
}

// Runner is the sweep controller.
type Runner struct {
	cfg     config.Config
	invoker Invoker
	store   Store
	sink    RecordSink
	menu    Menu
	metrics *Metrics
	runID   string
	sleep   func(time.Duration)

	mu      sync.Mutex
	results []model.Record
	done    []bool
	next    int
	path    string
	abort   error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSink mirrors committed records to s.
func WithSink(s RecordSink) Option { return func(r *Runner) { r.sink = s } }

// WithMenu overrides the solver menu codes.
func WithMenu(m Menu) Option { return func(r *Runner) { r.menu = m } }

// WithRunID sets the run identifier used in logs and the JSONL mirror.
func WithRunID(id string) Option { return func(r *Runner) { r.runID = id } }

// WithSleep replaces time.Sleep for persist backoff.
func WithSleep(f func(time.Duration)) Option { return func(r *Runner) { r.sleep = f } }

// NewRunner creates a Runner. cfg is copied; later changes to it are not seen.
func NewRunner(cfg *config.Config, inv Invoker, store Store, opts ...Option) *Runner {
	c := *cfg
	c.Datasets = append([]int(nil), cfg.Datasets...)
	c.Algorithms = append([]int(nil), cfg.Algorithms...)
	c.Prompts = append([]config.Prompt(nil), cfg.Prompts...)
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}

	r := &Runner{
		cfg:     c,
		invoker: inv,
		store:   store,
		menu:    DefaultMenu,
		metrics: NewMetrics(),
		runID:   uuid.NewString(),
		sleep:   time.Sleep,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Metrics returns the runner's metrics.
func (r *Runner) Metrics() *Metrics { return r.metrics }

// Plan returns the units of work in execution order.
func (r *Runner) Plan() []model.Request {
	datasets := append([]int(nil), r.cfg.Datasets...)
	sort.Ints(datasets)

	var plan []model.Request
	for i, ds := range datasets {
		if i > 0 && ds == datasets[i-1] {
			continue
		}
		if r.cfg.Mode == model.ModeCompare {
			plan = append(plan, model.CompareRequest(ds))
			continue
		}
		for _, algo := range r.cfg.Algorithms {
			plan = append(plan, model.NewRequest(ds, algo, r.cfg.GreedyVariant))
		}
	}
	return plan
}

// Sweep executes the plan. It returns a non-nil Summary even on error.
func (r *Runner) Sweep(ctx context.Context) (*Summary, error) {
	plan := r.Plan()
	units := make([]model.Unit, len(plan))
	for i, req := range plan {
		units[i] = model.Unit{Request: req, State: model.UnitPending}
	}
	r.done = make([]bool, len(plan))
	r.next = 0
	r.results = nil
	r.abort = nil

	output.Logger.Info("Starting sweep",
		"run_id", r.runID,
		"mode", r.cfg.Mode,
		"units", len(plan),
		"parallelism", r.cfg.Parallelism,
		"path", r.store.Path(),
	)

	if err := r.invoker.Check(); err != nil {
		return r.summarize(units), err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i := range units {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			u := &units[i]
			if err := gctx.Err(); err != nil {
				u.State, u.Err = model.UnitFailed, err
				return err
			}
			r.execute(gctx, u)

			var spawn *SpawnError
			switch {
			case errors.As(u.Err, &spawn):
				return u.Err
			case ctx.Err() != nil:
				return ctx.Err()
			case gctx.Err() != nil:
				// Another unit aborted the sweep; this one's outcome is not committed.
				return gctx.Err()
			}
			return r.commit(i, units)
		})
	}
	err := g.Wait()

	sum := r.summarize(units)
	if err != nil {
		output.Logger.Error("Sweep aborted", "run_id", r.runID, "error", err, "records", len(sum.Records))
		return sum, err
	}
	output.Logger.Info("Sweep complete",
		"run_id", r.runID,
		"records", len(sum.Records),
		"failed_units", sum.Failed,
		"warnings", sum.Warnings,
		"path", sum.Path,
	)
	return sum, nil
}

// execute runs one unit through driver and parser. It never panics on
// solver misbehaviour; the outcome is recorded on u.
func (r *Runner) execute(ctx context.Context, u *model.Unit) {
	req := u.Request
	mode := req.Mode()

	script, err := r.menu.Script(req)
	if err != nil {
		u.State, u.Err = model.UnitFailed, err
		output.Logger.Error("Invalid request", "dataset", req.Dataset, "algorithm", req.Label(), "error", err)
		r.metrics.finishUnit(u)
		return
	}

	u.State = model.UnitRunning
	if mode == model.ModeCompare {
		output.Logger.Info("Running comparison", "dataset", req.Dataset)
	} else {
		output.Logger.Info("Running algorithm", "dataset", req.Dataset, "algorithm", req.Label())
	}

	inv := Invocation{
		Script:        script,
		Timeout:       r.cfg.TimeoutFor(mode),
		Prompts:       r.cfg.Prompts,
		PromptTimeout: r.cfg.PromptTimeout,
	}

	for {
		u.Attempts++
		raw, err := r.invoker.Run(ctx, inv)
		if raw != nil {
			r.metrics.observeInvocation(mode, raw.Duration)
		}

		if err != nil {
			if errors.Is(err, ErrTimeout) && u.Attempts <= r.cfg.TimeoutRetries && ctx.Err() == nil {
				output.Logger.Warn("Process timed out, retrying",
					"dataset", req.Dataset, "algorithm", req.Label(), "attempt", u.Attempts)
				continue
			}
			u.State, u.Err = model.UnitFailed, err
			if errors.Is(err, ErrTimeout) {
				output.Logger.Error("Process timed out", "dataset", req.Dataset, "mode", mode, "algorithm", req.Label(), "error", err)
			} else {
				output.Logger.Error("Invocation failed", "dataset", req.Dataset, "mode", mode, "algorithm", req.Label(), "error", err)
			}
			r.metrics.finishUnit(u)
			return
		}

		if raw.Status == model.StatusNonZeroExit {
			output.Logger.Warn("Solver exited with non-zero status", "dataset", req.Dataset, "exit_code", raw.ExitCode)
		}

		u.Records, u.Warnings = Parse(raw, req)
		for _, w := range u.Warnings {
			output.Logger.Warn("Parse warning", "dataset", w.Dataset, "algorithm", w.Algorithm, "detail", w.String())
		}
		u.State = model.UnitCompleted
		r.metrics.finishUnit(u)
		output.Logger.Info("Completed unit", "dataset", req.Dataset, "mode", mode, "records", len(u.Records), "duration", raw.Duration)
		return
	}
}

// commit marks unit i finished and flushes every finished unit at the head of
// the plan: append its records, persist the full set, mirror to the sink.
func (r *Runner) commit(i int, units []model.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abort != nil {
		return r.abort
	}
	r.done[i] = true
	for r.next < len(units) && r.done[r.next] {
		u := &units[r.next]
		// Cap the slice so a failed persist leaves r.results untouched.
		next := append(r.results[:len(r.results):len(r.results)], u.Records...)

		path, err := r.persist(next)
		if err != nil {
			r.abort = err
			return err
		}
		r.results = next
		r.path = path
		r.metrics.records.Add(float64(len(u.Records)))

		if r.sink != nil {
			for _, rec := range u.Records {
				if err := r.sink.Write(rec); err != nil {
					output.Logger.Error("Failed to write result to JSON", "error", err)
				}
			}
		}
		r.next++
	}
	return nil
}

func (r *Runner) persist(records []model.Record) (string, error) {
	delay := r.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			output.Logger.Info("Retrying persist...", "attempt", attempt, "delay", delay)
			r.sleep(delay)
			delay *= 2
		}
		path, err := r.store.Persist(records)
		if err == nil {
			return path, nil
		}
		lastErr = err
		r.metrics.persistFailures.Inc()
		output.Logger.Error("Failed to persist results", "path", r.store.Path(), "error", err)
	}
	return "", &output.PersistError{Path: r.store.Path(), Attempts: r.cfg.MaxRetries + 1, Err: lastErr}
}

func (r *Runner) summarize(units []model.Unit) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := &Summary{
		RunID:   r.runID,
		Path:    r.path,
		Units:   units,
		Records: append([]model.Record(nil), r.results...),
	}
	for _, u := range units {
		sum.Warnings += len(u.Warnings)
		if u.State == model.UnitFailed {
			sum.Failed++
		}
	}
	return sum
}

// Run executes the full benchmark sweep described by cfg.
func Run(ctx context.Context, cfg *config.Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	csvPath := output.TimestampedPath(cfg.OutputDir, time.Now())
	if cfg.OutputFile != "" {
		csvPath = filepath.Join(cfg.OutputDir, cfg.OutputFile)
	}
	store := output.NewCSVStore(csvPath)

	runID := uuid.NewString()
	opts := []Option{WithRunID(runID)}
	if cfg.JSONFile != "" {
		jsonWriter, err := output.NewJSONWriter(cfg.JSONFile, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to init JSON writer at %s: %w", cfg.JSONFile, err)
		}
		defer jsonWriter.Close()
		opts = append(opts, WithSink(jsonWriter))
	}

	r := NewRunner(cfg, NewDriver(cfg), store, opts...)
	sum, err := r.Sweep(ctx)

	if cfg.MetricsFile != "" {
		if mErr := r.Metrics().WriteTextfile(cfg.MetricsFile); mErr != nil {
			output.Logger.Error("Failed to write metrics file", "path", cfg.MetricsFile, "error", mErr)
		}
	}
	return sum, err
}
