package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daryltucker/packbench/internal/config"
	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
)

// fakeSolver answers invocations from a handler keyed on the script.
type fakeSolver struct {
	mu       sync.Mutex
	checkErr error
	handler  func(call int, script []string) (*model.RawOutput, error)
	calls    map[string]int
	order    []string
}

func (f *fakeSolver) Check() error { return f.checkErr }

func (f *fakeSolver) Run(ctx context.Context, inv Invocation) (*model.RawOutput, error) {
	key := strings.Join(inv.Script, ",")
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[key]++
	n := f.calls[key]
	f.order = append(f.order, key)
	f.mu.Unlock()
	return f.handler(n, inv.Script)
}

func (f *fakeSolver) invoked(script ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[strings.Join(script, ",")]
}

func comparisonTable(ds int) string {
	return fmt.Sprintf(`Algorithm Performance Comparison:
----------------------------------------
Algorithm           | Time (ms) | Profit
----------------------------------------
Dynamic Programming | %d.250    | %d *
Greedy Ratio        | 0.500    | %d
----------------------------------------
* Indicates optimal profit
`, ds, 100*ds, 90*ds)
}

// deterministicSolver prints a two-row table for every dataset except those in timeouts.
func deterministicSolver(timeouts ...int) *fakeSolver {
	return &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		ds, _ := strconv.Atoi(script[1])
		for _, t := range timeouts {
			if t == ds {
				return &model.RawOutput{Stdout: "Running...", Status: model.StatusTimeout, ExitCode: -1},
					fmt.Errorf("after 1s: %w", ErrTimeout)
			}
		}
		return &model.RawOutput{Stdout: comparisonTable(ds), Status: model.StatusSuccess}, nil
	}}
}

func compareConfig(datasets ...int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Datasets = datasets
	cfg.Mode = model.ModeCompare
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := output.Logger
	output.SetLogger(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { output.SetLogger(prev) })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// snapshotStore persists through a real CSVStore and reloads the file after each write.
type snapshotStore struct {
	*output.CSVStore
	snapshots [][]model.Record
}

func (s *snapshotStore) Persist(records []model.Record) (string, error) {
	path, err := s.CSVStore.Persist(records)
	if err != nil {
		return path, err
	}
	got, err := output.Load(path, output.Filter{})
	if err != nil {
		return path, err
	}
	s.snapshots = append(s.snapshots, got)
	return path, nil
}

func TestPlan(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Datasets = []int{3, 1, 3}
	cfg.Mode = model.ModeSingle
	cfg.Algorithms = []int{1, model.GreedyEntry}
	cfg.GreedyVariant = 2

	got := NewRunner(cfg, &fakeSolver{}, output.NewCSVStore("unused")).Plan()
	want := []model.Request{
		model.NewRequest(1, 1, 2),
		model.NewRequest(1, model.GreedyEntry, 2),
		model.NewRequest(3, 1, 2),
		model.NewRequest(3, model.GreedyEntry, 2),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Plan() = %+v, want %+v", got, want)
	}

	cfg.Mode = model.ModeCompare
	got = NewRunner(cfg, &fakeSolver{}, output.NewCSVStore("unused")).Plan()
	want = []model.Request{model.CompareRequest(1), model.CompareRequest(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("compare Plan() = %+v, want %+v", got, want)
	}
}

func TestRunnerCopiesConfig(t *testing.T) {
	cfg := compareConfig(1, 2)
	r := NewRunner(cfg, &fakeSolver{}, output.NewCSVStore("unused"))
	cfg.Datasets[0] = 99
	cfg.Mode = model.ModeSingle
	if got := r.Plan(); len(got) != 2 || got[0] != model.CompareRequest(1) {
		t.Errorf("runner saw config mutation: %+v", got)
	}
}

func TestSweepComparisonWithTimeout(t *testing.T) {
	logs := captureLogs(t)
	path := filepath.Join(t.TempDir(), "results.csv")
	solver := deterministicSolver(2)

	sum, err := NewRunner(compareConfig(1, 2), solver, output.NewCSVStore(path)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	want := []model.Record{
		{Dataset: 1, Algorithm: "Dynamic Programming", ExecutionTimeMS: 1.25, Profit: 100},
		{Dataset: 1, Algorithm: "Greedy Ratio", ExecutionTimeMS: 0.5, Profit: 90},
	}
	if !reflect.DeepEqual(sum.Records, want) {
		t.Errorf("records = %+v, want %+v", sum.Records, want)
	}
	onDisk, err := output.Load(path, output.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(onDisk, want) {
		t.Errorf("persisted = %+v, want %+v", onDisk, want)
	}
	if sum.Failed != 1 || sum.Units[1].State != model.UnitFailed || !errors.Is(sum.Units[1].Err, ErrTimeout) {
		t.Errorf("dataset 2 should be a failed timeout unit: %+v", sum.Units[1])
	}
	if sum.Units[0].State != model.UnitCompleted {
		t.Errorf("dataset 1 state = %s", sum.Units[0].State)
	}

	l := logs.String()
	if !strings.Contains(l, `msg="Process timed out"`) || !strings.Contains(l, "dataset=2") {
		t.Errorf("timeout for dataset 2 not logged:\n%s", l)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	var files [2][]byte
	for i := range files {
		path := filepath.Join(dir, fmt.Sprintf("run%d.csv", i))
		if _, err := NewRunner(compareConfig(3, 1, 2), deterministicSolver(2), output.NewCSVStore(path)).Sweep(context.Background()); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		files[i] = data
	}
	if !bytes.Equal(files[0], files[1]) {
		t.Errorf("runs differ:\n%s\n---\n%s", files[0], files[1])
	}
}

func TestSweepPersistsPrefixAfterEachUnit(t *testing.T) {
	captureLogs(t)
	store := &snapshotStore{CSVStore: output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))}
	if _, err := NewRunner(compareConfig(1, 2, 3), deterministicSolver(), store).Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 3 {
		t.Fatalf("persisted %d times, want once per dataset", len(store.snapshots))
	}
	for n, snap := range store.snapshots {
		if len(snap) != 2*(n+1) {
			t.Errorf("snapshot %d has %d rows", n+1, len(snap))
		}
		for _, rec := range snap {
			if rec.Dataset > n+1 {
				t.Errorf("snapshot %d contains dataset %d", n+1, rec.Dataset)
			}
		}
	}
}

func TestSweepPersistsEvenWhenUnitFails(t *testing.T) {
	captureLogs(t)
	store := &snapshotStore{CSVStore: output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))}
	sum, err := NewRunner(compareConfig(1), deterministicSolver(1), store).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 1 || len(store.snapshots[0]) != 0 {
		t.Errorf("expected one header-only snapshot, got %+v", store.snapshots)
	}
	if sum.Path == "" {
		t.Error("summary path empty after persist")
	}
}

func TestSweepSpawnFailureAtCheck(t *testing.T) {
	captureLogs(t)
	solver := deterministicSolver()
	solver.checkErr = &SpawnError{Path: "/missing", Err: os.ErrNotExist}

	sum, err := NewRunner(compareConfig(1, 2), solver, output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))).Sweep(context.Background())
	var spawn *SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
	if len(solver.order) != 0 {
		t.Errorf("solver invoked %d times after failed check", len(solver.order))
	}
	if sum == nil || len(sum.Records) != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSweepSpawnFailureMidSweepAborts(t *testing.T) {
	captureLogs(t)
	path := filepath.Join(t.TempDir(), "r.csv")
	solver := &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		if script[1] == "2" {
			return &model.RawOutput{Status: model.StatusSpawnFailure, ExitCode: -1}, &SpawnError{Path: "solver", Err: os.ErrPermission}
		}
		ds, _ := strconv.Atoi(script[1])
		return &model.RawOutput{Stdout: comparisonTable(ds)}, nil
	}}

	_, err := NewRunner(compareConfig(1, 2, 3), solver, output.NewCSVStore(path)).Sweep(context.Background())
	var spawn *SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
	if solver.invoked("2", "3", "6", "", "8") != 0 {
		t.Error("dataset 3 ran after a spawn failure")
	}
	recs, _ := output.Load(path, output.Filter{})
	if len(recs) != 2 || recs[0].Dataset != 1 {
		t.Errorf("persisted = %+v, want dataset 1 only", recs)
	}
}

func TestSweepRetriesTimeouts(t *testing.T) {
	captureLogs(t)
	solver := &fakeSolver{handler: func(call int, script []string) (*model.RawOutput, error) {
		if call == 1 {
			return &model.RawOutput{Status: model.StatusTimeout}, ErrTimeout
		}
		return &model.RawOutput{Stdout: comparisonTable(1)}, nil
	}}
	cfg := compareConfig(1)
	cfg.TimeoutRetries = 1

	sum, err := NewRunner(cfg, solver, output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Units[0].Attempts != 2 || sum.Units[0].State != model.UnitCompleted || len(sum.Records) != 2 {
		t.Errorf("unit = %+v", sum.Units[0])
	}
}

func TestSweepSingleMode(t *testing.T) {
	captureLogs(t)
	solver := &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		switch script[2] {
		case "2":
			return &model.RawOutput{Stdout: "Total profit: 999\nExecution time: 123.45 ms\n", Status: model.StatusNonZeroExit, ExitCode: 1}, nil
		case "4":
			return &model.RawOutput{Stdout: "Total profit: 10\nExecution time: 0.001 ms\n"}, nil
		}
		return &model.RawOutput{Stdout: "Segmentation fault\n"}, nil
	}}
	cfg := compareConfig(1)
	cfg.Mode = model.ModeSingle
	cfg.Algorithms = []int{0, 1, model.GreedyEntry}
	cfg.GreedyVariant = 1

	sink := &memorySink{}
	sum, err := NewRunner(cfg, solver, output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv")), WithSink(sink)).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Record{
		{Dataset: 1, Algorithm: "Dynamic Programming", ExecutionTimeMS: 123.45, Profit: 999},
		{Dataset: 1, Algorithm: "Greedy Profit", ExecutionTimeMS: 0.001, Profit: 10},
	}
	if !reflect.DeepEqual(sum.Records, want) {
		t.Errorf("records = %+v", sum.Records)
	}
	if sum.Warnings != 1 || sum.Failed != 0 {
		t.Errorf("warnings/failed = %d/%d, want 1/0", sum.Warnings, sum.Failed)
	}
	if solver.invoked("2", "1", "4", "2", "8") != 1 {
		t.Errorf("greedy script not sent as expected: %v", solver.order)
	}
	if !reflect.DeepEqual(sink.records, want) {
		t.Errorf("sink got %+v", sink.records)
	}
}

type memorySink struct{ records []model.Record }

func (m *memorySink) Write(r model.Record) error {
	m.records = append(m.records, r)
	return nil
}

type flakyStore struct {
	failures int
	calls    int
}

func (f *flakyStore) Persist(records []model.Record) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("disk full")
	}
	return "flaky.csv", nil
}

func (f *flakyStore) Path() string { return "flaky.csv" }

func TestSweepPersistRetryWithBackoff(t *testing.T) {
	captureLogs(t)
	var slept []time.Duration
	cfg := compareConfig(1)
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxRetries = 3

	store := &flakyStore{failures: 2}
	_, err := NewRunner(cfg, deterministicSolver(), store, WithSleep(func(d time.Duration) { slept = append(slept, d) })).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}; !reflect.DeepEqual(slept, want) {
		t.Errorf("backoff = %v, want %v", slept, want)
	}
}

func TestSweepPersistGivesUp(t *testing.T) {
	captureLogs(t)
	cfg := compareConfig(1, 2)
	cfg.MaxRetries = 2
	store := &flakyStore{failures: 100}
	solver := deterministicSolver()

	_, err := NewRunner(cfg, solver, store, WithSleep(func(time.Duration) {})).Sweep(context.Background())
	var perr *output.PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *output.PersistError", err)
	}
	if perr.Attempts != 3 || store.calls != 3 {
		t.Errorf("attempts = %d, store calls = %d", perr.Attempts, store.calls)
	}
	if solver.invoked("2", "2", "6", "", "8") != 0 {
		t.Error("sweep continued after persistence was lost")
	}
}

func TestSweepParallelCommitsInOrder(t *testing.T) {
	captureLogs(t)
	solver := &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		ds, _ := strconv.Atoi(script[1])
		// Later datasets finish first.
		time.Sleep(time.Duration(6-ds) * 20 * time.Millisecond)
		return &model.RawOutput{Stdout: comparisonTable(ds)}, nil
	}}
	cfg := compareConfig(1, 2, 3, 4, 5)
	cfg.Parallelism = 5
	store := &snapshotStore{CSVStore: output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))}

	sum, err := NewRunner(cfg, solver, store).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i, rec := range sum.Records {
		if rec.Dataset != i/2+1 {
			t.Fatalf("record %d is dataset %d: %+v", i, rec.Dataset, sum.Records)
		}
	}
	for n, snap := range store.snapshots {
		if len(snap) != 2*(n+1) {
			t.Errorf("snapshot %d is not a plan prefix: %d rows", n+1, len(snap))
		}
	}
}

// failOnceStore rejects its first Persist and keeps a copy of every accepted write.
type failOnceStore struct {
	mu     sync.Mutex
	calls  int
	writes [][]model.Record
}

func (f *failOnceStore) Persist(records []model.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return "", errors.New("disk full")
	}
	f.writes = append(f.writes, append([]model.Record(nil), records...))
	return "once.csv", nil
}

func (f *failOnceStore) Path() string { return "once.csv" }

func TestSweepParallelFailedPersistWritesNoDuplicates(t *testing.T) {
	captureLogs(t)
	solver := &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		ds, _ := strconv.Atoi(script[1])
		if ds == 2 {
			time.Sleep(200 * time.Millisecond)
		}
		return &model.RawOutput{Stdout: comparisonTable(ds)}, nil
	}}
	cfg := compareConfig(1, 2)
	cfg.Parallelism = 2
	cfg.MaxRetries = 0
	store := &failOnceStore{}

	sum, err := NewRunner(cfg, solver, store).Sweep(context.Background())
	var perr *output.PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *output.PersistError", err)
	}
	if len(sum.Records) != 0 {
		t.Errorf("records of an unpersisted unit were kept: %+v", sum.Records)
	}
	for n, w := range store.writes {
		for i, rec := range w {
			if rec.Dataset != i/2+1 {
				t.Fatalf("write %d is not a plan prefix: %+v", n+1, w)
			}
		}
	}
}

func TestSweepPersistRetryKeepsSingleCopy(t *testing.T) {
	captureLogs(t)
	cfg := compareConfig(1, 2)
	cfg.MaxRetries = 1
	store := &failOnceStore{}

	sum, err := NewRunner(cfg, deterministicSolver(), store, WithSleep(func(time.Duration) {})).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sum.Records) != 4 {
		t.Fatalf("got %d records, want 4: %+v", len(sum.Records), sum.Records)
	}
	last := store.writes[len(store.writes)-1]
	if len(last) != 4 || last[0].Dataset != 1 || last[2].Dataset != 2 {
		t.Errorf("final write = %+v", last)
	}
}

func TestSweepParentCancel(t *testing.T) {
	captureLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	solver := &fakeSolver{handler: func(_ int, script []string) (*model.RawOutput, error) {
		cancel()
		return &model.RawOutput{Status: model.StatusCanceled}, context.Canceled
	}}
	_, err := NewRunner(compareConfig(1, 2), solver, output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv"))).Sweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if solver.invoked("2", "2", "6", "", "8") != 0 {
		t.Error("dataset 2 ran after cancel")
	}
}

func TestMetricsTextfile(t *testing.T) {
	captureLogs(t)
	r := NewRunner(compareConfig(1, 2), deterministicSolver(2), output.NewCSVStore(filepath.Join(t.TempDir(), "r.csv")))
	if _, err := r.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "packbench.prom")
	if err := r.Metrics().WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{
		`packbench_units_total{mode="compare",state="completed"} 1`,
		`packbench_units_total{mode="compare",state="failed"} 1`,
		`packbench_records_total 2`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q:\n%s", want, data)
		}
	}
}
