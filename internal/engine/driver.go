/*
PURPOSE:
  Runs the external solver once: feeds it a scripted menu session on stdin,
  enforces a wall-clock deadline and captures stdout/stderr.

REQUIREMENTS:
  User-specified:
  - One-shot scripted feed; no interactive back-and-forth.
  - Hard timeout with forced termination; partial output is still returned.
  - Exactly one outcome per call: success, non-zero exit, timeout, spawn failure.

  Implementation-discovered:
  - The solver can stop on a prompt the script did not anticipate (greedy
    sub-variant). Configured prompts are answered from a stdout watcher with a
    short secondary timeout before stdin is closed.
  - The solver spins on EOF in some menus, so the timeout is the normal way
    such runs end. The whole process group is killed, not just the leader.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Produces: model.RawOutput

ERROR HANDLING:
  - Spawn failures return *SpawnError with a remediation hint.
  - Timeouts return ErrTimeout (wrapped) together with the partial output.
  - Non-zero exit is not an error; the status and exit code say it.
  - Never retries; that is the runner's decision.

IMPLEMENTATION RULES:
  - exec.CommandContext + Cancel/WaitDelay so Wait can never block forever.

USAGE:
  d := engine.NewDriver(cfg)
  raw, err := d.Run(ctx, engine.Invocation{Script: lines, Timeout: time.Minute})

RELATED FILES:
  - internal/engine/proc_unix.go
  - internal/engine/script.go
*/

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/daryltucker/packbench/internal/config"
	"github.com/daryltucker/packbench/internal/model"
	"github.com/daryltucker/packbench/internal/output"
)

// ErrTimeout is returned when an invocation hits its deadline.
var ErrTimeout = errors.New("invocation timed out")

// SpawnError means the external program could not be started at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("cannot execute solver %s: %v (build the solver first, e.g. cmake and make, or point --program at the binary)", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Invocation is one scripted run of the solver.
type Invocation struct {
	Script        []string
	Timeout       time.Duration
	Prompts       []config.Prompt
	PromptTimeout time.Duration
}

// Driver spawns the external program.
type Driver struct {
	Path           string
	Args           []string
	Dir            string
	MakeExecutable bool
	// WaitDelay bounds how long Wait lingers on pipes after the process is gone.
	WaitDelay time.Duration
}

// NewDriver creates a Driver from configuration.
func NewDriver(cfg *config.Config) *Driver {
	return &Driver{
		Path:           cfg.Program,
		Args:           append([]string(nil), cfg.ProgramArgs...),
		Dir:            cfg.WorkDir,
		MakeExecutable: cfg.MakeExecutable,
		WaitDelay:      2 * time.Second,
	}
}

// Check verifies the program exists and can be executed.
func (d *Driver) Check() error {
	info, err := os.Stat(d.Path)
	if err != nil {
		return &SpawnError{Path: d.Path, Err: err}
	}
	if info.IsDir() {
		return &SpawnError{Path: d.Path, Err: errors.New("is a directory")}
	}
	if info.Mode().Perm()&0111 == 0 {
		if !d.MakeExecutable {
			return &SpawnError{Path: d.Path, Err: errors.New("not executable")}
		}
		if err := os.Chmod(d.Path, 0755); err != nil {
			return &SpawnError{Path: d.Path, Err: errors.Wrap(err, "make executable")}
		}
		output.Logger.Info("Marked solver executable", "path", d.Path)
	}
	return nil
}

// Run executes one invocation. The returned RawOutput is never nil.
func (d *Driver) Run(ctx context.Context, inv Invocation) (*model.RawOutput, error) {
	raw := &model.RawOutput{ExitCode: -1}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.Path, d.Args...)
	cmd.Dir = d.Dir
	cmd.WaitDelay = d.WaitDelay
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		raw.Status = model.StatusSpawnFailure
		return raw, &SpawnError{Path: d.Path, Err: err}
	}
	stdout := newPromptWatcher(inv.Prompts)
	var stderr lockedBuffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		raw.Status = model.StatusSpawnFailure
		return raw, &SpawnError{Path: d.Path, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	script := strings.Join(inv.Script, "\n") + "\n"
	if _, err := io.WriteString(stdin, script); err != nil {
		// The program may exit before reading everything; its output decides.
		output.Logger.Debug("Short write to solver stdin", "error", err)
	}
	waitErr := feed(stdin, stdout, inv, done)

	raw.Duration = time.Since(start)
	raw.Stdout = stdout.String()
	raw.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		raw.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() != nil {
		raw.ExitCode = -1
		if ctx.Err() != nil {
			raw.Status = model.StatusCanceled
			return raw, errors.Wrap(ctx.Err(), "invocation canceled")
		}
		raw.Status = model.StatusTimeout
		return raw, errors.Wrapf(ErrTimeout, "after %s", inv.Timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		raw.Status = model.StatusSuccess
	case errors.As(waitErr, &exitErr):
		raw.Status = model.StatusNonZeroExit
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// Exited cleanly but a descendant kept the pipes open.
		raw.Status = model.StatusSuccess
	default:
		raw.Status = model.StatusNonZeroExit
		output.Logger.Warn("Solver wait failed", "error", waitErr)
	}
	return raw, nil
}

// feed answers configured prompts until the process exits or PromptTimeout
// passes without a new prompt, then closes stdin and waits for exit.
func feed(stdin io.WriteCloser, stdout *promptWatcher, inv Invocation, done <-chan error) error {
	if len(inv.Prompts) == 0 {
		stdin.Close()
		return <-done
	}

	idle := time.NewTimer(inv.PromptTimeout)
	defer idle.Stop()
	for {
		select {
		case err := <-done:
			return err
		case reply := <-stdout.replies:
			if _, err := io.WriteString(stdin, reply+"\n"); err != nil {
				output.Logger.Debug("Prompt reply not delivered", "error", err)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(inv.PromptTimeout)
		case <-idle.C:
			stdin.Close()
			return <-done
		}
	}
}

// promptWatcher buffers stdout and emits a reply each time a prompt's match
// text appears in output not yet scanned.
type promptWatcher struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	prompts []config.Prompt
	scanned int
	replies chan string
}

func newPromptWatcher(prompts []config.Prompt) *promptWatcher {
	return &promptWatcher{prompts: prompts, replies: make(chan string, 16)}
}

func (w *promptWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, _ := w.buf.Write(p)
	if len(w.prompts) == 0 {
		return n, nil
	}
	for {
		rest := w.buf.Bytes()[w.scanned:]
		at, hit := -1, -1
		for i, pr := range w.prompts {
			if pr.Match == "" {
				continue
			}
			if idx := bytes.Index(rest, []byte(pr.Match)); idx >= 0 && (at < 0 || idx < at) {
				at, hit = idx, i
			}
		}
		if hit < 0 {
			return n, nil
		}
		w.scanned += at + len(w.prompts[hit].Match)
		select {
		case w.replies <- w.prompts[hit].Reply:
		default:
			output.Logger.Warn("Dropping prompt reply, too many pending", "prompt", w.prompts[hit].Match)
		}
	}
}

func (w *promptWatcher) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
