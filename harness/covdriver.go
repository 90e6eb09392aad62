// Coverage driver: a supervisor/worker pair that replays one test case's
// iterations directly against a controller while keeping line-coverage
// counters recoverable.
//
// Defective controllers may corrupt their own heap or loop forever, so
// the worker runs in a separate process, flushes counters to disk after
// every iteration, and arms a watchdog around each step call. When the
// watchdog fires it flushes once more and exits immediately, skipping any
// cleanup that could itself fail on corrupted state. The supervisor never
// shares memory with the worker; it only polls for worker exit under a
// wall-clock budget and force-kills a worker whose watchdog itself hung.
//
// The post-timeout flush is inherently best-effort: after corruption it
// may produce a truncated or inconsistent sample. The per-iteration
// flushes bound the damage to the current iteration.

package harness

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Worker process exit codes, shared between supervisor and worker and
// surfaced on the cover CLI.
const (
	ExitCompleted        = 0 // all iterations completed
	ExitFileError        = 1 // usage error or missing/undecodable input file
	ExitIterationTimeout = 2 // watchdog fired during a step call
	ExitSupervisorKill   = 3 // supervisor force-killed an unresponsive worker
)

// CoverageOutcome classifies how a coverage run ended.
type CoverageOutcome int

const (
	CompletedAllIterations CoverageOutcome = iota
	FileError
	IterationTimedOut
	SupervisorForcedKill
)

func (o CoverageOutcome) String() string {
	switch o {
	case CompletedAllIterations:
		return "completed"
	case FileError:
		return "file-error"
	case IterationTimedOut:
		return "iteration-timeout"
	default:
		return "supervisor-kill"
	}
}

// CoverageRun is the supervisor's account of one worker run. Timed-out
// and force-killed runs still carry whatever coverage the worker managed
// to flush; a degraded sample is more informative than none.
type CoverageRun struct {
	Outcome  CoverageOutcome
	ExitCode int

	// TimedOutIteration is the 1-based iteration the watchdog
	// interrupted, 0 when unknown.
	TimedOutIteration int

	// MissingFile is the input path that ended the run early on a
	// FileError outcome.
	MissingFile string
}

// supervisorMargin is the fixed slack added to the worker's wall-clock
// budget beyond timeout x iterations.
const supervisorMargin = 10 * time.Second

// Supervisor launches and monitors one coverage worker process. The
// worker command is opaque: either this binary re-executed in worker mode
// or an externally built native coverage runner with the same exit-code
// contract.
type Supervisor struct {
	Command          []string
	Dir              string
	Iterations       int
	IterationTimeout time.Duration

	// Margin is the fixed slack beyond IterationTimeout x Iterations;
	// zero means the default supervisorMargin.
	Margin time.Duration

	// StatusFile, when set, is read after an iteration-timeout exit to
	// recover which iteration the watchdog interrupted.
	StatusFile string
}

// Run executes the worker to completion or until the wall-clock budget
// (IterationTimeout x Iterations + a fixed margin) expires. The
// supervisor performs no controller calls itself.
func (s *Supervisor) Run() (*CoverageRun, error) {
	if len(s.Command) == 0 {
		return nil, errors.New("supervisor: empty worker command")
	}
	margin := s.Margin
	if margin <= 0 {
		margin = supervisorMargin
	}
	budget := s.IterationTimeout*time.Duration(s.Iterations) + margin

	cmd := exec.Command(s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start worker: %w", err)
	}
	log.Debugf("supervisor: worker pid %d, budget %s", cmd.Process.Pid, budget)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return s.classifyExit(cmd.ProcessState.ExitCode()), nil
	case <-time.After(budget):
		// The watchdog itself hung; nothing gentler than SIGKILL is safe
		// against a corrupted worker.
		log.Warnf("supervisor: worker still alive after %s, killing", budget)
		_ = cmd.Process.Kill()
		<-done
		return &CoverageRun{Outcome: SupervisorForcedKill, ExitCode: ExitSupervisorKill}, nil
	}
}

func (s *Supervisor) classifyExit(code int) *CoverageRun {
	run := &CoverageRun{ExitCode: code}
	switch code {
	case ExitCompleted:
		run.Outcome = CompletedAllIterations
	case ExitFileError:
		run.Outcome = FileError
		run.MissingFile = s.readStatus()
	case ExitSupervisorKill:
		run.Outcome = SupervisorForcedKill
	default:
		// Exit 2 or death by signal: the step deadline fired.
		run.Outcome = IterationTimedOut
		run.ExitCode = ExitIterationTimeout
		if n, err := strconv.Atoi(s.readStatus()); err == nil {
			run.TimedOutIteration = n
		}
	}
	return run
}

func (s *Supervisor) readStatus() string {
	if s.StatusFile == "" {
		return ""
	}
	data, err := os.ReadFile(s.StatusFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Worker replays one test case's iterations against a linked controller.
// It runs inside the process the supervisor spawned and communicates
// results only through its exit code and the counter/status files.
type Worker struct {
	Controller Controller
	Coverage   CoverageRecorder
	Case       *TestCase
	Iterations int
	Timeout    time.Duration

	// CounterFile receives a gcov-format dump of the coverage counters
	// after every iteration.
	CounterFile string

	// StatusFile receives the interrupted iteration index (on timeout)
	// or the missing input path (on file error).
	StatusFile string

	// exitFunc terminates the process from the watchdog path. Defaults
	// to os.Exit; tests substitute a recorder.
	exitFunc func(int)
}

// Run executes the iteration loop and returns the process exit code. The
// watchdog path does not return: it flushes and exits the process
// directly, bypassing deferred cleanup that might hang on corrupted
// state.
func (w *Worker) Run() int {
	if w.exitFunc == nil {
		w.exitFunc = os.Exit
	}
	w.Coverage.Reset()

	if err := w.Controller.Init(); err != nil {
		log.Errorf("worker: controller init: %v", err)
		return ExitFileError
	}

	for i := 1; i <= w.Iterations; i++ {
		input := w.Case.InputFile(i)
		state, err := DecodeStateFile(input)
		if err != nil {
			// A missing or garbled input mid-sequence ends the test case
			// early; coverage flushed so far is preserved.
			log.Warnf("worker: iteration %d: %v", i, err)
			w.writeStatus(input)
			w.flush()
			return ExitFileError
		}

		iteration := i
		watchdog := time.AfterFunc(w.Timeout, func() {
			// Best-effort: the controller may have corrupted the heap
			// before hanging. Flush what we can and leave immediately.
			w.writeStatus(strconv.Itoa(iteration))
			w.flush()
			w.exitFunc(ExitIterationTimeout)
		})
		_, stepErr := w.Controller.Step(state)
		watchdog.Stop()
		if stepErr != nil {
			log.Debugf("worker: iteration %d: step: %v", i, stepErr)
		}

		// Flush after every iteration, success or not. A heap corruption
		// that only manifests later must not cost us this iteration's
		// lines.
		w.flush()
	}
	return ExitCompleted
}

func (w *Worker) flush() {
	if err := WriteCounterReport(w.CounterFile, w.Coverage.Counters()); err != nil {
		log.Errorf("worker: flush counters: %v", err)
	}
}

func (w *Worker) writeStatus(content string) {
	if w.StatusFile == "" {
		return
	}
	if err := os.WriteFile(w.StatusFile, []byte(content), 0o644); err != nil {
		log.Errorf("worker: write status: %v", err)
	}
}

// WriteCounterReport persists line counters as a gcov-format report
// (count:line: per line) and syncs it to durable storage, so the sample
// survives a worker that dies on a later iteration. The report is
// readable by ParseGcovFile.
func WriteCounterReport(path string, counts map[int]uint64) error {
	lines := make([]int, 0, len(counts))
	for line := range counts {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%9d:%5d:\n", counts[line], line)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
