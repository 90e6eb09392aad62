// IPC test runner: validates a controller executable against oracle
// outputs through a three-file handshake in a shared working directory.
//
// The files are _state (input, written by the runner), _data (output,
// written by the controller) and _flag. Presence of _flag means the
// controller is idle and its output is current; the runner removes it to
// mean "process the new input". Existence polling is the only
// synchronization primitive — deliberately weak, so the protocol stays
// correct even against a buggy or partially corrupted peer. Do not
// replace it with sockets or semaphores.

package harness

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// IPC file names inside the runner's working directory.
const (
	stateFileName = "_state"
	dataFileName  = "_data"
	flagFileName  = "_flag"
)

// defaultStateFileSize sizes the _state file when a test case's first
// input cannot be measured. Captured state files carry one trailing byte
// beyond the aligned struct size.
const defaultStateFileSize = StateSize + 1

// ControllerCrash is the failure reason for a controller process that
// exited mid-test-case.
type ControllerCrash struct {
	ExitCode int
	Phase    string // "startup", "ready-wait" or "response-wait"
}

func (r ControllerCrash) Reason() string {
	return fmt.Sprintf("controller crashed (%s, exit code %d)", r.Phase, r.ExitCode)
}

// ControllerTimeout is the failure reason for a controller that did not
// hand the flag back within the iteration timeout.
type ControllerTimeout struct {
	Timeout time.Duration
	Phase   string
}

func (r ControllerTimeout) Reason() string {
	return fmt.Sprintf("controller timeout (%s after %s)", r.Phase, r.Timeout)
}

// FileMissing is the failure reason for an absent input or oracle file;
// it ends the test case early but is not a crash.
type FileMissing struct {
	Path string
}

func (r FileMissing) Reason() string {
	return fmt.Sprintf("file not found: %s", r.Path)
}

// DecodeFailure is the failure reason for an undecodable output or
// oracle record. Fatal to the iteration, not the run.
type DecodeFailure struct {
	Err error
}

func (r DecodeFailure) Reason() string {
	return fmt.Sprintf("decode error: %v", r.Err)
}

// RunnerConfig carries the IPC runner's tunables.
type RunnerConfig struct {
	// Epsilon is the cosine-distance threshold for output validation.
	Epsilon float64

	// IterationTimeout bounds each flag-file wait in steady state.
	IterationTimeout time.Duration

	// StartupTimeout bounds the wait for the controller's first flag
	// (process launch plus init cost), so it is longer than the
	// steady-state timeout.
	StartupTimeout time.Duration

	// PollInterval is the flag-file polling period.
	PollInterval time.Duration

	// ContinueOnFailure keeps running remaining iterations after a
	// validation failure. The verdict stays failed either way; crashes
	// and timeouts always terminate the test case.
	ContinueOnFailure bool
}

// DefaultRunnerConfig mirrors the harness's conventional settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Epsilon:          0.5,
		IterationTimeout: 5 * time.Second,
		StartupTimeout:   10 * time.Second,
		PollInterval:     time.Millisecond,
	}
}

// controllerProcess abstracts the controller's OS process so tests can
// substitute a scripted peer.
type controllerProcess interface {
	Start() error
	Exited() bool
	ExitCode() int
	Stop()
}

// execProcess runs the controller executable with stdout/stderr captured
// to a log file in the working directory.
type execProcess struct {
	exe     string
	workdir string

	cmd    *exec.Cmd
	done   chan struct{}
	exited atomic.Bool
	code   atomic.Int32
}

func (p *execProcess) Start() error {
	logFile, err := os.Create(filepath.Join(p.workdir, "controller.log"))
	if err != nil {
		return err
	}
	p.cmd = exec.Command(p.exe)
	p.cmd.Dir = p.workdir
	p.cmd.Stdout = logFile
	p.cmd.Stderr = logFile
	// Own process group so a kill cannot take the runner down with it.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := p.cmd.Start(); err != nil {
		logFile.Close()
		return err
	}
	p.done = make(chan struct{})
	go func() {
		defer logFile.Close()
		_ = p.cmd.Wait()
		p.code.Store(int32(p.cmd.ProcessState.ExitCode()))
		p.exited.Store(true)
		close(p.done)
	}()
	return nil
}

func (p *execProcess) Exited() bool  { return p.exited.Load() }
func (p *execProcess) ExitCode() int { return int(p.code.Load()) }

func (p *execProcess) Stop() {
	if p.cmd == nil || p.Exited() {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// Runner drives one controller executable through test cases over the
// flag-file handshake. One Runner owns one working directory; run test
// cases sequentially on a single Runner, or use one Runner per directory
// to parallelize across test cases.
type Runner struct {
	Executable string
	Workdir    string
	Config     RunnerConfig

	// newProcess is the process factory; tests replace it.
	newProcess func() controllerProcess

	stateFile *os.File
}

// NewRunner returns a runner for the controller executable rooted at
// workdir.
func NewRunner(executable, workdir string, cfg RunnerConfig) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	r := &Runner{Executable: executable, Workdir: workdir, Config: cfg}
	r.newProcess = func() controllerProcess {
		return &execProcess{exe: executable, workdir: workdir}
	}
	return r
}

func (r *Runner) statePath() string { return filepath.Join(r.Workdir, stateFileName) }
func (r *Runner) dataPath() string  { return filepath.Join(r.Workdir, dataFileName) }
func (r *Runner) flagPath() string  { return filepath.Join(r.Workdir, flagFileName) }

// setupIPCFiles creates zero-filled _state and _data files. The state
// size is taken from the test case's first input when available, since
// capture files can carry trailing padding the struct size does not.
func (r *Runner) setupIPCFiles(tc *TestCase) error {
	stateSize := int64(defaultStateFileSize)
	if info, err := os.Stat(tc.InputFile(1)); err == nil {
		stateSize = info.Size()
	}

	f, err := os.OpenFile(r.statePath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(stateSize); err != nil {
		f.Close()
		return err
	}
	r.stateFile = f

	if err := os.WriteFile(r.dataPath(), make([]byte, VoteSize), 0o644); err != nil {
		return err
	}
	log.Debugf("runner: IPC files ready (_state %d bytes, _data %d bytes)", stateSize, VoteSize)
	return nil
}

func (r *Runner) teardownIPCFiles() {
	if r.stateFile != nil {
		r.stateFile.Close()
		r.stateFile = nil
	}
	for _, p := range []string{r.statePath(), r.dataPath(), r.flagPath()} {
		_ = os.Remove(p)
	}
}

// writeState overwrites the _state file in place. The controller maps
// the file, so the inode must not change: no truncate, no rename.
func (r *Runner) writeState(data []byte) error {
	if _, err := r.stateFile.WriteAt(data, 0); err != nil {
		return err
	}
	return r.stateFile.Sync()
}

// signalProcess removes the flag file, telling the controller to consume
// the freshly written input.
func (r *Runner) signalProcess() {
	_ = os.Remove(r.flagPath())
}

// waitForFlag polls for the flag file's existence. It returns nil when
// the flag appeared, or a failure reason on controller exit or timeout.
func (r *Runner) waitForFlag(proc controllerProcess, timeout time.Duration, phase string) FailureReason {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(r.flagPath()); err == nil {
			return nil
		}
		if proc.Exited() {
			return ControllerCrash{ExitCode: proc.ExitCode(), Phase: phase}
		}
		time.Sleep(r.Config.PollInterval)
	}
	return ControllerTimeout{Timeout: timeout, Phase: phase}
}

// runIteration executes one handshake round and validates the result.
func (r *Runner) runIteration(proc controllerProcess, tc *TestCase, iteration int) IterationResult {
	started := time.Now()
	res := IterationResult{Iteration: iteration}

	fail := func(reason FailureReason) IterationResult {
		res.Validation = Validation{Failure: reason}
		res.Duration = time.Since(started)
		return res
	}

	input := tc.InputFile(iteration)
	inputData, err := os.ReadFile(input)
	if err != nil {
		return fail(FileMissing{Path: input})
	}
	oracle := tc.OracleFile(iteration)
	oracleVote, err := DecodeVoteFile(oracle)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(FileMissing{Path: oracle})
		}
		return fail(DecodeFailure{Err: err})
	}

	// Controller idle and ready for input.
	if reason := r.waitForFlag(proc, r.Config.IterationTimeout, "ready-wait"); reason != nil {
		return fail(reason)
	}

	if err := r.writeState(inputData); err != nil {
		return fail(DecodeFailure{Err: fmt.Errorf("write state: %w", err)})
	}
	r.signalProcess()

	// Output ready.
	if reason := r.waitForFlag(proc, r.Config.IterationTimeout, "response-wait"); reason != nil {
		return fail(reason)
	}

	outputData, err := os.ReadFile(r.dataPath())
	if err != nil {
		return fail(DecodeFailure{Err: err})
	}
	vote, err := DecodeVote(outputData)
	if err != nil {
		return fail(DecodeFailure{Err: err})
	}

	res.Validation = ValidateIteration(vote, oracleVote, r.Config.Epsilon)
	res.Duration = time.Since(started)
	return res
}

// RunTestCase runs every iteration of one test case in order. Iteration
// i+1 never starts before iteration i's result is final; the controller
// accumulates state across iterations, so reordering or parallelizing
// within a test case would change behavior.
func (r *Runner) RunTestCase(tc *TestCase) *TestCaseResult {
	log.Debugf("runner: %s (%d iterations)", tc.Name, tc.Iterations)
	started := time.Now()

	result := &TestCaseResult{
		TestName:        tc.Name,
		IterationsTotal: tc.Iterations,
	}

	if err := r.setupIPCFiles(tc); err != nil {
		result.FailureReason = fmt.Sprintf("setup IPC files: %v", err)
		result.Duration = time.Since(started)
		return result
	}
	defer r.teardownIPCFiles()

	// The controller creates the flag once init finished, so startup
	// gets the longer timeout.
	r.signalProcess()
	proc := r.newProcess()
	if err := proc.Start(); err != nil {
		result.FailureReason = fmt.Sprintf("start controller: %v", err)
		result.Duration = time.Since(started)
		return result
	}
	defer proc.Stop()

	if reason := r.waitForFlag(proc, r.Config.StartupTimeout, "startup"); reason != nil {
		result.FailureReason = "controller failed to start: " + reason.Reason()
		result.Duration = time.Since(started)
		return result
	}

	result.Passed = true
	for i := 1; i <= tc.Iterations; i++ {
		iter := r.runIteration(proc, tc, i)
		result.Iterations = append(result.Iterations, iter)
		result.IterationsRun = i

		if iter.Passed() {
			continue
		}
		// First failure is final; later successes cannot overwrite it.
		if result.Passed {
			result.Passed = false
			result.FailedAt = i
			result.FailureReason = iter.Validation.String()
		}

		switch iter.Validation.Failure.(type) {
		case ControllerCrash, ControllerTimeout, FileMissing:
			// No peer left to hand the flag to, or no input to feed it:
			// remaining iterations cannot run.
			result.Duration = time.Since(started)
			return result
		}
		if !r.Config.ContinueOnFailure {
			result.Duration = time.Since(started)
			return result
		}
	}
	result.Duration = time.Since(started)
	return result
}
