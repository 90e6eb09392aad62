package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAction int

const (
	actRespond fakeAction = iota
	actCrash
	actHang
)

// fakeProcess plays the controller's side of the flag-file handshake from
// a goroutine, scripted per iteration. It creates the flag on start (init
// done), waits for the runner to remove it, reads _state, and either
// answers through _data, crashes, or goes silent.
type fakeProcess struct {
	workdir string
	respond func(iteration int, st *State) (*Vote, fakeAction)

	exited   atomic.Bool
	exitCode int
	stop     chan struct{}
	stopOnce sync.Once
}

func (p *fakeProcess) Start() error {
	p.stop = make(chan struct{})
	flag := filepath.Join(p.workdir, flagFileName)
	if err := os.WriteFile(flag, nil, 0o644); err != nil {
		return err
	}
	go func() {
		for iteration := 1; ; iteration++ {
			for {
				if _, err := os.Stat(flag); os.IsNotExist(err) {
					break
				}
				select {
				case <-p.stop:
					return
				case <-time.After(time.Millisecond):
				}
			}
			data, err := os.ReadFile(filepath.Join(p.workdir, stateFileName))
			if err != nil {
				return
			}
			st, err := DecodeState(data)
			if err != nil {
				return
			}
			vote, action := p.respond(iteration, st)
			switch action {
			case actCrash:
				p.exitCode = 139
				p.exited.Store(true)
				return
			case actHang:
				return
			}
			out, err := EncodeVote(vote)
			if err != nil {
				return
			}
			if err := os.WriteFile(filepath.Join(p.workdir, dataFileName), out, 0o644); err != nil {
				return
			}
			if err := os.WriteFile(flag, nil, 0o644); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *fakeProcess) Exited() bool  { return p.exited.Load() }
func (p *fakeProcess) ExitCode() int { return p.exitCode }
func (p *fakeProcess) Stop()         { p.stopOnce.Do(func() { close(p.stop) }) }

func oracleVote(idx int32, firstPosition float64) *Vote {
	v := &Vote{Idx: idx}
	v.Point.PositionsLen = 6
	v.Point.Positions[0] = firstPosition
	v.Point.VelocitiesLen = 6
	return v
}

// ipcCaseDir writes a test-case directory with encoded state inputs and
// oracle votes whose index tracks the iteration.
func ipcCaseDir(t *testing.T, name string, iterations int) *TestCase {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	for i := 1; i <= iterations; i++ {
		state, err := EncodeState(&State{Idx: int32(i)})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("t%d", i)), state, 0o644))
		vote, err := EncodeVote(oracleVote(int32(i), 1.0))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("output.t%d", i)), vote, 0o644))
	}
	tc, err := TestCaseFromDir(dir)
	require.NoError(t, err)
	return tc
}

func fakeRunner(t *testing.T, respond func(int, *State) (*Vote, fakeAction)) *Runner {
	t.Helper()
	cfg := DefaultRunnerConfig()
	cfg.IterationTimeout = 2 * time.Second
	cfg.StartupTimeout = 2 * time.Second
	r := NewRunner("", t.TempDir(), cfg)
	r.newProcess = func() controllerProcess {
		return &fakeProcess{workdir: r.Workdir, respond: respond}
	}
	return r
}

func TestRunner_AllIterationsPass(t *testing.T) {
	// GIVEN a controller that echoes the oracle for every iteration
	tc := ipcCaseDir(t, "p1", 3)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		return oracleVote(st.Idx, 1.0), actRespond
	})

	// WHEN the test case runs
	res := r.RunTestCase(tc)

	// THEN every iteration validated
	assert.True(t, res.Passed)
	assert.Equal(t, 3, res.IterationsRun)
	assert.Equal(t, 0, res.FailedAt)
	require.Len(t, res.Iterations, 3)
	for _, iter := range res.Iterations {
		assert.True(t, iter.Passed())
	}
}

func TestRunner_IndexMismatchFailsCase(t *testing.T) {
	tc := ipcCaseDir(t, "n1", 2)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		return oracleVote(st.Idx+1, 1.0), actRespond
	})

	res := r.RunTestCase(tc)

	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.FailedAt)
	// Validation failure without ContinueOnFailure stops the case.
	assert.Equal(t, 1, res.IterationsRun)
}

func TestRunner_CrashTerminatesRemainingIterations(t *testing.T) {
	// GIVEN a controller that dies while handling iteration 2 of 4
	tc := ipcCaseDir(t, "n2", 4)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		if iteration == 2 {
			return nil, actCrash
		}
		return oracleVote(st.Idx, 1.0), actRespond
	})

	res := r.RunTestCase(tc)

	// THEN the case fails at iteration 2 and iterations 3 and 4 never run
	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.FailedAt)
	assert.Equal(t, 2, res.IterationsRun)
	crash, ok := res.Iterations[1].Validation.Failure.(ControllerCrash)
	require.True(t, ok)
	assert.Equal(t, 139, crash.ExitCode)
	assert.Equal(t, "response-wait", crash.Phase)
}

func TestRunner_SilentControllerTimesOut(t *testing.T) {
	tc := ipcCaseDir(t, "n3", 2)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		return nil, actHang
	})
	r.Config.IterationTimeout = 100 * time.Millisecond

	res := r.RunTestCase(tc)

	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.FailedAt)
	timeout, ok := res.Iterations[0].Validation.Failure.(ControllerTimeout)
	require.True(t, ok)
	assert.Equal(t, "response-wait", timeout.Phase)
}

func TestRunner_MissingOracleEndsCase(t *testing.T) {
	tc := ipcCaseDir(t, "n4", 2)
	require.NoError(t, os.Remove(tc.OracleFile(2)))
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		return oracleVote(st.Idx, 1.0), actRespond
	})

	res := r.RunTestCase(tc)

	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.FailedAt)
	missing, ok := res.Iterations[1].Validation.Failure.(FileMissing)
	require.True(t, ok)
	assert.Equal(t, tc.OracleFile(2), missing.Path)
}

func TestRunner_ContinueOnFailureRunsAllIterations(t *testing.T) {
	// GIVEN iteration 3 of 5 producing a distant vote, the rest matching
	tc := ipcCaseDir(t, "n5", 5)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		if iteration == 3 {
			return oracleVote(st.Idx, -1.0), actRespond
		}
		return oracleVote(st.Idx, 1.0), actRespond
	})
	r.Config.ContinueOnFailure = true

	// WHEN the test case runs to completion
	res := r.RunTestCase(tc)

	// THEN all 5 iterations ran but the first failure stayed final
	assert.False(t, res.Passed)
	assert.Equal(t, 3, res.FailedAt)
	assert.Equal(t, 5, res.IterationsRun)
	assert.True(t, res.Iterations[3].Passed())
	assert.True(t, res.Iterations[4].Passed())
}

func TestRunner_StartupTimeout(t *testing.T) {
	tc := ipcCaseDir(t, "n6", 1)
	cfg := DefaultRunnerConfig()
	cfg.StartupTimeout = 100 * time.Millisecond
	r := NewRunner("", t.TempDir(), cfg)
	r.newProcess = func() controllerProcess {
		// Never creates the flag.
		return &silentProcess{}
	}

	res := r.RunTestCase(tc)

	assert.False(t, res.Passed)
	assert.Contains(t, res.FailureReason, "failed to start")
}

type silentProcess struct{}

func (*silentProcess) Start() error  { return nil }
func (*silentProcess) Exited() bool  { return false }
func (*silentProcess) ExitCode() int { return 0 }
func (*silentProcess) Stop()         {}

func TestRunner_TeardownRemovesIPCFiles(t *testing.T) {
	tc := ipcCaseDir(t, "p2", 1)
	r := fakeRunner(t, func(iteration int, st *State) (*Vote, fakeAction) {
		return oracleVote(st.Idx, 1.0), actRespond
	})

	res := r.RunTestCase(tc)
	require.True(t, res.Passed)

	for _, name := range []string{stateFileName, dataFileName, flagFileName} {
		_, err := os.Stat(filepath.Join(r.Workdir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
}
