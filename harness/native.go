package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// NativeCoverage collects per-test-case line coverage from an externally
// built coverage runner (a native binary that links the controller,
// drives it directly and dumps instrumentation counters). The runner
// command receives the test directory, the iteration count and the
// timeout in seconds, and follows the worker exit-code contract.
type NativeCoverage struct {
	// RunnerCmd is the coverage runner argv prefix.
	RunnerCmd []string

	// ReportCmd, when set, is run in Dir after each test case to turn
	// raw counters into the text report (for gcov-style toolchains that
	// separate counter dumps from report generation). The command string
	// itself is opaque glue.
	ReportCmd []string

	// ReportFile is the line-coverage report to parse after each case.
	ReportFile string

	// Dir is the build directory where counters accumulate.
	Dir string

	// CleanGlobs are counter artifacts removed before each test case so
	// every case observes only its own lines (e.g. "*.gcda", "*.gcov").
	CleanGlobs []string

	IterationTimeout time.Duration
}

// cleanCounters removes stale counter artifacts. The counter store is a
// single-writer resource during a run and must start empty per case.
func (nc *NativeCoverage) cleanCounters() {
	for _, glob := range nc.CleanGlobs {
		matches, err := filepath.Glob(filepath.Join(nc.Dir, glob))
		if err != nil {
			continue
		}
		for _, m := range matches {
			_ = os.Remove(m)
		}
	}
}

// CollectCase runs the coverage runner for one test case and parses the
// resulting report. Timed-out and force-killed runs still yield whatever
// coverage was flushed before the deadline; only a missing report yields
// empty coverage.
func (nc *NativeCoverage) CollectCase(ctx context.Context, tc *TestCase) (*LineCoverage, *CoverageRun, error) {
	nc.cleanCounters()

	timeoutSecs := int(nc.IterationTimeout / time.Second)
	if timeoutSecs < 1 {
		timeoutSecs = 1
	}
	argv := append(append([]string{}, nc.RunnerCmd...),
		tc.Path, strconv.Itoa(tc.Iterations), strconv.Itoa(timeoutSecs))

	sup := &Supervisor{
		Command:          argv,
		Dir:              nc.Dir,
		Iterations:       tc.Iterations,
		IterationTimeout: nc.IterationTimeout,
	}
	run, err := sup.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("coverage runner for %s: %w", tc.Name, err)
	}
	if run.Outcome != CompletedAllIterations {
		log.Warnf("coverage runner for %s: %s (exit %d) - keeping partial coverage", tc.Name, run.Outcome, run.ExitCode)
	}

	if len(nc.ReportCmd) > 0 {
		report := exec.CommandContext(ctx, nc.ReportCmd[0], nc.ReportCmd[1:]...)
		report.Dir = nc.Dir
		if out, err := report.CombinedOutput(); err != nil {
			log.Warnf("coverage report command for %s: %v (%s)", tc.Name, err, out)
		}
	}

	cov, err := ParseGcovFile(nc.ReportFile)
	if err != nil {
		// Crashed runs can leave no report at all; an empty sample keeps
		// the test case in the matrix instead of aborting the run.
		log.Warnf("no coverage report for %s: %v", tc.Name, err)
		cov = ParseGcov(nil)
	}
	return cov, run, nil
}
