package harness

import (
	"context"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Suite runs a set of test cases. Iterations inside one test case are
// always strictly sequential; across test cases there is no ordering
// requirement, so the suite may run them in parallel as long as each gets
// an isolated working directory.
type Suite struct {
	Cases []*TestCase

	// Parallelism bounds concurrent test cases; <= 1 runs sequentially.
	Parallelism int
}

// RunValidation runs every test case through the given run function,
// each in its own fresh working directory. A failing test case never
// aborts the others: per-case failures are isolated and recorded, and
// only resource-acquisition errors (cannot create a workdir) fail the
// suite.
func (s *Suite) RunValidation(ctx context.Context, run func(ctx context.Context, tc *TestCase, workdir string) *TestCaseResult) (*SuiteResult, error) {
	out := &SuiteResult{Results: make(map[string]*TestCaseResult, len(s.Cases))}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.Parallelism))

	for _, tc := range s.Cases {
		tc := tc
		g.Go(func() error {
			workdir, err := os.MkdirTemp("", "ctrlfault-run-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workdir)

			res := run(ctx, tc, workdir)
			log.Infof("%s", res)

			mu.Lock()
			out.Results[res.TestName] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectCoverage gathers line coverage per test case. Collection is
// sequential: the native counter store is a single-writer resource that
// must be cleared and re-used per case, so cases cannot share it
// concurrently.
func (s *Suite) CollectCoverage(ctx context.Context, collect func(ctx context.Context, tc *TestCase) (*LineCoverage, *CoverageRun, error)) (map[string]*LineCoverage, map[string]*CoverageRun, error) {
	coverage := make(map[string]*LineCoverage, len(s.Cases))
	runs := make(map[string]*CoverageRun, len(s.Cases))

	for _, tc := range s.Cases {
		log.Infof("collecting coverage for %s...", tc.Name)
		cov, run, err := collect(ctx, tc)
		if err != nil {
			return nil, nil, err
		}
		coverage[tc.Name] = cov
		runs[tc.Name] = run
		log.Debugf("  %s: %d lines executed (%s)", tc.Name, len(cov.Executed), run.Outcome)
	}
	return coverage, runs, nil
}
