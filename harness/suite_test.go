package harness

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suiteCases(names ...string) []*TestCase {
	cases := make([]*TestCase, len(names))
	for i, name := range names {
		cases[i] = &TestCase{Name: name, Iterations: 1}
	}
	return cases
}

func TestSuite_RunValidation_CollectsAllResults(t *testing.T) {
	s := &Suite{Cases: suiteCases("n1", "p1", "p2"), Parallelism: 2}

	res, err := s.RunValidation(context.Background(), func(ctx context.Context, tc *TestCase, workdir string) *TestCaseResult {
		return &TestCaseResult{TestName: tc.Name, Passed: tc.Name != "n1"}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"n1"}, res.Failing())
	assert.Equal(t, []string{"p1", "p2"}, res.Passing())
}

func TestSuite_RunValidation_IsolatedWorkdirs(t *testing.T) {
	// GIVEN test cases running in parallel
	s := &Suite{Cases: suiteCases("p1", "p2", "p3", "p4"), Parallelism: 4}

	var mu sync.Mutex
	seen := make(map[string]bool)
	_, err := s.RunValidation(context.Background(), func(ctx context.Context, tc *TestCase, workdir string) *TestCaseResult {
		// WHEN each inspects its working directory
		info, statErr := os.Stat(workdir)
		require.NoError(t, statErr)
		require.True(t, info.IsDir())
		mu.Lock()
		seen[workdir] = true
		mu.Unlock()
		return &TestCaseResult{TestName: tc.Name, Passed: true}
	})
	require.NoError(t, err)

	// THEN no two cases shared one
	assert.Len(t, seen, 4)
}

func TestSuite_RunValidation_FailingCaseDoesNotAbortOthers(t *testing.T) {
	s := &Suite{Cases: suiteCases("n1", "p1")}

	res, err := s.RunValidation(context.Background(), func(ctx context.Context, tc *TestCase, workdir string) *TestCaseResult {
		return &TestCaseResult{TestName: tc.Name, Passed: tc.Name == "p1", FailureReason: "controller crashed"}
	})
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.False(t, res.Results["n1"].Passed)
	assert.True(t, res.Results["p1"].Passed)
}

func TestSuite_CollectCoverage_SequentialPerCase(t *testing.T) {
	// Coverage collection shares one counter store, so cases must not
	// overlap in time.
	s := &Suite{Cases: suiteCases("n1", "p1"), Parallelism: 4}

	inFlight := 0
	order := []string{}
	coverage, runs, err := s.CollectCoverage(context.Background(), func(ctx context.Context, tc *TestCase) (*LineCoverage, *CoverageRun, error) {
		inFlight++
		require.Equal(t, 1, inFlight)
		defer func() { inFlight-- }()
		order = append(order, tc.Name)
		cov := ParseGcov([]string{"        1:    5:x();"})
		return cov, &CoverageRun{Outcome: CompletedAllIterations}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "p1"}, order)
	assert.Len(t, coverage, 2)
	assert.Equal(t, CompletedAllIterations, runs["p1"].Outcome)
}
