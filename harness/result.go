package harness

import (
	"fmt"
	"sort"
	"time"
)

// IterationResult is the outcome of one controller invocation.
type IterationResult struct {
	Iteration  int // 1-based
	Validation Validation
	Duration   time.Duration
}

// Passed reports whether the iteration's output validated.
func (r IterationResult) Passed() bool {
	return r.Validation.Passed
}

// TestCaseResult is the verdict for one complete test case. A test case
// passes iff every iteration passed; a failure at iteration i is final
// and is never overwritten by later iterations.
type TestCaseResult struct {
	TestName        string
	Passed          bool
	IterationsRun   int
	IterationsTotal int
	FailedAt        int    // 1-based iteration, 0 when passed
	FailureReason   string // empty when passed
	Iterations      []IterationResult
	Duration        time.Duration
}

func (r *TestCaseResult) String() string {
	if r.Passed {
		return fmt.Sprintf("%s: PASS (%d/%d iterations)", r.TestName, r.IterationsRun, r.IterationsTotal)
	}
	return fmt.Sprintf("%s: FAIL at iteration %d - %s", r.TestName, r.FailedAt, r.FailureReason)
}

// SuiteResult aggregates per-test-case verdicts for one run of the whole
// test tree.
type SuiteResult struct {
	Results map[string]*TestCaseResult
}

// Failing returns the names of failing test cases, sorted.
func (s *SuiteResult) Failing() []string {
	var names []string
	for name, r := range s.Results {
		if !r.Passed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Passing returns the names of passing test cases, sorted.
func (s *SuiteResult) Passing() []string {
	var names []string
	for name, r := range s.Results {
		if r.Passed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Print displays the per-test-case verdicts and a pass/fail tally.
func (s *SuiteResult) Print() {
	fmt.Println("=== Test Results ===")
	var names []string
	for name := range s.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s\n", s.Results[name])
	}
	fmt.Printf("Passed: %d  Failed: %d\n", len(s.Passing()), len(s.Failing()))
}
