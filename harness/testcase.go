package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TestCase describes one test-case directory. Iterations are the files
// t1..tN inside it (inputs) paired with output.t1..output.tN (oracles).
// Iterations share one controller instance and are strictly ordered: the
// controller accumulates internal state across them.
type TestCase struct {
	Name       string
	Path       string
	Iterations int

	// ExpectedPass is derived from the directory name prefix (p* expected
	// to pass, n* expected to fail). It classifies the test case for
	// reporting only; actual verdicts always come from validation.
	ExpectedPass bool
}

// InputFile returns the path of the input State for a 1-based iteration.
func (tc *TestCase) InputFile(iteration int) string {
	return filepath.Join(tc.Path, fmt.Sprintf("t%d", iteration))
}

// OracleFile returns the path of the oracle Vote for a 1-based iteration.
func (tc *TestCase) OracleFile(iteration int) string {
	return filepath.Join(tc.Path, fmt.Sprintf("output.t%d", iteration))
}

// TestCaseFromDir builds a TestCase from a directory, counting contiguous
// t1, t2, ... input files. A gap ends the sequence.
func TestCaseFromDir(dir string) (*TestCase, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test case %s: not a directory", dir)
	}

	tc := &TestCase{
		Name:         filepath.Base(dir),
		Path:         dir,
		ExpectedPass: strings.HasPrefix(filepath.Base(dir), "p"),
	}
	for i := 1; ; i++ {
		if _, err := os.Stat(tc.InputFile(i)); err != nil {
			break
		}
		tc.Iterations = i
	}
	return tc, nil
}

// DiscoverTestCases scans baseDir for test-case directories named with an
// "n" (expected-fail) or "p" (expected-pass) prefix. Directories with no
// iteration files are skipped. The result is sorted by name so runs are
// reproducible.
func DiscoverTestCases(baseDir string) ([]*TestCase, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("discover test cases: %w", err)
	}

	var cases []*TestCase
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "n") && !strings.HasPrefix(name, "p") {
			continue
		}
		tc, err := TestCaseFromDir(filepath.Join(baseDir, name))
		if err != nil {
			return nil, err
		}
		if tc.Iterations == 0 {
			continue
		}
		cases = append(cases, tc)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}
