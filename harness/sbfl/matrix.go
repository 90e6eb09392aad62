// Package sbfl implements spectrum-based fault localization: it
// aggregates per-test-case line coverage and pass/fail verdicts into a
// suspiciousness ranking over source lines.
//
// Coverage is recorded at the test-case level, not per iteration. A test
// case may run many stateful iterations, but it contributes exactly one
// (line set, verdict) observation to the matrix.
package sbfl

import "sort"

// Matrix maps test-case names to their covered line set and verdict.
// Re-recording a test case replaces its previous entry. A matrix is valid
// for one source build only; it must be rebuilt whenever the source file
// changes, since line numbers shift.
type Matrix struct {
	coverage map[string]map[int]bool
	results  map[string]bool
	counts   map[string]map[int]uint64

	// SourceFile is the file the line numbers refer to, kept for
	// reporting.
	SourceFile string
}

// NewMatrix returns an empty coverage matrix.
func NewMatrix(sourceFile string) *Matrix {
	return &Matrix{
		coverage:   make(map[string]map[int]bool),
		results:    make(map[string]bool),
		counts:     make(map[string]map[int]uint64),
		SourceFile: sourceFile,
	}
}

// Record stores one test case's observation. Last write wins for a given
// test name.
func (m *Matrix) Record(testName string, coveredLines map[int]bool, passed bool) {
	lines := make(map[int]bool, len(coveredLines))
	for line := range coveredLines {
		lines[line] = true
	}
	m.coverage[testName] = lines
	m.results[testName] = passed
	delete(m.counts, testName)
}

// RecordCounts stores an observation with per-line hit counts.
func (m *Matrix) RecordCounts(testName string, counts map[int]uint64, passed bool) {
	lines := make(map[int]bool, len(counts))
	kept := make(map[int]uint64, len(counts))
	for line, n := range counts {
		if n == 0 {
			continue
		}
		lines[line] = true
		kept[line] = n
	}
	m.coverage[testName] = lines
	m.results[testName] = passed
	m.counts[testName] = kept
}

// SetResult overrides the verdict of an already-recorded test case.
func (m *Matrix) SetResult(testName string, passed bool) {
	if _, ok := m.coverage[testName]; ok {
		m.results[testName] = passed
	}
}

// TestCases returns the recorded test names, sorted.
func (m *Matrix) TestCases() []string {
	names := make([]string, 0, len(m.coverage))
	for name := range m.coverage {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Covered reports whether the named test case covered the line.
func (m *Matrix) Covered(testName string, line int) bool {
	return m.coverage[testName][line]
}

// Result returns the recorded verdict for a test case.
func (m *Matrix) Result(testName string) (passed, ok bool) {
	passed, ok = m.results[testName]
	return
}

// HitCount returns the recorded hit count for a (test, line) pair, 0 when
// none was recorded.
func (m *Matrix) HitCount(testName string, line int) uint64 {
	return m.counts[testName][line]
}

// AllLines returns the union of lines covered by any recorded test case,
// sorted ascending. Lines present in only some test cases' reports are
// included.
func (m *Matrix) AllLines() []int {
	set := make(map[int]bool)
	for _, lines := range m.coverage {
		for line := range lines {
			set[line] = true
		}
	}
	out := make([]int, 0, len(set))
	for line := range set {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}

// NumFailing returns the count of recorded failing test cases.
func (m *Matrix) NumFailing() int {
	n := 0
	for _, passed := range m.results {
		if !passed {
			n++
		}
	}
	return n
}

// NumPassing returns the count of recorded passing test cases.
func (m *Matrix) NumPassing() int {
	return len(m.results) - m.NumFailing()
}

// Counts returns (ef, ep) for a line: how many failing and passing test
// cases cover it.
func (m *Matrix) Counts(line int) (ef, ep int) {
	for name, lines := range m.coverage {
		if !lines[line] {
			continue
		}
		if m.results[name] {
			ep++
		} else {
			ef++
		}
	}
	return ef, ep
}
