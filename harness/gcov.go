package harness

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// gcov report lines look like
//
//	count:line_no:source text
//
// where count is a number, "-" (non-executable), "#####" (executable but
// never executed), "=====" (exceptional path, never taken), or a run of
// "*" in some tool variants. Column widths and leading whitespace vary
// between gcov versions, so matching is structural rather than positional.
var gcovLinePattern = regexp.MustCompile(`^\s*([0-9]+|-|#####|=====|\*+):\s*(\d+):(.*)$`)

// GcovLine is one parsed line of a gcov report.
type GcovLine struct {
	LineNumber int
	Count      uint64
	Executable bool
	Source     string
}

// Executed reports whether the line ran at least once.
func (l GcovLine) Executed() bool {
	return l.Executable && l.Count > 0
}

// LineCoverage is the classification of one source file's lines into
// three disjoint sets, plus hit counts for executed lines.
type LineCoverage struct {
	Executed      map[int]bool
	NotExecuted   map[int]bool // executable but never ran
	NonExecutable map[int]bool
	Counts        map[int]uint64
}

// ParseGcovLine parses one raw report line. It returns ok=false for lines
// that do not follow the gcov shape or for the line-0 header; crashed runs
// routinely truncate or garble reports, so unrecognized input is skipped
// rather than treated as an error.
func ParseGcovLine(raw string) (GcovLine, bool) {
	m := gcovLinePattern.FindStringSubmatch(raw)
	if m == nil {
		return GcovLine{}, false
	}
	lineNo, err := strconv.Atoi(m[2])
	if err != nil || lineNo == 0 {
		return GcovLine{}, false
	}

	gl := GcovLine{LineNumber: lineNo, Source: m[3]}
	countStr := m[1]
	switch {
	case countStr == "-":
		// Non-executable: blank line, comment, declaration.
	case countStr == "#####" || countStr == "=====" || strings.HasPrefix(countStr, "*"):
		gl.Executable = true
	default:
		n, err := strconv.ParseUint(countStr, 10, 64)
		if err != nil {
			return gl, true // treated as non-executable
		}
		gl.Executable = true
		gl.Count = n
	}
	return gl, true
}

// ParseGcov classifies every line of a gcov report. Later entries for the
// same line number win, matching gcov's own ordering for template bodies.
func ParseGcov(lines []string) *LineCoverage {
	cov := &LineCoverage{
		Executed:      make(map[int]bool),
		NotExecuted:   make(map[int]bool),
		NonExecutable: make(map[int]bool),
		Counts:        make(map[int]uint64),
	}
	for _, raw := range lines {
		gl, ok := ParseGcovLine(raw)
		if !ok {
			continue
		}
		delete(cov.Executed, gl.LineNumber)
		delete(cov.NotExecuted, gl.LineNumber)
		delete(cov.NonExecutable, gl.LineNumber)
		delete(cov.Counts, gl.LineNumber)
		switch {
		case gl.Executed():
			cov.Executed[gl.LineNumber] = true
			cov.Counts[gl.LineNumber] = gl.Count
		case gl.Executable:
			cov.NotExecuted[gl.LineNumber] = true
		default:
			cov.NonExecutable[gl.LineNumber] = true
		}
	}
	return cov
}

// ParseGcovFile parses a gcov report from disk.
func ParseGcovFile(path string) (*LineCoverage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ParseGcov(lines), nil
}
