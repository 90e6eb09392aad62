package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestCaseResult_String(t *testing.T) {
	pass := &TestCaseResult{TestName: "p1", Passed: true, IterationsRun: 3, IterationsTotal: 3}
	assert.Equal(t, "p1: PASS (3/3 iterations)", pass.String())

	fail := &TestCaseResult{TestName: "n1", FailedAt: 2, FailureReason: "controller crashed (response-wait, exit code 139)"}
	assert.Equal(t, "n1: FAIL at iteration 2 - controller crashed (response-wait, exit code 139)", fail.String())
}

func TestSuiteResult_Partitions(t *testing.T) {
	s := &SuiteResult{Results: map[string]*TestCaseResult{
		"n2": {TestName: "n2"},
		"p1": {TestName: "p1", Passed: true},
		"n1": {TestName: "n1"},
	}}

	assert.Equal(t, []string{"n1", "n2"}, s.Failing())
	assert.Equal(t, []string{"p1"}, s.Passing())
}
