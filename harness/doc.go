// Package harness drives a stateful native controller through replayable
// test cases and feeds the outcomes into spectrum-based fault
// localization.
//
// # Reading Guide
//
// Start with these three files to understand the execution model:
//   - testcase.go: test-case discovery and the iteration file layout
//   - ipcrunner.go: the flag-file handshake used to validate a controller
//     executable against oracle outputs
//   - covdriver.go: the supervisor/worker pair that replays iterations
//     directly for line-coverage collection, surviving hangs and crashes
//
// # Architecture
//
// The package splits into codec (record.go, codec.go, render.go),
// validation (validator.go), coverage (gcov.go, covdriver.go, native.go,
// controller.go) and orchestration (suite.go, result.go). Localization
// lives in the harness/sbfl sub-package; run persistence in
// harness/store.
//
// Two process-level concurrency points exist: the coverage
// supervisor/worker pair (communicating via exit status and the counter
// file) and the runner/controller pair (communicating via flag-file
// existence). The suite may run whole test cases in parallel, each in an
// isolated working directory; within one test case, iterations are
// strictly sequential because the controller accumulates internal state
// across them.
package harness
