package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctrlfault/ctrlfault/harness"
	"github.com/ctrlfault/ctrlfault/harness/sbfl"
	"github.com/ctrlfault/ctrlfault/harness/store"
)

var (
	runTestDir    string
	runExe        string
	runSource     string
	runConfigPath string
	runCovRunner  []string
	runReportCmd  []string
	runReportFile string
	runBuildDir   string
	runCleanGlobs []string
	runDBPath     string
	runMetric     string
	runTopLines   int
)

// runCmd executes one full localization pass: coverage collection per
// test case, IPC validation for real verdicts, then spectrum-based
// ranking of suspicious source lines. The matrix is built fresh for the
// current source build and persisted with the verdicts and ranking.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect coverage, validate, and rank suspicious source lines",
	Run: func(cmd *cobra.Command, args []string) {
		if runTestDir == "" || runExe == "" || len(runCovRunner) == 0 {
			logrus.Fatalf("--test-dir, --exe and --cov-runner are required")
		}
		cfg := LoadHarnessConfig(runConfigPath)
		if runMetric != "" {
			cfg.Metric = runMetric
		}
		if runTopLines > 0 {
			cfg.TopLines = runTopLines
		}
		metric, err := sbfl.ParseMetric(cfg.Metric)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		// Phase 1: discovery.
		cases, err := harness.DiscoverTestCases(runTestDir)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if len(cases) == 0 {
			logrus.Fatalf("no test cases found in %s", runTestDir)
		}
		names := make([]string, len(cases))
		for i, tc := range cases {
			names[i] = tc.Name
		}
		logrus.Infof("Found %d test cases: %v", len(cases), names)

		// Phase 2: per-test-case coverage via the supervised native
		// runner.
		native := &harness.NativeCoverage{
			RunnerCmd:        runCovRunner,
			ReportCmd:        runReportCmd,
			ReportFile:       runReportFile,
			Dir:              runBuildDir,
			CleanGlobs:       runCleanGlobs,
			IterationTimeout: time.Duration(cfg.IterationTimeoutSecs * float64(time.Second)),
		}
		suite := &harness.Suite{Cases: cases, Parallelism: cfg.Parallelism}
		coverage, _, err := suite.CollectCoverage(cmd.Context(), native.CollectCase)
		if err != nil {
			logrus.Fatalf("coverage collection: %v", err)
		}

		// Phase 3: real verdicts via the IPC runner.
		logrus.Info("Running baseline validation...")
		results, err := runValidationSuite(cmd.Context(), cases, runExe, cfg)
		if err != nil {
			logrus.Fatalf("validation: %v", err)
		}
		results.Print()

		// Verdicts always come from validation, never from the n*/p*
		// naming convention.
		matrix := sbfl.NewMatrix(runSource)
		for _, tc := range cases {
			res := results.Results[tc.Name]
			matrix.RecordCounts(tc.Name, coverage[tc.Name].Counts, res.Passed)
		}

		if matrix.NumFailing() == 0 {
			fmt.Println("All tests pass - nothing to localize.")
			return
		}

		// Phase 4: rank.
		ranked := matrix.Rank(metric, cfg.TopLines)
		sourceLines := readSourceLines(runSource)
		fmt.Printf("=== Top %d suspicious lines (%s) ===\n", len(ranked), metric)
		for i, s := range ranked {
			text := strings.TrimSpace(sourceLines[s.Line])
			if len(text) > 60 {
				text = text[:60]
			}
			fmt.Printf("%3d. line %4d: %.3f (ef=%d ep=%d)  %s\n", i+1, s.Line, s.Score, s.Ef, s.Ep, text)
		}

		printFirstFailingInput(cases, results)

		if runDBPath != "" {
			persistRun(cfg, metric, matrix, results, ranked)
		}
	},
}

// readSourceLines maps 1-based line numbers to source text, matching the
// numbering of the coverage reports. Missing files just mean no text in
// the ranking output.
func readSourceLines(path string) map[int]string {
	lines := make(map[int]string)
	if path == "" {
		return lines
	}
	f, err := os.Open(path)
	if err != nil {
		logrus.Warnf("cannot read source %s: %v", path, err)
		return lines
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		lines[i] = sc.Text()
	}
	return lines
}

// printFirstFailingInput renders the decoded input of the first failing
// iteration for diagnostics and downstream repair tooling.
func printFirstFailingInput(cases []*harness.TestCase, results *harness.SuiteResult) {
	byName := make(map[string]*harness.TestCase, len(cases))
	for _, tc := range cases {
		byName[tc.Name] = tc
	}
	for _, name := range results.Failing() {
		res := results.Results[name]
		tc := byName[name]
		if tc == nil || res.FailedAt == 0 {
			continue
		}
		state, err := harness.DecodeStateFile(tc.InputFile(res.FailedAt))
		if err != nil {
			logrus.Warnf("cannot decode failing input %s: %v", tc.InputFile(res.FailedAt), err)
			return
		}
		fmt.Printf("=== Failing input: %s iteration %d ===\n%s\n", name, res.FailedAt, harness.FormatState(state))
		return
	}
}

func persistRun(cfg HarnessConfig, metric sbfl.Metric, matrix *sbfl.Matrix, results *harness.SuiteResult, ranked []sbfl.Score) {
	db, err := store.Open(runDBPath)
	if err != nil {
		logrus.Errorf("open results store: %v", err)
		return
	}
	defer db.Close()

	runID, err := db.NewRun(runSource, string(metric), cfg.Epsilon)
	if err != nil {
		logrus.Errorf("persist run: %v", err)
		return
	}
	for _, name := range matrix.TestCases() {
		res := results.Results[name]
		if err := db.SaveVerdict(runID, name, res.Passed, res.FailedAt, res.FailureReason); err != nil {
			logrus.Errorf("persist verdict %s: %v", name, err)
		}
		counts := make(map[int]uint64)
		for _, line := range matrix.AllLines() {
			if matrix.Covered(name, line) {
				counts[line] = matrix.HitCount(name, line)
			}
		}
		if err := db.SaveCoverage(runID, name, counts); err != nil {
			logrus.Errorf("persist coverage %s: %v", name, err)
		}
	}
	if err := db.SaveRanking(runID, ranked); err != nil {
		logrus.Errorf("persist ranking: %v", err)
	}
	logrus.Infof("Run persisted as %s", runID)
}

func init() {
	runCmd.Flags().StringVar(&runTestDir, "test-dir", "", "Base directory containing test cases")
	runCmd.Flags().StringVar(&runExe, "exe", "", "Controller executable for IPC validation")
	runCmd.Flags().StringVar(&runSource, "source", "", "Controller source file (for line text in the ranking)")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Harness config yaml")
	runCmd.Flags().StringSliceVar(&runCovRunner, "cov-runner", nil, "Coverage runner argv (receives test_dir, iterations, timeout_secs)")
	runCmd.Flags().StringSliceVar(&runReportCmd, "report-cmd", nil, "Command run after each case to produce the coverage report")
	runCmd.Flags().StringVar(&runReportFile, "report-file", "", "Coverage report file to parse after each case")
	runCmd.Flags().StringVar(&runBuildDir, "build-dir", ".", "Directory where coverage counters accumulate")
	runCmd.Flags().StringSliceVar(&runCleanGlobs, "clean", []string{"*.gcda", "*.gcov"}, "Counter artifacts removed before each test case")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite results store path")
	runCmd.Flags().StringVar(&runMetric, "metric", "", "Suspiciousness metric (ochiai, tarantula, dstar, jaccard)")
	runCmd.Flags().IntVar(&runTopLines, "top", 0, "Top suspicious lines to report")
	rootCmd.AddCommand(runCmd)
}
