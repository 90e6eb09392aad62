package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctrlfault/ctrlfault/harness"
)

var (
	validateExe     string
	validateTestDir string
	validateConfig  string
)

// validateCmd runs every discovered test case against a controller
// executable over the IPC handshake and prints per-case verdicts. It is
// also the re-validation entry point: a repaired candidate executable
// goes through exactly the same pipeline as the original.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a controller executable against oracle outputs",
	Run: func(cmd *cobra.Command, args []string) {
		if validateExe == "" || validateTestDir == "" {
			logrus.Fatalf("--exe and --test-dir are required")
		}
		cfg := LoadHarnessConfig(validateConfig)

		cases, err := harness.DiscoverTestCases(validateTestDir)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if len(cases) == 0 {
			logrus.Fatalf("no test cases found in %s", validateTestDir)
		}
		logrus.Infof("Found %d test cases", len(cases))

		results, err := runValidationSuite(cmd.Context(), cases, validateExe, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		results.Print()
	},
}

// runValidationSuite drives the IPC runner for every test case, one
// isolated working directory per case.
func runValidationSuite(ctx context.Context, cases []*harness.TestCase, exe string, cfg HarnessConfig) (*harness.SuiteResult, error) {
	suite := &harness.Suite{Cases: cases, Parallelism: cfg.Parallelism}
	return suite.RunValidation(ctx, func(ctx context.Context, tc *harness.TestCase, workdir string) *harness.TestCaseResult {
		runner := harness.NewRunner(exe, workdir, cfg.RunnerConfig())
		return runner.RunTestCase(tc)
	})
}

func init() {
	validateCmd.Flags().StringVar(&validateExe, "exe", "", "Controller executable")
	validateCmd.Flags().StringVar(&validateTestDir, "test-dir", "", "Base directory containing test cases")
	validateCmd.Flags().StringVar(&validateConfig, "config", "", "Harness config yaml")
	rootCmd.AddCommand(validateCmd)
}
