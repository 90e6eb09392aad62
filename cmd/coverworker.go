package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctrlfault/ctrlfault/harness"
)

var (
	workerController string
	workerCounters   string
	workerStatus     string
)

// coverWorkerCmd is the hidden worker half of the coverage driver. The
// cover command re-executes this binary with this subcommand so the
// iteration loop runs in an isolated process the supervisor can kill.
var coverWorkerCmd = &cobra.Command{
	Use:    "cover-worker <test_dir> <iterations> <timeout_secs>",
	Hidden: true,
	Args:   cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		iterations, err := strconv.Atoi(args[1])
		if err != nil || iterations <= 0 {
			logrus.Errorf("invalid iteration count %q", args[1])
			os.Exit(harness.ExitFileError)
		}
		timeoutSecs, err := strconv.Atoi(args[2])
		if err != nil || timeoutSecs <= 0 {
			timeoutSecs = 5
		}

		ctrl, coverage, err := harness.NewController(workerController)
		if err != nil {
			logrus.Errorf("cover-worker: %v", err)
			os.Exit(harness.ExitFileError)
		}
		tc, err := harness.TestCaseFromDir(args[0])
		if err != nil {
			logrus.Errorf("cover-worker: %v", err)
			os.Exit(harness.ExitFileError)
		}

		worker := &harness.Worker{
			Controller:  ctrl,
			Coverage:    coverage,
			Case:        tc,
			Iterations:  iterations,
			Timeout:     time.Duration(timeoutSecs) * time.Second,
			CounterFile: workerCounters,
			StatusFile:  workerStatus,
		}
		os.Exit(worker.Run())
	},
}

func init() {
	coverWorkerCmd.Flags().StringVar(&workerController, "controller", "", "Registered controller name")
	coverWorkerCmd.Flags().StringVar(&workerCounters, "counters", "coverage.counters", "Counter report file")
	coverWorkerCmd.Flags().StringVar(&workerStatus, "status", "coverage.status", "Status file")
	rootCmd.AddCommand(coverWorkerCmd)
}
