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
	coverController string   // registered controller name (self re-exec worker)
	coverRunnerCmd  []string // external native coverage runner argv
	coverCounters   string   // counter report path
	coverStatus     string   // worker status file path
	coverDir        string   // worker working directory
)

// coverCmd is the coverage-driver CLI surface. It supervises one worker
// run over one test case and exits with the worker's outcome code:
// 0 completed, 1 usage/file error, 2 iteration timeout, 3 forced kill.
var coverCmd = &cobra.Command{
	Use:   "cover <test_dir> <iterations> [timeout_secs]",
	Short: "Collect line coverage for one test case under a supervised worker",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		testDir := args[0]
		iterations, err := strconv.Atoi(args[1])
		if err != nil || iterations <= 0 {
			logrus.Errorf("invalid iteration count %q", args[1])
			os.Exit(harness.ExitFileError)
		}
		timeoutSecs := 5
		if len(args) >= 3 {
			if n, err := strconv.Atoi(args[2]); err == nil && n > 0 {
				timeoutSecs = n
			}
		}

		var workerArgv []string
		switch {
		case len(coverRunnerCmd) > 0:
			workerArgv = append(append([]string{}, coverRunnerCmd...),
				testDir, strconv.Itoa(iterations), strconv.Itoa(timeoutSecs))
		case coverController != "":
			self, err := os.Executable()
			if err != nil {
				logrus.Errorf("resolve own executable: %v", err)
				os.Exit(harness.ExitFileError)
			}
			workerArgv = []string{
				self, "cover-worker",
				"--controller", coverController,
				"--counters", coverCounters,
				"--status", coverStatus,
				testDir, strconv.Itoa(iterations), strconv.Itoa(timeoutSecs),
			}
		default:
			logrus.Error("either --controller or --runner-cmd is required")
			os.Exit(harness.ExitFileError)
		}

		sup := &harness.Supervisor{
			Command:          workerArgv,
			Dir:              coverDir,
			Iterations:       iterations,
			IterationTimeout: time.Duration(timeoutSecs) * time.Second,
			StatusFile:       coverStatus,
		}
		run, err := sup.Run()
		if err != nil {
			logrus.Errorf("coverage run: %v", err)
			os.Exit(harness.ExitFileError)
		}
		logrus.Infof("coverage run finished: %s (exit %d)", run.Outcome, run.ExitCode)
		os.Exit(run.ExitCode)
	},
}

func init() {
	coverCmd.Flags().StringVar(&coverController, "controller", "", "Registered controller to drive in worker mode")
	coverCmd.Flags().StringSliceVar(&coverRunnerCmd, "runner-cmd", nil, "External coverage runner argv (receives test_dir, iterations, timeout_secs)")
	coverCmd.Flags().StringVar(&coverCounters, "counters", "coverage.counters", "Counter report file written by the worker")
	coverCmd.Flags().StringVar(&coverStatus, "status", "coverage.status", "Worker status file")
	coverCmd.Flags().StringVar(&coverDir, "dir", "", "Working directory for the worker")
	rootCmd.AddCommand(coverCmd)
}
