package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctrlfault/ctrlfault/harness/sbfl"
	"github.com/ctrlfault/ctrlfault/harness/store"
)

var (
	localizeDBPath string
	localizeRunID  string
	localizeMetric string
	localizeTop    int
)

// localizeCmd re-ranks a persisted run's coverage matrix, optionally
// under a different metric. Identical matrix contents always reproduce
// an identical ordering.
var localizeCmd = &cobra.Command{
	Use:   "localize",
	Short: "Rank suspicious lines from a persisted run",
	Run: func(cmd *cobra.Command, args []string) {
		if localizeDBPath == "" {
			logrus.Fatalf("--db is required")
		}
		metric, err := sbfl.ParseMetric(localizeMetric)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		db, err := store.Open(localizeDBPath)
		if err != nil {
			logrus.Fatalf("open results store: %v", err)
		}
		defer db.Close()

		runID := localizeRunID
		if runID == "" {
			runID, err = db.LatestRun()
			if err != nil {
				logrus.Fatalf("no runs in store: %v", err)
			}
		}

		matrix, err := db.LoadMatrix(runID)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Run %s: %d test cases (%d failing, %d passing)",
			runID, len(matrix.TestCases()), matrix.NumFailing(), matrix.NumPassing())

		ranked := matrix.Rank(metric, localizeTop)
		fmt.Printf("=== Top %d suspicious lines (%s) ===\n", len(ranked), metric)
		for i, s := range ranked {
			fmt.Printf("%3d. line %4d: %.3f (ef=%d ep=%d)\n", i+1, s.Line, s.Score, s.Ef, s.Ep)
		}
	},
}

func init() {
	localizeCmd.Flags().StringVar(&localizeDBPath, "db", "", "SQLite results store path")
	localizeCmd.Flags().StringVar(&localizeRunID, "run", "", "Run identifier (default: latest)")
	localizeCmd.Flags().StringVar(&localizeMetric, "metric", "ochiai", "Suspiciousness metric (ochiai, tarantula, dstar, jaccard)")
	localizeCmd.Flags().IntVar(&localizeTop, "top", 15, "Top suspicious lines to report")
	rootCmd.AddCommand(localizeCmd)
}
