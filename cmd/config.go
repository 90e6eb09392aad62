package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ctrlfault/ctrlfault/harness"
)

// Define struct for YAML
type HarnessConfig struct {
	Epsilon              float64 `yaml:"epsilon"`
	IterationTimeoutSecs float64 `yaml:"iteration_timeout_secs"`
	StartupTimeoutSecs   float64 `yaml:"startup_timeout_secs"`
	PollIntervalMillis   int     `yaml:"poll_interval_ms"`
	Metric               string  `yaml:"metric"`
	TopLines             int     `yaml:"top_lines"`
	Parallelism          int     `yaml:"parallelism"`
	ContinueOnFailure    bool    `yaml:"continue_on_failure"`
}

// DefaultHarnessConfig mirrors harness.DefaultRunnerConfig plus the
// reporting defaults.
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		Epsilon:              0.5,
		IterationTimeoutSecs: 5,
		StartupTimeoutSecs:   10,
		PollIntervalMillis:   1,
		Metric:               "ochiai",
		TopLines:             15,
		Parallelism:          1,
	}
}

// LoadHarnessConfig reads a yaml config file, falling back to defaults
// for a missing path.
func LoadHarnessConfig(path string) HarnessConfig {
	cfg := DefaultHarnessConfig()
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("unable to read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Fatalf("unable to parse config %s: %v", path, err)
	}
	logrus.Infof("Using config %s", path)
	return cfg
}

// RunnerConfig converts the yaml settings into the IPC runner's config.
func (c HarnessConfig) RunnerConfig() harness.RunnerConfig {
	return harness.RunnerConfig{
		Epsilon:           c.Epsilon,
		IterationTimeout:  time.Duration(c.IterationTimeoutSecs * float64(time.Second)),
		StartupTimeout:    time.Duration(c.StartupTimeoutSecs * float64(time.Second)),
		PollInterval:      time.Duration(c.PollIntervalMillis) * time.Millisecond,
		ContinueOnFailure: c.ContinueOnFailure,
	}
}
