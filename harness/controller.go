package harness

import (
	"fmt"
	"sort"
)

// Controller is a handle to the controller under test when it is driven
// directly (no IPC). Implementations wrap either a linked unit or an
// in-process reimplementation used for exercising the harness itself.
// Step is called once per iteration and the controller is expected to
// retain internal state between calls.
type Controller interface {
	Init() error
	Step(s *State) (*Vote, error)
}

// CoverageRecorder exposes a controller's per-line execution counters.
// The counter store is a single-writer resource: only the worker driving
// the controller reads and resets it during a coverage run.
type CoverageRecorder interface {
	Counters() map[int]uint64
	Reset()
}

// Probe is a CoverageRecorder that instrumented controllers call to
// record line hits. It is not safe for concurrent use; the worker runs
// the controller on a single goroutine.
type Probe struct {
	counts map[int]uint64
}

// NewProbe returns an empty line-hit probe.
func NewProbe() *Probe {
	return &Probe{counts: make(map[int]uint64)}
}

// Hit records one execution of a source line.
func (p *Probe) Hit(line int) {
	p.counts[line]++
}

// Counters returns a copy of the accumulated per-line counts.
func (p *Probe) Counters() map[int]uint64 {
	out := make(map[int]uint64, len(p.counts))
	for line, n := range p.counts {
		out[line] = n
	}
	return out
}

// Reset clears the counters. Called between test cases so each test case
// observes only its own lines.
func (p *Probe) Reset() {
	p.counts = make(map[int]uint64)
}

// ControllerFactory builds a controller plus its coverage recorder.
type ControllerFactory func() (Controller, CoverageRecorder, error)

var controllerRegistry = make(map[string]ControllerFactory)

// RegisterController makes a controller implementation available to the
// worker subcommand under the given name. Typically called from init() by
// packages embedding the harness.
func RegisterController(name string, factory ControllerFactory) {
	if _, dup := controllerRegistry[name]; dup {
		panic(fmt.Sprintf("controller %q registered twice", name))
	}
	controllerRegistry[name] = factory
}

// NewController instantiates a registered controller.
func NewController(name string) (Controller, CoverageRecorder, error) {
	factory, ok := controllerRegistry[name]
	if !ok {
		return nil, nil, fmt.Errorf("no controller registered as %q (have %v)", name, registeredControllers())
	}
	return factory()
}

func registeredControllers() []string {
	names := make([]string, 0, len(controllerRegistry))
	for name := range controllerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
