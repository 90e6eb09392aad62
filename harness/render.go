package harness

import (
	"fmt"
	"strings"
)

// FormatState renders a decoded State as human-readable text for
// diagnostics and downstream repair tooling. Only the declared portion of
// each array is shown.
func FormatState(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "idx: %d\n", s.Idx)
	fmt.Fprintf(&b, "cur_time_seconds: %d\n", s.CurTimeSec)
	fmt.Fprintf(&b, "joint_names (%d): %v\n", len(s.Trajectory.JointNames), s.Trajectory.JointNames)
	fmt.Fprintf(&b, "points_length: %d", s.Trajectory.PointsLen)
	for i := range s.Trajectory.Points {
		pt := &s.Trajectory.Points[i]
		fmt.Fprintf(&b, "\n  point[%d]: positions(%d)=%v, velocities(%d)=%v, accelerations(%d)=%v, effort(%d)=%v, time=%ds+%dns",
			i,
			pt.PositionsLen, declared(pt.PositionsLen, &pt.Positions),
			pt.VelocitiesLen, declared(pt.VelocitiesLen, &pt.Velocities),
			pt.AccelerationsLen, declared(pt.AccelerationsLen, &pt.Accelerations),
			pt.EffortLen, declared(pt.EffortLen, &pt.Effort),
			pt.TimeFromStartSec, pt.TimeFromStartNsec)
	}
	return b.String()
}

func declared(n uint64, values *[MaxJointValues]float64) []float64 {
	if n > MaxJointValues {
		n = MaxJointValues
	}
	return values[:n]
}
