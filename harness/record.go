package harness

// Fixed capacities of the controller's wire records. The controller under
// test is a native program whose structs are exchanged as raw memory
// images, so every array below is fixed-size on the wire regardless of the
// declared element count.
const (
	// MaxJointValues is the slot count of each per-joint double array
	// (positions, velocities, accelerations, effort).
	MaxJointValues = 100

	// MaxTrajectoryPoints is the slot count of a trajectory's point array.
	MaxTrajectoryPoints = 256

	// MaxJointNames is the slot count of a trajectory's name table.
	MaxJointNames = 10

	// JointNameWidth is the fixed byte width of one name slot.
	JointNameWidth = 256
)

// TrajectoryPoint is one sample of a joint-space trajectory. Each array
// carries a declared length alongside a fixed-capacity backing array;
// slots beyond the declared length are defined-but-ignored padding and are
// preserved across encode/decode.
type TrajectoryPoint struct {
	PositionsLen     uint64
	Positions        [MaxJointValues]float64
	VelocitiesLen    uint64
	Velocities       [MaxJointValues]float64
	AccelerationsLen uint64
	Accelerations    [MaxJointValues]float64
	EffortLen        uint64
	Effort           [MaxJointValues]float64

	TimeFromStartSec  int32
	TimeFromStartNsec uint32
}

// Trajectory is the controller's input trajectory: a joint-name table and
// a length-prefixed point array. Names are stored NUL-trimmed; on the wire
// each occupies a JointNameWidth slot.
type Trajectory struct {
	JointNames []string
	PointsLen  uint64
	Points     []TrajectoryPoint
}

// State is the per-iteration input to the controller: an iteration index,
// the trajectory to track, and the controller clock in seconds. A test
// case is an ordered sequence of States, one per iteration file.
type State struct {
	Idx        int32
	Trajectory Trajectory
	CurTimeSec int32
}

// Vote is the controller's per-iteration output: the iteration index it
// believes it processed plus one trajectory point. It is compared against
// an oracle Vote of identical shape.
type Vote struct {
	Idx   int32
	Point TrajectoryPoint
}

// NumComparisonJoints is how many leading position and velocity values
// participate in output validation.
const NumComparisonJoints = 6

// ComparisonVector returns the slice of a vote that validation compares:
// the first NumComparisonJoints positions concatenated with the first
// NumComparisonJoints velocities, independent of the declared lengths
// (undeclared slots are the wire format's zero padding).
func (v *Vote) ComparisonVector() []float64 {
	vec := make([]float64, 0, 2*NumComparisonJoints)
	vec = append(vec, v.Point.Positions[:NumComparisonJoints]...)
	vec = append(vec, v.Point.Velocities[:NumComparisonJoints]...)
	return vec
}
