package harness

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineDistance returns 1 - cosine similarity over two equal-length
// vectors, in [0, 2]. The zero-vector cases are policy, not derived from
// the formula: both zero means identical (0), exactly one zero means
// maximally dissimilar (1). This avoids dividing by a zero norm.
func CosineDistance(u, v []float64) float64 {
	dot := floats.Dot(u, v)
	normU := floats.Norm(u, 2)
	normV := floats.Norm(v, 2)

	if normU == 0 && normV == 0 {
		return 0
	}
	if normU == 0 || normV == 0 {
		return 1
	}

	similarity := dot / (normU * normV)
	// Guard against floating-point drift outside [-1, 1].
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1 - similarity
}

// FailureReason describes why an iteration failed validation.
type FailureReason interface {
	Reason() string
}

// IndexMismatch is a failure where the controller reported a different
// iteration index than the oracle.
type IndexMismatch struct {
	Expected int32
	Actual   int32
}

func (r IndexMismatch) Reason() string {
	return fmt.Sprintf("index mismatch (%d != %d)", r.Actual, r.Expected)
}

// DistanceExceeded is a failure where the output vector diverged from the
// oracle beyond the configured epsilon.
type DistanceExceeded struct {
	Distance float64
	Epsilon  float64
}

func (r DistanceExceeded) Reason() string {
	return fmt.Sprintf("cosine_distance=%.4f > %g", r.Distance, r.Epsilon)
}

// Validation is the outcome of validating one iteration's output.
type Validation struct {
	Passed   bool
	Distance float64
	Failure  FailureReason // nil when Passed
}

func (v Validation) String() string {
	if v.Passed {
		return fmt.Sprintf("PASS (distance=%.4f)", v.Distance)
	}
	return "FAIL: " + v.Failure.Reason()
}

// ValidateIteration compares a controller's vote against the oracle. The
// iteration passes iff the indices match and the cosine distance between
// the comparison vectors is within epsilon.
func ValidateIteration(actual, oracle *Vote, epsilon float64) Validation {
	if actual.Idx != oracle.Idx {
		return Validation{Failure: IndexMismatch{Expected: oracle.Idx, Actual: actual.Idx}}
	}
	distance := CosineDistance(actual.ComparisonVector(), oracle.ComparisonVector())
	if distance > epsilon {
		return Validation{Distance: distance, Failure: DistanceExceeded{Distance: distance, Epsilon: epsilon}}
	}
	return Validation{Passed: true, Distance: distance}
}
