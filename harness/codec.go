// Fixed-layout binary codec for the controller's wire records.
//
// The layout is the raw x86-64 memory image of the controller's structs:
// little-endian, natural alignment, no tagging or versioning. Offsets are
// position-dependent; reordering any field is a breaking format change.

package harness

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Wire sizes in bytes.
const (
	// PointSize is the encoded size of one TrajectoryPoint:
	// 4 x (u64 length + 100 f64) + i32 sec + u32 nsec.
	PointSize = 4*(8+MaxJointValues*8) + 4 + 4

	// VoteSize is i32 idx + 4 bytes alignment padding + one point.
	VoteSize = 8 + PointSize

	// stateUsedSize is the byte offset one past cur_time_seconds: i32 idx
	// + pad, u64 name count, the name table, u64 point count, the full
	// point array, i32 cur_time_seconds.
	stateUsedSize = 8 + 8 + MaxJointNames*JointNameWidth + 8 + MaxTrajectoryPoints*PointSize + 4

	// StateSize is stateUsedSize rounded up to 8-byte struct alignment.
	// Captured state files may carry extra trailing bytes; decoding only
	// requires stateUsedSize.
	StateSize = (stateUsedSize + 7) &^ 7
)

// TruncatedInputError reports a buffer shorter than the record's fixed size.
type TruncatedInputError struct {
	Record string
	Need   int
	Got    int
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("decode %s: truncated input: need %d bytes, got %d", e.Record, e.Need, e.Got)
}

// LengthFieldOutOfRangeError reports a declared length that exceeds its
// array's fixed capacity.
type LengthFieldOutOfRangeError struct {
	Record string
	Field  string
	Len    uint64
	Cap    uint64
}

func (e *LengthFieldOutOfRangeError) Error() string {
	return fmt.Sprintf("decode %s: %s length %d exceeds capacity %d", e.Record, e.Field, e.Len, e.Cap)
}

func decodePoint(record string, data []byte, pt *TrajectoryPoint) error {
	off := 0
	arrays := []struct {
		field  string
		length *uint64
		values *[MaxJointValues]float64
	}{
		{"positions", &pt.PositionsLen, &pt.Positions},
		{"velocities", &pt.VelocitiesLen, &pt.Velocities},
		{"accelerations", &pt.AccelerationsLen, &pt.Accelerations},
		{"effort", &pt.EffortLen, &pt.Effort},
	}
	for _, a := range arrays {
		n := binary.LittleEndian.Uint64(data[off:])
		if n > MaxJointValues {
			return &LengthFieldOutOfRangeError{Record: record, Field: a.field, Len: n, Cap: MaxJointValues}
		}
		*a.length = n
		off += 8
		for i := 0; i < MaxJointValues; i++ {
			a.values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		}
	}
	pt.TimeFromStartSec = int32(binary.LittleEndian.Uint32(data[off:]))
	pt.TimeFromStartNsec = binary.LittleEndian.Uint32(data[off+4:])
	return nil
}

func encodePoint(data []byte, pt *TrajectoryPoint) {
	off := 0
	arrays := []struct {
		length uint64
		values *[MaxJointValues]float64
	}{
		{pt.PositionsLen, &pt.Positions},
		{pt.VelocitiesLen, &pt.Velocities},
		{pt.AccelerationsLen, &pt.Accelerations},
		{pt.EffortLen, &pt.Effort},
	}
	for _, a := range arrays {
		binary.LittleEndian.PutUint64(data[off:], a.length)
		off += 8
		for i := 0; i < MaxJointValues; i++ {
			binary.LittleEndian.PutUint64(data[off:], math.Float64bits(a.values[i]))
			off += 8
		}
	}
	binary.LittleEndian.PutUint32(data[off:], uint32(pt.TimeFromStartSec))
	binary.LittleEndian.PutUint32(data[off+4:], pt.TimeFromStartNsec)
}

func validatePointLengths(record string, pt *TrajectoryPoint) error {
	arrays := []struct {
		field string
		n     uint64
	}{
		{"positions", pt.PositionsLen},
		{"velocities", pt.VelocitiesLen},
		{"accelerations", pt.AccelerationsLen},
		{"effort", pt.EffortLen},
	}
	for _, a := range arrays {
		if a.n > MaxJointValues {
			return &LengthFieldOutOfRangeError{Record: record, Field: a.field, Len: a.n, Cap: MaxJointValues}
		}
	}
	return nil
}

// DecodeVote decodes a Vote record from data.
func DecodeVote(data []byte) (*Vote, error) {
	if len(data) < VoteSize {
		return nil, &TruncatedInputError{Record: "vote", Need: VoteSize, Got: len(data)}
	}
	v := &Vote{Idx: int32(binary.LittleEndian.Uint32(data))}
	if err := decodePoint("vote", data[8:], &v.Point); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeVote encodes a Vote into its fixed VoteSize wire image.
func EncodeVote(v *Vote) ([]byte, error) {
	if err := validatePointLengths("vote", &v.Point); err != nil {
		return nil, err
	}
	data := make([]byte, VoteSize)
	binary.LittleEndian.PutUint32(data, uint32(v.Idx))
	encodePoint(data[8:], &v.Point)
	return data, nil
}

// DecodeState decodes a State record from data. Trailing bytes beyond the
// used portion of the record are ignored.
func DecodeState(data []byte) (*State, error) {
	if len(data) < stateUsedSize {
		return nil, &TruncatedInputError{Record: "state", Need: stateUsedSize, Got: len(data)}
	}
	s := &State{Idx: int32(binary.LittleEndian.Uint32(data))}
	off := 8

	nameCount := binary.LittleEndian.Uint64(data[off:])
	if nameCount > MaxJointNames {
		return nil, &LengthFieldOutOfRangeError{Record: "state", Field: "joint_names", Len: nameCount, Cap: MaxJointNames}
	}
	off += 8
	for i := uint64(0); i < nameCount; i++ {
		slot := data[off+int(i)*JointNameWidth : off+int(i+1)*JointNameWidth]
		if k := bytes.IndexByte(slot, 0); k >= 0 {
			slot = slot[:k]
		}
		s.Trajectory.JointNames = append(s.Trajectory.JointNames, string(slot))
	}
	off += MaxJointNames * JointNameWidth

	pointCount := binary.LittleEndian.Uint64(data[off:])
	if pointCount > MaxTrajectoryPoints {
		return nil, &LengthFieldOutOfRangeError{Record: "state", Field: "points", Len: pointCount, Cap: MaxTrajectoryPoints}
	}
	s.Trajectory.PointsLen = pointCount
	off += 8
	if pointCount > 0 {
		s.Trajectory.Points = make([]TrajectoryPoint, pointCount)
	}
	for i := range s.Trajectory.Points {
		if err := decodePoint("state", data[off+i*PointSize:], &s.Trajectory.Points[i]); err != nil {
			return nil, err
		}
	}
	off += MaxTrajectoryPoints * PointSize

	s.CurTimeSec = int32(binary.LittleEndian.Uint32(data[off:]))
	return s, nil
}

// EncodeState encodes a State into its fixed StateSize wire image. Point
// slots beyond the declared count are zero.
func EncodeState(s *State) ([]byte, error) {
	if n := uint64(len(s.Trajectory.JointNames)); n > MaxJointNames {
		return nil, &LengthFieldOutOfRangeError{Record: "state", Field: "joint_names", Len: n, Cap: MaxJointNames}
	}
	if s.Trajectory.PointsLen > MaxTrajectoryPoints {
		return nil, &LengthFieldOutOfRangeError{Record: "state", Field: "points", Len: s.Trajectory.PointsLen, Cap: MaxTrajectoryPoints}
	}
	if n := uint64(len(s.Trajectory.Points)); n != s.Trajectory.PointsLen {
		return nil, fmt.Errorf("encode state: %d points present but declared length is %d", n, s.Trajectory.PointsLen)
	}
	for i := range s.Trajectory.Points {
		if err := validatePointLengths("state", &s.Trajectory.Points[i]); err != nil {
			return nil, err
		}
	}

	data := make([]byte, StateSize)
	binary.LittleEndian.PutUint32(data, uint32(s.Idx))
	off := 8

	binary.LittleEndian.PutUint64(data[off:], uint64(len(s.Trajectory.JointNames)))
	off += 8
	for i, name := range s.Trajectory.JointNames {
		// Fixed-width NUL-terminated slot.
		if len(name) >= JointNameWidth {
			return nil, &LengthFieldOutOfRangeError{Record: "state", Field: "joint_name", Len: uint64(len(name)), Cap: JointNameWidth - 1}
		}
		copy(data[off+i*JointNameWidth:], name)
	}
	off += MaxJointNames * JointNameWidth

	binary.LittleEndian.PutUint64(data[off:], s.Trajectory.PointsLen)
	off += 8
	for i := range s.Trajectory.Points {
		encodePoint(data[off+i*PointSize:], &s.Trajectory.Points[i])
	}
	off += MaxTrajectoryPoints * PointSize

	binary.LittleEndian.PutUint32(data[off:], uint32(s.CurTimeSec))
	return data, nil
}

// DecodeStateFile reads and decodes one iteration input file.
func DecodeStateFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeState(data)
}

// DecodeVoteFile reads and decodes one oracle output file.
func DecodeVoteFile(path string) (*Vote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeVote(data)
}
