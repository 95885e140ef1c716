package recognition

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const float64Size = 8

// Signature is a fixed-length face descriptor produced by an embedding model.
type Signature []float64

// Encode returns the little-endian float64 byte form stored in the students.encoding column.
func (s Signature) Encode() []byte {
	buf := make([]byte, len(s)*float64Size)
	for i, v := range s {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(v))
	}
	return buf
}

// DecodeSignature parses an encoding blob. The blob length must be a multiple of 8.
func DecodeSignature(data []byte) (Signature, error) {
	if len(data)%float64Size != 0 {
		return nil, fmt.Errorf("invalid signature blob length %d: not a multiple of %d", len(data), float64Size)
	}
	sig := make(Signature, len(data)/float64Size)
	for i := range sig {
		sig[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*float64Size:]))
	}
	return sig, nil
}

// FromFloat32 widens a model output vector.
func FromFloat32(v []float32) Signature {
	if len(v) == 0 {
		return nil
	}
	sig := make(Signature, len(v))
	for i, f := range v {
		sig[i] = float64(f)
	}
	return sig
}

// Clone returns a copy that does not share the backing array.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	copy(out, s)
	return out
}

// Usable reports whether the descriptor can take part in matching:
// non-empty, finite and with a non-zero norm.
func (s Signature) Usable() bool {
	if len(s) == 0 {
		return false
	}
	nonZero := false
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if v != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// Distance is the Euclidean distance between two signatures.
// Signatures of different dimension are infinitely far apart.
func Distance(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}
