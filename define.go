package iec104

import (
	"encoding/binary"
	"math"

	"github.com/sirupsen/logrus"
)

// defaultLogger is the fallback sink used when a component is constructed
// without an explicit *logrus.Logger. It is never mutated by business logic
// (see the Design Note on ambient state): per-session counters and timers
// always live inside the Engine, never here.
var defaultLogger = logrus.New()

// SetDefaultLogger overrides the package-wide fallback logger used by
// components constructed without one of their own.
func SetDefaultLogger(lg *logrus.Logger) {
	if lg != nil {
		defaultLogger = lg
	}
}

func parseLittleEndianUint16(x []byte) uint16 {
	return binary.LittleEndian.Uint16(x)
}

func parseLittleEndianInt16(x []byte) int16 {
	return int16(parseLittleEndianUint16(x))
}

func serializeLittleEndianUint16(i uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return b
}

func parseLittleEndianUint32(x []byte) uint32 {
	return binary.LittleEndian.Uint32(x)
}

func parseLittleEndianInt32(x []byte) int32 {
	return int32(parseLittleEndianUint32(x))
}

func serializeLittleEndianUint32(i uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return b
}

// parseLittleEndianUint24 reads a 3-octet little-endian unsigned integer,
// the wire width of the IOA field.
func parseLittleEndianUint24(x []byte) uint32 {
	return uint32(x[0]) | uint32(x[1])<<8 | uint32(x[2])<<16
}

// serializeLittleEndianUint24 writes the low 24 bits of v as 3 octets.
func serializeLittleEndianUint24(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func parseFloat32(x []byte) float32 {
	return math.Float32frombits(parseLittleEndianUint32(x))
}

func serializeFloat32(f float32) []byte {
	return serializeLittleEndianUint32(math.Float32bits(f))
}

func clampInt16(v int64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
