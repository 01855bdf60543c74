// Package record defines the in-arena layout of a trace record and
// accessors that read and write its fields in place.
//
// Layout (little endian):
//
//	0   uint16   size in bytes, header included (0 marks a wrap)
//	2   uint16   device id (low 15 bits) | handled flag (bit 15)
//	4   [4]byte  type code
//	8   float64  timestamp in seconds
//	16  ...      payload
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/yairfalse/tapio-trace/pkg/domain"
)

const (
	// HeaderSize is the fixed size of every record header
	HeaderSize = 16

	// MaxRecordSize is the largest record the size field can describe
	MaxRecordSize = math.MaxUint16

	offSize   = 0
	offDevice = 2
	offType   = 4
	offTime   = 8

	handledBit = 0x8000
	deviceMask = 0x7FFF
)

var (
	// ErrRecordTooLarge is returned when a record cannot be stored
	ErrRecordTooLarge = errors.New("record too large")

	// ErrInvalidAccess is returned when mutating a view that is not bound to a record
	ErrInvalidAccess = errors.New("invalid record access")

	// ErrInvalidDevice is returned for device ids that do not fit the header
	ErrInvalidDevice = errors.New("device id out of range")
)

// Header holds the fixed fields of a record
type Header struct {
	Size     int
	Type     domain.FourCC
	DeviceID domain.DeviceID
	Handled  bool
	Time     float64
}

// Encode serializes header fields and payload into one contiguous record.
// The Size field of h is ignored and computed from the payload.
func Encode(h Header, payload []byte) ([]byte, error) {
	return Append(nil, h, payload)
}

// Append is like Encode but appends the record to dst, reusing its capacity
func Append(dst []byte, h Header, payload []byte) ([]byte, error) {
	size := HeaderSize + len(payload)
	if size > MaxRecordSize {
		return dst, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrRecordTooLarge, size, MaxRecordSize)
	}
	if h.DeviceID > domain.MaxDeviceID {
		return dst, fmt.Errorf("%w: %d", ErrInvalidDevice, h.DeviceID)
	}

	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize)...)
	h.Size = size
	WriteHeader(dst, start, h)
	return append(dst, payload...), nil
}

// EncodeEvent serializes a device event into a record
func EncodeEvent(event *domain.DeviceEvent) ([]byte, error) {
	return AppendEvent(nil, event)
}

// AppendEvent appends a device event record to dst
func AppendEvent(dst []byte, event *domain.DeviceEvent) ([]byte, error) {
	return Append(dst, Header{
		Type:     event.Type,
		DeviceID: event.DeviceID,
		Handled:  event.Handled,
		Time:     event.Time,
	}, event.Payload)
}

// ReadHeader decodes the header stored at offset at.
// The caller guarantees at+HeaderSize <= len(arena).
func ReadHeader(arena []byte, at int) Header {
	b := arena[at : at+HeaderSize]
	dev := binary.LittleEndian.Uint16(b[offDevice:])
	var code domain.FourCC
	copy(code[:], b[offType:offType+4])
	return Header{
		Size:     int(binary.LittleEndian.Uint16(b[offSize:])),
		Type:     code,
		DeviceID: domain.DeviceID(dev & deviceMask),
		Handled:  dev&handledBit != 0,
		Time:     math.Float64frombits(binary.LittleEndian.Uint64(b[offTime:])),
	}
}

// WriteHeader encodes h at offset at
func WriteHeader(arena []byte, at int, h Header) {
	b := arena[at : at+HeaderSize]
	binary.LittleEndian.PutUint16(b[offSize:], uint16(h.Size))
	dev := uint16(h.DeviceID) & deviceMask
	if h.Handled {
		dev |= handledBit
	}
	binary.LittleEndian.PutUint16(b[offDevice:], dev)
	copy(b[offType:offType+4], h.Type[:])
	binary.LittleEndian.PutUint64(b[offTime:], math.Float64bits(h.Time))
}

// SizeAt returns the size field stored at offset at
func SizeAt(arena []byte, at int) int {
	return int(binary.LittleEndian.Uint16(arena[at:]))
}

// IsWrapMarker reports whether the record slot at offset at is a wrap marker
func IsWrapMarker(arena []byte, at int) bool {
	return SizeAt(arena, at) == 0
}

// WriteWrapMarker zeroes the size field at offset at.
// Only the size field is touched; HeaderSize bytes must be available.
func WriteWrapMarker(arena []byte, at int) {
	binary.LittleEndian.PutUint16(arena[at:], 0)
}
