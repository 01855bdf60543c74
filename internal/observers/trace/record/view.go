package record

import (
	"encoding/binary"

	"github.com/yairfalse/tapio-trace/pkg/domain"
)

// View is a window onto one record inside a ring buffer arena.
// It does not own the bytes: any write to the arena at or before the
// record's offset invalidates what the view reads.
// The zero View is not bound to a record.
type View struct {
	arena  []byte
	offset int
}

// NewView binds a view to the record stored at offset
func NewView(arena []byte, offset int) View {
	return View{arena: arena, offset: offset}
}

// Valid reports whether the view is bound to a record
func (v View) Valid() bool {
	return v.arena != nil
}

// Offset returns the record's position in the arena, or -1 for an invalid view
func (v View) Offset() int {
	if !v.Valid() {
		return -1
	}
	return v.offset
}

// Header decodes all fixed fields
func (v View) Header() Header {
	if !v.Valid() {
		return Header{DeviceID: domain.AnyDevice}
	}
	return ReadHeader(v.arena, v.offset)
}

// Size returns the total record length including the header
func (v View) Size() int {
	if !v.Valid() {
		return 0
	}
	return SizeAt(v.arena, v.offset)
}

// Type returns the record's type code
func (v View) Type() domain.FourCC {
	return v.Header().Type
}

// DeviceID returns the originating device
func (v View) DeviceID() domain.DeviceID {
	return v.Header().DeviceID
}

// Handled returns the mutable handled flag
func (v View) Handled() bool {
	return v.Header().Handled
}

// Time returns the event timestamp in seconds
func (v View) Time() float64 {
	return v.Header().Time
}

// SetHandled updates the handled flag in place
func (v View) SetHandled(handled bool) error {
	if !v.Valid() {
		return ErrInvalidAccess
	}
	at := v.offset + offDevice
	dev := binary.LittleEndian.Uint16(v.arena[at:])
	if handled {
		dev |= handledBit
	} else {
		dev &^= handledBit
	}
	binary.LittleEndian.PutUint16(v.arena[at:], dev)
	return nil
}

// Payload returns the bytes following the header.
// The slice aliases the arena.
func (v View) Payload() []byte {
	if !v.Valid() {
		return nil
	}
	return v.arena[v.offset+HeaderSize : v.offset+v.Size()]
}

// Bytes returns the whole record, header included.
// The slice aliases the arena.
func (v View) Bytes() []byte {
	if !v.Valid() {
		return nil
	}
	return v.arena[v.offset : v.offset+v.Size()]
}

// Event copies the record out into a DeviceEvent
func (v View) Event() domain.DeviceEvent {
	h := v.Header()
	var payload []byte
	if p := v.Payload(); len(p) > 0 {
		payload = append([]byte(nil), p...)
	}
	return domain.DeviceEvent{
		Type:     h.Type,
		DeviceID: h.DeviceID,
		Time:     h.Time,
		Handled:  h.Handled,
		Payload:  payload,
	}
}
