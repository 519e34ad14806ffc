package access

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/pdo"
	log "github.com/sirupsen/logrus"
)

// Path taken by a field access
type Path uint8

const (
	PathObject Path = 0 // Confirmed object access through the master, blocking
	PathImage  Path = 1 // Direct access inside of the process image
)

func (p Path) String() string {
	if p == PathImage {
		return "IMAGE"
	}
	return "OBJECT"
}

// Mapping gives the current table of each direction
// [pdo.Configurator] implements it.
type Mapping interface {
	Table(direction cia402.Direction) *pdo.Table
}

// Accessor reads and writes a single field of a slave.
// A field present in the mapping of the direction is accessed inside of the
// process image at its offset, this never blocks.
// Any other field is accessed with a confirmed object read or write.
//
// Fields used every cycle (control word, status word, targets) should be
// mapped before entering the cyclic loop, the object path is orders of
// magnitude slower than a cycle.
type Accessor struct {
	master  cia402.Master
	slaveId uint16
	mapping Mapping
}

func NewAccessor(master cia402.Master, slaveId uint16, mapping Mapping) *Accessor {
	return &Accessor{master: master, slaveId: slaveId, mapping: mapping}
}

func (a *Accessor) lookup(direction cia402.Direction, field od.Field) (pdo.Entry, bool) {
	if a.mapping == nil {
		return pdo.Entry{}, false
	}
	return a.mapping.Table(direction).Lookup(field)
}

// Mapped returns true if field is inside of the process image of direction
func (a *Accessor) Mapped(direction cia402.Direction, field od.Field) bool {
	_, ok := a.lookup(direction, field)
	return ok
}

// Path that a Get or Set would take
func (a *Accessor) Path(direction cia402.Direction, field od.Field) Path {
	if a.Mapped(direction, field) {
		return PathImage
	}
	return PathObject
}

func (a *Accessor) image(direction cia402.Direction) []byte {
	if direction == cia402.Outbound {
		return a.master.Outputs(a.slaveId)
	}
	return a.master.Inputs(a.slaveId)
}

// Locate the entry inside of the live buffer
func (a *Accessor) window(direction cia402.Direction, entry pdo.Entry) ([]byte, error) {
	buffer := a.image(direction)
	if entry.Offset < 0 || entry.Offset+entry.Width > len(buffer) {
		info, _ := od.Lookup(entry.Field)
		return nil, &cia402.AccessError{
			Index:    info.Index,
			Subindex: info.Subindex,
			Err: fmt.Errorf("%w : %v at offset %d width %d, %v image is %d bytes",
				cia402.ErrImageBounds, entry.Field, entry.Offset, entry.Width, direction, len(buffer)),
		}
	}
	return buffer[entry.Offset : entry.Offset+entry.Width], nil
}

// Get the raw value of a field, sign or zero extended depending on the field
func (a *Accessor) Get(direction cia402.Direction, field od.Field) (int64, error) {
	if entry, ok := a.lookup(direction, field); ok {
		window, err := a.window(direction, entry)
		if err != nil {
			return 0, err
		}
		return od.Decode(window, entry.Width, entry.Signed)
	}
	info, ok := od.Lookup(field)
	if !ok {
		return 0, fmt.Errorf("%w : %v", cia402.ErrUnknownField, field)
	}
	raw, err := a.master.ReadObject(a.slaveId, info.Index, info.Subindex, info.Width())
	if err != nil {
		log.Debugf("[ACCESS][x%x] read %v x%x:x%x failed : %v", a.slaveId, field, info.Index, info.Subindex, err)
		return 0, cia402.NewAccessError(info.Index, info.Subindex, err)
	}
	value, err := od.Decode(raw, info.Width(), info.Signed)
	if err != nil {
		return 0, &cia402.AccessError{Index: info.Index, Subindex: info.Subindex, Err: err}
	}
	return value, nil
}

// Set the raw value of a field, value is truncated to the width of the field
func (a *Accessor) Set(direction cia402.Direction, field od.Field, value int64) error {
	if entry, ok := a.lookup(direction, field); ok {
		window, err := a.window(direction, entry)
		if err != nil {
			return err
		}
		return od.EncodeInto(window, value, entry.Width)
	}
	info, ok := od.Lookup(field)
	if !ok {
		return fmt.Errorf("%w : %v", cia402.ErrUnknownField, field)
	}
	data, err := od.Encode(value, info.Width())
	if err != nil {
		return err
	}
	err = a.master.WriteObject(a.slaveId, info.Index, info.Subindex, data)
	if err != nil {
		log.Debugf("[ACCESS][x%x] write %v x%x:x%x failed : %v", a.slaveId, field, info.Index, info.Subindex, err)
		return cia402.NewAccessError(info.Index, info.Subindex, err)
	}
	return nil
}
