package od

import (
	"fmt"
	"strings"

	cia402 "github.com/samsamfire/gocia402"
)

// A Field is a logical control or feedback value that can be placed
// inside of a process data mapping.
type Field uint8

const (
	ControlWord Field = iota + 1
	StatusWord
	TargetPosition
	TargetVelocity
	TargetTorque
	TorqueActual
	TorqueDemand
	PositionActual
	PositionActualInternal
	PositionDemand
	PositionDemandInternal
	VelocityActual
	VelocityDemand
	FeedbackSpeed
	DigitalInput
	DigitalOutputPhysical
	ModesOfOperation
	OperationModeDisplay
)

// Object identifier and layout of a mappable field
type FieldInfo struct {
	Name     string
	Index    uint16
	Subindex uint8
	Bits     uint8
	Signed   bool
}

// Packed mapping value as written inside of a mapping object
// i.e. index<<16 | subindex<<8 | bit length
func (info FieldInfo) MapValue() uint32 {
	return uint32(info.Index)<<16 | uint32(info.Subindex)<<8 | uint32(info.Bits)
}

// Width in bytes
func (info FieldInfo) Width() int {
	return int(info.Bits) >> 3
}

var fieldTable = map[Field]FieldInfo{
	ControlWord:            {"ControlWord", EntryControlWord, 0, 16, false},
	StatusWord:             {"StatusWord", EntryStatusWord, 0, 16, false},
	TargetPosition:         {"TargetPosition", EntryTargetPosition, 0, 32, true},
	TargetVelocity:         {"TargetVelocity", EntryTargetVelocity, 0, 32, true},
	TargetTorque:           {"TargetTorque", EntryTargetTorque, 0, 16, true},
	TorqueActual:           {"TorqueActual", EntryTorqueActual, 0, 16, true},
	TorqueDemand:           {"TorqueDemand", EntryTorqueDemand, 0, 16, true},
	PositionActual:         {"PositionActual", EntryPositionActual, 0, 32, true},
	PositionActualInternal: {"PositionActualInternal", EntryPositionActualInternal, 0, 32, true},
	PositionDemand:         {"PositionDemand", EntryPositionDemand, 0, 32, true},
	PositionDemandInternal: {"PositionDemandInternal", EntryPositionDemandInternal, 0, 32, true},
	VelocityActual:         {"VelocityActual", EntryVelocityActual, 0, 32, true},
	VelocityDemand:         {"VelocityDemand", EntryVelocityDemand, 0, 32, true},
	FeedbackSpeed:          {"FeedbackSpeed", EntryFeedbackSpeed, 0, 16, true},
	DigitalInput:           {"DigitalInput", EntryDigitalInputs, 0, 32, false},
	DigitalOutputPhysical:  {"DigitalOutputPhysical", EntryDigitalOutputs, 1, 32, false},
	ModesOfOperation:       {"ModesOfOperation", EntryModesOfOperation, 0, 8, true},
	OperationModeDisplay:   {"OperationModeDisplay", EntryOperationModeDisplay, 0, 8, true},
}

// Lookup the object identifier and layout of a field
func Lookup(field Field) (FieldInfo, bool) {
	info, ok := fieldTable[field]
	return info, ok
}

// Fields returns all known fields in declaration order
func Fields() []Field {
	fields := make([]Field, 0, len(fieldTable))
	for f := ControlWord; f <= OperationModeDisplay; f++ {
		fields = append(fields, f)
	}
	return fields
}

// Find the field corresponding to a packed mapping value
func FieldByMapValue(mapValue uint32) (Field, bool) {
	for field, info := range fieldTable {
		if info.MapValue() == mapValue {
			return field, true
		}
	}
	return 0, false
}

// Parse a field from its name e.g. "ControlWord", case insensitive
func ParseField(name string) (Field, error) {
	name = strings.TrimSpace(name)
	for field, info := range fieldTable {
		if strings.EqualFold(info.Name, name) {
			return field, nil
		}
	}
	return 0, fmt.Errorf("%w : %q", cia402.ErrUnknownField, name)
}

func (field Field) String() string {
	info, ok := fieldTable[field]
	if !ok {
		return fmt.Sprintf("Field(%d)", uint8(field))
	}
	return info.Name
}
