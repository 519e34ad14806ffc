package virtual

import (
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/state"
)

// Default object values of a simulated drive
const (
	DefaultPulsesPerRevolution = 524288
	DefaultMotorId             = 0x0B
	DefaultEncoderType         = 3
	DefaultSupportedModes      = 0x000003AD // PP PV PT HM CSP CSV CST
	DefaultMotorRatedSpeed     = 3000
	mappingEntries             = 10
)

type object struct {
	data     []byte
	readOnly bool
}

func key(index uint16, subindex uint8) uint32 {
	return uint32(index)<<8 | uint32(subindex)
}

func u8(v uint8) []byte   { return od.EncodeUint8(v) }
func u16(v uint16) []byte { return od.EncodeUint16(v) }
func u32(v uint32) []byte { return od.EncodeUint32(v) }

// Populate the object dictionary of a freshly powered drive
func defaultObjects(nodeId uint16) map[uint32]*object {
	objects := map[uint32]*object{}
	rw := func(index uint16, subindex uint8, data []byte) {
		objects[key(index, subindex)] = &object{data: data}
	}
	ro := func(index uint16, subindex uint8, data []byte) {
		objects[key(index, subindex)] = &object{data: data, readOnly: true}
	}

	// Sync manager assignment and mapping objects
	rw(od.EntrySyncManagerAssignRx, 0, u8(1))
	rw(od.EntrySyncManagerAssignRx, 1, u16(od.EntryRPDOMappingStart))
	rw(od.EntrySyncManagerAssignTx, 0, u8(1))
	rw(od.EntrySyncManagerAssignTx, 1, u16(od.EntryTPDOMappingStart))
	for rank := uint8(1); rank <= od.MaxMappingRank; rank++ {
		for _, index := range []uint16{od.MappingIndex(true, rank), od.MappingIndex(false, rank)} {
			rw(index, 0, u8(0))
			for sub := uint8(1); sub <= mappingEntries; sub++ {
				rw(index, sub, u32(0))
			}
		}
	}

	// Every mappable field
	for _, field := range od.Fields() {
		info, _ := od.Lookup(field)
		data := make([]byte, info.Width())
		if field == od.StatusWord || field == od.OperationModeDisplay || field == od.DigitalInput ||
			field == od.PositionActual || field == od.VelocityActual || field == od.TorqueActual {
			ro(info.Index, info.Subindex, data)
		} else {
			rw(info.Index, info.Subindex, data)
		}
	}
	objects[key(od.EntryStatusWord, 0)].data = u16(statusWords[state.SwitchOnDisabled])

	// Store / restore
	for sub := uint8(od.ParametersAll); sub <= uint8(od.ParametersSpecific); sub++ {
		rw(od.EntryStoreParameters, sub, u32(1))
		rw(od.EntryRestoreDefaultParameters, sub, u32(1))
	}

	// Manufacturer specific
	rw(od.EntryMotorId, 0, u16(DefaultMotorId))
	rw(od.EntryEncoderType, 0, u16(DefaultEncoderType))
	ro(od.EntryEncoderPulsePerRevolution, 0, u32(DefaultPulsesPerRevolution))
	ro(od.EntryNodeId, 0, u16(nodeId))
	rw(od.EntryRotationDirectionSelect, 0, u16(0))
	rw(od.EntryEncoderConfiguration, 0, u16(0))
	rw(od.EntryTorqueLimitFunctionSelect, 0, u16(2))
	for channel := uint16(0); channel < od.DigitalInputChannels; channel++ {
		rw(od.EntryInputSignalSelectionStart+channel, 0, u16(channel+1))
	}
	rw(od.EntryJogOperationSpeed, 0, u16(500))
	rw(od.EntrySpeedCommandAccelerationTime, 0, u16(200))
	rw(od.EntrySpeedCommandDecelerationTime, 0, u16(200))
	rw(od.EntrySpeedCommandScurveTime, 0, u16(0))
	rw(od.EntryServoLockFunctionSetting, 0, u16(0))
	rw(od.EntrySpeedLimitFunctionSelect, 0, u16(0))
	rw(od.EntrySpeedLimitValueAtTorqueControl, 0, u16(1000))
	ro(od.EntryMotorRatedSpeed, 0, u16(DefaultMotorRatedSpeed))
	ro(od.EntryWarningCode, 0, u16(0))
	rw(od.EntryProcedureCommandCode, 0, u16(0))
	rw(od.EntryProcedureCommandArgument, 0, u16(0))

	// CiA402
	ro(od.EntryErrorCode, 0, u16(0))
	rw(od.EntryMaximumTorque, 0, u16(3000))
	rw(od.EntryHomeOffset, 0, u32(0))
	rw(od.EntryMaxProfileVelocity, 0, u32(0xFFFFFFFF))
	rw(od.EntryProfileAcceleration, 0, u32(200))
	rw(od.EntryProfileDeceleration, 0, u32(200))
	rw(od.EntryTorqueSlope, 0, u32(1000))
	rw(od.EntryHomingMethod, 0, u8(34))
	ro(od.EntrySupportedDriveModes, 0, u32(DefaultSupportedModes))
	return objects
}

// Objects that can only be written while pre-operational
func isMappingObject(index uint16) bool {
	switch {
	case index == od.EntrySyncManagerAssignRx, index == od.EntrySyncManagerAssignTx:
		return true
	case index >= od.EntryRPDOMappingStart && index < od.EntryRPDOMappingStart+od.MaxMappingRank:
		return true
	case index >= od.EntryTPDOMappingStart && index < od.EntryTPDOMappingStart+od.MaxMappingRank:
		return true
	}
	return false
}
