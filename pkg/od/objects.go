package od

// Communication objects
const (
	EntryErrorRegister            uint16 = 0x1001
	EntryManufacturerDeviceName   uint16 = 0x1008
	EntryStoreParameters          uint16 = 0x1010
	EntryRestoreDefaultParameters uint16 = 0x1011
	EntryRPDOMappingStart         uint16 = 0x1600
	EntryTPDOMappingStart         uint16 = 0x1A00
	EntrySyncManagerAssignRx      uint16 = 0x1C12
	EntrySyncManagerAssignTx      uint16 = 0x1C13
)

// Manufacturer specific objects
const (
	EntryMotorId                        uint16 = 0x2000
	EntryEncoderType                    uint16 = 0x2001
	EntryEncoderPulsePerRevolution      uint16 = 0x2002
	EntryNodeId                         uint16 = 0x2003
	EntryRotationDirectionSelect        uint16 = 0x2004
	EntryEncoderConfiguration           uint16 = 0x2005
	EntryTorqueLimitFunctionSelect      uint16 = 0x2110
	EntryInputSignalSelectionStart      uint16 = 0x2200
	EntryJogOperationSpeed              uint16 = 0x2300
	EntrySpeedCommandAccelerationTime   uint16 = 0x2301
	EntrySpeedCommandDecelerationTime   uint16 = 0x2302
	EntrySpeedCommandScurveTime         uint16 = 0x2303
	EntryServoLockFunctionSetting       uint16 = 0x2311
	EntrySpeedLimitFunctionSelect       uint16 = 0x230D
	EntrySpeedLimitValueAtTorqueControl uint16 = 0x230E
	EntryFeedbackSpeed                  uint16 = 0x2600
	EntryMotorRatedSpeed                uint16 = 0x260E
	EntryWarningCode                    uint16 = 0x2614
	EntryProcedureCommandCode           uint16 = 0x2700
	EntryProcedureCommandArgument       uint16 = 0x2701
)

// CiA402 objects
const (
	EntryErrorCode              uint16 = 0x603F
	EntryControlWord            uint16 = 0x6040
	EntryStatusWord             uint16 = 0x6041
	EntryModesOfOperation       uint16 = 0x6060
	EntryOperationModeDisplay   uint16 = 0x6061
	EntryPositionDemand         uint16 = 0x6062
	EntryPositionActualInternal uint16 = 0x6063
	EntryPositionActual         uint16 = 0x6064
	EntryVelocityDemand         uint16 = 0x606B
	EntryVelocityActual         uint16 = 0x606C
	EntryTargetTorque           uint16 = 0x6071
	EntryMaximumTorque          uint16 = 0x6072
	EntryTorqueDemand           uint16 = 0x6074
	EntryTorqueActual           uint16 = 0x6077
	EntryTargetPosition         uint16 = 0x607A
	EntryHomeOffset             uint16 = 0x607C
	EntryMaxProfileVelocity     uint16 = 0x607F
	EntryProfileAcceleration    uint16 = 0x6083
	EntryProfileDeceleration    uint16 = 0x6084
	EntryTorqueSlope            uint16 = 0x6087
	EntryHomingMethod           uint16 = 0x6098
	EntryPositionDemandInternal uint16 = 0x60FC
	EntryDigitalInputs          uint16 = 0x60FD
	EntryDigitalOutputs         uint16 = 0x60FE
	EntryTargetVelocity         uint16 = 0x60FF
	EntrySupportedDriveModes    uint16 = 0x6502
)

// Number of selectable mapping objects per direction
const MaxMappingRank = 4

// Number of digital input channels (0x2200 - 0x2207)
const DigitalInputChannels = 8

// Signatures written to store / restore objects, "save" and "load" in ascii
const (
	SignatureSave uint32 = 0x65766173
	SignatureLoad uint32 = 0x64616f6c
)

// Parameter groups of the store / restore objects
type ParameterGroup uint8

const (
	ParametersAll           ParameterGroup = 1
	ParametersCommunication ParameterGroup = 2
	ParametersCiA402        ParameterGroup = 3
	ParametersSpecific      ParameterGroup = 4
)

// Modes of operation
const (
	ModeNone                      int8 = 0
	ModeProfilePosition           int8 = 1
	ModeVelocity                  int8 = 2
	ModeProfileVelocity           int8 = 3
	ModeProfileTorque             int8 = 4
	ModeHoming                    int8 = 6
	ModeInterpolatedPosition      int8 = 7
	ModeCyclicSynchronousPosition int8 = 8
	ModeCyclicSynchronousVelocity int8 = 9
	ModeCyclicSynchronousTorque   int8 = 10
)

var ModeDescription = map[int8]string{
	ModeNone:                      "NO MODE",
	ModeVelocity:                  "VL",
	ModeInterpolatedPosition:      "IP",
	ModeProfilePosition:           "PP",
	ModeProfileVelocity:           "PV",
	ModeProfileTorque:             "PT",
	ModeHoming:                    "HM",
	ModeCyclicSynchronousPosition: "CSP",
	ModeCyclicSynchronousVelocity: "CSV",
	ModeCyclicSynchronousTorque:   "CST",
}

// Bits of the supported drive modes object (0x6502)
var SupportedModeBits = []struct {
	Bit  uint8
	Mode int8
	Name string
}{
	{0, ModeProfilePosition, "Profile position"},
	{1, ModeVelocity, "Velocity"},
	{2, ModeProfileVelocity, "Profile velocity"},
	{3, ModeProfileTorque, "Profile torque"},
	{5, ModeHoming, "Homing"},
	{6, ModeInterpolatedPosition, "Interpolated position"},
	{7, ModeCyclicSynchronousPosition, "Cyclic synchronous position"},
	{8, ModeCyclicSynchronousVelocity, "Cyclic synchronous velocity"},
	{9, ModeCyclicSynchronousTorque, "Cyclic synchronous torque"},
}

// Decode the supported drive modes object into a list of modes
func SupportedModes(raw uint32) []int8 {
	modes := []int8{}
	for _, bit := range SupportedModeBits {
		if raw&(1<<bit.Bit) != 0 {
			modes = append(modes, bit.Mode)
		}
	}
	return modes
}

// Index of the mapping object selected by a rank (1..4)
func MappingIndex(rx bool, rank uint8) uint16 {
	if rx {
		return EntryRPDOMappingStart + uint16(rank) - 1
	}
	return EntryTPDOMappingStart + uint16(rank) - 1
}

// Index of the sync manager assignment register
func AssignIndex(rx bool) uint16 {
	if rx {
		return EntrySyncManagerAssignRx
	}
	return EntrySyncManagerAssignTx
}
