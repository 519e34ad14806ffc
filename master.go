package cia402

// Lifecycle phase of a slave as reported by the master.
// Mapping configuration is only accepted in [PhasePreOperational].
type Phase uint8

const (
	PhaseUnknown         Phase = 0
	PhaseInit            Phase = 1
	PhasePreOperational  Phase = 2
	PhaseSafeOperational Phase = 4
	PhaseOperational     Phase = 8
	PhaseStopped         Phase = 16
)

var phaseMap = map[Phase]string{
	PhaseUnknown:         "UNKNOWN",
	PhaseInit:            "INIT",
	PhasePreOperational:  "PRE-OPERATIONAL",
	PhaseSafeOperational: "SAFE-OPERATIONAL",
	PhaseOperational:     "OPERATIONAL",
	PhaseStopped:         "STOPPED",
}

func (p Phase) String() string {
	if s, ok := phaseMap[p]; ok {
		return s
	}
	return "UNKNOWN"
}

// Process data direction.
// Outbound carries commands to the drive (RxPDO), Inbound carries feedback (TxPDO).
type Direction uint8

const (
	Outbound Direction = 0
	Inbound  Direction = 1
)

func (d Direction) String() string {
	if d == Outbound {
		return "RXPDO"
	}
	return "TXPDO"
}

// A Master is the fieldbus master collaborator.
// It gives confirmed access to the object dictionary of a slave,
// and access to the raw process image buffers which it refreshes once per cycle.
type Master interface {
	ReadObject(slaveId uint16, index uint16, subindex uint8, size int) ([]byte, error) // Confirmed read of an object
	WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error       // Confirmed write of an object
	Outputs(slaveId uint16) []byte                                                      // Outbound process image
	Inputs(slaveId uint16) []byte                                                       // Inbound process image
	Phase(slaveId uint16) (Phase, error)                                                // Current lifecycle phase
	Detected(slaveId uint16) bool                                                       // Slave is present on network
}

// A Cycler is a [Master] that can exchange the process image on demand.
// This is what the caller's cyclic loop calls once per iteration.
type Cycler interface {
	Cycle() error
}

// A PdoMapper is a [Master] whose slaves carry their own process data
// configuration objects, e.g. the PDO communication and mapping parameters
// of a CANopen device. The mapping configurator hands the validated layout
// of a direction to it instead of writing the sync manager assignment and
// mapping objects itself.
type PdoMapper interface {
	WriteMapping(slaveId uint16, direction Direction, mapValues []uint32) error // Configure the slave's process data for direction
	ReadMapping(slaveId uint16, direction Direction) ([]uint32, error)         // Packed mapping values currently configured, in image order
}
