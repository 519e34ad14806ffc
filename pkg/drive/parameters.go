package drive

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/units"
)

// Default process data layout
var (
	DefaultOutbound = []od.Field{od.ControlWord, od.TargetTorque}
	DefaultInbound  = []od.Field{
		od.StatusWord,
		od.PositionActual,
		od.VelocityActual,
		od.OperationModeDisplay,
		od.DigitalInput,
		od.TorqueActual,
	}
)

// Parameters of a drive, set once before [Driver.Init]
type Parameters struct {
	SlaveId           uint16     // Position of the drive on the network, starting at 1
	GearRatio         float64    // Motor turns per load turn, 0 disables gearing
	RatedTorque       float64    // Rated torque of the motor [Nm]
	SpeedUnit         int        // [units.SpeedUnitRPM] or [units.SpeedUnitDegreesPerSecond]
	RotationDirection int        // 0 or 1
	Outbound          []od.Field // Fields mapped in the outbound image, nil for default
	Inbound           []od.Field // Fields mapped in the inbound image, nil for default
}

func DefaultParameters(slaveId uint16) Parameters {
	return Parameters{
		SlaveId:   slaveId,
		SpeedUnit: units.SpeedUnitRPM,
	}
}

// Check parameter ranges
func (p Parameters) Validate() error {
	if p.SlaveId < 1 {
		return fmt.Errorf("%w : slave id %d", cia402.ErrIllegalArgument, p.SlaveId)
	}
	if p.GearRatio < 0 {
		return fmt.Errorf("%w : gear ratio %v", cia402.ErrIllegalArgument, p.GearRatio)
	}
	if p.RotationDirection != 0 && p.RotationDirection != 1 {
		return fmt.Errorf("%w : rotation direction %d", cia402.ErrIllegalArgument, p.RotationDirection)
	}
	if p.RatedTorque < 0 {
		return fmt.Errorf("%w : rated torque %v", cia402.ErrIllegalArgument, p.RatedTorque)
	}
	return nil
}

func (p Parameters) layout(direction cia402.Direction) []od.Field {
	if direction == cia402.Outbound {
		if p.Outbound == nil {
			return DefaultOutbound
		}
		return p.Outbound
	}
	if p.Inbound == nil {
		return DefaultInbound
	}
	return p.Inbound
}
