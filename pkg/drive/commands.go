package drive

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

// Control words going through the process image need the slave to exchange
// data, i.e. to be operational.
func (d *Driver) checkImagePhase(direction cia402.Direction, field od.Field) error {
	if !d.accessor.Mapped(direction, field) {
		return nil
	}
	phase, err := d.master.Phase(d.params.SlaveId)
	if err != nil {
		return err
	}
	if phase != cia402.PhaseOperational {
		return fmt.Errorf("%w : %v is mapped but slave %d is %v", cia402.ErrWrongPhase, field, d.params.SlaveId, phase)
	}
	return nil
}

func (d *Driver) runSequence(name string, run func() error) error {
	if err := d.checkImagePhase(cia402.Outbound, od.ControlWord); err != nil {
		return err
	}
	log.Debugf("[DRIVE][x%x] %s", d.params.SlaveId, name)
	if err := run(); err != nil {
		return fmt.Errorf("%s : %w", name, err)
	}
	return nil
}

// Shutdown, switch on then enable operation
func (d *Driver) ServoOn() error {
	return d.runSequence("servo on", d.sequencer.ServoOn)
}

func (d *Driver) ServoOff() error {
	return d.runSequence("servo off", d.sequencer.ServoOff)
}

// Like [Driver.ServoOff] but leaves operation enabled state through switched on first
func (d *Driver) ServoOffDisableFirst() error {
	return d.runSequence("servo off", d.sequencer.ServoOffDisableFirst)
}

// Start homing, modes of operation should be set to homing beforehand
func (d *Driver) StartHoming() error {
	return d.runSequence("start homing", d.sequencer.StartHoming)
}

func (d *Driver) QuickStop() error {
	return d.runSequence("quick stop", d.sequencer.QuickStop)
}

func (d *Driver) FaultReset() error {
	return d.runSequence("fault reset", d.sequencer.FaultReset)
}

func (d *Driver) JogServoOn() error {
	return d.procedures.JogServoOn()
}

func (d *Driver) JogServoOff() error {
	return d.procedures.JogServoOff()
}

func (d *Driver) JogPositive() error {
	return d.procedures.JogPositive()
}

func (d *Driver) JogNegative() error {
	return d.procedures.JogNegative()
}

func (d *Driver) JogStop() error {
	return d.procedures.JogStop()
}

// Reset the drive firmware. Mappings are lost, [Driver.Init] must be called again.
func (d *Driver) SoftwareReset() error {
	err := d.procedures.SoftwareReset()
	if err != nil {
		return err
	}
	d.units = nil
	d.configurator.Reset()
	return nil
}

// Write the control word, through the image if mapped
func (d *Driver) SetControlWord(controlWord uint16) error {
	return d.accessor.Set(cia402.Outbound, od.ControlWord, int64(controlWord))
}

func (d *Driver) StatusWord() (uint16, error) {
	value, err := d.accessor.Get(cia402.Inbound, od.StatusWord)
	return uint16(value), err
}

func (d *Driver) SetTargetTorque(torque int16) error {
	return d.accessor.Set(cia402.Outbound, od.TargetTorque, int64(torque))
}

func (d *Driver) SetTargetPosition(position int32) error {
	return d.accessor.Set(cia402.Outbound, od.TargetPosition, int64(position))
}

func (d *Driver) SetTargetVelocity(velocity int32) error {
	return d.accessor.Set(cia402.Outbound, od.TargetVelocity, int64(velocity))
}

// Set target position in degrees on the load side
func (d *Driver) SetTargetPositionDeg(degrees float64) error {
	if d.units == nil {
		return ErrNotInitialized
	}
	return d.SetTargetPosition(int32(d.units.DegreeToPositionStep(degrees)))
}

// Set target velocity in the configured speed unit
func (d *Driver) SetTargetVelocityUnit(velocity float64) error {
	if d.units == nil {
		return ErrNotInitialized
	}
	return d.SetTargetVelocity(int32(d.units.UnitToVelocityStep(velocity)))
}

func (d *Driver) SetTargetTorqueNm(torque float64) error {
	if d.units == nil {
		return ErrNotInitialized
	}
	return d.SetTargetTorque(int16(d.units.NmToTorqueStep(torque)))
}

// Set the modes of operation. When the field is mapped the value is written to
// the image, otherwise it is written to the object and read back.
func (d *Driver) SetModesOfOperation(mode int8) error {
	if _, ok := od.ModeDescription[mode]; !ok {
		return fmt.Errorf("%w : modes of operation %d", cia402.ErrIllegalArgument, mode)
	}
	if d.accessor.Mapped(cia402.Outbound, od.ModesOfOperation) {
		err := d.accessor.Set(cia402.Outbound, od.ModesOfOperation, int64(mode))
		if err != nil {
			return err
		}
		d.controlMode = mode
		return nil
	}
	id := d.params.SlaveId
	err := d.master.WriteObject(id, od.EntryModesOfOperation, 0, []byte{byte(mode)})
	if err != nil {
		return cia402.NewAccessError(od.EntryModesOfOperation, 0, err)
	}
	readBack, err := d.ModesOfOperation()
	if err != nil {
		return err
	}
	if readBack != mode {
		return fmt.Errorf("%w : wrote %v, read %v", cia402.ErrModeMismatch, od.ModeDescription[mode], readBack)
	}
	d.controlMode = mode
	log.Debugf("[DRIVE][x%x] modes of operation %v", id, od.ModeDescription[mode])
	return nil
}

// Read the modes of operation object
func (d *Driver) ModesOfOperation() (int8, error) {
	raw, err := d.master.ReadObject(d.params.SlaveId, od.EntryModesOfOperation, 0, 1)
	if err != nil {
		return 0, cia402.NewAccessError(od.EntryModesOfOperation, 0, err)
	}
	if len(raw) < 1 {
		return 0, &cia402.AccessError{Index: od.EntryModesOfOperation, Err: od.ErrWidth}
	}
	return int8(raw[0]), nil
}
