package drive

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

// Highest function that can be assigned to a digital input
const MaxInputFunction = 0x0C

func (d *Driver) readObject(index uint16, subindex uint8, width int, signed bool) (int64, error) {
	raw, err := d.master.ReadObject(d.params.SlaveId, index, subindex, width)
	if err != nil {
		return 0, cia402.NewAccessError(index, subindex, err)
	}
	value, err := od.Decode(raw, width, signed)
	if err != nil {
		return 0, &cia402.AccessError{Index: index, Subindex: subindex, Err: err}
	}
	return value, nil
}

func (d *Driver) writeObject(index uint16, subindex uint8, width int, value int64) error {
	data, err := od.Encode(value, width)
	if err != nil {
		return err
	}
	err = d.master.WriteObject(d.params.SlaveId, index, subindex, data)
	if err != nil {
		return cia402.NewAccessError(index, subindex, err)
	}
	return nil
}

func (d *Driver) readUint16(index uint16) (uint16, error) {
	value, err := d.readObject(index, 0, 2, false)
	return uint16(value), err
}

func (d *Driver) readUint32(index uint16) (uint32, error) {
	value, err := d.readObject(index, 0, 4, false)
	return uint32(value), err
}

func (d *Driver) writeUint16(index uint16, value uint16) error {
	return d.writeObject(index, 0, 2, int64(value))
}

func (d *Driver) writeUint32(index uint16, value uint32) error {
	return d.writeObject(index, 0, 4, int64(value))
}

// Encoder pulses for one motor revolution
func (d *Driver) PulsesPerRevolution() (uint32, error) {
	return d.readUint32(od.EntryEncoderPulsePerRevolution)
}

func (d *Driver) MotorId() (uint16, error) {
	return d.readUint16(od.EntryMotorId)
}

func (d *Driver) SetMotorId(id uint16) error {
	return d.writeUint16(od.EntryMotorId, id)
}

func (d *Driver) NodeId() (uint16, error) {
	return d.readUint16(od.EntryNodeId)
}

func (d *Driver) EncoderType() (uint16, error) {
	return d.readUint16(od.EntryEncoderType)
}

func (d *Driver) SetEncoderType(encoderType uint16) error {
	return d.writeUint16(od.EntryEncoderType, encoderType)
}

func (d *Driver) EncoderConfiguration() (uint16, error) {
	return d.readUint16(od.EntryEncoderConfiguration)
}

func (d *Driver) SetEncoderConfiguration(configuration uint16) error {
	return d.writeUint16(od.EntryEncoderConfiguration, configuration)
}

func (d *Driver) RotationDirection() (uint16, error) {
	return d.readUint16(od.EntryRotationDirectionSelect)
}

// 0 : counter clockwise is positive, 1 : clockwise is positive
func (d *Driver) SetRotationDirection(direction uint16) error {
	if direction > 1 {
		return fmt.Errorf("%w : rotation direction %d", cia402.ErrIllegalArgument, direction)
	}
	return d.writeUint16(od.EntryRotationDirectionSelect, direction)
}

// Modes of operation supported by the drive
func (d *Driver) SupportedDriveModes() ([]int8, error) {
	raw, err := d.readUint32(od.EntrySupportedDriveModes)
	if err != nil {
		return nil, err
	}
	return od.SupportedModes(raw), nil
}

func (d *Driver) HomeOffset() (int32, error) {
	value, err := d.readObject(od.EntryHomeOffset, 0, 4, true)
	return int32(value), err
}

func (d *Driver) SetHomeOffset(offset int32) error {
	return d.writeObject(od.EntryHomeOffset, 0, 4, int64(offset))
}

func (d *Driver) HomingMethod() (int8, error) {
	value, err := d.readObject(od.EntryHomingMethod, 0, 1, true)
	return int8(value), err
}

func (d *Driver) SetHomingMethod(method int8) error {
	return d.writeObject(od.EntryHomingMethod, 0, 1, int64(method))
}

// Maximum torque in 0.1% of rated torque
func (d *Driver) MaximumTorque() (uint16, error) {
	return d.readUint16(od.EntryMaximumTorque)
}

func (d *Driver) SetMaximumTorque(torque uint16) error {
	return d.writeUint16(od.EntryMaximumTorque, torque)
}

func (d *Driver) TorqueSlope() (uint32, error) {
	return d.readUint32(od.EntryTorqueSlope)
}

func (d *Driver) SetTorqueSlope(slope uint32) error {
	return d.writeUint32(od.EntryTorqueSlope, slope)
}

func (d *Driver) TorqueLimitFunction() (uint16, error) {
	return d.readUint16(od.EntryTorqueLimitFunctionSelect)
}

func (d *Driver) SetTorqueLimitFunction(function uint16) error {
	return d.writeUint16(od.EntryTorqueLimitFunctionSelect, function)
}

func (d *Driver) ProfileAcceleration() (uint32, error) {
	return d.readUint32(od.EntryProfileAcceleration)
}

func (d *Driver) SetProfileAcceleration(acceleration uint32) error {
	return d.writeUint32(od.EntryProfileAcceleration, acceleration)
}

func (d *Driver) ProfileDeceleration() (uint32, error) {
	return d.readUint32(od.EntryProfileDeceleration)
}

func (d *Driver) SetProfileDeceleration(deceleration uint32) error {
	return d.writeUint32(od.EntryProfileDeceleration, deceleration)
}

func (d *Driver) MaxProfileVelocity() (uint32, error) {
	return d.readUint32(od.EntryMaxProfileVelocity)
}

func (d *Driver) SetMaxProfileVelocity(velocity uint32) error {
	return d.writeUint32(od.EntryMaxProfileVelocity, velocity)
}

func (d *Driver) SpeedLimitFunction() (uint16, error) {
	return d.readUint16(od.EntrySpeedLimitFunctionSelect)
}

func (d *Driver) SetSpeedLimitFunction(function uint16) error {
	return d.writeUint16(od.EntrySpeedLimitFunctionSelect, function)
}

// Speed limit used in torque control [rpm]
func (d *Driver) SpeedLimitValue() (uint16, error) {
	return d.readUint16(od.EntrySpeedLimitValueAtTorqueControl)
}

func (d *Driver) SetSpeedLimitValue(speed uint16) error {
	return d.writeUint16(od.EntrySpeedLimitValueAtTorqueControl, speed)
}

// Speed used by the jog procedures [rpm]
func (d *Driver) JogSpeed() (uint16, error) {
	return d.readUint16(od.EntryJogOperationSpeed)
}

func (d *Driver) SetJogSpeed(speed uint16) error {
	return d.writeUint16(od.EntryJogOperationSpeed, speed)
}

// Acceleration time [ms]
func (d *Driver) AccelerationTime() (uint16, error) {
	return d.readUint16(od.EntrySpeedCommandAccelerationTime)
}

func (d *Driver) SetAccelerationTime(ms uint16) error {
	return d.writeUint16(od.EntrySpeedCommandAccelerationTime, ms)
}

// Deceleration time [ms]
func (d *Driver) DecelerationTime() (uint16, error) {
	return d.readUint16(od.EntrySpeedCommandDecelerationTime)
}

func (d *Driver) SetDecelerationTime(ms uint16) error {
	return d.writeUint16(od.EntrySpeedCommandDecelerationTime, ms)
}

func (d *Driver) ScurveTime() (uint16, error) {
	return d.readUint16(od.EntrySpeedCommandScurveTime)
}

func (d *Driver) SetScurveTime(ms uint16) error {
	return d.writeUint16(od.EntrySpeedCommandScurveTime, ms)
}

func (d *Driver) ServoLockFunction() (uint16, error) {
	return d.readUint16(od.EntryServoLockFunctionSetting)
}

func (d *Driver) SetServoLockFunction(function uint16) error {
	return d.writeUint16(od.EntryServoLockFunctionSetting, function)
}

// Assign a function to a digital input channel (1..8)
// activeLevel 0 is active low, 1 is active high.
func (d *Driver) SetDigitalInput(channel uint8, function uint16, activeLevel uint8) error {
	if channel < 1 || channel > od.DigitalInputChannels {
		return fmt.Errorf("%w : digital input channel %d", cia402.ErrIllegalArgument, channel)
	}
	if function > MaxInputFunction {
		return fmt.Errorf("%w : digital input function x%x", cia402.ErrIllegalArgument, function)
	}
	if activeLevel > 1 {
		return fmt.Errorf("%w : active level %d", cia402.ErrIllegalArgument, activeLevel)
	}
	value := uint16(activeLevel)<<15 | function
	return d.writeUint16(od.EntryInputSignalSelectionStart+uint16(channel)-1, value)
}

// Function and active level assigned to a digital input channel (1..8)
func (d *Driver) DigitalInputAssignment(channel uint8) (function uint16, activeLevel uint8, err error) {
	if channel < 1 || channel > od.DigitalInputChannels {
		return 0, 0, fmt.Errorf("%w : digital input channel %d", cia402.ErrIllegalArgument, channel)
	}
	value, err := d.readUint16(od.EntryInputSignalSelectionStart + uint16(channel) - 1)
	if err != nil {
		return 0, 0, err
	}
	return value & 0x7FFF, uint8(value >> 15), nil
}

// Rated speed of the motor [rpm]
func (d *Driver) MotorRatedSpeed() (uint16, error) {
	return d.readUint16(od.EntryMotorRatedSpeed)
}

// Speed measured by the drive [rpm]
func (d *Driver) FeedbackSpeed() (int16, error) {
	value, err := d.readObject(od.EntryFeedbackSpeed, 0, 2, true)
	return int16(value), err
}

func (d *Driver) ErrorCode() (uint16, error) {
	return d.readUint16(od.EntryErrorCode)
}

func (d *Driver) WarningCode() (uint16, error) {
	return d.readUint16(od.EntryWarningCode)
}

func checkGroup(group od.ParameterGroup) error {
	if group < od.ParametersAll || group > od.ParametersSpecific {
		return fmt.Errorf("%w : parameter group %d", cia402.ErrIllegalArgument, group)
	}
	return nil
}

// Store parameters of a group in non volatile memory
func (d *Driver) SaveParameters(group od.ParameterGroup) error {
	if err := checkGroup(group); err != nil {
		return err
	}
	err := d.writeObject(od.EntryStoreParameters, uint8(group), 4, int64(od.SignatureSave))
	if err != nil {
		return err
	}
	log.Infof("[DRIVE][x%x] stored parameters (group %d)", d.params.SlaveId, group)
	d.sleep(d.storeDelay)
	return nil
}

// Restore default parameters of a group, effective after a reset
func (d *Driver) RestoreDefaults(group od.ParameterGroup) error {
	if err := checkGroup(group); err != nil {
		return err
	}
	err := d.writeObject(od.EntryRestoreDefaultParameters, uint8(group), 4, int64(od.SignatureLoad))
	if err != nil {
		return err
	}
	log.Infof("[DRIVE][x%x] restored default parameters (group %d)", d.params.SlaveId, group)
	d.sleep(d.storeDelay)
	return nil
}
