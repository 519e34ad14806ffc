package drive

import (
	"errors"
	"testing"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/master/virtual"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/sdo"
	"github.com/samsamfire/gocia402/pkg/state"
	"github.com/stretchr/testify/assert"
)

func newTestDriver(params Parameters) (*Driver, *virtual.Master, *virtual.Slave) {
	master := virtual.NewMaster()
	slave := master.AddSlave(params.SlaveId)
	driver := New(master, params)
	driver.SetSleep(func(time.Duration) {})
	return driver, master, slave
}

func testParameters() Parameters {
	params := DefaultParameters(1)
	params.RatedTorque = 2.0
	return params
}

func TestValidate(t *testing.T) {
	params := testParameters()
	assert.Nil(t, params.Validate())

	for _, modify := range []func(p *Parameters){
		func(p *Parameters) { p.SlaveId = 0 },
		func(p *Parameters) { p.GearRatio = -1 },
		func(p *Parameters) { p.RotationDirection = 2 },
		func(p *Parameters) { p.RatedTorque = -0.5 },
	} {
		p := testParameters()
		modify(&p)
		assert.ErrorIs(t, p.Validate(), cia402.ErrIllegalArgument)

		driver, _, slave := newTestDriver(testParameters())
		driver.params = p
		err := driver.Init()
		var configErr *cia402.ConfigError
		assert.True(t, errors.As(err, &configErr))
		assert.Equal(t, "parameters", configErr.Step)
		assert.Len(t, slave.Writes(), 0)
	}
}

func TestInitZeroPulses(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	slave.SetObject(od.EntryEncoderPulsePerRevolution, 0, od.EncodeUint32(0))
	err := driver.Init()
	assert.ErrorIs(t, err, cia402.ErrZeroPulses)
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.Equal(t, "pulses per revolution", configErr.Step)
	assert.Len(t, slave.Writes(), 0)
	assert.Nil(t, driver.Units())
}

func TestInitNotDetected(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	slave.SetDetected(false)
	err := driver.Init()
	assert.ErrorIs(t, err, cia402.ErrNotDetected)
	assert.Len(t, slave.Writes(), 0)
}

func TestInitWrongPhase(t *testing.T) {
	driver, master, _ := newTestDriver(testParameters())
	assert.Nil(t, master.SetPhase(1, cia402.PhaseOperational))
	err := driver.Init()
	assert.ErrorIs(t, err, cia402.ErrWrongPhase)
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.Equal(t, "assign rank", configErr.Step)
	assert.ErrorIs(t, driver.Update(), ErrNotInitialized)
}

func TestInitModeWriteRefused(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	slave.FailWrite(od.EntryModesOfOperation, 0, sdo.AbortDataDeviceState)
	err := driver.Init()
	assert.ErrorIs(t, err, cia402.ErrNotAcknowledged)
	var abort sdo.AbortCode
	assert.True(t, errors.As(err, &abort))
	assert.Equal(t, sdo.AbortDataDeviceState, abort)
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.Equal(t, "modes of operation", configErr.Step)
}

func TestInitWritesMapping(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	assert.Nil(t, driver.Init())
	assert.NotNil(t, driver.Units())
	assert.EqualValues(t, virtual.DefaultPulsesPerRevolution, driver.Units().PulsesPerRevolution)

	outbound := driver.Configurator().Table(cia402.Outbound)
	inbound := driver.Configurator().Table(cia402.Inbound)
	assert.Equal(t, 4, outbound.Size())
	assert.Equal(t, 17, inbound.Size())

	mapValues, err := driver.Configurator().ReadMappings(cia402.Inbound)
	assert.Nil(t, err)
	assert.Len(t, mapValues, len(DefaultInbound))
	for i, field := range DefaultInbound {
		info, _ := od.Lookup(field)
		assert.Equal(t, info.MapValue(), mapValues[i])
	}
	// Modes of operation is the first write
	writes := slave.Writes()
	assert.Equal(t, od.EntryModesOfOperation, writes[0].Index)
	assert.Equal(t, []byte{0}, writes[0].Data)
}

func TestEndToEnd(t *testing.T) {
	driver, master, slave := newTestDriver(testParameters())
	assert.Nil(t, driver.Init())

	// Images are not allocated before leaving pre-operational
	err := driver.Update()
	assert.ErrorIs(t, err, cia402.ErrImageBounds)
	assert.Equal(t, State{}, driver.State())
	assert.ErrorIs(t, driver.ServoOn(), cia402.ErrWrongPhase)

	assert.Nil(t, master.SetPhase(1, cia402.PhaseOperational))
	assert.Nil(t, driver.SetModesOfOperation(od.ModeCyclicSynchronousTorque))
	assert.Equal(t, od.ModeCyclicSynchronousTorque, driver.ControlMode())
	slave.SetObject(od.EntryPositionActual, 0, od.EncodeUint32(uint32(virtual.DefaultPulsesPerRevolution/4)))
	slave.SetObject(od.EntryDigitalInputs, 0, od.EncodeUint32(0x00050000))
	assert.Nil(t, master.Cycle())
	assert.Nil(t, driver.Update())
	assert.Equal(t, state.SwitchOnDisabled, driver.State().State)
	assert.Equal(t, cia402.PhaseOperational, driver.State().Phase)

	cycles := master.Cycles()
	assert.Nil(t, driver.ServoOn())
	assert.Equal(t, cycles+len(state.SequenceServoOn), master.Cycles())
	assert.Equal(t, state.OperationEnabled, slave.State())

	assert.Nil(t, driver.SetTargetTorqueNm(50))
	assert.Nil(t, master.Cycle())
	assert.Nil(t, driver.Update())

	snapshot := driver.State()
	assert.Equal(t, state.OperationEnabled, snapshot.State)
	assert.True(t, snapshot.PowerOn)
	assert.True(t, snapshot.Running)
	assert.Equal(t, od.ModeCyclicSynchronousTorque, snapshot.ControlMode)
	assert.EqualValues(t, 250, snapshot.TorqueStep)
	assert.InDelta(t, 50.0, snapshot.TorqueNm, 1e-9)
	assert.InDelta(t, 90.0, snapshot.PositionDeg, 1e-9)
	assert.Equal(t, [8]bool{true, false, true, false, false, false, false, false}, snapshot.DigitalInputs)

	statusWord, err := driver.StatusWord()
	assert.Nil(t, err)
	assert.Equal(t, snapshot.StatusWord, statusWord)

	assert.Nil(t, driver.ServoOff())
	assert.Equal(t, state.SwitchOnDisabled, slave.State())
}

func TestUpdateKeepsSnapshotOnFailure(t *testing.T) {
	params := testParameters()
	// Torque is read through the object path
	params.Inbound = []od.Field{od.StatusWord, od.PositionActual, od.VelocityActual, od.OperationModeDisplay, od.DigitalInput}
	driver, master, slave := newTestDriver(params)
	assert.Nil(t, driver.Init())
	assert.Nil(t, master.SetPhase(1, cia402.PhaseOperational))
	assert.Nil(t, master.Cycle())
	assert.Nil(t, driver.Update())
	before := driver.State()
	assert.Equal(t, state.SwitchOnDisabled, before.State)

	slave.FailRead(od.EntryTorqueActual, 0, sdo.AbortHardware)
	slave.SetState(state.Fault)
	assert.Nil(t, master.Cycle())
	err := driver.Update()
	assert.ErrorIs(t, err, cia402.ErrNotAcknowledged)
	var accessErr *cia402.AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.Equal(t, od.EntryTorqueActual, accessErr.Index)
	assert.Equal(t, before, driver.State())

	slave.FailRead(od.EntryTorqueActual, 0, nil)
	assert.Nil(t, driver.Update())
	assert.Equal(t, state.Fault, driver.State().State)
}

func TestServoOnObjectPath(t *testing.T) {
	params := testParameters()
	params.Outbound = []od.Field{od.TargetTorque}
	driver, master, slave := newTestDriver(params)
	assert.Nil(t, driver.Init())
	slave.ClearWrites()

	// Control word is not mapped, pre-operational is fine
	assert.Nil(t, driver.ServoOn())
	writes := slave.Writes()
	assert.Len(t, writes, 3)
	for i, controlWord := range state.SequenceServoOn {
		assert.Equal(t, od.EntryControlWord, writes[i].Index)
		assert.Equal(t, od.EncodeUint16(controlWord), writes[i].Data)
	}
	assert.Equal(t, 0, master.Cycles())

	slave.ClearWrites()
	slave.FailWrite(od.EntryControlWord, 0, sdo.AbortGeneral)
	err := driver.QuickStop()
	assert.ErrorIs(t, err, cia402.ErrNotAcknowledged)
	assert.Len(t, slave.Writes(), 1)
}

func TestTargetsNeedInit(t *testing.T) {
	driver, _, _ := newTestDriver(testParameters())
	assert.ErrorIs(t, driver.SetTargetPositionDeg(10), ErrNotInitialized)
	assert.ErrorIs(t, driver.SetTargetVelocityUnit(10), ErrNotInitialized)
	assert.ErrorIs(t, driver.SetTargetTorqueNm(1), ErrNotInitialized)
}

func TestSetModesOfOperation(t *testing.T) {
	driver, _, _ := newTestDriver(testParameters())
	assert.ErrorIs(t, driver.SetModesOfOperation(5), cia402.ErrIllegalArgument)
	assert.Nil(t, driver.SetModesOfOperation(od.ModeHoming))
	mode, err := driver.ModesOfOperation()
	assert.Nil(t, err)
	assert.Equal(t, od.ModeHoming, mode)
	assert.Equal(t, od.ModeHoming, driver.ControlMode())
}

func TestSaveRestore(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	slept := time.Duration(0)
	driver.SetSleep(func(d time.Duration) { slept += d })

	assert.Nil(t, driver.SaveParameters(od.ParametersAll))
	assert.Equal(t, DefaultStoreDelay, slept)
	assert.Nil(t, driver.RestoreDefaults(od.ParametersCiA402))
	writes := slave.Writes()
	assert.Len(t, writes, 2)
	assert.Equal(t, od.EntryStoreParameters, writes[0].Index)
	assert.EqualValues(t, 1, writes[0].Subindex)
	assert.Equal(t, []byte("save"), writes[0].Data)
	assert.Equal(t, od.EntryRestoreDefaultParameters, writes[1].Index)
	assert.EqualValues(t, 3, writes[1].Subindex)
	assert.Equal(t, []byte("load"), writes[1].Data)

	assert.ErrorIs(t, driver.SaveParameters(5), cia402.ErrIllegalArgument)
	assert.ErrorIs(t, driver.RestoreDefaults(0), cia402.ErrIllegalArgument)
	assert.Len(t, slave.Writes(), 2)
}

func TestObjectHelpers(t *testing.T) {
	driver, _, _ := newTestDriver(testParameters())

	motorId, err := driver.MotorId()
	assert.Nil(t, err)
	assert.EqualValues(t, virtual.DefaultMotorId, motorId)
	assert.Nil(t, driver.SetMotorId(0x10))
	motorId, _ = driver.MotorId()
	assert.EqualValues(t, 0x10, motorId)

	nodeId, err := driver.NodeId()
	assert.Nil(t, err)
	assert.EqualValues(t, 1, nodeId)

	modes, err := driver.SupportedDriveModes()
	assert.Nil(t, err)
	assert.Contains(t, modes, od.ModeCyclicSynchronousTorque)
	assert.Contains(t, modes, od.ModeHoming)

	assert.ErrorIs(t, driver.SetRotationDirection(2), cia402.ErrIllegalArgument)
	assert.Nil(t, driver.SetRotationDirection(1))
	direction, _ := driver.RotationDirection()
	assert.EqualValues(t, 1, direction)

	assert.Nil(t, driver.SetHomeOffset(-1000))
	offset, err := driver.HomeOffset()
	assert.Nil(t, err)
	assert.EqualValues(t, -1000, offset)

	assert.Nil(t, driver.SetHomingMethod(-3))
	method, _ := driver.HomingMethod()
	assert.EqualValues(t, -3, method)

	assert.Nil(t, driver.SetJogSpeed(120))
	speed, _ := driver.JogSpeed()
	assert.EqualValues(t, 120, speed)

	assert.Nil(t, driver.SetProfileAcceleration(1000))
	acceleration, _ := driver.ProfileAcceleration()
	assert.EqualValues(t, 1000, acceleration)

	ratedSpeed, err := driver.MotorRatedSpeed()
	assert.Nil(t, err)
	assert.EqualValues(t, virtual.DefaultMotorRatedSpeed, ratedSpeed)

	// Read only objects
	_, err = driver.PulsesPerRevolution()
	assert.Nil(t, err)
	err = driver.writeUint32(od.EntryEncoderPulsePerRevolution, 1)
	var abort sdo.AbortCode
	assert.True(t, errors.As(err, &abort))
	assert.Equal(t, sdo.AbortReadOnly, abort)
}

func TestDigitalInputAssignment(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	assert.ErrorIs(t, driver.SetDigitalInput(0, 1, 0), cia402.ErrIllegalArgument)
	assert.ErrorIs(t, driver.SetDigitalInput(9, 1, 0), cia402.ErrIllegalArgument)
	assert.ErrorIs(t, driver.SetDigitalInput(1, 0x0D, 0), cia402.ErrIllegalArgument)
	assert.ErrorIs(t, driver.SetDigitalInput(1, 1, 2), cia402.ErrIllegalArgument)
	assert.Len(t, slave.Writes(), 0)

	assert.Nil(t, driver.SetDigitalInput(3, 0x0C, 1))
	data, _ := slave.Object(od.EntryInputSignalSelectionStart+2, 0)
	assert.Equal(t, od.EncodeUint16(0x800C), data)
	function, level, err := driver.DigitalInputAssignment(3)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x0C, function)
	assert.EqualValues(t, 1, level)
}

func TestProcedures(t *testing.T) {
	driver, _, slave := newTestDriver(testParameters())
	assert.Nil(t, driver.Init())
	assert.Nil(t, driver.JogServoOn())
	assert.Equal(t, state.OperationEnabled, slave.State())
	assert.Nil(t, driver.JogPositive())
	assert.Nil(t, driver.JogStop())

	driver.SetProcedureRepeatCount(1)
	assert.Nil(t, driver.SoftwareReset())
	assert.Equal(t, state.SwitchOnDisabled, slave.State())
	assert.Nil(t, driver.Units())
	assert.Nil(t, driver.Configurator().Table(cia402.Outbound))
	assert.ErrorIs(t, driver.Update(), ErrNotInitialized)

	procedures := slave.Procedures()
	last := procedures[len(procedures)-1]
	assert.Equal(t, virtual.Procedure{Code: state.ProcedureSoftwareReset, Argument: 1}, last)
}
