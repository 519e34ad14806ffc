package drive

import (
	"errors"
	"fmt"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/access"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/pdo"
	"github.com/samsamfire/gocia402/pkg/state"
	"github.com/samsamfire/gocia402/pkg/units"
	log "github.com/sirupsen/logrus"
)

var ErrNotInitialized = errors.New("driver is not initialized")

// Delay after writing a store / restore signature
const DefaultStoreDelay = 1500 * time.Millisecond

// State is a snapshot of the drive, replaced whole by each [Driver.Update]
type State struct {
	StatusWord    uint16
	State         state.State
	PowerOn       bool
	Running       bool
	Fault         bool
	Warning       bool
	LimitActive   bool
	ControlMode   int8
	Phase         cia402.Phase
	PositionStep  int32
	PositionDeg   float64
	VelocityStep  int32
	Velocity      float64 // In the configured speed unit
	TorqueStep    int16
	TorqueNm      float64
	DigitalInputs [8]bool
}

// Driver is a CiA402 servo drive seen through a fieldbus master.
// [Driver.Init] configures the drive while it is pre-operational, then
// [Driver.Update] is called once per cycle, after the master has exchanged
// the process images.
type Driver struct {
	master       cia402.Master
	params       Parameters
	configurator *pdo.Configurator
	accessor     *access.Accessor
	sequencer    *state.Sequencer
	procedures   *state.ProcedureCommander
	units        *units.Context
	controlMode  int8
	snapshot     State
	storeDelay   time.Duration
	sleep        func(time.Duration)
}

func New(master cia402.Master, params Parameters) *Driver {
	d := &Driver{
		master:     master,
		params:     params,
		storeDelay: DefaultStoreDelay,
		sleep:      time.Sleep,
	}
	d.configurator = pdo.NewConfigurator(master, params.SlaveId)
	d.accessor = access.NewAccessor(master, params.SlaveId, d.configurator)
	d.sequencer = state.NewSequencer(state.ControlWordWriterFunc(d.SetControlWord))
	d.sequencer.SetExchange(d.exchange)
	d.procedures = state.NewProcedureCommander(master, params.SlaveId)
	return d
}

// Exchange the process image when control words go through it,
// so that each step of a sequence reaches the drive.
func (d *Driver) exchange() error {
	if !d.accessor.Mapped(cia402.Outbound, od.ControlWord) {
		return nil
	}
	cycler, ok := d.master.(cia402.Cycler)
	if !ok {
		return nil
	}
	return cycler.Cycle()
}

// Set the settle delay used for mapping writes and control word sequences
func (d *Driver) SetSettleDelay(delay time.Duration) {
	d.configurator.SetSettleDelay(delay)
	d.sequencer.SetSettleDelay(delay)
}

// Set the delay applied after each procedure command
func (d *Driver) SetProcedureDelay(delay time.Duration) {
	d.procedures.SetDelay(delay)
}

// Override [state.ProcedureRepeatCount]
func (d *Driver) SetProcedureRepeatCount(count int) {
	d.procedures.SetRepeatCount(count)
}

// Set the delay applied after storing or restoring parameters
func (d *Driver) SetStoreDelay(delay time.Duration) {
	d.storeDelay = delay
}

// Replace the function used for all waits, mainly for testing
func (d *Driver) SetSleep(sleep func(time.Duration)) {
	d.sleep = sleep
	d.configurator.SetSleep(sleep)
	d.sequencer.SetSleep(sleep)
	d.procedures.SetSleep(sleep)
}

func (d *Driver) Parameters() Parameters {
	return d.params
}

func (d *Driver) Configurator() *pdo.Configurator {
	return d.configurator
}

func (d *Driver) Accessor() *access.Accessor {
	return d.accessor
}

func (d *Driver) Sequencer() *state.Sequencer {
	return d.sequencer
}

func (d *Driver) Procedures() *state.ProcedureCommander {
	return d.procedures
}

// Conversion context, nil before a successful [Driver.Init]
func (d *Driver) Units() *units.Context {
	return d.units
}

// Configure the drive. The slave must be pre-operational.
// Any failure is returned as a [cia402.ConfigError] naming the failed step,
// the driver is then unusable until Init succeeds.
func (d *Driver) Init() error {
	d.units = nil
	d.configurator.Reset()
	id := d.params.SlaveId

	if err := d.params.Validate(); err != nil {
		return cia402.NewConfigError("parameters", err)
	}
	if !d.master.Detected(id) {
		return cia402.NewConfigError("detection", fmt.Errorf("%w : slave %d", cia402.ErrNotDetected, id))
	}
	pulses, err := d.PulsesPerRevolution()
	if err != nil {
		return cia402.NewConfigError("pulses per revolution", err)
	}
	if pulses == 0 {
		return cia402.NewConfigError("pulses per revolution", cia402.ErrZeroPulses)
	}
	ctx := units.NewContext(pulses, d.params.SpeedUnit, d.params.RatedTorque, d.params.GearRatio)

	err = d.SetModesOfOperation(od.ModeNone)
	if err != nil {
		return cia402.NewConfigError("modes of operation", err)
	}
	for _, direction := range []cia402.Direction{cia402.Outbound, cia402.Inbound} {
		if err := d.configurator.AssignRank(direction, 1); err != nil {
			return err
		}
	}
	for _, direction := range []cia402.Direction{cia402.Outbound, cia402.Inbound} {
		if _, err := d.configurator.ConfigureMapping(direction, d.params.layout(direction)); err != nil {
			return err
		}
	}
	d.units = ctx
	log.Infof("[DRIVE][x%x] initialized, %d pulses per revolution, velocity scale %v", id, pulses, ctx.VelocityScale())
	return nil
}

// Refresh the snapshot from the inbound fields.
// This only blocks if some of the read fields are not mapped.
// On failure the previous snapshot is kept.
func (d *Driver) Update() error {
	if d.units == nil {
		return ErrNotInitialized
	}
	raw := map[od.Field]int64{}
	for _, field := range []od.Field{
		od.StatusWord, od.PositionActual, od.VelocityActual,
		od.TorqueActual, od.OperationModeDisplay, od.DigitalInput,
	} {
		value, err := d.accessor.Get(cia402.Inbound, field)
		if err != nil {
			return fmt.Errorf("update %v : %w", field, err)
		}
		raw[field] = value
	}
	phase, err := d.master.Phase(d.params.SlaveId)
	if err != nil {
		return fmt.Errorf("update phase : %w", err)
	}

	statusWord := uint16(raw[od.StatusWord])
	flags := state.DecodeFlags(statusWord)
	snapshot := State{
		StatusWord:   statusWord,
		State:        state.Decode(statusWord),
		PowerOn:      flags.PowerOn,
		Running:      flags.Running,
		Fault:        flags.Fault,
		Warning:      flags.Warning,
		LimitActive:  flags.LimitActive,
		ControlMode:  int8(raw[od.OperationModeDisplay]),
		Phase:        phase,
		PositionStep: int32(raw[od.PositionActual]),
		PositionDeg:  d.units.PositionStepToDegree(raw[od.PositionActual]),
		VelocityStep: int32(raw[od.VelocityActual]),
		Velocity:     d.units.VelocityStepToUnit(raw[od.VelocityActual]),
		TorqueStep:   int16(raw[od.TorqueActual]),
		TorqueNm:     d.units.TorqueStepToNm(raw[od.TorqueActual]),
	}
	inputs := uint32(raw[od.DigitalInput]) >> 16
	for i := range snapshot.DigitalInputs {
		snapshot.DigitalInputs[i] = inputs&(1<<i) != 0
	}
	if snapshot.State != d.snapshot.State {
		log.Debugf("[DRIVE][x%x] %v -> %v (x%04x)", d.params.SlaveId, d.snapshot.State, snapshot.State, statusWord)
	}
	d.snapshot = snapshot
	d.controlMode = snapshot.ControlMode
	return nil
}

// Last snapshot
func (d *Driver) State() State {
	return d.snapshot
}

// Last known modes of operation
func (d *Driver) ControlMode() int8 {
	return d.controlMode
}
