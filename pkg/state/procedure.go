package state

import (
	"fmt"
	"time"

	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

// Procedure command codes (0x2700)
const (
	ProcedureManualJog            uint16 = 0x0001
	ProcedureProgrammedJog        uint16 = 0x0002
	ProcedureAlarmHistoryReset    uint16 = 0x0003
	ProcedureAutoTuning           uint16 = 0x0004
	ProcedureIndexPulseSearch     uint16 = 0x0005
	ProcedureAbsoluteEncoderReset uint16 = 0x0006
	ProcedureOverloadReset        uint16 = 0x0007
	ProcedurePhaseCurrentOffset   uint16 = 0x0008
	ProcedureSoftwareReset        uint16 = 0x0009
	ProcedureCommutation          uint16 = 0x000A
)

// Arguments of the manual jog procedure
const (
	JogArgServoOn  uint16 = 1
	JogArgServoOff uint16 = 2
	JogArgPositive uint16 = 3
	JogArgNegative uint16 = 4
	JogArgStop     uint16 = 5
)

// Number of times each (argument, code) pair is sent.
// The drive does not reliably take a procedure sent only once.
const ProcedureRepeatCount = 2

const DefaultProcedureDelay = 100 * time.Millisecond

// An ObjectWriter gives confirmed writes to a slave's objects
type ObjectWriter interface {
	WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error
}

// ProcedureCommander runs the drive's vendor procedures (jog, resets, tuning).
// The argument is always written before the code, the drive latches the
// argument when the code is written.
type ProcedureCommander struct {
	writer      ObjectWriter
	slaveId     uint16
	repeatCount int
	delay       time.Duration
	sleep       func(time.Duration)
}

func NewProcedureCommander(writer ObjectWriter, slaveId uint16) *ProcedureCommander {
	return &ProcedureCommander{
		writer:      writer,
		slaveId:     slaveId,
		repeatCount: ProcedureRepeatCount,
		delay:       DefaultProcedureDelay,
		sleep:       time.Sleep,
	}
}

// Override the number of times a procedure is sent, minimum is 1
func (p *ProcedureCommander) SetRepeatCount(count int) {
	if count < 1 {
		count = 1
	}
	p.repeatCount = count
}

func (p *ProcedureCommander) SetDelay(delay time.Duration) {
	p.delay = delay
}

// Replace the function used for waiting, mainly for testing
func (p *ProcedureCommander) SetSleep(sleep func(time.Duration)) {
	p.sleep = sleep
}

// Run a procedure
func (p *ProcedureCommander) Run(code uint16, argument uint16) error {
	for i := 0; i < p.repeatCount; i++ {
		err := p.writer.WriteObject(p.slaveId, od.EntryProcedureCommandArgument, 0, od.EncodeUint16(argument))
		if err != nil {
			return fmt.Errorf("procedure x%x argument %d : %w", code, argument, err)
		}
		err = p.writer.WriteObject(p.slaveId, od.EntryProcedureCommandCode, 0, od.EncodeUint16(code))
		if err != nil {
			return fmt.Errorf("procedure x%x code : %w", code, err)
		}
		p.sleep(p.delay)
	}
	log.Debugf("[PROCEDURE][x%x] ran procedure x%x with argument %d", p.slaveId, code, argument)
	return nil
}

func (p *ProcedureCommander) JogServoOn() error {
	return p.Run(ProcedureManualJog, JogArgServoOn)
}

func (p *ProcedureCommander) JogServoOff() error {
	return p.Run(ProcedureManualJog, JogArgServoOff)
}

// Jog in the positive direction at the jog operation speed (0x2300)
func (p *ProcedureCommander) JogPositive() error {
	return p.Run(ProcedureManualJog, JogArgPositive)
}

// Jog in the negative direction at the jog operation speed (0x2300)
func (p *ProcedureCommander) JogNegative() error {
	return p.Run(ProcedureManualJog, JogArgNegative)
}

func (p *ProcedureCommander) JogStop() error {
	return p.Run(ProcedureManualJog, JogArgStop)
}

// Servo off then reset the drive
func (p *ProcedureCommander) SoftwareReset() error {
	err := p.JogServoOff()
	if err != nil {
		return err
	}
	return p.Run(ProcedureSoftwareReset, 1)
}
