package state

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Control word values
const (
	ControlDisableVoltage  uint16 = 0x0000
	ControlQuickStop       uint16 = 0x0002
	ControlShutdown        uint16 = 0x0006
	ControlSwitchOn        uint16 = 0x0007
	ControlEnableOperation uint16 = 0x000F
	ControlHomingStart     uint16 = 0x001F
	ControlFaultReset      uint16 = 0x0080
)

// Time given to the drive to latch a control word
const DefaultSettleDelay = 10 * time.Millisecond

var (
	SequenceServoOn              = []uint16{ControlShutdown, ControlSwitchOn, ControlEnableOperation}
	SequenceServoOff             = []uint16{ControlShutdown, ControlDisableVoltage}
	SequenceServoOffDisableFirst = []uint16{ControlSwitchOn, ControlShutdown, ControlDisableVoltage}
	SequenceStartHoming          = []uint16{ControlShutdown, ControlEnableOperation, ControlHomingStart}
	SequenceQuickStop            = []uint16{ControlQuickStop}
	SequenceFaultReset           = []uint16{ControlFaultReset}
)

// A ControlWordWriter writes the control word of a drive,
// either inside of the process image or with a confirmed write.
type ControlWordWriter interface {
	WriteControlWord(controlWord uint16) error
}

// Adapter to use an ordinary function as a [ControlWordWriter]
type ControlWordWriterFunc func(controlWord uint16) error

func (f ControlWordWriterFunc) WriteControlWord(controlWord uint16) error {
	return f(controlWord)
}

// Sequencer issues control word sequences that drive the power state
// machine. Every write is followed by the settle delay, the sequence
// stops at the first failing write.
type Sequencer struct {
	writer      ControlWordWriter
	exchange    func() error
	settleDelay time.Duration
	sleep       func(time.Duration)
}

func NewSequencer(writer ControlWordWriter) *Sequencer {
	return &Sequencer{writer: writer, settleDelay: DefaultSettleDelay, sleep: time.Sleep}
}

func (s *Sequencer) SetSettleDelay(delay time.Duration) {
	s.settleDelay = delay
}

// Replace the function used for waiting, mainly for testing
func (s *Sequencer) SetSleep(sleep func(time.Duration)) {
	s.sleep = sleep
}

// Set a function called after each write and before the settle delay.
// When control words go through the process image, this should exchange
// the image with the drive.
func (s *Sequencer) SetExchange(exchange func() error) {
	s.exchange = exchange
}

// Run an arbitrary control word sequence
func (s *Sequencer) Run(sequence []uint16) error {
	for i, controlWord := range sequence {
		err := s.writer.WriteControlWord(controlWord)
		if err != nil {
			log.Warnf("[STATE] control word x%04x (step %d/%d) failed, aborting sequence : %v", controlWord, i+1, len(sequence), err)
			return fmt.Errorf("control word x%04x : %w", controlWord, err)
		}
		if s.exchange != nil {
			err = s.exchange()
			if err != nil {
				return fmt.Errorf("exchange after control word x%04x : %w", controlWord, err)
			}
		}
		s.sleep(s.settleDelay)
	}
	return nil
}

// Shutdown, switch on then enable operation
func (s *Sequencer) ServoOn() error {
	return s.Run(SequenceServoOn)
}

// Shutdown then disable voltage
func (s *Sequencer) ServoOff() error {
	return s.Run(SequenceServoOff)
}

// Switch on (disable operation), shutdown then disable voltage
func (s *Sequencer) ServoOffDisableFirst() error {
	return s.Run(SequenceServoOffDisableFirst)
}

// Enable operation then raise the homing start bit.
// Modes of operation should be set to homing beforehand.
func (s *Sequencer) StartHoming() error {
	return s.Run(SequenceStartHoming)
}

func (s *Sequencer) QuickStop() error {
	return s.Run(SequenceQuickStop)
}

// Rising edge of the fault reset bit, the drive leaves Fault for SwitchOnDisabled
func (s *Sequencer) FaultReset() error {
	return s.Run(SequenceFaultReset)
}
