package virtual

import (
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/state"
)

// Status word reported in each power state
var statusWords = map[state.State]uint16{
	state.NotReadyToSwitchOn:  0x0000,
	state.SwitchOnDisabled:    0x0040,
	state.ReadyToSwitchOn:     0x0021,
	state.SwitchedOn:          0x0023,
	state.OperationEnabled:    0x0027,
	state.QuickStopActive:     0x0007,
	state.FaultReactionActive: 0x000F,
	state.Fault:               0x0008,
}

const (
	statusRemote         uint16 = 1 << 9
	statusTargetReached  uint16 = 1 << 10
	statusHomingAttained uint16 = 1 << 12
)

// Power state transition triggered by a control word, as specified by CiA402
func transition(current state.State, controlWord uint16, previous uint16) state.State {
	faultResetEdge := controlWord&state.ControlFaultReset != 0 && previous&state.ControlFaultReset == 0
	switch current {
	case state.Fault:
		if faultResetEdge {
			return state.SwitchOnDisabled
		}
		return current
	case state.FaultReactionActive, state.NotReadyToSwitchOn:
		return current
	}
	switch {
	case controlWord&0x0082 == 0x0000:
		// Disable voltage
		return state.SwitchOnDisabled
	case controlWord&0x0086 == 0x0002:
		// Quick stop
		if current == state.OperationEnabled {
			return state.QuickStopActive
		}
		return state.SwitchOnDisabled
	case controlWord&0x0087 == 0x0006:
		// Shutdown
		if current == state.QuickStopActive {
			return current
		}
		return state.ReadyToSwitchOn
	case controlWord&0x008F == 0x0007:
		// Switch on / disable operation
		if current == state.ReadyToSwitchOn || current == state.OperationEnabled {
			return state.SwitchedOn
		}
	case controlWord&0x008F == 0x000F:
		// Enable operation
		if current == state.SwitchedOn || current == state.QuickStopActive {
			return state.OperationEnabled
		}
	}
	return current
}

// Run one step of the simulated drive, after outputs have been applied
func (s *Slave) step() {
	controlWord := uint16(s.value(od.EntryControlWord, 0, 2, false))
	s.state = transition(s.state, controlWord, s.lastControlWord)
	s.lastControlWord = controlWord

	mode := int8(s.value(od.EntryModesOfOperation, 0, 1, true))
	s.setValue(od.EntryOperationModeDisplay, 0, 1, int64(mode))

	statusWord := statusWords[s.state] | statusRemote
	if s.state == state.OperationEnabled {
		switch mode {
		case od.ModeCyclicSynchronousPosition, od.ModeProfilePosition:
			target := s.value(od.EntryTargetPosition, 0, 4, true)
			s.setValue(od.EntryVelocityActual, 0, 4, target-s.value(od.EntryPositionActual, 0, 4, true))
			s.setValue(od.EntryPositionActual, 0, 4, target)
			statusWord |= statusTargetReached
		case od.ModeCyclicSynchronousVelocity, od.ModeProfileVelocity:
			velocity := s.value(od.EntryTargetVelocity, 0, 4, true)
			s.setValue(od.EntryVelocityActual, 0, 4, velocity)
			s.setValue(od.EntryPositionActual, 0, 4, s.value(od.EntryPositionActual, 0, 4, true)+velocity)
		case od.ModeCyclicSynchronousTorque, od.ModeProfileTorque:
			s.setValue(od.EntryTorqueActual, 0, 2, s.value(od.EntryTargetTorque, 0, 2, true))
		case od.ModeHoming:
			if controlWord&0x0010 != 0 {
				s.setValue(od.EntryPositionActual, 0, 4, s.value(od.EntryHomeOffset, 0, 4, true))
				s.setValue(od.EntryVelocityActual, 0, 4, 0)
				statusWord |= statusHomingAttained | statusTargetReached
			}
		}
	} else {
		s.setValue(od.EntryVelocityActual, 0, 4, 0)
		s.setValue(od.EntryTorqueActual, 0, 2, 0)
	}
	s.setValue(od.EntryPositionActualInternal, 0, 4, s.value(od.EntryPositionActual, 0, 4, true))
	s.setValue(od.EntryStatusWord, 0, 2, int64(statusWord))
}

// Procedure written to the procedure code object
func (s *Slave) runProcedure(code uint16) {
	argument := uint16(s.value(od.EntryProcedureCommandArgument, 0, 2, false))
	s.procedures = append(s.procedures, Procedure{Code: code, Argument: argument})
	switch {
	case code == state.ProcedureSoftwareReset && argument == 1:
		s.state = state.SwitchOnDisabled
		s.setValue(od.EntryStatusWord, 0, 2, int64(statusWords[s.state]))
	case code == state.ProcedureManualJog && argument == state.JogArgServoOn:
		s.state = state.OperationEnabled
	case code == state.ProcedureManualJog && argument == state.JogArgServoOff:
		s.state = state.SwitchOnDisabled
	}
}
