package canbus

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	can "github.com/samsamfire/gocia402/pkg/can"
	"github.com/samsamfire/gocia402/pkg/pdo"
	log "github.com/sirupsen/logrus"
)

// NMT states reported in heartbeats
const (
	NmtBootup         uint8 = 0x00
	NmtStopped        uint8 = 0x04
	NmtOperational    uint8 = 0x05
	NmtPreOperational uint8 = 0x7F
)

// NMT commands
const (
	NmtCmdStart      uint8 = 0x01
	NmtCmdStop       uint8 = 0x02
	NmtCmdEnterPreOp uint8 = 0x80
	NmtCmdResetNode  uint8 = 0x81
	NmtCmdResetComm  uint8 = 0x82
)

func phaseFromState(state uint8) cia402.Phase {
	switch state {
	case NmtBootup:
		return cia402.PhaseInit
	case NmtStopped:
		return cia402.PhaseStopped
	case NmtOperational:
		return cia402.PhaseOperational
	case NmtPreOperational:
		return cia402.PhasePreOperational
	default:
		return cia402.PhaseUnknown
	}
}

func (m *Master) handleHeartbeat(n *node, frame can.Frame) {
	if frame.DLC < 1 {
		return
	}
	state := frame.Data[0] & 0x7F
	if !n.seen || state != n.nmtState {
		log.Infof("[CANBUS][x%x] heartbeat %v -> %v", n.id, phaseFromState(n.nmtState), phaseFromState(state))
	}
	n.seen = true
	n.nmtState = state
	n.lastHeartbeat = m.now()
}

func (m *Master) detected(n *node) bool {
	if !n.seen {
		return false
	}
	return m.heartbeatTimeout == 0 || m.now().Sub(n.lastHeartbeat) <= m.heartbeatTimeout
}

// A slave is detected as long as its heartbeat is received
func (m *Master) Detected(slaveId uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[slaveId]
	return ok && m.detected(n)
}

// Phase reported by the last heartbeat
func (m *Master) Phase(slaveId uint16) (cia402.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[slaveId]
	if !ok || !m.detected(n) {
		return cia402.PhaseUnknown, fmt.Errorf("%w : node %d", cia402.ErrNotDetected, slaveId)
	}
	return phaseFromState(n.nmtState), nil
}

// Send an NMT command to a node, 0 addresses all nodes
func (m *Master) SendNmtCommand(command uint8, nodeId uint8) error {
	log.Debugf("[CANBUS][x%x] nmt command x%x", nodeId, command)
	return m.bus.Send(can.NewFrame(NmtServiceId, []byte{command, nodeId}))
}

// Request a lifecycle phase. Starting a slave reads its PDO configuration
// to allocate the process images, other phases release them.
// The phase is effective once reported by the slave's heartbeat.
func (m *Master) SetPhase(slaveId uint16, phase cia402.Phase) error {
	m.mu.Lock()
	_, ok := m.nodes[slaveId]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w : node %d", cia402.ErrNotDetected, slaveId)
	}
	var command uint8
	switch phase {
	case cia402.PhaseOperational:
		if err := m.allocateImages(slaveId); err != nil {
			return err
		}
		command = NmtCmdStart
	case cia402.PhasePreOperational:
		command = NmtCmdEnterPreOp
	case cia402.PhaseStopped:
		command = NmtCmdStop
	case cia402.PhaseInit:
		command = NmtCmdResetNode
	default:
		return fmt.Errorf("%w : phase %v is not supported by CANopen", cia402.ErrIllegalArgument, phase)
	}
	if command != NmtCmdStart {
		m.releaseImages(slaveId)
	}
	return m.SendNmtCommand(command, uint8(slaveId))
}

// Allocate the process images from the PDOs the slave has enabled
func (m *Master) allocateImages(slaveId uint16) error {
	rxPdos, err := m.readSlots(slaveId, true)
	if err != nil {
		return fmt.Errorf("reading rpdo configuration : %w", err)
	}
	txPdos, err := m.readSlots(slaveId, false)
	if err != nil {
		return fmt.Errorf("reading tpdo configuration : %w", err)
	}
	// Only known fields can be exchanged
	var sizes [2]int
	for i, slots := range [][]pdoSlot{rxPdos, txPdos} {
		mapValues := []uint32{}
		for _, slot := range slots {
			mapValues = append(mapValues, slot.mapValues...)
		}
		table, err := pdo.NewTableFromMapValues(mapValues)
		if err != nil {
			return err
		}
		sizes[i] = table.Size()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[slaveId]
	n.rxPdos, n.txPdos = rxPdos, txPdos
	n.outputs = make([]byte, sizes[0])
	n.inputs = make([]byte, sizes[1])
	n.received = make([]byte, sizes[1])
	log.Infof("[CANBUS][x%x] process images allocated, %d bytes out in %d rpdos, %d bytes in in %d tpdos",
		slaveId, sizes[0], len(rxPdos), sizes[1], len(txPdos))
	return nil
}

func (m *Master) releaseImages(slaveId uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[slaveId]
	n.rxPdos, n.txPdos = nil, nil
	n.outputs, n.inputs, n.received = nil, nil, nil
}
