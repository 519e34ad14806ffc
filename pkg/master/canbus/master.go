// Package canbus is a CANopen master for CiA402 drives.
//
// Objects are accessed with expedited SDO transfers, the lifecycle phase
// of each slave is taken from its heartbeat and NMT commands request phase
// changes. Process data uses the slave's own PDOs : a layout is split over
// RPDO / TPDO 1..4 in groups of at most 8 bytes, configured through the
// CiA301 communication (0x1400, 0x1800) and mapping (0x1600, 0x1A00)
// parameters. The process images are the concatenation of the enabled PDOs
// and are exchanged on each [Master.Cycle] followed by a SYNC.
package canbus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	can "github.com/samsamfire/gocia402/pkg/can"
	"github.com/samsamfire/gocia402/pkg/emergency"
	"github.com/samsamfire/gocia402/pkg/sdo"
	log "github.com/sirupsen/logrus"
)

const (
	NmtServiceId    uint32 = 0x000
	SyncId          uint32 = 0x080
	HeartbeatBaseId uint32 = 0x700
)

const (
	MaxNodeId = 127
	MaxPdo    = 4
	PdoSize   = 8
)

var (
	rpdoBaseIds = [MaxPdo]uint32{0x200, 0x300, 0x400, 0x500}
	tpdoBaseIds = [MaxPdo]uint32{0x180, 0x280, 0x380, 0x480}
)

const (
	DefaultSdoTimeout       = 1000 * time.Millisecond
	DefaultHeartbeatTimeout = 1500 * time.Millisecond
)

var ErrImageTooLarge = errors.New("process image does not fit in the pdos")

type node struct {
	id            uint16
	nmtState      uint8
	seen          bool
	lastHeartbeat time.Time
	rxPdos        []pdoSlot
	txPdos        []pdoSlot
	outputs       []byte
	inputs        []byte
	received      []byte // Last TPDO data, latched into inputs at each cycle
	emergency     *emergency.Emergency
}

type pendingTransfer struct {
	cobId    uint32
	index    uint16
	subindex uint8
	response chan [8]byte
}

type Master struct {
	bus              can.Bus
	mu               sync.Mutex
	nodes            map[uint16]*node
	sdoMu            sync.Mutex
	pending          *pendingTransfer
	sdoTimeout       time.Duration
	heartbeatTimeout time.Duration
	now              func() time.Time
	emcyCallback     func(emcy emergency.Emergency)
}

// Create a master on a bus, the bus should already be connected
func NewMaster(bus can.Bus) (*Master, error) {
	m := &Master{
		bus:              bus,
		nodes:            map[uint16]*node{},
		sdoTimeout:       DefaultSdoTimeout,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		now:              time.Now,
	}
	err := bus.Subscribe(m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Add a slave, the slave id is the CANopen node id
func (m *Master) AddSlave(slaveId uint16) error {
	if slaveId < 1 || slaveId > MaxNodeId {
		return fmt.Errorf("%w : node id %d", cia402.ErrIllegalArgument, slaveId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[slaveId]; !ok {
		m.nodes[slaveId] = &node{id: slaveId}
	}
	return nil
}

func (m *Master) SetSdoTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sdoTimeout = timeout
}

// Slaves without a heartbeat for this long are no longer detected, 0 disables
func (m *Master) SetHeartbeatTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatTimeout = timeout
}

// Implements the FrameListener interface
// This handles all received CAN frames from Bus
func (m *Master) Handle(frame can.Frame) {
	id := frame.ID & can.CanSffMask
	function := id & 0x780
	nodeId := uint16(id & 0x7F)

	m.mu.Lock()
	if m.pending != nil && id == m.pending.cobId {
		defer m.mu.Unlock()
		index, subindex := sdo.Multiplexer(frame.Data)
		if index != m.pending.index || subindex != m.pending.subindex {
			log.Debugf("[CANBUS][x%x] ignoring sdo response for x%x:x%x", nodeId, index, subindex)
			return
		}
		select {
		case m.pending.response <- frame.Data:
		default:
		}
		return
	}
	if m.handleTpdo(id, frame) {
		m.mu.Unlock()
		return
	}
	n, ok := m.nodes[nodeId]
	if !ok {
		m.mu.Unlock()
		return
	}
	switch function {
	case HeartbeatBaseId:
		m.handleHeartbeat(n, frame)
	case emergency.ServiceId:
		emcy, ok := emergency.Parse(id, frame.DLC, frame.Data)
		if !ok {
			break
		}
		n.emergency = &emcy
		callback := m.emcyCallback
		m.mu.Unlock()
		if emcy.Reset() {
			log.Infof("[CANBUS][x%x] emergency reset", nodeId)
		} else {
			log.Warnf("[CANBUS][x%x] emergency %v", nodeId, emcy)
		}
		if callback != nil {
			callback(emcy)
		}
		return
	}
	m.mu.Unlock()
}

// Store the data of a started slave's TPDO, false if the frame is not one
func (m *Master) handleTpdo(id uint32, frame can.Frame) bool {
	for _, n := range m.nodes {
		for _, slot := range n.txPdos {
			if slot.cobId != id {
				continue
			}
			copy(n.received[slot.offset:slot.offset+slot.size], frame.Data[:min(int(frame.DLC), slot.size)])
			return true
		}
	}
	return false
}

// Called on each emergency received, outside of the master's lock
func (m *Master) SetEmergencyCallback(callback func(emcy emergency.Emergency)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emcyCallback = callback
}

// Last emergency received from a slave
func (m *Master) LastEmergency(slaveId uint16) (emergency.Emergency, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[slaveId]
	if !ok || n.emergency == nil {
		return emergency.Emergency{}, false
	}
	return *n.emergency, true
}

// Slaves sorted by id
func (m *Master) sortedNodes() []*node {
	ids := make([]int, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	nodes := make([]*node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, m.nodes[uint16(id)])
	}
	return nodes
}

// Outputs of a slave, nil while the slave is not started
func (m *Master) Outputs(slaveId uint16) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[slaveId]
	if !ok {
		return nil
	}
	return n.outputs
}

// Inputs of a slave, nil while the slave is not started
func (m *Master) Inputs(slaveId uint16) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[slaveId]
	if !ok {
		return nil
	}
	return n.inputs
}

// Exchange the process images : inputs received since the last cycle are
// latched, the RPDOs of operational slaves are sent then a SYNC is sent.
func (m *Master) Cycle() error {
	m.mu.Lock()
	frames := []can.Frame{}
	for _, n := range m.sortedNodes() {
		if n.outputs == nil {
			continue
		}
		copy(n.inputs, n.received)
		if phaseFromState(n.nmtState) != cia402.PhaseOperational {
			continue
		}
		for _, slot := range n.rxPdos {
			frames = append(frames, can.NewFrame(slot.cobId, n.outputs[slot.offset:slot.offset+slot.size]))
		}
	}
	m.mu.Unlock()

	frames = append(frames, can.NewFrame(SyncId, nil))
	for _, frame := range frames {
		if err := m.bus.Send(frame); err != nil {
			log.Warnf("[CANBUS] sending x%x failed : %v", frame.ID, err)
			return err
		}
	}
	return nil
}
