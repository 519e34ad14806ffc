package virtual

import (
	"sync"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/pdo"
	"github.com/samsamfire/gocia402/pkg/state"
)

// A write received by a simulated slave
type Write struct {
	Index    uint16
	Subindex uint8
	Data     []byte
	Err      error
}

// A procedure received by a simulated slave
type Procedure struct {
	Code     uint16
	Argument uint16
}

// Slave is a simulated CiA402 drive.
// It holds an object dictionary, emulates the power state machine from the
// control word and exchanges its process image through its own mapping.
type Slave struct {
	mu              sync.Mutex
	id              uint16
	objects         map[uint32]*object
	phase           cia402.Phase
	detected        bool
	outputs         []byte
	inputs          []byte
	rxTable         *pdo.Table
	txTable         *pdo.Table
	failRead        map[uint32]error
	failWrite       map[uint32]error
	writes          []Write
	procedures      []Procedure
	state           state.State
	lastControlWord uint16
}

func newSlave(id uint16) *Slave {
	return &Slave{
		id:        id,
		objects:   defaultObjects(id),
		phase:     cia402.PhasePreOperational,
		detected:  true,
		failRead:  map[uint32]error{},
		failWrite: map[uint32]error{},
		state:     state.SwitchOnDisabled,
	}
}

func (s *Slave) value(index uint16, subindex uint8, width int, signed bool) int64 {
	obj, ok := s.objects[key(index, subindex)]
	if !ok {
		return 0
	}
	value, err := od.Decode(obj.data, width, signed)
	if err != nil {
		return 0
	}
	return value
}

func (s *Slave) setValue(index uint16, subindex uint8, width int, value int64) {
	obj, ok := s.objects[key(index, subindex)]
	if !ok {
		return
	}
	_ = od.EncodeInto(obj.data, value, width)
}

// Set the raw value of an object, creating it if needed
func (s *Slave) SetObject(index uint16, subindex uint8, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key(index, subindex)]
	if !ok {
		obj = &object{}
		s.objects[key(index, subindex)] = obj
	}
	obj.data = append([]byte(nil), data...)
}

// Raw value of an object
func (s *Slave) Object(index uint16, subindex uint8) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key(index, subindex)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Make reads of an object fail with err, nil removes the failure
func (s *Slave) FailRead(index uint16, subindex uint8, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failRead, key(index, subindex))
		return
	}
	s.failRead[key(index, subindex)] = err
}

// Make writes of an object fail with err, nil removes the failure
func (s *Slave) FailWrite(index uint16, subindex uint8, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failWrite, key(index, subindex))
		return
	}
	s.failWrite[key(index, subindex)] = err
}

// Log of all received writes, including failed ones
func (s *Slave) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	writes := make([]Write, len(s.writes))
	copy(writes, s.writes)
	return writes
}

func (s *Slave) ClearWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

// Log of all received procedures
func (s *Slave) Procedures() []Procedure {
	s.mu.Lock()
	defer s.mu.Unlock()
	procedures := make([]Procedure, len(s.procedures))
	copy(procedures, s.procedures)
	return procedures
}

// Current emulated power state
func (s *Slave) State() state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Force the emulated power state, e.g. to simulate a fault
func (s *Slave) SetState(st state.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.setValue(od.EntryStatusWord, 0, 2, int64(statusWords[st]|statusRemote))
}

// Simulate the slave disappearing from, or coming back on the network
func (s *Slave) SetDetected(detected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detected = detected
}

// Mapping of a direction, resolved from the sync manager assignment
func (s *Slave) resolveTable(rx bool) (*pdo.Table, error) {
	assignIndex := od.AssignIndex(rx)
	if s.value(assignIndex, 0, 1, false) == 0 {
		return pdo.NewTable(nil)
	}
	mappingIndex := uint16(s.value(assignIndex, 1, 2, false))
	count := s.value(mappingIndex, 0, 1, false)
	mapValues := make([]uint32, 0, count)
	for i := 1; i <= int(count); i++ {
		mapValues = append(mapValues, uint32(s.value(mappingIndex, uint8(i), 4, false)))
	}
	return pdo.NewTableFromMapValues(mapValues)
}

// Allocate process images matching the current mapping
func (s *Slave) buildImage() error {
	rxTable, err := s.resolveTable(true)
	if err != nil {
		return err
	}
	txTable, err := s.resolveTable(false)
	if err != nil {
		return err
	}
	s.rxTable, s.txTable = rxTable, txTable
	s.outputs = make([]byte, rxTable.Size())
	s.inputs = make([]byte, txTable.Size())
	return nil
}

// Copy outputs into objects
func (s *Slave) applyOutputs() {
	for _, entry := range s.rxTable.Entries() {
		info, _ := od.Lookup(entry.Field)
		value, err := od.Decode(s.outputs[entry.Offset:], entry.Width, entry.Signed)
		if err != nil {
			continue
		}
		s.setValue(info.Index, info.Subindex, entry.Width, value)
	}
}

// Copy objects into inputs
func (s *Slave) fillInputs() {
	for _, entry := range s.txTable.Entries() {
		info, _ := od.Lookup(entry.Field)
		value := s.value(info.Index, info.Subindex, entry.Width, entry.Signed)
		_ = od.EncodeInto(s.inputs[entry.Offset:], value, entry.Width)
	}
}
