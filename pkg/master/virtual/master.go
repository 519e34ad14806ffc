package virtual

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/sdo"
	log "github.com/sirupsen/logrus"
)

// Master is an in memory fieldbus master with simulated CiA402 drives.
// It is primarily used for testing.
type Master struct {
	mu     sync.Mutex
	slaves map[uint16]*Slave
	cycles int
}

func NewMaster() *Master {
	return &Master{slaves: map[uint16]*Slave{}}
}

// Add a simulated drive, it starts pre-operational
func (m *Master) AddSlave(slaveId uint16) *Slave {
	m.mu.Lock()
	defer m.mu.Unlock()
	slave := newSlave(slaveId)
	m.slaves[slaveId] = slave
	return slave
}

func (m *Master) Slave(slaveId uint16) *Slave {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slaves[slaveId]
}

func (m *Master) slave(slaveId uint16) (*Slave, error) {
	m.mu.Lock()
	slave, ok := m.slaves[slaveId]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w : slave %d", cia402.ErrNotDetected, slaveId)
	}
	slave.mu.Lock()
	detected := slave.detected
	slave.mu.Unlock()
	if !detected {
		return nil, fmt.Errorf("%w : slave %d", cia402.ErrNotDetected, slaveId)
	}
	return slave, nil
}

func (m *Master) ReadObject(slaveId uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	slave, err := m.slave(slaveId)
	if err != nil {
		return nil, err
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	if err, ok := slave.failRead[key(index, subindex)]; ok {
		return nil, err
	}
	obj, ok := slave.objects[key(index, subindex)]
	if !ok {
		return nil, sdo.AbortNotExist
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Master) WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error {
	slave, err := m.slave(slaveId)
	if err != nil {
		return err
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	err = slave.write(index, subindex, data)
	slave.writes = append(slave.writes, Write{Index: index, Subindex: subindex, Data: append([]byte(nil), data...), Err: err})
	if err != nil {
		log.Debugf("[VIRTUAL][x%x] write x%x:x%x refused : %v", slaveId, index, subindex, err)
	}
	return err
}

func (s *Slave) write(index uint16, subindex uint8, data []byte) error {
	if err, ok := s.failWrite[key(index, subindex)]; ok {
		return err
	}
	obj, ok := s.objects[key(index, subindex)]
	if !ok {
		return sdo.AbortNotExist
	}
	if obj.readOnly {
		return sdo.AbortReadOnly
	}
	if len(data) > len(obj.data) {
		return sdo.AbortDataLong
	}
	if len(data) < len(obj.data) {
		return sdo.AbortDataShort
	}
	if isMappingObject(index) {
		if s.phase != cia402.PhasePreOperational {
			return sdo.AbortDataDeviceState
		}
		if err := checkMappingWrite(index, subindex, data); err != nil {
			return err
		}
	}
	switch index {
	case od.EntryStoreParameters:
		if !bytes.Equal(data, od.EncodeUint32(od.SignatureSave)) {
			return sdo.AbortDataTransfer
		}
		return nil
	case od.EntryRestoreDefaultParameters:
		if !bytes.Equal(data, od.EncodeUint32(od.SignatureLoad)) {
			return sdo.AbortDataTransfer
		}
		return nil
	}
	copy(obj.data, data)
	switch index {
	case od.EntryProcedureCommandCode:
		s.runProcedure(uint16(s.value(index, 0, 2, false)))
	case od.EntryModesOfOperation:
		s.setValue(od.EntryOperationModeDisplay, 0, 1, int64(int8(data[0])))
	}
	return nil
}

// Validate a write to an assignment or mapping object
func checkMappingWrite(index uint16, subindex uint8, data []byte) error {
	switch index {
	case od.EntrySyncManagerAssignRx, od.EntrySyncManagerAssignTx:
		if subindex == 0 && data[0] > 1 {
			return sdo.AbortValueHigh
		}
		if subindex == 1 {
			mappingIndex, _ := od.Decode(data, 2, false)
			start := od.MappingIndex(index == od.EntrySyncManagerAssignRx, 1)
			if mappingIndex < int64(start) || mappingIndex >= int64(start)+od.MaxMappingRank {
				return sdo.AbortInvalidValue
			}
		}
	default:
		if subindex == 0 {
			if data[0] > mappingEntries {
				return sdo.AbortMapLen
			}
			return nil
		}
		mapValue, _ := od.Decode(data, 4, false)
		if mapValue == 0 {
			return nil
		}
		if _, ok := od.FieldByMapValue(uint32(mapValue)); !ok {
			return sdo.AbortNoMap
		}
	}
	return nil
}

// Outputs of a slave, nil until the slave has left pre-operational
func (m *Master) Outputs(slaveId uint16) []byte {
	slave := m.Slave(slaveId)
	if slave == nil {
		return nil
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	return slave.outputs
}

// Inputs of a slave, nil until the slave has left pre-operational
func (m *Master) Inputs(slaveId uint16) []byte {
	slave := m.Slave(slaveId)
	if slave == nil {
		return nil
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	return slave.inputs
}

func (m *Master) Phase(slaveId uint16) (cia402.Phase, error) {
	slave, err := m.slave(slaveId)
	if err != nil {
		return cia402.PhaseUnknown, err
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	return slave.phase, nil
}

func (m *Master) Detected(slaveId uint16) bool {
	_, err := m.slave(slaveId)
	return err == nil
}

// Request a lifecycle phase for a slave.
// Leaving pre-operational allocates the process images from the slave's
// mapping, an invalid mapping keeps the slave pre-operational.
func (m *Master) SetPhase(slaveId uint16, phase cia402.Phase) error {
	slave, err := m.slave(slaveId)
	if err != nil {
		return err
	}
	slave.mu.Lock()
	defer slave.mu.Unlock()
	switch phase {
	case cia402.PhaseInit, cia402.PhasePreOperational, cia402.PhaseSafeOperational,
		cia402.PhaseOperational, cia402.PhaseStopped:
	default:
		return fmt.Errorf("%w : phase %v", cia402.ErrIllegalArgument, phase)
	}
	leaving := slave.phase == cia402.PhasePreOperational || slave.phase == cia402.PhaseInit
	entering := phase == cia402.PhaseSafeOperational || phase == cia402.PhaseOperational
	if leaving && entering {
		if err := slave.buildImage(); err != nil {
			log.Warnf("[VIRTUAL][x%x] invalid mapping, staying %v : %v", slaveId, slave.phase, err)
			return err
		}
	}
	log.Debugf("[VIRTUAL][x%x] %v -> %v", slaveId, slave.phase, phase)
	slave.phase = phase
	return nil
}

// Exchange the process images of every slave
func (m *Master) Cycle() error {
	m.mu.Lock()
	m.cycles++
	ids := make([]int, 0, len(m.slaves))
	for id := range m.slaves {
		ids = append(ids, int(id))
	}
	m.mu.Unlock()
	sort.Ints(ids)

	for _, id := range ids {
		slave := m.Slave(uint16(id))
		slave.mu.Lock()
		switch slave.phase {
		case cia402.PhaseOperational:
			slave.applyOutputs()
			slave.step()
			slave.fillInputs()
		case cia402.PhaseSafeOperational:
			slave.step()
			slave.fillInputs()
		}
		slave.mu.Unlock()
	}
	return nil
}

// Number of cycles run
func (m *Master) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}
