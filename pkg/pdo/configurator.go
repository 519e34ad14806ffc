package pdo

import (
	"fmt"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

// Time given to the device to accept each mapping sub write
const DefaultSettleDelay = 10 * time.Millisecond

// Configurator negotiates the process data layout of a slave.
// It selects the active mapping object of each direction (rank) and
// fills it with the requested fields. It can only be used while the slave
// is pre-operational.
type Configurator struct {
	master      cia402.Master
	slaveId     uint16
	rank        [2]uint8
	tables      [2]*Table
	settleDelay time.Duration
	sleep       func(time.Duration)
}

func NewConfigurator(master cia402.Master, slaveId uint16) *Configurator {
	return &Configurator{
		master:      master,
		slaveId:     slaveId,
		settleDelay: DefaultSettleDelay,
		sleep:       time.Sleep,
	}
}

// Set the delay applied after each mapping entry write
func (c *Configurator) SetSettleDelay(delay time.Duration) {
	c.settleDelay = delay
}

// Replace the function used for waiting, mainly for testing
func (c *Configurator) SetSleep(sleep func(time.Duration)) {
	c.sleep = sleep
}

func checkDirection(direction cia402.Direction) error {
	if direction != cia402.Outbound && direction != cia402.Inbound {
		return fmt.Errorf("%w : direction %d", cia402.ErrIllegalArgument, direction)
	}
	return nil
}

// Select which of the mapping objects (rank 1..4) is assigned to the sync manager
// of this direction.
// The assignment register is cleared, the mapping index is written then the
// register is re-enabled. Only the index write is checked, the device
// may refuse the two others depending on its current assignment.
func (c *Configurator) AssignRank(direction cia402.Direction, rank uint8) error {
	const step = "assign rank"
	if err := checkDirection(direction); err != nil {
		return cia402.NewConfigError(step, err)
	}
	if rank < 1 || rank > od.MaxMappingRank {
		return cia402.NewConfigError(step, fmt.Errorf("%w : rank %d", cia402.ErrIllegalArgument, rank))
	}
	phase, err := c.master.Phase(c.slaveId)
	if err != nil {
		return cia402.NewConfigError(step, err)
	}
	if phase != cia402.PhasePreOperational {
		return cia402.NewConfigError(step, fmt.Errorf("%w : %v", cia402.ErrWrongPhase, phase))
	}
	if _, ok := c.master.(cia402.PdoMapper); ok {
		c.rank[direction] = rank
		c.tables[direction] = nil
		log.Debugf("[MAPPING][x%x][%v] process data configured by the master, no assignment", c.slaveId, direction)
		return nil
	}
	rx := direction == cia402.Outbound
	assignIndex := od.AssignIndex(rx)
	mappingIndex := od.MappingIndex(rx, rank)

	err = c.master.WriteObject(c.slaveId, assignIndex, 0, od.EncodeUint8(0))
	if err != nil {
		log.Debugf("[MAPPING][x%x][%v] clearing assignment x%x:0 failed : %v", c.slaveId, direction, assignIndex, err)
	}
	errIndex := c.master.WriteObject(c.slaveId, assignIndex, 1, od.EncodeUint16(mappingIndex))
	err = c.master.WriteObject(c.slaveId, assignIndex, 0, od.EncodeUint8(1))
	if err != nil {
		log.Debugf("[MAPPING][x%x][%v] enabling assignment x%x:0 failed : %v", c.slaveId, direction, assignIndex, err)
	}
	if errIndex != nil {
		return cia402.NewConfigError(step, cia402.NewAccessError(assignIndex, 1, errIndex))
	}
	c.rank[direction] = rank
	c.tables[direction] = nil
	log.Infof("[MAPPING][x%x][%v] assigned mapping object x%x", c.slaveId, direction, mappingIndex)
	return nil
}

// Rank currently assigned to direction, 0 if none
func (c *Configurator) Rank(direction cia402.Direction) uint8 {
	if checkDirection(direction) != nil {
		return 0
	}
	return c.rank[direction]
}

// Write the mapping of the assigned mapping object for this direction.
// Fields are mapped in the given order. Any failure leaves the direction
// without a table, configuration should then be restarted from scratch.
func (c *Configurator) ConfigureMapping(direction cia402.Direction, fields []od.Field) (*Table, error) {
	const step = "mapping"
	if err := checkDirection(direction); err != nil {
		return nil, cia402.NewConfigError(step, err)
	}
	c.tables[direction] = nil

	// Validate everything before issuing any write
	table, err := NewTable(fields)
	if err != nil {
		return nil, cia402.NewConfigError(step, err)
	}
	rank := c.rank[direction]
	if rank == 0 {
		return nil, cia402.NewConfigError(step, fmt.Errorf("%w : %v", cia402.ErrRankNotAssigned, direction))
	}
	if mapper, ok := c.master.(cia402.PdoMapper); ok {
		mapValues := make([]uint32, 0, table.Len())
		for _, entry := range table.entries {
			mapValues = append(mapValues, entry.MapValue)
		}
		if err := mapper.WriteMapping(c.slaveId, direction, mapValues); err != nil {
			return nil, cia402.NewConfigError(step, err)
		}
		c.tables[direction] = table
		log.Infof("[MAPPING][x%x][%v] mapped %d fields, %d bytes", c.slaveId, direction, table.Len(), table.Size())
		return table, nil
	}
	mappingIndex := od.MappingIndex(direction == cia402.Outbound, rank)

	err = c.master.WriteObject(c.slaveId, mappingIndex, 0, od.EncodeUint8(uint8(table.Len())))
	if err != nil {
		return nil, cia402.NewConfigError(step, cia402.NewAccessError(mappingIndex, 0, err))
	}
	for i, entry := range table.entries {
		subindex := uint8(i + 1)
		err = c.master.WriteObject(c.slaveId, mappingIndex, subindex, od.EncodeUint32(entry.MapValue))
		c.sleep(c.settleDelay)
		if err != nil {
			return nil, cia402.NewConfigError(step, cia402.NewAccessError(mappingIndex, subindex, err))
		}
		log.Debugf("[MAPPING][x%x][%v] x%x:x%x <- x%08x (%v at offset %d)",
			c.slaveId, direction, mappingIndex, subindex, entry.MapValue, entry.Field, entry.Offset)
	}
	c.tables[direction] = table
	log.Infof("[MAPPING][x%x][%v] mapped %d fields, %d bytes", c.slaveId, direction, table.Len(), table.Size())
	return table, nil
}

// Table of the last successful mapping for this direction, nil if undefined
func (c *Configurator) Table(direction cia402.Direction) *Table {
	if checkDirection(direction) != nil {
		return nil
	}
	return c.tables[direction]
}

// Forget all ranks and tables
func (c *Configurator) Reset() {
	c.rank = [2]uint8{}
	c.tables = [2]*Table{}
}

// Read the mapping object index currently assigned to the sync manager
func (c *Configurator) AssignedIndex(direction cia402.Direction) (uint16, error) {
	if err := checkDirection(direction); err != nil {
		return 0, err
	}
	if _, ok := c.master.(cia402.PdoMapper); ok {
		return 0, fmt.Errorf("%w : no assignment register on this master", cia402.ErrIllegalArgument)
	}
	assignIndex := od.AssignIndex(direction == cia402.Outbound)
	raw, err := c.master.ReadObject(c.slaveId, assignIndex, 1, 2)
	if err != nil {
		return 0, cia402.NewAccessError(assignIndex, 1, err)
	}
	index, err := od.Decode(raw, 2, false)
	if err != nil {
		return 0, &cia402.AccessError{Index: assignIndex, Subindex: 1, Err: err}
	}
	return uint16(index), nil
}

// Read back the packed mapping values of the mapping object assigned to direction
func (c *Configurator) ReadMappings(direction cia402.Direction) ([]uint32, error) {
	if err := checkDirection(direction); err != nil {
		return nil, err
	}
	rank := c.rank[direction]
	if rank == 0 {
		return nil, fmt.Errorf("%w : %v", cia402.ErrRankNotAssigned, direction)
	}
	if mapper, ok := c.master.(cia402.PdoMapper); ok {
		return mapper.ReadMapping(c.slaveId, direction)
	}
	mappingIndex := od.MappingIndex(direction == cia402.Outbound, rank)
	raw, err := c.master.ReadObject(c.slaveId, mappingIndex, 0, 1)
	if err != nil {
		return nil, cia402.NewAccessError(mappingIndex, 0, err)
	}
	count, err := od.Decode(raw, 1, false)
	if err != nil {
		return nil, &cia402.AccessError{Index: mappingIndex, Subindex: 0, Err: err}
	}
	mapValues := make([]uint32, 0, count)
	for i := 1; i <= int(count); i++ {
		subindex := uint8(i)
		raw, err := c.master.ReadObject(c.slaveId, mappingIndex, subindex, 4)
		if err != nil {
			return nil, cia402.NewAccessError(mappingIndex, subindex, err)
		}
		mapValue, err := od.Decode(raw, 4, false)
		if err != nil {
			return nil, &cia402.AccessError{Index: mappingIndex, Subindex: subindex, Err: err}
		}
		mapValues = append(mapValues, uint32(mapValue))
	}
	return mapValues, nil
}
