package pdo

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/sdo"
	"github.com/stretchr/testify/assert"
)

type objectWrite struct {
	index    uint16
	subindex uint8
	data     []byte
}

// Records object writes and answers reads with previously written values
type fakeMaster struct {
	phase   cia402.Phase
	writes  []objectWrite
	failing map[uint32]error
	objects map[uint32][]byte
}

func newFakeMaster() *fakeMaster {
	return &fakeMaster{
		phase:   cia402.PhasePreOperational,
		failing: map[uint32]error{},
		objects: map[uint32][]byte{},
	}
}

func key(index uint16, subindex uint8) uint32 {
	return uint32(index)<<8 | uint32(subindex)
}

func (m *fakeMaster) ReadObject(slaveId uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	data, ok := m.objects[key(index, subindex)]
	if !ok {
		return nil, sdo.AbortNotExist
	}
	return data, nil
}

func (m *fakeMaster) WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error {
	m.writes = append(m.writes, objectWrite{index, subindex, data})
	if err, ok := m.failing[key(index, subindex)]; ok {
		return err
	}
	m.objects[key(index, subindex)] = data
	return nil
}

func (m *fakeMaster) Outputs(slaveId uint16) []byte            { return nil }
func (m *fakeMaster) Inputs(slaveId uint16) []byte             { return nil }
func (m *fakeMaster) Phase(slaveId uint16) (cia402.Phase, error) { return m.phase, nil }
func (m *fakeMaster) Detected(slaveId uint16) bool             { return true }

func newTestConfigurator(master *fakeMaster) (*Configurator, *[]time.Duration) {
	sleeps := []time.Duration{}
	c := NewConfigurator(master, 1)
	c.SetSleep(func(d time.Duration) { sleeps = append(sleeps, d) })
	return c, &sleeps
}

func TestTable(t *testing.T) {
	table, err := NewTable([]od.Field{od.StatusWord, od.PositionActual, od.OperationModeDisplay, od.TorqueActual})
	assert.Nil(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, 9, table.Size())
	entry, ok := table.Lookup(od.TorqueActual)
	assert.True(t, ok)
	assert.Equal(t, 7, entry.Offset)
	assert.Equal(t, 2, entry.Width)
	assert.True(t, entry.Signed)
	assert.False(t, table.Contains(od.ControlWord))

	_, err = NewTable([]od.Field{od.StatusWord, od.StatusWord})
	assert.True(t, errors.Is(err, cia402.ErrIllegalArgument))
	_, err = NewTable([]od.Field{od.Field(0)})
	assert.True(t, errors.Is(err, cia402.ErrUnknownField))

	var undefined *Table
	assert.False(t, undefined.Contains(od.StatusWord))
	assert.Equal(t, 0, undefined.Size())
	assert.Nil(t, undefined.Entries())

	table, err = NewTableFromMapValues([]uint32{0x60400010, 0x60710010})
	assert.Nil(t, err)
	entry, _ = table.Lookup(od.TargetTorque)
	assert.Equal(t, 2, entry.Offset)
	_, err = NewTableFromMapValues([]uint32{0x12340010})
	assert.True(t, errors.Is(err, cia402.ErrUnknownField))
}

func TestAssignRank(t *testing.T) {
	master := newFakeMaster()
	c, _ := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Outbound, 1))
	assert.Equal(t, []objectWrite{
		{0x1C12, 0, []byte{0}},
		{0x1C12, 1, []byte{0x00, 0x16}},
		{0x1C12, 0, []byte{1}},
	}, master.writes)
	assert.EqualValues(t, 1, c.Rank(cia402.Outbound))

	assert.Nil(t, c.AssignRank(cia402.Inbound, 2))
	assert.Equal(t, objectWrite{0x1C13, 1, []byte{0x01, 0x1A}}, master.writes[4])
	index, err := c.AssignedIndex(cia402.Inbound)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x1A01, index)
}

func TestAssignRankInvalid(t *testing.T) {
	master := newFakeMaster()
	c, _ := newTestConfigurator(master)
	var configErr *cia402.ConfigError
	for _, rank := range []uint8{0, 5} {
		err := c.AssignRank(cia402.Outbound, rank)
		assert.True(t, errors.As(err, &configErr))
		assert.True(t, errors.Is(err, cia402.ErrIllegalArgument))
	}
	err := c.AssignRank(cia402.Direction(7), 1)
	assert.True(t, errors.Is(err, cia402.ErrIllegalArgument))
	assert.Empty(t, master.writes)
}

func TestAssignRankWrongPhase(t *testing.T) {
	master := newFakeMaster()
	master.phase = cia402.PhaseOperational
	c, _ := newTestConfigurator(master)
	err := c.AssignRank(cia402.Inbound, 1)
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.True(t, errors.Is(err, cia402.ErrWrongPhase))
	assert.Empty(t, master.writes)
	assert.EqualValues(t, 0, c.Rank(cia402.Inbound))
}

func TestAssignRankBracketWritesUnchecked(t *testing.T) {
	master := newFakeMaster()
	master.failing[key(0x1C12, 0)] = sdo.AbortDataDeviceState
	c, _ := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Outbound, 3))
	assert.Len(t, master.writes, 3)
	assert.EqualValues(t, 3, c.Rank(cia402.Outbound))
}

func TestAssignRankIndexWriteFails(t *testing.T) {
	master := newFakeMaster()
	master.failing[key(0x1C12, 1)] = sdo.AbortDataDeviceState
	c, _ := newTestConfigurator(master)
	err := c.AssignRank(cia402.Outbound, 1)
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.True(t, errors.Is(err, cia402.ErrNotAcknowledged))
	var abort sdo.AbortCode
	assert.True(t, errors.As(err, &abort))
	assert.Equal(t, sdo.AbortDataDeviceState, abort)
	// Bracket is still closed
	assert.Len(t, master.writes, 3)
	assert.EqualValues(t, 0, c.Rank(cia402.Outbound))
}

func TestConfigureMapping(t *testing.T) {
	master := newFakeMaster()
	c, sleeps := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Inbound, 1))
	master.writes = nil

	fields := []od.Field{od.StatusWord, od.PositionActual, od.VelocityActual, od.OperationModeDisplay, od.DigitalInput}
	table, err := c.ConfigureMapping(cia402.Inbound, fields)
	assert.Nil(t, err)
	assert.Equal(t, table, c.Table(cia402.Inbound))
	assert.Equal(t, objectWrite{0x1A00, 0, []byte{5}}, master.writes[0])
	assert.Equal(t, objectWrite{0x1A00, 1, []byte{0x10, 0x00, 0x41, 0x60}}, master.writes[1])
	assert.Equal(t, objectWrite{0x1A00, 5, []byte{0x20, 0x00, 0xFD, 0x60}}, master.writes[5])
	assert.Len(t, master.writes, 6)
	assert.Equal(t, []time.Duration{
		DefaultSettleDelay, DefaultSettleDelay, DefaultSettleDelay, DefaultSettleDelay, DefaultSettleDelay,
	}, *sleeps)

	offsets := []int{}
	for _, entry := range table.Entries() {
		offsets = append(offsets, entry.Offset)
	}
	assert.Equal(t, []int{0, 2, 6, 10, 11}, offsets)
	assert.Equal(t, 15, table.Size())

	mapValues, err := c.ReadMappings(cia402.Inbound)
	assert.Nil(t, err)
	assert.Equal(t, []uint32{0x60410010, 0x60640020, 0x606C0020, 0x60610008, 0x60FD0020}, mapValues)
}

func TestConfigureMappingPermutations(t *testing.T) {
	master := newFakeMaster()
	c, _ := newTestConfigurator(master)
	c.SetSettleDelay(0)
	assert.Nil(t, c.AssignRank(cia402.Outbound, 4))
	all := od.Fields()
	random := rand.New(rand.NewSource(402))
	for i := 0; i < 50; i++ {
		fields := make([]od.Field, 0, len(all))
		for _, j := range random.Perm(len(all)) {
			fields = append(fields, all[j])
		}
		table, err := c.ConfigureMapping(cia402.Outbound, fields)
		assert.Nil(t, err)
		expected := 0
		previous := -1
		for k, entry := range table.Entries() {
			assert.Equal(t, fields[k], entry.Field)
			assert.Equal(t, expected, entry.Offset)
			assert.Greater(t, entry.Offset, previous)
			previous = entry.Offset
			info, _ := od.Lookup(entry.Field)
			expected += info.Width()
		}
		assert.Equal(t, expected, table.Size())
	}
}

func TestConfigureMappingUnknownField(t *testing.T) {
	master := newFakeMaster()
	c, _ := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Outbound, 1))
	master.writes = nil
	_, err := c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord, od.Field(42)})
	var configErr *cia402.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.True(t, errors.Is(err, cia402.ErrUnknownField))
	assert.Empty(t, master.writes)
	assert.Nil(t, c.Table(cia402.Outbound))
}

func TestConfigureMappingRankNotAssigned(t *testing.T) {
	master := newFakeMaster()
	c, _ := newTestConfigurator(master)
	_, err := c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord})
	assert.True(t, errors.Is(err, cia402.ErrRankNotAssigned))
	assert.Empty(t, master.writes)
	_, err = c.ReadMappings(cia402.Outbound)
	assert.True(t, errors.Is(err, cia402.ErrRankNotAssigned))
}

func TestConfigureMappingWriteFails(t *testing.T) {
	master := newFakeMaster()
	c, sleeps := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Outbound, 1))
	_, err := c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord})
	assert.Nil(t, err)
	assert.NotNil(t, c.Table(cia402.Outbound))

	master.writes = nil
	*sleeps = nil
	master.failing[key(0x1600, 2)] = sdo.AbortNoMap
	_, err = c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord, od.TargetTorque, od.TargetPosition})
	var accessErr *cia402.AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.EqualValues(t, 0x1600, accessErr.Index)
	assert.EqualValues(t, 2, accessErr.Subindex)
	// Count, first entry and failing entry, nothing after
	assert.Len(t, master.writes, 3)
	assert.Len(t, *sleeps, 2)
	assert.Nil(t, c.Table(cia402.Outbound))
}

func TestConfigureMappingCountRefused(t *testing.T) {
	master := newFakeMaster()
	master.failing[key(0x1A00, 0)] = sdo.AbortDataDeviceState
	c, _ := newTestConfigurator(master)
	assert.Nil(t, c.AssignRank(cia402.Inbound, 1))
	master.writes = nil
	_, err := c.ConfigureMapping(cia402.Inbound, []od.Field{od.StatusWord})
	assert.True(t, errors.Is(err, cia402.ErrNotAcknowledged))
	assert.Len(t, master.writes, 1)

	c.Reset()
	assert.EqualValues(t, 0, c.Rank(cia402.Inbound))
}

// Master configuring process data itself
type fakeMapper struct {
	*fakeMaster
	mappings [2][]uint32
	err      error
}

func (m *fakeMapper) WriteMapping(slaveId uint16, direction cia402.Direction, mapValues []uint32) error {
	if m.err != nil {
		return m.err
	}
	m.mappings[direction] = mapValues
	return nil
}

func (m *fakeMapper) ReadMapping(slaveId uint16, direction cia402.Direction) ([]uint32, error) {
	return m.mappings[direction], nil
}

func TestConfigureThroughMapper(t *testing.T) {
	master := &fakeMapper{fakeMaster: newFakeMaster()}
	c := NewConfigurator(master, 1)
	c.SetSleep(func(time.Duration) {})

	assert.Nil(t, c.AssignRank(cia402.Inbound, 1))
	assert.Empty(t, master.writes)
	table, err := c.ConfigureMapping(cia402.Inbound, []od.Field{od.StatusWord, od.PositionActual, od.TorqueActual})
	assert.Nil(t, err)
	assert.Equal(t, 8, table.Size())
	assert.Empty(t, master.writes)
	assert.Equal(t, []uint32{0x60410010, 0x60640020, 0x60770010}, master.mappings[cia402.Inbound])

	mapValues, err := c.ReadMappings(cia402.Inbound)
	assert.Nil(t, err)
	assert.Equal(t, master.mappings[cia402.Inbound], mapValues)
	_, err = c.AssignedIndex(cia402.Inbound)
	assert.ErrorIs(t, err, cia402.ErrIllegalArgument)

	// Validation still happens before handing the layout over
	_, err = c.ConfigureMapping(cia402.Inbound, []od.Field{od.Field(0)})
	assert.ErrorIs(t, err, cia402.ErrUnknownField)
	_, err = c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord})
	assert.ErrorIs(t, err, cia402.ErrRankNotAssigned)

	master.err = sdo.AbortMapLen
	assert.Nil(t, c.AssignRank(cia402.Outbound, 1))
	_, err = c.ConfigureMapping(cia402.Outbound, []od.Field{od.ControlWord})
	assert.ErrorIs(t, err, sdo.AbortMapLen)
	assert.Nil(t, c.Table(cia402.Outbound))
}
