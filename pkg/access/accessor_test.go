package access

import (
	"bytes"
	"errors"
	"testing"

	cia402 "github.com/samsamfire/gocia402"
	"github.com/samsamfire/gocia402/pkg/od"
	"github.com/samsamfire/gocia402/pkg/pdo"
	"github.com/samsamfire/gocia402/pkg/sdo"
	"github.com/stretchr/testify/assert"
)

const poison = 0xA5

type staticMapping [2]*pdo.Table

func (m staticMapping) Table(direction cia402.Direction) *pdo.Table {
	return m[direction]
}

type fakeMaster struct {
	outputs     []byte
	inputs      []byte
	imageCalls  int
	objects     map[uint32][]byte
	readErr     error
	writeErr    error
	objectReads int
}

func key(index uint16, subindex uint8) uint32 {
	return uint32(index)<<8 | uint32(subindex)
}

func (m *fakeMaster) ReadObject(slaveId uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	m.objectReads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.objects[key(index, subindex)]
	if !ok {
		return nil, sdo.AbortNotExist
	}
	return data, nil
}

func (m *fakeMaster) WriteObject(slaveId uint16, index uint16, subindex uint8, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.objects[key(index, subindex)] = data
	return nil
}

func (m *fakeMaster) Outputs(slaveId uint16) []byte {
	m.imageCalls++
	return m.outputs
}

func (m *fakeMaster) Inputs(slaveId uint16) []byte {
	m.imageCalls++
	return m.inputs
}

func (m *fakeMaster) Phase(slaveId uint16) (cia402.Phase, error) {
	return cia402.PhaseOperational, nil
}

func (m *fakeMaster) Detected(slaveId uint16) bool { return true }

func newFixture(t *testing.T) (*fakeMaster, *Accessor) {
	outbound, err := pdo.NewTable([]od.Field{od.ControlWord, od.TargetTorque})
	assert.Nil(t, err)
	inbound, err := pdo.NewTable([]od.Field{od.StatusWord, od.PositionActual, od.OperationModeDisplay})
	assert.Nil(t, err)
	master := &fakeMaster{
		outputs: make([]byte, outbound.Size()),
		inputs:  make([]byte, inbound.Size()),
		objects: map[uint32][]byte{},
	}
	return master, NewAccessor(master, 1, staticMapping{outbound, inbound})
}

func TestMappedPath(t *testing.T) {
	_, accessor := newFixture(t)
	assert.True(t, accessor.Mapped(cia402.Outbound, od.ControlWord))
	assert.False(t, accessor.Mapped(cia402.Inbound, od.ControlWord))
	assert.Equal(t, PathImage, accessor.Path(cia402.Inbound, od.StatusWord))
	assert.Equal(t, PathObject, accessor.Path(cia402.Inbound, od.TorqueActual))
	assert.Equal(t, "IMAGE", PathImage.String())
	assert.Equal(t, "OBJECT", PathObject.String())

	unmapped := NewAccessor(&fakeMaster{}, 1, nil)
	assert.False(t, unmapped.Mapped(cia402.Outbound, od.ControlWord))
}

func TestGetImage(t *testing.T) {
	master, accessor := newFixture(t)
	copy(master.inputs, []byte{0x37, 0x02, 0x18, 0xfc, 0xff, 0xff, 0xf6})
	value, err := accessor.Get(cia402.Inbound, od.StatusWord)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x0237, value)
	value, err = accessor.Get(cia402.Inbound, od.PositionActual)
	assert.Nil(t, err)
	assert.EqualValues(t, -1000, value)
	value, err = accessor.Get(cia402.Inbound, od.OperationModeDisplay)
	assert.Nil(t, err)
	assert.EqualValues(t, -10, value)
	assert.Equal(t, 0, master.objectReads)
}

func TestSetImage(t *testing.T) {
	master, accessor := newFixture(t)
	assert.Nil(t, accessor.Set(cia402.Outbound, od.ControlWord, 0x0F))
	assert.Nil(t, accessor.Set(cia402.Outbound, od.TargetTorque, -100))
	assert.Equal(t, []byte{0x0F, 0x00, 0x9c, 0xff}, master.outputs)
	assert.Empty(t, master.objects)

	value, err := accessor.Get(cia402.Outbound, od.TargetTorque)
	assert.Nil(t, err)
	assert.EqualValues(t, -100, value)
}

func TestImageBounds(t *testing.T) {
	master, accessor := newFixture(t)
	master.inputs = master.inputs[:4]
	_, err := accessor.Get(cia402.Inbound, od.PositionActual)
	var accessErr *cia402.AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.True(t, errors.Is(err, cia402.ErrImageBounds))
	assert.EqualValues(t, 0x6064, accessErr.Index)

	master.outputs = nil
	err = accessor.Set(cia402.Outbound, od.ControlWord, 6)
	assert.True(t, errors.Is(err, cia402.ErrImageBounds))
}

func TestGetUnmappedNeverTouchesImage(t *testing.T) {
	master, accessor := newFixture(t)
	for i := range master.inputs {
		master.inputs[i] = poison
	}
	for i := range master.outputs {
		master.outputs[i] = poison
	}
	inputs := bytes.Clone(master.inputs)
	outputs := bytes.Clone(master.outputs)
	master.objects[key(0x6077, 0)] = []byte{0xf4, 0x01}

	value, err := accessor.Get(cia402.Inbound, od.TorqueActual)
	assert.Nil(t, err)
	assert.EqualValues(t, 500, value)
	assert.Nil(t, accessor.Set(cia402.Outbound, od.TargetPosition, 4000))

	assert.Equal(t, 0, master.imageCalls)
	assert.Equal(t, inputs, master.inputs)
	assert.Equal(t, outputs, master.outputs)
	assert.Equal(t, []byte{0xa0, 0x0f, 0x00, 0x00}, master.objects[key(0x607A, 0)])
}

func TestObjectPathFailure(t *testing.T) {
	master, accessor := newFixture(t)
	master.readErr = sdo.AbortTimeout
	value, err := accessor.Get(cia402.Inbound, od.VelocityActual)
	assert.EqualValues(t, 0, value)
	var accessErr *cia402.AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.EqualValues(t, 0x606C, accessErr.Index)
	assert.True(t, errors.Is(err, cia402.ErrNotAcknowledged))
	var abort sdo.AbortCode
	assert.True(t, errors.As(err, &abort))
	assert.Equal(t, sdo.AbortTimeout, abort)

	master.writeErr = sdo.AbortReadOnly
	err = accessor.Set(cia402.Outbound, od.TargetVelocity, 1)
	assert.True(t, errors.Is(err, cia402.ErrNotAcknowledged))

	_, err = accessor.Get(cia402.Inbound, od.Field(99))
	assert.True(t, errors.Is(err, cia402.ErrUnknownField))
}

func TestObjectPathShortResponse(t *testing.T) {
	master, accessor := newFixture(t)
	master.objects[key(0x60FD, 0)] = []byte{0x01}
	_, err := accessor.Get(cia402.Inbound, od.DigitalInput)
	assert.True(t, errors.Is(err, od.ErrWidth))
}
