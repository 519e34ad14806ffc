package canbus

import (
	"fmt"

	cia402 "github.com/samsamfire/gocia402"
	can "github.com/samsamfire/gocia402/pkg/can"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

// PDO communication and mapping parameters (CiA301)
const (
	RpdoCommunicationStart uint16 = 0x1400
	TpdoCommunicationStart uint16 = 0x1800
	RpdoMappingStart       uint16 = 0x1600
	TpdoMappingStart       uint16 = 0x1A00
	MaxMappedEntriesPdo           = 8
)

const (
	CobIdInvalid            uint32 = 1 << 31
	TransmissionSynchronous uint8  = 0x01
)

// One PDO of a slave and the part of the process image it carries
type pdoSlot struct {
	number    int // 0 based
	cobId     uint32
	offset    int
	size      int
	mapValues []uint32
}

func pdoIndexes(rx bool, number int) (communication uint16, mapping uint16) {
	if rx {
		return RpdoCommunicationStart + uint16(number), RpdoMappingStart + uint16(number)
	}
	return TpdoCommunicationStart + uint16(number), TpdoMappingStart + uint16(number)
}

func defaultCobId(rx bool, number int, nodeId uint16) uint32 {
	if rx {
		return rpdoBaseIds[number] + uint32(nodeId)
	}
	return tpdoBaseIds[number] + uint32(nodeId)
}

// Split an ordered layout into groups of at most 8 bytes, one per PDO.
// Fields are never reordered so that image offsets match the layout.
func splitMapping(mapValues []uint32) ([][]uint32, error) {
	groups := [][]uint32{}
	current := []uint32{}
	size := 0
	for _, mapValue := range mapValues {
		width := int(mapValue&0xFF) / 8
		if width == 0 || width > PdoSize {
			return nil, fmt.Errorf("%w : map value x%08x", cia402.ErrIllegalArgument, mapValue)
		}
		if size+width > PdoSize || len(current) == MaxMappedEntriesPdo {
			groups = append(groups, current)
			current, size = []uint32{}, 0
		}
		current = append(current, mapValue)
		size += width
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	if len(groups) > MaxPdo {
		return nil, fmt.Errorf("%w : %d pdos needed", ErrImageTooLarge, len(groups))
	}
	return groups, nil
}

func (m *Master) writeUint32(slaveId uint16, index uint16, subindex uint8, value uint32) error {
	if err := m.WriteObject(slaveId, index, subindex, od.EncodeUint32(value)); err != nil {
		return cia402.NewAccessError(index, subindex, err)
	}
	return nil
}

func (m *Master) writeUint8(slaveId uint16, index uint16, subindex uint8, value uint8) error {
	if err := m.WriteObject(slaveId, index, subindex, od.EncodeUint8(value)); err != nil {
		return cia402.NewAccessError(index, subindex, err)
	}
	return nil
}

// Configure the PDOs of a direction to carry the layout, in order.
// The layout is split over PDO 1..4 in groups of at most 8 bytes, each PDO is
// disabled, remapped, set to synchronous transmission then re-enabled.
// PDOs left unused are disabled.
func (m *Master) WriteMapping(slaveId uint16, direction cia402.Direction, mapValues []uint32) error {
	groups, err := splitMapping(mapValues)
	if err != nil {
		return err
	}
	rx := direction == cia402.Outbound
	for number := 0; number < MaxPdo; number++ {
		communication, mapping := pdoIndexes(rx, number)
		cobId := defaultCobId(rx, number, slaveId)
		if err := m.writeUint32(slaveId, communication, 1, cobId|CobIdInvalid); err != nil {
			return err
		}
		if number >= len(groups) {
			continue
		}
		group := groups[number]
		if err := m.writeUint8(slaveId, mapping, 0, 0); err != nil {
			return err
		}
		for i, mapValue := range group {
			if err := m.writeUint32(slaveId, mapping, uint8(i+1), mapValue); err != nil {
				return err
			}
		}
		if err := m.writeUint8(slaveId, mapping, 0, uint8(len(group))); err != nil {
			return err
		}
		if err := m.writeUint8(slaveId, communication, 2, TransmissionSynchronous); err != nil {
			return err
		}
		if err := m.writeUint32(slaveId, communication, 1, cobId); err != nil {
			return err
		}
		log.Debugf("[CANBUS][x%x][%v] pdo %d on x%x, %d entries", slaveId, direction, number+1, cobId, len(group))
	}
	log.Infof("[CANBUS][x%x][%v] mapped %d entries over %d pdos", slaveId, direction, len(mapValues), len(groups))
	return nil
}

func (m *Master) readUint32(slaveId uint16, index uint16, subindex uint8) (uint32, error) {
	raw, err := m.ReadObject(slaveId, index, subindex, 4)
	if err != nil {
		return 0, cia402.NewAccessError(index, subindex, err)
	}
	value, err := od.Decode(raw, 4, false)
	if err != nil {
		return 0, &cia402.AccessError{Index: index, Subindex: subindex, Err: err}
	}
	return uint32(value), nil
}

// Enabled PDOs of a direction, with their place in the process image
func (m *Master) readSlots(slaveId uint16, rx bool) ([]pdoSlot, error) {
	slots := []pdoSlot{}
	offset := 0
	for number := 0; number < MaxPdo; number++ {
		communication, mapping := pdoIndexes(rx, number)
		cobId, err := m.readUint32(slaveId, communication, 1)
		if err != nil {
			return nil, err
		}
		if cobId&CobIdInvalid != 0 {
			continue
		}
		raw, err := m.ReadObject(slaveId, mapping, 0, 1)
		if err != nil {
			return nil, cia402.NewAccessError(mapping, 0, err)
		}
		if len(raw) < 1 {
			return nil, &cia402.AccessError{Index: mapping, Err: od.ErrWidth}
		}
		slot := pdoSlot{number: number, cobId: cobId & can.CanSffMask, offset: offset}
		for i := 1; i <= int(raw[0]); i++ {
			mapValue, err := m.readUint32(slaveId, mapping, uint8(i))
			if err != nil {
				return nil, err
			}
			slot.mapValues = append(slot.mapValues, mapValue)
			slot.size += int(mapValue&0xFF) / 8
		}
		if slot.size > PdoSize {
			return nil, fmt.Errorf("%w : pdo x%x maps %d bytes", ErrImageTooLarge, communication, slot.size)
		}
		if slot.size == 0 {
			continue
		}
		offset += slot.size
		slots = append(slots, slot)
	}
	return slots, nil
}

// Packed mapping values of the enabled PDOs of a direction, in image order
func (m *Master) ReadMapping(slaveId uint16, direction cia402.Direction) ([]uint32, error) {
	slots, err := m.readSlots(slaveId, direction == cia402.Outbound)
	if err != nil {
		return nil, err
	}
	mapValues := []uint32{}
	for _, slot := range slots {
		mapValues = append(mapValues, slot.mapValues...)
	}
	return mapValues, nil
}
