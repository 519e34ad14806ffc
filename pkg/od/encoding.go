package od

import (
	"encoding/binary"
	"errors"
)

var ErrWidth = errors.New("unsupported width")

// Decode a little endian integer of the given width (1, 2 or 4 bytes).
// Value is sign extended if signed is set, zero extended otherwise.
func Decode(data []byte, width int, signed bool) (int64, error) {
	if len(data) < width {
		return 0, ErrWidth
	}
	switch width {
	case 1:
		if signed {
			return int64(int8(data[0])), nil
		}
		return int64(data[0]), nil
	case 2:
		raw := binary.LittleEndian.Uint16(data)
		if signed {
			return int64(int16(raw)), nil
		}
		return int64(raw), nil
	case 4:
		raw := binary.LittleEndian.Uint32(data)
		if signed {
			return int64(int32(raw)), nil
		}
		return int64(raw), nil
	default:
		return 0, ErrWidth
	}
}

// Encode the low width bytes of value in little endian into data.
// Upper bits are truncated.
func EncodeInto(data []byte, value int64, width int) error {
	if len(data) < width {
		return ErrWidth
	}
	switch width {
	case 1:
		data[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(value))
	default:
		return ErrWidth
	}
	return nil
}

// Encode value on width bytes, little endian
func Encode(value int64, width int) ([]byte, error) {
	data := make([]byte, width)
	err := EncodeInto(data, value, width)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func EncodeUint8(value uint8) []byte {
	return []byte{value}
}

func EncodeUint16(value uint16) []byte {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, value)
	return data
}

func EncodeUint32(value uint32) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	return data
}
