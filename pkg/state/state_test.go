package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	assert.Equal(t, NotReadyToSwitchOn, Decode(0x0000))
	assert.Equal(t, SwitchOnDisabled, Decode(0x0040))
	assert.Equal(t, ReadyToSwitchOn, Decode(0x0021))
	assert.Equal(t, SwitchedOn, Decode(0x0023))
	assert.Equal(t, OperationEnabled, Decode(0x0027))
	assert.Equal(t, QuickStopActive, Decode(0x0007))
	assert.Equal(t, FaultReactionActive, Decode(0x000F))
	assert.Equal(t, Fault, Decode(0x0008))

	// Bits outside of the masks are ignored
	assert.Equal(t, OperationEnabled, Decode(0x1637))
	assert.Equal(t, SwitchOnDisabled, Decode(0x0250))
	assert.Equal(t, Fault, Decode(0x0228))
	assert.Equal(t, Unknown, Decode(0x0001))
	assert.Equal(t, Unknown, Decode(0x0061))
}

func TestDecodeIsPure(t *testing.T) {
	for word := 0; word <= 0xFFFF; word += 7 {
		assert.Equal(t, Decode(uint16(word)), Decode(uint16(word)))
		assert.Equal(t, DecodeFlags(uint16(word)), DecodeFlags(uint16(word)))
	}
}

func TestDecodeFlags(t *testing.T) {
	flags := DecodeFlags(0x0000)
	assert.Equal(t, Flags{PowerOn: false, Running: false, Fault: true, Warning: true, LimitActive: true}, flags)

	flags = DecodeFlags(0x0002 | 0x0004 | 0x0008 | 0x0080 | 0x0800)
	assert.Equal(t, Flags{PowerOn: true, Running: true, Fault: false, Warning: false, LimitActive: false}, flags)

	flags = DecodeFlags(0x0027)
	assert.True(t, flags.PowerOn)
	assert.True(t, flags.Running)
	assert.True(t, flags.Fault)
	assert.True(t, flags.Warning)
	assert.True(t, flags.LimitActive)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "OPERATION ENABLED", OperationEnabled.String())
	assert.Equal(t, "FAULT", Fault.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
