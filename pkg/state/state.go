package state

// CiA402 power state of a drive, decoded from its status word
type State uint8

const (
	Unknown             State = 0
	NotReadyToSwitchOn  State = 1
	SwitchOnDisabled    State = 2
	ReadyToSwitchOn     State = 3
	SwitchedOn          State = 4
	OperationEnabled    State = 5
	QuickStopActive     State = 6
	FaultReactionActive State = 7
	Fault               State = 8
)

var stateDescription = map[State]string{
	Unknown:             "UNKNOWN",
	NotReadyToSwitchOn:  "NOT READY TO SWITCH ON",
	SwitchOnDisabled:    "SWITCH ON DISABLED",
	ReadyToSwitchOn:     "READY TO SWITCH ON",
	SwitchedOn:          "SWITCHED ON",
	OperationEnabled:    "OPERATION ENABLED",
	QuickStopActive:     "QUICK STOP ACTIVE",
	FaultReactionActive: "FAULT REACTION ACTIVE",
	Fault:               "FAULT",
}

func (s State) String() string {
	description, ok := stateDescription[s]
	if !ok {
		return "UNKNOWN"
	}
	return description
}

type decodeRule struct {
	mask  uint16
	value uint16
	state State
}

// Evaluated in order, first match wins
var decodeTable = []decodeRule{
	{0x004F, 0x0000, NotReadyToSwitchOn},
	{0x004F, 0x0040, SwitchOnDisabled},
	{0x006F, 0x0021, ReadyToSwitchOn},
	{0x006F, 0x0023, SwitchedOn},
	{0x006F, 0x0027, OperationEnabled},
	{0x006F, 0x0007, QuickStopActive},
	{0x004F, 0x000F, FaultReactionActive},
	{0x004F, 0x0008, Fault},
}

// Decode the power state of a status word
func Decode(statusWord uint16) State {
	for _, rule := range decodeTable {
		if statusWord&rule.mask == rule.value {
			return rule.state
		}
	}
	return Unknown
}

// Status word bits used for the auxiliary flags
const (
	BitSwitchedOn       = 1
	BitOperationEnabled = 2
	BitFault            = 3
	BitWarning          = 7
	BitLimitActive      = 11
)

// Auxiliary flags of a status word.
// Fault, Warning and LimitActive are active when their bit is CLEAR,
// this is how the drive reports them.
type Flags struct {
	PowerOn     bool
	Running     bool
	Fault       bool
	Warning     bool
	LimitActive bool
}

func bit(word uint16, n uint) bool {
	return (word>>n)&1 == 1
}

// Decode the auxiliary flags of a status word
func DecodeFlags(statusWord uint16) Flags {
	return Flags{
		PowerOn:     bit(statusWord, BitSwitchedOn),
		Running:     bit(statusWord, BitOperationEnabled),
		Fault:       !bit(statusWord, BitFault),
		Warning:     !bit(statusWord, BitWarning),
		LimitActive: !bit(statusWord, BitLimitActive),
	}
}
