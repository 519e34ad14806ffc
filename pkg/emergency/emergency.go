// Package emergency decodes emergency (EMCY) messages sent by drives.
package emergency

import (
	"encoding/binary"
	"fmt"
)

const ServiceId = 0x80

// Error register values
const (
	ErrRegGeneric       = 0x01 // bit 0 - generic error
	ErrRegCurrent       = 0x02 // bit 1 - current
	ErrRegVoltage       = 0x04 // bit 2 - voltage
	ErrRegTemperature   = 0x08 // bit 3 - temperature
	ErrRegCommunication = 0x10 // bit 4 - communication error
	ErrRegDevProfile    = 0x20 // bit 5 - device profile specific
	ErrRegReserved      = 0x40 // bit 6 - reserved (always 0)
	ErrRegManufacturer  = 0x80 // bit 7 - manufacturer specific
)

// Error codes, CiA301 classes and CiA402 drive codes
const (
	ErrNoError            = 0x0000
	ErrGeneric            = 0x1000
	ErrCurrent            = 0x2000
	ErrCurrentOutput      = 0x2300
	ErrContinuousOverCurr = 0x2310
	ErrShortCircuit       = 0x2320
	ErrVoltage            = 0x3000
	ErrVoltageMains       = 0x3100
	ErrDCLinkOverVoltage  = 0x3210
	ErrDCLinkUnderVoltage = 0x3220
	ErrTemperature        = 0x4000
	ErrTempAmbient        = 0x4100
	ErrTempDevice         = 0x4200
	ErrTempDrive          = 0x4310
	ErrTempMotor          = 0x4410
	ErrHardware           = 0x5000
	ErrSoftwareDevice     = 0x6000
	ErrDataSet            = 0x6300
	ErrAdditionalModul    = 0x7000
	ErrSensor             = 0x7300
	ErrEncoder            = 0x7305
	ErrMonitoring         = 0x8000
	ErrCommunication      = 0x8100
	ErrHeartbeat          = 0x8130
	ErrProtocolError      = 0x8200
	ErrPdoLength          = 0x8210
	ErrRpdoTimeout        = 0x8250
	ErrFollowingError     = 0x8611
	ErrExternalError      = 0x9000
	ErrAdditionalFunc     = 0xF000
	ErrDeviceSpecific     = 0xFF00
)

var errorCodeDescriptionMap = map[uint16]string{
	ErrNoError:            "Reset or No Error",
	ErrGeneric:            "Generic Error",
	ErrCurrent:            "Current",
	ErrCurrentOutput:      "Current, device output side",
	ErrContinuousOverCurr: "Continuous over current",
	ErrShortCircuit:       "Short circuit",
	ErrVoltage:            "Voltage",
	ErrVoltageMains:       "Mains Voltage",
	ErrDCLinkOverVoltage:  "DC link over voltage",
	ErrDCLinkUnderVoltage: "DC link under voltage",
	ErrTemperature:        "Temperature",
	ErrTempAmbient:        "Ambient Temperature",
	ErrTempDevice:         "Device Temperature",
	ErrTempDrive:          "Excess temperature drive",
	ErrTempMotor:          "Excess temperature motor",
	ErrHardware:           "Device Hardware",
	ErrSoftwareDevice:     "Device Software",
	ErrDataSet:            "Data Set",
	ErrAdditionalModul:    "Additional Modules",
	ErrSensor:             "Sensor",
	ErrEncoder:            "Encoder",
	ErrMonitoring:         "Monitoring",
	ErrCommunication:      "Communication",
	ErrHeartbeat:          "Life Guard Error or Heartbeat Error",
	ErrProtocolError:      "Protocol Error",
	ErrPdoLength:          "PDO not processed due to length error",
	ErrRpdoTimeout:        "RPDO timeout",
	ErrFollowingError:     "Following error",
	ErrExternalError:      "External Error",
	ErrAdditionalFunc:     "Additional Functions",
	ErrDeviceSpecific:     "Device specific",
}

// Description of an error code, falls back to the code's class
func Description(errorCode uint16) string {
	for _, mask := range []uint16{0xFFFF, 0xFFF0, 0xFF00, 0xF000} {
		description, ok := errorCodeDescriptionMap[errorCode&mask]
		if ok {
			return description
		}
	}
	return "Invalid or not implemented error code"
}

// A received emergency message
type Emergency struct {
	NodeId        uint8
	ErrorCode     uint16
	ErrorRegister uint8
	Manufacturer  [5]byte
}

func (emcy Emergency) String() string {
	return fmt.Sprintf("x%04x (%v), register x%02x", emcy.ErrorCode, Description(emcy.ErrorCode), emcy.ErrorRegister)
}

// Error free emergencies are sent when a drive leaves its error state
func (emcy Emergency) Reset() bool {
	return emcy.ErrorCode == ErrNoError
}

// Parse an emergency frame, ok is false for anything else, including SYNC
func Parse(id uint32, dlc uint8, data [8]byte) (Emergency, bool) {
	nodeId := id & 0x7F
	if id&0x780 != ServiceId || nodeId == 0 || dlc != 8 {
		return Emergency{}, false
	}
	emcy := Emergency{
		NodeId:        uint8(nodeId),
		ErrorCode:     binary.LittleEndian.Uint16(data[0:2]),
		ErrorRegister: data[2],
	}
	copy(emcy.Manufacturer[:], data[3:8])
	return emcy, true
}
