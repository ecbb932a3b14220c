package dm

import "fmt"

// Status is the state code in the high nibble of the first feedback byte.
type Status uint8

// Status codes reported by the motor.
const (
	StatusDisabled        Status = 0x0
	StatusEnabled         Status = 0x1
	StatusOverVoltage     Status = 0x8
	StatusUnderVoltage    Status = 0x9
	StatusOverCurrent     Status = 0xA
	StatusMOSOverTemp     Status = 0xB
	StatusRotorOverTemp   Status = 0xC
	StatusLostCommunicate Status = 0xD
	StatusOverload        Status = 0xE
)

// Fault reports whether the status is an error code.
func (s Status) Fault() bool {
	return s >= StatusOverVoltage
}

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusEnabled:
		return "enabled"
	case StatusOverVoltage:
		return "over-voltage"
	case StatusUnderVoltage:
		return "under-voltage"
	case StatusOverCurrent:
		return "over-current"
	case StatusMOSOverTemp:
		return "mos-over-temperature"
	case StatusRotorOverTemp:
		return "rotor-over-temperature"
	case StatusLostCommunicate:
		return "lost-communication"
	case StatusOverload:
		return "overload"
	}
	return fmt.Sprintf("status(0x%X)", uint8(s))
}
