package dji

// Properties are the per-model protocol constants.
type Properties struct {
	Name string
	// FeedbackBase plus the motor ID is the feedback identifier.
	FeedbackBase uint32
	// ControlIDs carry the commands of motor IDs 1-4 and 5-8.
	ControlIDs [2]uint32
	MaxID      uint8
	// CommandLimit bounds the raw command (current or voltage).
	CommandLimit int
	// EncoderCounts is the number of encoder counts per rotor turn.
	EncoderCounts int
	// GearRatio is rotor turns per output shaft turn.
	GearRatio float64
	// CurrentScale converts raw feedback current to amperes.
	CurrentScale float64
}

// GM6020 is the GM6020 gimbal motor, commanded by voltage.
type GM6020 struct{}

// M3508 is the M3508 motor with the C620 ESC.
type M3508 struct{}

// M2006 is the M2006 motor with the C610 ESC.
type M2006 struct{}

// Model is the closed set of supported DJI motors.
type Model interface {
	GM6020 | M3508 | M2006
	Properties() Properties
}

var (
	gm6020Props = Properties{
		Name:          "GM6020",
		FeedbackBase:  0x204,
		ControlIDs:    [2]uint32{0x1FF, 0x2FF},
		MaxID:         7,
		CommandLimit:  30000,
		EncoderCounts: 8192,
		GearRatio:     1,
		CurrentScale:  3.0 / 16384,
	}
	m3508Props = Properties{
		Name:          "M3508",
		FeedbackBase:  0x200,
		ControlIDs:    [2]uint32{0x200, 0x1FF},
		MaxID:         8,
		CommandLimit:  16384,
		EncoderCounts: 8192,
		GearRatio:     3591.0 / 187.0,
		CurrentScale:  20.0 / 16384,
	}
	m2006Props = Properties{
		Name:          "M2006",
		FeedbackBase:  0x200,
		ControlIDs:    [2]uint32{0x200, 0x1FF},
		MaxID:         8,
		CommandLimit:  10000,
		EncoderCounts: 8192,
		GearRatio:     36,
		CurrentScale:  10.0 / 10000,
	}
)

// Properties implements Model.
func (GM6020) Properties() Properties { return gm6020Props }

// Properties implements Model.
func (M3508) Properties() Properties { return m3508Props }

// Properties implements Model.
func (M2006) Properties() Properties { return m2006Props }

// FeedbackID returns the feedback identifier of motor id.
func (p Properties) FeedbackID(id uint8) uint32 {
	return p.FeedbackBase + uint32(id)
}

// ControlID returns the identifier of the frame carrying commands of motor id.
func (p Properties) ControlID(id uint8) uint32 {
	return p.ControlIDs[(id-1)/4]
}

// SlotOffset returns the offset of the 2-byte command of motor id.
func (p Properties) SlotOffset(id uint8) int {
	return int((id-1)%4) * 2
}
