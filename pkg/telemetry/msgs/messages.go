// Package msgs defines the telemetry and remote command messages,
// serialized as protobuf.
package msgs

import (
	"github.com/golang/protobuf/proto"
)

// MotorState is the published state of a motor.
type MotorState struct {
	Name        string  `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Kind        string  `protobuf:"bytes,2,opt,name=kind,proto3" json:"kind,omitempty"`
	ID          uint32  `protobuf:"varint,3,opt,name=id,proto3" json:"id,omitempty"`
	Position    float64 `protobuf:"fixed64,4,opt,name=position,proto3" json:"position,omitempty"`
	Velocity    float64 `protobuf:"fixed64,5,opt,name=velocity,proto3" json:"velocity,omitempty"`
	Effort      float64 `protobuf:"fixed64,6,opt,name=effort,proto3" json:"effort,omitempty"`
	Temperature uint32  `protobuf:"varint,7,opt,name=temperature,proto3" json:"temperature,omitempty"`
	Command     float64 `protobuf:"fixed64,8,opt,name=command,proto3" json:"command,omitempty"`
	Fault       bool    `protobuf:"varint,9,opt,name=fault,proto3" json:"fault,omitempty"`
	Status      string  `protobuf:"bytes,10,opt,name=status,proto3" json:"status,omitempty"`
	Online      bool    `protobuf:"varint,11,opt,name=online,proto3" json:"online,omitempty"`
	UpdatedNs   int64   `protobuf:"varint,12,opt,name=updated_ns,proto3" json:"updated_ns,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *MotorState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *MotorState) Reset() { *m = MotorState{} }

// String implements proto.Message.
func (m *MotorState) String() string { return proto.CompactTextString(m) }

// ReceiverState is the published state of a remote receiver.
type ReceiverState struct {
	Name     string  `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Channels []int32 `protobuf:"zigzag32,2,rep,packed,name=channels,proto3" json:"channels,omitempty"`
	S1       uint32  `protobuf:"varint,3,opt,name=s1,proto3" json:"s1,omitempty"`
	S2       uint32  `protobuf:"varint,4,opt,name=s2,proto3" json:"s2,omitempty"`
	Keys     uint32  `protobuf:"varint,5,opt,name=keys,proto3" json:"keys,omitempty"`
	MouseX   int32   `protobuf:"zigzag32,6,opt,name=mouse_x,proto3" json:"mouse_x,omitempty"`
	MouseY   int32   `protobuf:"zigzag32,7,opt,name=mouse_y,proto3" json:"mouse_y,omitempty"`
	MouseZ   int32   `protobuf:"zigzag32,8,opt,name=mouse_z,proto3" json:"mouse_z,omitempty"`
	Dial     int32   `protobuf:"zigzag32,9,opt,name=dial,proto3" json:"dial,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *ReceiverState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ReceiverState) Reset() { *m = ReceiverState{} }

// String implements proto.Message.
func (m *ReceiverState) String() string { return proto.CompactTextString(m) }

// BusStats are the counters of one bus.
type BusStats struct {
	Bus            string `protobuf:"bytes,1,opt,name=bus,proto3" json:"bus,omitempty"`
	Received       uint64 `protobuf:"varint,2,opt,name=received,proto3" json:"received,omitempty"`
	Dispatched     uint64 `protobuf:"varint,3,opt,name=dispatched,proto3" json:"dispatched,omitempty"`
	Superseded     uint64 `protobuf:"varint,4,opt,name=superseded,proto3" json:"superseded,omitempty"`
	Evicted        uint64 `protobuf:"varint,5,opt,name=evicted,proto3" json:"evicted,omitempty"`
	Unknown        uint64 `protobuf:"varint,6,opt,name=unknown,proto3" json:"unknown,omitempty"`
	Malformed      uint64 `protobuf:"varint,7,opt,name=malformed,proto3" json:"malformed,omitempty"`
	Sent           uint64 `protobuf:"varint,8,opt,name=sent,proto3" json:"sent,omitempty"`
	SendErrors     uint64 `protobuf:"varint,9,opt,name=send_errors,proto3" json:"send_errors,omitempty"`
	DispatchErrors uint64 `protobuf:"varint,10,opt,name=dispatch_errors,proto3" json:"dispatch_errors,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *BusStats) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BusStats) Reset() { *m = BusStats{} }

// String implements proto.Message.
func (m *BusStats) String() string { return proto.CompactTextString(m) }

// Snapshot is published periodically with the state of the whole robot.
type Snapshot struct {
	RobotID   string           `protobuf:"bytes,1,opt,name=robot_id,proto3" json:"robot_id,omitempty"`
	TimeNs    int64            `protobuf:"varint,2,opt,name=time_ns,proto3" json:"time_ns,omitempty"`
	Motors    []*MotorState    `protobuf:"bytes,3,rep,name=motors,proto3" json:"motors,omitempty"`
	Receivers []*ReceiverState `protobuf:"bytes,4,rep,name=receivers,proto3" json:"receivers,omitempty"`
	Buses     []*BusStats      `protobuf:"bytes,5,rep,name=buses,proto3" json:"buses,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Snapshot) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Snapshot) Reset() { *m = Snapshot{} }

// String implements proto.Message.
func (m *Snapshot) String() string { return proto.CompactTextString(m) }

// Setpoint kinds.
const (
	SetpointRaw      = "raw"
	SetpointVelocity = "velocity"
	SetpointPosition = "position"
	SetpointEnable   = "enable"
	SetpointDisable  = "disable"
)

// Setpoint is a remote command to one device.
type Setpoint struct {
	Kind  string  `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Value float64 `protobuf:"fixed64,2,opt,name=value,proto3" json:"value,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Setpoint) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Setpoint) Reset() { *m = Setpoint{} }

// String implements proto.Message.
func (m *Setpoint) String() string { return proto.CompactTextString(m) }

// DeviceCommand addresses a Setpoint to a device by name, used on
// transports without per-device topics.
type DeviceCommand struct {
	Device   string    `protobuf:"bytes,1,opt,name=device,proto3" json:"device,omitempty"`
	Setpoint *Setpoint `protobuf:"bytes,2,opt,name=setpoint,proto3" json:"setpoint,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *DeviceCommand) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceCommand) Reset() { *m = DeviceCommand{} }

// String implements proto.Message.
func (m *DeviceCommand) String() string { return proto.CompactTextString(m) }
