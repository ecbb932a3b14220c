package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/telemetry/mqtt"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

type fakeClient struct {
	lock      sync.Mutex
	published map[string][]byte
}

func (c *fakeClient) Connect() paho.Token { return &paho.DummyToken{} }
func (c *fakeClient) Disconnect(uint)     {}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload.([]byte)
	return &paho.DummyToken{}
}
func (c *fakeClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &paho.DummyToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &paho.DummyToken{}
}
func (c *fakeClient) Unsubscribe(...string) paho.Token { return &paho.DummyToken{} }

type fakeRobot struct {
	applied []string
}

func (r *fakeRobot) Snapshot() *msgs.Snapshot {
	return &msgs.Snapshot{Motors: []*msgs.MotorState{{Name: "yaw", Velocity: 1}}}
}

func (r *fakeRobot) ApplySetpoint(device string, sp *msgs.Setpoint) error {
	if device == "missing" {
		return errors.New("no such device")
	}
	r.applied = append(r.applied, device+":"+sp.Kind)
	return nil
}

type tick struct {
	now time.Time
	n   uint64
}

func (t *tick) Context() context.Context { return context.Background() }
func (t *tick) Time() time.Time          { return t.now }
func (t *tick) Dt() time.Duration        { return time.Millisecond }
func (t *tick) Tick() uint64             { return t.n }
func (t *tick) PriorityLevel() int       { return fx.PrLvPostProc }

func TestPublishPeriod(t *testing.T) {
	client := &fakeClient{}
	robot := &fakeRobot{}
	p := NewPublisher("r1", &mqtt.Queue{Client: client, TopicPrefix: "robots/"}, nil, robot, robot)

	now := time.Unix(100, 0)
	require.NoError(t, p.Publish(&tick{now: now}))
	data, ok := client.published["robots/r1/state"]
	require.True(t, ok)
	var snapshot msgs.Snapshot
	require.NoError(t, proto.Unmarshal(data, &snapshot))
	assert.Equal(t, "r1", snapshot.RobotID)
	assert.Equal(t, now.UnixNano(), snapshot.TimeNs)
	require.Len(t, snapshot.Motors, 1)

	delete(client.published, "robots/r1/state")
	require.NoError(t, p.Publish(&tick{now: now.Add(50 * time.Millisecond)}))
	assert.Empty(t, client.published)
	require.NoError(t, p.Publish(&tick{now: now.Add(100 * time.Millisecond)}))
	assert.Len(t, client.published, 1)
}

func TestSetpointsAppliedInLoop(t *testing.T) {
	robot := &fakeRobot{}
	queue := &mqtt.Queue{Client: &fakeClient{}}
	p := NewPublisher("r1", queue, nil, robot, robot)
	queue.Sub("r1/devices/+/cmd", p.commandReceived)

	payload := func(kind string) []byte {
		data, err := proto.Marshal(&msgs.Setpoint{Kind: kind, Value: 1})
		require.NoError(t, err)
		return data
	}
	queue.Deliver("r1/devices/yaw/cmd", payload(msgs.SetpointRaw))
	queue.Deliver("r1/devices/pitch/cmd", payload(msgs.SetpointEnable))
	queue.Deliver("r1/devices/yaw/cmd", payload(msgs.SetpointVelocity))
	queue.Deliver("r1/devices/yaw/cmd", []byte{0xFF})
	assert.Empty(t, robot.applied)

	require.NoError(t, p.ApplySetpoints(&tick{}))
	assert.Equal(t, []string{"yaw:velocity", "pitch:enable"}, robot.applied)

	robot.applied = nil
	require.NoError(t, p.ApplySetpoints(&tick{}))
	assert.Empty(t, robot.applied)

	p.Submit("missing", &msgs.Setpoint{Kind: msgs.SetpointRaw})
	p.Submit("yaw", &msgs.Setpoint{Kind: msgs.SetpointRaw})
	require.Error(t, p.ApplySetpoints(&tick{}))
	assert.Equal(t, []string{"yaw:raw"}, robot.applied)
}
