// Package telemetry publishes robot state and accepts remote setpoints
// over MQTT and WebSocket.
package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/telemetry/mqtt"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

// DefaultPeriod is the default publishing period.
const DefaultPeriod = 100 * time.Millisecond

// Source provides the robot state.
type Source interface {
	Snapshot() *msgs.Snapshot
}

// Sink applies setpoints to devices. It's only called from the loop.
type Sink interface {
	ApplySetpoint(device string, sp *msgs.Setpoint) error
}

// Publisher publishes a Snapshot every Period to <robot>/state and takes
// setpoints from <robot>/devices/<device>/cmd. Setpoints are held until the
// next control tick, where only the latest one per device is applied.
type Publisher struct {
	RobotID string
	Queue   *mqtt.Queue
	Stream  *Stream
	Source  Source
	Sink    Sink
	Period  time.Duration

	lock      sync.Mutex
	setpoints map[string]*msgs.Setpoint
	order     []string

	lastPub time.Time
}

// NewPublisher creates a Publisher. queue and stream are optional.
func NewPublisher(robotID string, queue *mqtt.Queue, stream *Stream, source Source, sink Sink) *Publisher {
	p := &Publisher{
		RobotID:   robotID,
		Queue:     queue,
		Stream:    stream,
		Source:    source,
		Sink:      sink,
		Period:    DefaultPeriod,
		setpoints: make(map[string]*msgs.Setpoint),
	}
	if stream != nil {
		stream.OnCommand = p.Submit
	}
	return p
}

// NewPublisherFromURL creates a Publisher with an MQTT queue connected to
// brokerURL. The retained <robot>/online topic tracks the connection.
func NewPublisherFromURL(brokerURL, robotID string, source Source, sink Sink) (*Publisher, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+robotID+"/online", []byte("0"), 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("rm:" + robotID)
	}
	queue := mqtt.NewQueue(opts, topicPrefix)
	queue.OnConnect = func(q *mqtt.Queue) {
		q.PubWith(robotID+"/online", []byte("1"), 1, true)
	}
	return NewPublisher(robotID, queue, nil, source, sink), nil
}

// Submit queues a setpoint for device.
func (p *Publisher) Submit(device string, sp *msgs.Setpoint) {
	p.lock.Lock()
	if _, ok := p.setpoints[device]; !ok {
		p.order = append(p.order, device)
	}
	p.setpoints[device] = sp
	p.lock.Unlock()
}

// AddToLoop implements fx.LoopAdder.
func (p *Publisher) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvControl, fx.ControlFunc(p.ApplySetpoints))
	l.AddController(fx.PrLvPostProc, fx.ControlFunc(p.Publish))
	if p.Queue != nil {
		l.AddRunnable(p)
	}
}

// Name implements fx.Named.
func (p *Publisher) Name() string {
	return "telemetry/" + p.RobotID
}

// Run implements fx.Runnable: it keeps the MQTT connection.
func (p *Publisher) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.RobotID+"/devices/+/cmd", p.commandReceived)
	p.Queue.Connect()
	<-ctx.Done()
	sub.Close()
	mqtt.Wait(p.Queue.PubWith(p.RobotID+"/online", []byte("0"), 1, true), time.Second)
	p.Queue.Close()
	return ctx.Err()
}

// ApplySetpoints hands the pending setpoints to the Sink.
func (p *Publisher) ApplySetpoints(fx.ControlContext) error {
	p.lock.Lock()
	if len(p.order) == 0 {
		p.lock.Unlock()
		return nil
	}
	order, setpoints := p.order, p.setpoints
	p.order, p.setpoints = nil, make(map[string]*msgs.Setpoint)
	p.lock.Unlock()

	var errs fx.AggregatedError
	for _, device := range order {
		errs.Add(p.Sink.ApplySetpoint(device, setpoints[device]))
	}
	return errs.Aggregate()
}

// Publish publishes the snapshot when Period elapsed since the last one.
func (p *Publisher) Publish(cc fx.ControlContext) error {
	now := cc.Time()
	if !p.lastPub.IsZero() && now.Sub(p.lastPub) < p.Period {
		return nil
	}
	p.lastPub = now
	snapshot := p.Source.Snapshot()
	snapshot.RobotID = p.RobotID
	snapshot.TimeNs = now.UnixNano()
	data, err := proto.Marshal(snapshot)
	if err != nil {
		return err
	}
	if p.Queue != nil {
		p.Queue.Pub(p.RobotID+"/state", data)
	}
	if p.Stream != nil {
		p.Stream.Broadcast(data)
	}
	return nil
}

func (p *Publisher) commandReceived(topic string, payload []byte) {
	// <robot>/devices/<device>/cmd
	tokens := strings.Split(topic, "/")
	if len(tokens) != 4 {
		return
	}
	var sp msgs.Setpoint
	if err := proto.Unmarshal(payload, &sp); err != nil {
		glog.Warningf("invalid setpoint on %q: %v", topic, err)
		return
	}
	p.Submit(tokens[2], &sp)
}
