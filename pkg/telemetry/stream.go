package telemetry

import (
	"net/http"
	"sync"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	"golang.org/x/net/websocket"

	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

// Stream serves snapshots to WebSocket clients as binary protobuf messages
// and accepts msgs.DeviceCommand from them. A slow client only gets the
// latest snapshot.
type Stream struct {
	OnCommand func(device string, sp *msgs.Setpoint)

	lock    sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn   *websocket.Conn
	latest chan []byte
}

// NewStream creates a Stream.
func NewStream() *Stream {
	return &Stream{clients: make(map[*streamClient]struct{})}
}

// Handler returns the http.Handler accepting WebSocket connections.
func (s *Stream) Handler() http.Handler {
	return websocket.Handler(s.serve)
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.clients)
}

// Broadcast sends data to all clients without blocking.
func (s *Stream) Broadcast(data []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for c := range s.clients {
		select {
		case c.latest <- data:
		default:
			// replace the unsent one.
			select {
			case <-c.latest:
			default:
			}
			c.latest <- data
		}
	}
}

func (s *Stream) serve(conn *websocket.Conn) {
	c := &streamClient{conn: conn, latest: make(chan []byte, 1)}
	s.lock.Lock()
	s.clients[c] = struct{}{}
	s.lock.Unlock()
	glog.V(2).Infof("stream client %s connected", conn.Request().RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var payload []byte
			if err := websocket.Message.Receive(conn, &payload); err != nil {
				return
			}
			var cmd msgs.DeviceCommand
			if err := proto.Unmarshal(payload, &cmd); err != nil || cmd.Setpoint == nil {
				glog.Warningf("stream: invalid command: %v", err)
				continue
			}
			if fn := s.OnCommand; fn != nil {
				fn(cmd.Device, cmd.Setpoint)
			}
		}
	}()

	defer func() {
		s.lock.Lock()
		delete(s.clients, c)
		s.lock.Unlock()
		conn.Close()
		glog.V(2).Infof("stream client %s disconnected", conn.Request().RemoteAddr)
	}()
	for {
		select {
		case <-done:
			return
		case data := <-c.latest:
			if err := websocket.Message.Send(conn, data); err != nil {
				return
			}
		}
	}
}
