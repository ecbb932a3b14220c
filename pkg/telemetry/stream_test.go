package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

func TestStream(t *testing.T) {
	stream := NewStream()
	commands := make(chan string, 1)
	stream.OnCommand = func(device string, sp *msgs.Setpoint) {
		commands <- device + ":" + sp.Kind
	}
	server := httptest.NewServer(stream.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := websocket.Dial(wsURL, "", server.URL)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, time.Second, time.Millisecond)

	stream.Broadcast([]byte("snapshot"))
	var got []byte
	require.NoError(t, websocket.Message.Receive(conn, &got))
	assert.Equal(t, []byte("snapshot"), got)

	data, err := proto.Marshal(&msgs.DeviceCommand{Device: "yaw", Setpoint: &msgs.Setpoint{Kind: msgs.SetpointDisable}})
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, data))
	select {
	case cmd := <-commands:
		assert.Equal(t, "yaw:disable", cmd)
	case <-time.After(time.Second):
		t.Fatal("command not received")
	}

	conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 0 }, time.Second, time.Millisecond)
}
