package can

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimBus(t *testing.T) {
	bus := NewSimBus("sim0", 4)
	require.Equal(t, "sim0", bus.Name())

	_, err := bus.Receive(time.Millisecond)
	require.Equal(t, ErrTimeout, err)

	require.NoError(t, bus.Inject(Frame{ID: 0x201, Len: 8}))
	f, err := bus.Receive(time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint32(0x201), f.ID)

	var echoed []Frame
	bus.OnSend(func(f Frame) { echoed = append(echoed, f) })
	require.NoError(t, bus.Send(Frame{ID: 0x200, Len: 8}))
	require.Len(t, bus.Sent(), 1)
	require.Len(t, echoed, 1)

	bus.SetSendError(ErrBusOff)
	err = bus.Send(Frame{ID: 0x200, Len: 8})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, FailureBusOff, te.Kind)
	require.Len(t, bus.TakeSent(), 1)
	require.Empty(t, bus.Sent())

	require.NoError(t, bus.Close())
	_, err = bus.Receive(time.Second)
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, bus.Inject(Frame{}))
}

func TestSimBusClosedDiscardsPending(t *testing.T) {
	bus := NewSimBus("sim0", 8)
	for i := 0; i < 4; i++ {
		require.NoError(t, bus.Inject(Frame{ID: 0x201, Len: 8}))
	}
	require.NoError(t, bus.Close())
	for i := 0; i < 100; i++ {
		_, err := bus.Receive(time.Second)
		require.Equal(t, ErrClosed, err)
		require.Equal(t, ErrClosed, bus.Inject(Frame{}))
		require.False(t, bus.TryInject(Frame{}))
	}
}
