package sh

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

type fakeTarget struct {
	snapshot  *msgs.Snapshot
	submitted map[string]*msgs.Setpoint
}

func (t *fakeTarget) Snapshot() *msgs.Snapshot {
	return t.snapshot
}

func (t *fakeTarget) Submit(device string, sp *msgs.Setpoint) error {
	if device == "ghost" {
		return fmt.Errorf("unknown device: %s", device)
	}
	t.submitted[device] = sp
	return nil
}

func newTestShell() (*Shell, *fakeTarget) {
	target := &fakeTarget{
		snapshot: &msgs.Snapshot{
			TimeNs: 1,
			Motors: []*msgs.MotorState{
				{Name: "wheel", Kind: "M3508", ID: 1, Velocity: 1.5, Online: true, Status: "ok"},
				{Name: "pitch", Kind: "dm-mit", ID: 3, Fault: true, Status: "over-current"},
			},
			Receivers: []*msgs.ReceiverState{{Name: "rc"}},
			Buses: []*msgs.BusStats{
				{Bus: "can1", Received: 10, Sent: 3},
				{Bus: "can0", Received: 20, Superseded: 1, Evicted: 2},
			},
		},
		submitted: make(map[string]*msgs.Setpoint),
	}
	return &Shell{Target: target, RefreshTicks: DefaultRefreshTicks}, target
}

func TestSnapshotBeforeRefresh(t *testing.T) {
	s, _ := newTestShell()
	var out bytes.Buffer
	assert.ErrorIs(t, s.Devices(&out, nil), ErrNoSnapshot)
	assert.ErrorIs(t, s.State(&out, nil), ErrNoSnapshot)
	assert.ErrorIs(t, s.Stats(&out, nil), ErrNoSnapshot)
}

func TestDevices(t *testing.T) {
	s, _ := newTestShell()
	s.Refresh()
	var out bytes.Buffer
	require.NoError(t, s.Devices(&out, nil))
	assert.Contains(t, out.String(), "wheel")
	assert.Contains(t, out.String(), "online")
	assert.Contains(t, out.String(), "offline,fault")
	assert.Contains(t, out.String(), "rc")

	out.Reset()
	s.OutputJSON = true
	require.NoError(t, s.Devices(&out, nil))
	assert.JSONEq(t, `[
		{"name":"wheel","kind":"M3508","online":true},
		{"name":"pitch","kind":"dm-mit","online":false},
		{"name":"rc","kind":"dr16","online":true}
	]`, out.String())
}

func TestState(t *testing.T) {
	s, _ := newTestShell()
	s.Refresh()

	t.Run("all", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, s.State(&out, nil))
		assert.Contains(t, out.String(), "wheel")
		assert.Contains(t, out.String(), "over-current")
	})
	t.Run("selected", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, s.State(&out, []string{"pitch"}))
		assert.NotContains(t, out.String(), "wheel")
		assert.Contains(t, out.String(), "pitch")
	})
	t.Run("unknown", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, s.State(&out, []string{"ghost"}))
	})
}

func TestSet(t *testing.T) {
	cases := []struct {
		name string
		args []string
		sp   *msgs.Setpoint
		err  bool
	}{
		{"velocity", []string{"wheel", "velocity", "2.5"}, &msgs.Setpoint{Kind: "velocity", Value: 2.5}, false},
		{"upper case kind", []string{"wheel", "RAW", "-100"}, &msgs.Setpoint{Kind: "raw", Value: -100}, false},
		{"enable", []string{"wheel", "enable"}, &msgs.Setpoint{Kind: "enable"}, false},
		{"missing value", []string{"wheel", "position"}, nil, true},
		{"bad value", []string{"wheel", "position", "x"}, nil, true},
		{"unknown kind", []string{"wheel", "torque", "1"}, nil, true},
		{"too few", []string{"wheel"}, nil, true},
		{"unknown device", []string{"ghost", "raw", "1"}, nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, target := newTestShell()
			var out bytes.Buffer
			err := s.Set(&out, c.args)
			if c.err {
				assert.Error(t, err)
				assert.Empty(t, target.submitted)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "OK\n", out.String())
			assert.Equal(t, c.sp, target.submitted[c.args[0]])
		})
	}
}

func TestToggle(t *testing.T) {
	s, target := newTestShell()
	var out bytes.Buffer
	require.NoError(t, toggleFunc(msgs.SetpointDisable)(s, &out, []string{"wheel", "pitch"}))
	assert.Equal(t, msgs.SetpointDisable, target.submitted["wheel"].Kind)
	assert.Equal(t, msgs.SetpointDisable, target.submitted["pitch"].Kind)
	assert.Error(t, toggleFunc(msgs.SetpointEnable)(s, &out, nil))
}

func TestStats(t *testing.T) {
	s, target := newTestShell()
	s.Refresh()
	var out bytes.Buffer
	s.OutputJSON = true
	require.NoError(t, s.Stats(&out, nil))
	assert.JSONEq(t, `[
		{"bus":"can0","received":20,"superseded":1,"evicted":2},
		{"bus":"can1","received":10,"sent":3}
	]`, out.String())
	assert.Equal(t, "can1", target.snapshot.Buses[0].Bus)
}
