package robot

import (
	"time"

	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

// Snapshot implements telemetry.Source.
func (r *Robot) Snapshot() *msgs.Snapshot {
	now := time.Now()
	s := &msgs.Snapshot{}
	for _, m := range r.Motors {
		s.Motors = append(s.Motors, m.State(now, r.Desc.StaleAfter))
	}
	for _, b := range r.Buses {
		bridge, mgr := b.Bridge.Stats(), b.Manager.Stats()
		s.Buses = append(s.Buses, &msgs.BusStats{
			Bus:            b.Desc.Name,
			Received:       bridge.Received,
			Dispatched:     mgr.Dispatched,
			Superseded:     bridge.Superseded,
			Evicted:        bridge.Evicted,
			Unknown:        mgr.Unknown,
			Malformed:      mgr.Malformed,
			Sent:           mgr.Sent,
			SendErrors:     mgr.SendErrors,
			DispatchErrors: bridge.DispatchErrors,
		})
	}
	if r.Receiver != nil {
		st := r.Receiver.State()
		rs := &msgs.ReceiverState{
			Name:   r.Receiver.Name(),
			S1:     uint32(st.S1),
			S2:     uint32(st.S2),
			Keys:   uint32(st.Keys),
			MouseX: int32(st.Mouse.X),
			MouseY: int32(st.Mouse.Y),
			MouseZ: int32(st.Mouse.Z),
			Dial:   int32(st.Dial),
		}
		for _, ch := range st.Channels {
			rs.Channels = append(rs.Channels, int32(ch))
		}
		s.Receivers = append(s.Receivers, rs)
	}
	return s
}
