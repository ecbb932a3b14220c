package can

import "fmt"

// Bus kinds accepted by Open.
const (
	KindSocketCAN = "socketcan"
	KindSim       = "sim"
)

// Open opens a bus by kind. depth is the receive buffer depth.
func Open(kind, name string, depth int) (Bus, error) {
	switch kind {
	case KindSocketCAN, "":
		return openSocketCAN(name, depth)
	case KindSim:
		return NewSimBus(name, depth), nil
	}
	return nil, fmt.Errorf("%s: unknown bus kind %q", name, kind)
}
