//go:build !linux

package can

import "errors"

func openSocketCAN(ifname string, depth int) (Bus, error) {
	return nil, errors.New(ifname + ": socketcan requires linux")
}
