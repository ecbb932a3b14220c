package telemetry

import (
	"github.com/denisbrodbeck/machineid"
)

// DefaultRobotID derives a stable robot ID from the machine ID, protected
// with the application name so the raw machine ID isn't exposed.
func DefaultRobotID() (string, error) {
	id, err := machineid.ProtectedID("rm")
	if err != nil {
		return "", err
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id, nil
}
