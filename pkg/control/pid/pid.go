// Package pid implements a PID control law with derivative-on-measurement,
// clamped integral and bounded output.
package pid

import (
	"math"
	"time"

	"github.com/robotalks/rm.go/pkg/algorithm"
)

// derivative samples averaged to damp sensor noise.
const derivativeSamples = 3

// Gains are the PID coefficients.
type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// Controller is a PID controller. It is not safe for concurrent use; it is
// meant to be owned by one control loop.
type Controller struct {
	Gains
	OutMin, OutMax float64
	// Ring, when positive, is the period of a wrapping measurement
	// (e.g. 2*Pi for an angle). Errors are folded into [-Ring/2, Ring/2).
	Ring float64

	integral    float64
	output      float64
	lastMeas    float64
	hasLastMeas bool

	dBuf  [derivativeSamples]float64
	dHead int
	dLen  int
}

// New creates a Controller with output bounded to [outMin, outMax].
func New(gains Gains, outMin, outMax float64) *Controller {
	if outMin > outMax {
		outMin, outMax = outMax, outMin
	}
	return &Controller{Gains: gains, OutMin: outMin, OutMax: outMax}
}

// Update computes the output for one sample interval dt.
// A non-positive dt is rejected: the previous output is returned and no
// state changes.
func (c *Controller) Update(setpoint, measurement float64, dt time.Duration) float64 {
	if dt <= 0 {
		return c.output
	}
	return c.UpdateSeconds(setpoint, measurement, dt.Seconds())
}

// UpdateSeconds is Update with dt in seconds. Non-finite dt or inputs are
// rejected the same way as a non-positive dt.
func (c *Controller) UpdateSeconds(setpoint, measurement, dt float64) float64 {
	if !(dt > 0) || math.IsInf(dt, 0) || !finite(setpoint) || !finite(measurement) {
		return c.output
	}

	err := c.wrap(setpoint - measurement)
	p := c.Kp * err
	c.integral = algorithm.Constrain(c.integral+c.Ki*err*dt, c.OutMin, c.OutMax)

	var d float64
	if c.hasLastMeas {
		c.pushRate(c.wrap(measurement-c.lastMeas) / dt)
		d = -c.Kd * c.rate()
	}
	c.lastMeas, c.hasLastMeas = measurement, true

	c.output = algorithm.Constrain(p+c.integral+d, c.OutMin, c.OutMax)
	return c.output
}

// Reset clears the integral, derivative history and output.
func (c *Controller) Reset() {
	c.integral, c.output = 0, 0
	c.hasLastMeas = false
	c.dHead, c.dLen = 0, 0
}

// Output returns the last computed output.
func (c *Controller) Output() float64 {
	return c.output
}

// Integral returns the accumulated integral contribution.
func (c *Controller) Integral() float64 {
	return c.integral
}

func (c *Controller) wrap(v float64) float64 {
	if c.Ring <= 0 {
		return v
	}
	return algorithm.LoopConstrain(v, -c.Ring/2, c.Ring/2)
}

func (c *Controller) pushRate(r float64) {
	c.dBuf[c.dHead] = r
	c.dHead = (c.dHead + 1) % derivativeSamples
	if c.dLen < derivativeSamples {
		c.dLen++
	}
}

func (c *Controller) rate() float64 {
	var sum float64
	for i := 0; i < c.dLen; i++ {
		sum += c.dBuf[i]
	}
	return sum / float64(c.dLen)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
