// Package env sets up a robot process from command line flags: the robot
// description, telemetry over MQTT and the WebSocket stream.
package env

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/can"
	"github.com/robotalks/rm.go/pkg/robot"
	"github.com/robotalks/rm.go/pkg/telemetry"
)

// Config provides common options to setup a robot process.
type Config struct {
	// DescriptionPath is the YAML robot description.
	DescriptionPath string
	// Sim replaces every bus with a simulated one.
	Sim bool
	// RobotID overrides the ID in the description.
	RobotID string

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// StreamAddr is the listen address of the WebSocket stream.
	StreamAddr string
	// PublishPeriod is the interval between published snapshots.
	PublishPeriod time.Duration
}

var defaultConfig = Config{
	DescriptionPath: "robot.yaml",
	PublishPeriod:   telemetry.DefaultPeriod,
}

func init() {
	if val := os.Getenv("RM_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("RM_ROBOT"); val != "" {
		defaultConfig.DescriptionPath = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DescriptionPath, "robot", defaultConfig.DescriptionPath, "Robot description YAML")
	flag.BoolVar(&defaultConfig.Sim, "sim", defaultConfig.Sim, "Simulate all buses")
	flag.StringVar(&defaultConfig.RobotID, "id", defaultConfig.RobotID, "Robot ID, default from description or machine ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable")
	flag.StringVar(&defaultConfig.StreamAddr, "ws", defaultConfig.StreamAddr, "WebSocket stream listen address, empty to disable")
	flag.DurationVar(&defaultConfig.PublishPeriod, "publish-period", defaultConfig.PublishPeriod, "Telemetry publish period")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Env is an assembled robot with its telemetry.
type Env struct {
	Config    *Config
	Robot     *robot.Robot
	Publisher *telemetry.Publisher
	Stream    *telemetry.Stream
}

// NewEnv loads the description and builds the robot.
func (c *Config) NewEnv() (*Env, error) {
	desc, err := robot.Load(c.DescriptionPath)
	if err != nil {
		return nil, err
	}
	return c.NewEnvWith(desc)
}

// NewEnvWith builds the robot from desc.
func (c *Config) NewEnvWith(desc *robot.Description) (*Env, error) {
	if c.Sim {
		for n := range desc.Buses {
			desc.Buses[n].Kind = can.KindSim
		}
	}
	robotID := c.RobotID
	if robotID == "" {
		robotID = desc.RobotID
	}
	if robotID == "" {
		id, err := telemetry.DefaultRobotID()
		if err != nil {
			return nil, fmt.Errorf("robot ID: %w", err)
		}
		robotID = id
	}
	desc.RobotID = robotID

	r, err := robot.Build(desc, nil)
	if err != nil {
		return nil, err
	}
	env := &Env{Config: c, Robot: r}
	if c.StreamAddr != "" {
		env.Stream = telemetry.NewStream()
	}
	if c.MQTTBrokerURL != "" {
		if env.Publisher, err = telemetry.NewPublisherFromURL(c.MQTTBrokerURL, robotID, r, r); err != nil {
			r.Close()
			return nil, fmt.Errorf("MQTT %s: %w", c.MQTTBrokerURL, err)
		}
		if env.Stream != nil {
			env.Publisher.Stream = env.Stream
			env.Stream.OnCommand = env.Publisher.Submit
		}
	} else if env.Stream != nil {
		env.Publisher = telemetry.NewPublisher(robotID, nil, env.Stream, r, r)
	}
	if env.Publisher != nil && c.PublishPeriod > 0 {
		env.Publisher.Period = c.PublishPeriod
	}
	glog.Infof("robot %s: %d buses, %d motors", robotID, len(r.Buses), len(r.Motors))
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		glog.Fatalln(err)
	}
	return env
}

// NewLoop creates a loop ticking at the robot rate with everything in Env
// added.
func (e *Env) NewLoop() *fx.Loop {
	l := fx.NewLoop()
	l.Interval = time.Second / time.Duration(e.Robot.Desc.Rate)
	return l.Add(e)
}

// AddToLoop implements fx.LoopAdder.
func (e *Env) AddToLoop(l *fx.Loop) {
	l.Add(e.Robot)
	if e.Publisher != nil {
		l.Add(e.Publisher)
	}
	if e.Stream != nil {
		l.AddRunnable(fx.NamedRun("stream", fx.RunnableFunc(e.serveStream)))
	}
}

// Close releases the robot.
func (e *Env) Close() error {
	return e.Robot.Close()
}

func (e *Env) serveStream(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.Config.StreamAddr)
	if err != nil {
		return err
	}
	glog.Infof("stream listening on %s", ln.Addr())
	server := &http.Server{Handler: e.Stream.Handler()}
	err = fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, func() error {
		return server.Serve(ln)
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
