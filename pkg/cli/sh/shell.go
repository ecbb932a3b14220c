// Package sh provides an ishell backed interactive shell over a running
// robot.
package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/telemetry"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

// Target is the robot the shell operates on.
type Target interface {
	telemetry.Source
	Submit(device string, sp *msgs.Setpoint) error
}

// DefaultRefreshTicks is the number of loop ticks between snapshots.
const DefaultRefreshTicks = 100

// ErrNoSnapshot is returned before the loop captured the first snapshot.
var ErrNoSnapshot = errors.New("no state captured yet")

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive  bool
	OutputJSON   bool
	RefreshTicks uint64

	Shell  *ishell.Shell
	Target Target

	latest atomic.Pointer[msgs.Snapshot]
}

const (
	shellKey = "$shell"
	prompt   = "rm > "
)

var (
	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&DevicesCmd,
		&StateCmd,
		&SetCmd,
		&EnableCmd,
		&DisableCmd,
		&StatsCmd,
	}
)

// SetupFlags registers the shell flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds adds extra commands to shells created afterwards.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell over target.
func New(target Target) *Shell {
	s := &Shell{
		Interactive:  !evalOnly,
		OutputJSON:   outputJSON,
		RefreshTicks: DefaultRefreshTicks,
		Target:       target,
	}
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// AddToLoop implements fx.LoopAdder. Snapshots are captured on the loop
// so commands never read loop owned state directly.
func (s *Shell) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvPostProc, fx.ControlFunc(func(cc fx.ControlContext) error {
		if n := s.RefreshTicks; n <= 1 || cc.Tick()%n == 0 {
			s.Refresh()
		}
		return nil
	}))
}

// Refresh captures a snapshot from Target.
func (s *Shell) Refresh() {
	snapshot := s.Target.Snapshot()
	if snapshot.TimeNs == 0 {
		snapshot.TimeNs = time.Now().UnixNano()
	}
	s.latest.Store(snapshot)
}

// Snapshot returns the latest captured snapshot.
func (s *Shell) Snapshot() (*msgs.Snapshot, error) {
	snapshot := s.latest.Load()
	if snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return snapshot, nil
}

// Run runs the shell. With args, they are evaluated as a single command.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return errors.New("command expected")
	}
	s.Shell.Run()
	return nil
}

// Devices prints the devices and whether they are online.
func (s *Shell) Devices(w io.Writer, args []string) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	if s.OutputJSON {
		type device struct {
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			Online bool   `json:"online"`
		}
		devices := []device{}
		for _, m := range snapshot.Motors {
			devices = append(devices, device{Name: m.Name, Kind: m.Kind, Online: m.Online})
		}
		for _, r := range snapshot.Receivers {
			devices = append(devices, device{Name: r.Name, Kind: "dr16", Online: true})
		}
		return writeJSON(w, devices)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tID\tSTATUS")
	for _, m := range snapshot.Motors {
		status := "offline"
		if m.Online {
			status = "online"
		}
		if m.Fault {
			status += ",fault"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Name, m.Kind, m.ID, status)
	}
	for _, r := range snapshot.Receivers {
		fmt.Fprintf(tw, "%s\tdr16\t-\tonline\n", r.Name)
	}
	return tw.Flush()
}

// State prints the state of the named motors, or all of them.
func (s *Shell) State(w io.Writer, args []string) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	motors := snapshot.Motors
	if len(args) > 0 {
		motors = nil
		for _, name := range args {
			m := findMotor(snapshot, name)
			if m == nil {
				return fmt.Errorf("unknown device %q", name)
			}
			motors = append(motors, m)
		}
	}
	if s.OutputJSON {
		if motors == nil {
			motors = []*msgs.MotorState{}
		}
		return writeJSON(w, motors)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOSITION\tVELOCITY\tEFFORT\tTEMP\tCOMMAND\tSTATUS")
	for _, m := range motors {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%d\t%.4f\t%s\n",
			m.Name, m.Position, m.Velocity, m.Effort, m.Temperature, m.Command, m.Status)
	}
	return tw.Flush()
}

// Set submits a setpoint: DEVICE KIND [VALUE].
func (s *Shell) Set(w io.Writer, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set DEVICE KIND [VALUE]")
	}
	sp := &msgs.Setpoint{Kind: strings.ToLower(args[1])}
	switch sp.Kind {
	case msgs.SetpointEnable, msgs.SetpointDisable:
	case msgs.SetpointRaw, msgs.SetpointVelocity, msgs.SetpointPosition:
		if len(args) < 3 {
			return fmt.Errorf("value expected for %s", sp.Kind)
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		sp.Value = v
	default:
		return fmt.Errorf("unknown setpoint kind %q", args[1])
	}
	if err := s.Target.Submit(args[0], sp); err != nil {
		return err
	}
	glog.V(2).Infof("shell: %s <- %s", args[0], sp)
	fmt.Fprintln(w, "OK")
	return nil
}

// Stats prints bus counters.
func (s *Shell) Stats(w io.Writer, args []string) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	buses := append([]*msgs.BusStats(nil), snapshot.Buses...)
	sort.Slice(buses, func(i, j int) bool { return buses[i].Bus < buses[j].Bus })
	if s.OutputJSON {
		return writeJSON(w, buses)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUS\tRECEIVED\tDISPATCHED\tUNKNOWN\tMALFORMED\tDROPPED\tSENT\tSEND-ERRORS")
	for _, b := range buses {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			b.Bus, b.Received, b.Dispatched, b.Unknown, b.Malformed,
			b.Superseded+b.Evicted, b.Sent, b.SendErrors)
	}
	return tw.Flush()
}

func findMotor(snapshot *msgs.Snapshot, name string) *msgs.MotorState {
	for _, m := range snapshot.Motors {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// contextWriter prints to the ishell context.
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func cmdFunc(fn func(*Shell, io.Writer, []string) error) func(*ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(ShellFrom(c), contextWriter{c: c}, c.Args); err != nil {
			c.Err(err)
		}
	}
}

func toggleFunc(kind string) func(*Shell, io.Writer, []string) error {
	return func(s *Shell, w io.Writer, args []string) error {
		if len(args) == 0 {
			return errors.New("device expected")
		}
		for _, name := range args {
			if err := s.Set(w, []string{name, kind}); err != nil {
				return err
			}
		}
		return nil
	}
}

var (
	// DevicesCmd lists devices.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"list", "ls"},
		Help:    "list devices",
		Func:    cmdFunc((*Shell).Devices),
	}

	// StateCmd prints motor states.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"st"},
		Help:    "[DEVICE...]",
		Func:    cmdFunc((*Shell).State),
	}

	// SetCmd submits a setpoint.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "DEVICE raw|velocity|position|enable|disable [VALUE]",
		Func: cmdFunc((*Shell).Set),
	}

	// EnableCmd enables motors.
	EnableCmd = ishell.Cmd{
		Name:    "enable",
		Aliases: []string{"en"},
		Help:    "DEVICE...",
		Func:    cmdFunc(toggleFunc(msgs.SetpointEnable)),
	}

	// DisableCmd disables motors.
	DisableCmd = ishell.Cmd{
		Name:    "disable",
		Aliases: []string{"dis"},
		Help:    "DEVICE...",
		Func:    cmdFunc(toggleFunc(msgs.SetpointDisable)),
	}

	// StatsCmd prints bus counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "bus counters",
		Func: cmdFunc((*Shell).Stats),
	}
)
