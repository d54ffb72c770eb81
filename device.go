package driver

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/loop"
	"github.com/coriolis-os/drivers/internal/logging"
	"github.com/coriolis-os/drivers/internal/obs"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/task"
)

// Cmd identifies the wire command a Handler dispatches on.
type Cmd = proto.Cmd

// Handler services one request on a Device's event loop.
type Handler = loop.Handler

// Deferred is the sentinel errno a Handler returns to defer its reply
// to a task, rather than let the loop reply immediately on return.
const Deferred = loop.Deferred

// Device is the driver process's top-level handle: a Port, the
// cooperative task Scheduler every spawned task shares, and the event
// loop that drains both (spec.md §4.1, §4.2). It is this repo's
// analogue of the teacher's Device/CreateAndServe/StopAndDelete triple
// — generalized from "one ublk char+block device pair" to "one
// message port plus however many cooperative tasks the driver needs",
// since a TTY driver has no block queues and a block driver has no
// character FIFO.
type Device struct {
	port    hostkernel.Port
	sched   *task.Scheduler
	loop    *loop.Loop
	metrics *Metrics
	cpu     int

	state atomic.Int32
}

// DeviceState mirrors the teacher's DeviceState: created, running, or
// stopped.
type DeviceState string

const (
	DeviceStateCreated DeviceState = "created"
	DeviceStateRunning DeviceState = "running"
	DeviceStateStopped DeviceState = "stopped"
)

// Numeric encoding backing Device.state, in lifecycle order.
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

// NewDevice builds a Device over port, dispatching requests through
// handlers. adapter may be nil for drivers with no character device
// (the block driver). Metrics default to a fresh *Metrics unless
// opts.Observer overrides the Observer entirely.
func NewDevice(port hostkernel.Port, handlers map[Cmd]Handler, adapter CharAdapter, opts Options) *Device {
	var metrics *Metrics
	var observer Observer
	if opts.Observer != nil {
		observer = opts.Observer
	} else {
		metrics = obs.NewMetrics()
		observer = metrics
	}

	lg := logging.Default()
	if opts.Logger != nil {
		if l, ok := opts.Logger.(*logging.Logger); ok {
			lg = l
		}
	}

	loopOpts := []loop.Option{loop.WithLogger(lg), loop.WithObserver(observer)}
	if adapter != nil {
		loopOpts = append(loopOpts, loop.WithAdapter(adapter))
	}
	if opts.PollTimeout > 0 {
		loopOpts = append(loopOpts, loop.WithPollTimeout(opts.PollTimeout))
	}

	cpu := -1
	if opts.CPUAffinity >= 0 {
		cpu = opts.CPUAffinity
	}

	sched := task.New()
	return &Device{
		port:    port,
		sched:   sched,
		loop:    loop.New(port, sched, handlers, loopOpts...),
		metrics: metrics,
		cpu:     cpu,
	}
}

// Scheduler returns the cooperative task scheduler this Device's tasks
// (UART RX/TX pumps, host command issuers, ...) spawn onto.
func (d *Device) Scheduler() *task.Scheduler { return d.sched }

// Metrics returns the device's metrics collector, or nil if the caller
// supplied its own Observer in Options.
func (d *Device) Metrics() *Metrics { return d.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the device's
// metrics, or a zero Snapshot if a custom Observer replaced them.
func (d *Device) MetricsSnapshot() MetricsSnapshot {
	if d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}

// Serve pins the event-loop goroutine to its configured CPU (spec.md
// §5), then runs the event loop until Shutdown is called, ctx is
// cancelled, or the port closes.
func (d *Device) Serve(ctx context.Context) error {
	if d.cpu >= 0 {
		if err := hostkernel.PinToCPU(d.cpu); err != nil {
			return fmt.Errorf("driver: pin event loop to cpu %d: %w", d.cpu, err)
		}
	}
	d.state.Store(stateRunning)
	defer d.state.Store(stateStopped)
	defer func() {
		if d.metrics != nil {
			d.metrics.Stop()
		}
	}()
	return d.loop.Run(ctx)
}

// Shutdown requests that Serve return after its current iteration,
// the Go analogue of the teacher's StopAndDelete context cancel.
func (d *Device) Shutdown() {
	d.loop.Shutdown()
}

// State reports where the device is in its created/running/stopped
// lifecycle.
func (d *Device) State() DeviceState {
	switch d.state.Load() {
	case stateRunning:
		return DeviceStateRunning
	case stateStopped:
		return DeviceStateStopped
	default:
		return DeviceStateCreated
	}
}

// Close releases the underlying Port.
func (d *Device) Close() error {
	return d.port.Close()
}
