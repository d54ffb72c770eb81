// Command ttyd is the userspace driver process for the Raspberry Pi
// 4's PL011 UART, publishing a character-device mount over a
// SOCK_SEQPACKET message port (spec.md §2, §4.4).
//
// Its task layout is grounded directly on
// original_source/aux/main.c's taskmain: one reader task, one writer
// task, and a uart_tx/uart_rx task pair driving the line discipline —
// ported from libtask coroutines cooperating via tasksleep/taskwakeup
// to goroutines cooperating via internal/task.Rendezvous. Where the
// original's uart_rx/uart_tx tasks block on a hardware interrupt this
// process has no way to receive (spec.md §1, §6.1 put interrupt
// delivery out of scope), they instead poll CharAdapter.ReadReady/
// WriteReady at constants.UARTPollInterval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	driver "github.com/coriolis-os/drivers"
	"github.com/coriolis-os/drivers/internal/adapter/rpi4"
	"github.com/coriolis-os/drivers/internal/cliflags"
	"github.com/coriolis-os/drivers/internal/constants"
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/logging"
	"github.com/coriolis-os/drivers/internal/proto"
)

func main() {
	cfg, err := driver.ParseTTYConfig(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: os.Stderr, Unit: "ttyd"})
	logging.SetDefault(logger)

	uart, err := rpi4.Open(rpi4.DefaultPL011PhysBase)
	if err != nil {
		logger.Errorf("open PL011 register window: %v", err)
		os.Exit(1)
	}
	defer uart.Close()

	if err := uart.Configure(cfg.Baud, cfg.StopBits, cfg.Parity, cfg.Flow == cliflags.FlowHard); err != nil {
		logger.Errorf("configure PL011: %v", err)
		os.Exit(1)
	}

	port, err := hostkernel.NewUnixPort(cfg.MountPath, os.FileMode(cfg.Mode))
	if err != nil {
		logger.Errorf("publish mount %s: %v", cfg.MountPath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newTTYState(uart, port)
	handlers := map[driver.Cmd]driver.Handler{
		proto.CmdRead:      st.handleRead,
		proto.CmdWrite:     st.handleWrite,
		proto.CmdIsatty:    st.handleIsatty,
		proto.CmdTCGetAttr: st.handleTCGetAttr,
		proto.CmdTCSetAttr: st.handleTCSetAttr,
		proto.CmdAbort:     st.handleAbort,
		proto.CmdSendMsg:   st.handleSendMsg,
	}

	opts := driver.DefaultOptions()
	opts.Logger = logger
	opts.PollTimeout = constants.TTYPollInterval
	dev := driver.NewDevice(port, handlers, nil, opts)

	sched := dev.Scheduler()
	sched.Spawn(ctx, "reader", 8192, st.readerTask)
	sched.Spawn(ctx, "writer", 8192, st.writerTask)
	sched.Spawn(ctx, "uart_tx", 8192, st.uartTXTask)
	sched.Spawn(ctx, "uart_rx", 8192, st.uartRXTask)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("ttyd: received shutdown signal")
		dev.Shutdown()
	}()

	logger.Infof("ttyd: serving %s at %d baud", cfg.MountPath, cfg.Baud)
	if err := dev.Serve(ctx); err != nil {
		logger.Errorf("ttyd: serve: %v", err)
	}

	cancel()
	sched.Wait()
	if err := dev.Close(); err != nil {
		logger.Errorf("ttyd: close port: %v", err)
	}
}
