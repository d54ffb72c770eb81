// Command sdblockd is the userspace driver process for the Raspberry
// Pi 4's eMMC/SD host controller, publishing one block-device mount
// per discovered partition (spec.md §2, §4.6).
//
// Its fan-out is grounded on the teacher's CreateAndServe/AddDevice
// pattern of one queue.Runner per hardware queue (backend.go),
// generalized here from "one runner per ublk queue" to "one Device
// per discovered partition unit": every unit gets its own message
// port and event loop, all serializing access to the single shared
// internal/sdhost.Host behind one mutex, since the host controller
// itself only ever services one command at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	driver "github.com/coriolis-os/drivers"
	"github.com/coriolis-os/drivers/internal/adapter/rpi4"
	"github.com/coriolis-os/drivers/internal/hostkernel"
	"github.com/coriolis-os/drivers/internal/logging"
	"github.com/coriolis-os/drivers/internal/partition"
	"github.com/coriolis-os/drivers/internal/proto"
	"github.com/coriolis-os/drivers/internal/sdhost"
)

func main() {
	cfg, err := driver.ParseBlockConfig(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: os.Stderr, Unit: "sdblockd"})
	logging.SetDefault(logger)

	regs, err := rpi4.OpenEMMC(rpi4.DefaultEMMCPhysBase)
	if err != nil {
		logger.Errorf("open eMMC register window: %v", err)
		os.Exit(1)
	}
	defer regs.Close()

	host := sdhost.New(regs, logger)

	initCtx, initCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = host.Init(initCtx)
	initCancel()
	if err != nil {
		logger.Errorf("init host controller: %v", err)
		os.Exit(1)
	}
	defer host.Close()

	units, err := partition.Discover(context.Background(), host, cfg.MountPath, cfg.CapacityBlocks)
	if err != nil {
		logger.Errorf("discover partitions: %v", err)
		os.Exit(1)
	}

	st := newBlockState(host)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	devices := make([]*driver.Device, 0, len(units))
	var devicesMu sync.Mutex

	for _, u := range units {
		uh := &unitHandlers{st: st, unit: u}
		handlers := map[driver.Cmd]driver.Handler{
			proto.CmdBlockRead:    uh.handleRead,
			proto.CmdBlockWrite:   uh.handleWrite,
			proto.CmdBlockFlush:   uh.handleFlush,
			proto.CmdBlockDiscard: uh.handleDiscard,
			proto.CmdSendMsg:      st.handleSendMsg,
		}

		port, err := hostkernel.NewUnixPort(u.Path, os.FileMode(cfg.Mode))
		if err != nil {
			logger.Errorf("publish mount %s: %v", u.Path, err)
			os.Exit(1)
		}

		opts := driver.DefaultOptions()
		opts.Logger = logger
		dev := driver.NewDevice(port, handlers, nil, opts)
		st.track(u.Index, dev)

		devicesMu.Lock()
		devices = append(devices, dev)
		devicesMu.Unlock()

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			logger.Infof("sdblockd: serving %s (%d blocks)", path, u.SizeBlocks)
			if err := dev.Serve(ctx); err != nil {
				logger.Errorf("sdblockd: serve %s: %v", path, err)
			}
		}(u.Path)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("sdblockd: received shutdown signal")
		devicesMu.Lock()
		for _, dev := range devices {
			dev.Shutdown()
		}
		devicesMu.Unlock()
	}()

	wg.Wait()
	cancel()

	for _, dev := range devices {
		if err := dev.Close(); err != nil {
			logger.Errorf("sdblockd: close port: %v", err)
		}
	}
}
