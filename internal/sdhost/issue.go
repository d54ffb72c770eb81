package sdhost

import (
	"context"
	"fmt"
	"time"

	"github.com/coriolis-os/drivers/internal/clock"
)

// issueCommand issues a normal (non-app) command and blocks until it
// completes or timeout elapses, recording the result on h.last*.
// Mirrors emmc.c's sd_issue_command for the non-app path.
func (h *Host) issueCommand(ctx context.Context, c command, arg uint32, timeout time.Duration) {
	reg, ok := commandRegisters[c]
	if !ok {
		h.lastCmdSuccess = false
		h.lastError = 0
		return
	}
	h.issueCommandInt(ctx, reg, arg, nil, false, timeout)
}

// issueAppCommand sends CMD55 (APP_CMD) addressed at the selected
// card's RCA, then the requested ACMDn, per emmc.c's sd_issue_command
// app-command branch.
func (h *Host) issueAppCommand(ctx context.Context, ac command, arg uint32, timeout time.Duration) {
	h.issueCommandInt(ctx, commandRegisters[appCmd], h.cardRCA<<16, nil, false, timeout)
	if !h.lastCmdSuccess {
		return
	}
	reg, ok := appCommandRegisters[ac]
	if !ok {
		h.lastCmdSuccess = false
		return
	}
	h.issueCommandInt(ctx, reg, arg, nil, false, timeout)
}

// issueAppDataCommand is issueAppCommand's data-bearing counterpart,
// used for ACMD51 (SEND_SCR).
func (h *Host) issueAppDataCommand(ctx context.Context, ac command, arg uint32, buf []byte, timeout time.Duration) error {
	h.issueCommandInt(ctx, commandRegisters[appCmd], h.cardRCA<<16, nil, false, timeout)
	if !h.lastCmdSuccess {
		return fmt.Errorf("sdhost: CMD55 (APP_CMD) failed")
	}
	reg, ok := appCommandRegisters[ac]
	if !ok {
		return fmt.Errorf("sdhost: unknown app command %d", ac)
	}
	h.issueCommandInt(ctx, reg, arg, buf, false, timeout)
	if !h.lastCmdSuccess {
		return fmt.Errorf("sdhost: app command %d failed, error=%#x", ac, h.lastError)
	}
	return nil
}

// issueCommandInt is the single point of MMIO contact for command
// issuance: checks inhibit bits, programs block size/count and
// argument, issues the command, waits for completion, reads the
// response, and — for data-bearing commands — runs the PIO transfer
// loop. Ported from emmc.c's sd_issue_command_int.
//
// Only PIO transfer is implemented; SDMA is never programmed, neither
// here nor in doDataCommand's retries (Open Question, see DESIGN.md: this target has no cgo-free way
// to manage a DMA-safe buffer, so every transfer takes the PIO path).
func (h *Host) issueCommandInt(ctx context.Context, reg uint32, arg uint32, buf []byte, isWrite bool, timeout time.Duration) {
	h.lastCmdSuccess = false
	if ctx.Err() != nil {
		h.lastError = 0
		return
	}
	deadline := clock.NewDeadline(timeout)

	isAbort := reg&cmdTypeMask == cmdTypeAbort
	if !clock.PollUntil(deadline, pollInterval, func() bool {
		return ctx.Err() == nil && h.regs.Read32(regStatus)&statusCmdInhibit == 0
	}) {
		h.lastError = 0
		return
	}
	respType := reg & respTypeMask
	if respType == respType48Busy && !isAbort {
		if !clock.PollUntil(deadline, pollInterval, func() bool {
			return h.regs.Read32(regStatus)&statusDatInhibit == 0
		}) {
			h.lastError = 0
			return
		}
	}

	if reg&cmdIsData != 0 && len(buf) > 0 {
		blockSize := uint32(len(buf))
		blockCount := uint32(1)
		if blockSize > 512 {
			blockCount = blockSize / 512
			blockSize = 512
		}
		h.regs.Write32(regBlkSizeCnt, (blockCount<<16)|(blockSize&0xfff))
	}

	h.regs.Write32(regArg1, arg)
	h.regs.Write32(regCmdTM, reg)
	time.Sleep(time.Microsecond)

	if !clock.PollUntil(deadline, pollInterval, func() bool {
		irpt := h.regs.Read32(regInterrupt)
		return irpt&0x8001 != 0
	}) {
		h.lastError = 0
		return
	}
	irpt := h.regs.Read32(regInterrupt)
	h.regs.Write32(regInterrupt, irpt&0xffff0001)
	if irpt&0xffff0000 != 0 {
		h.lastError = irpt & 0xffff0000
		return
	}

	switch respType {
	case respType48, respType48Busy:
		h.lastR0 = h.regs.Read32(regResp0)
	case respType136:
		h.lastR0 = h.regs.Read32(regResp0)
		h.lastR1 = h.regs.Read32(regResp1)
		h.lastR2 = h.regs.Read32(regResp2)
		h.lastR3 = h.regs.Read32(regResp3)
	}

	if reg&cmdIsData != 0 && len(buf) > 0 {
		if !h.transferPIO(deadline, buf, isWrite) {
			return
		}
	}

	if respType == respType48Busy || reg&cmdIsData != 0 {
		if !clock.PollUntil(deadline, pollInterval, func() bool {
			irpt := h.regs.Read32(regInterrupt)
			return irpt&0x8002 != 0
		}) {
			h.lastError = 0
			return
		}
		irpt = h.regs.Read32(regInterrupt)
		h.regs.Write32(regInterrupt, irpt&0xffff0002)
		if irpt&0xffff0000 != 0 {
			h.lastError = irpt & 0xffff0000
			return
		}
	}

	h.lastError = 0
	h.lastCmdSuccess = true
}

// transferPIO moves buf one word at a time through EMMC_DATA, waiting
// per block for the write-ready/read-ready interrupt bits, mirroring
// emmc.c's per-block PIO loop in sd_issue_command_int.
func (h *Host) transferPIO(deadline clock.Deadline, buf []byte, isWrite bool) bool {
	blockSize := 512
	if len(buf) < blockSize {
		blockSize = len(buf)
	}
	wantBit := uint32(irptReadReady)
	if isWrite {
		wantBit = irptWriteReady
	}

	for offset := 0; offset < len(buf); offset += blockSize {
		n := blockSize
		if offset+n > len(buf) {
			n = len(buf) - offset
		}
		if !clock.PollUntil(deadline, pollInterval, func() bool {
			irpt := h.regs.Read32(regInterrupt)
			return irpt&(wantBit|0x8000) != 0
		}) {
			h.lastError = 0
			return false
		}
		irpt := h.regs.Read32(regInterrupt)
		h.regs.Write32(regInterrupt, irpt&(wantBit|0xffff0000))
		if irpt&0xffff0000 != 0 {
			h.lastError = irpt & 0xffff0000
			return false
		}

		for i := 0; i < n; i += 4 {
			if isWrite {
				var word uint32
				for b := 0; b < 4 && i+b < n; b++ {
					word |= uint32(buf[offset+i+b]) << uint(8*b)
				}
				h.regs.Write32(regData, word)
			} else {
				word := h.regs.Read32(regData)
				for b := 0; b < 4 && i+b < n; b++ {
					buf[offset+i+b] = byte(word >> uint(8*b))
				}
			}
		}
	}
	return true
}

// handleInterrupts services the controller's interrupt-status
// register, accumulating only the bits it recognizes into resetMask
// and writing back exactly that mask — never clearing a bit this
// driver doesn't understand, per emmc.c's sd_handle_interrupts.
func (h *Host) handleInterrupts() {
	irpt := h.regs.Read32(regInterrupt)
	var resetMask uint32

	for _, bit := range []uint32{irptCommandComplete, irptTransferComplete, irptBlockGapEvent, irptDMAInterrupt} {
		if irpt&bit != 0 {
			resetMask |= bit
		}
	}
	if irpt&irptWriteReady != 0 {
		resetMask |= irptWriteReady
		h.resetDat()
	}
	if irpt&irptReadReady != 0 {
		resetMask |= irptReadReady
		h.resetDat()
	}
	if irpt&irptCardInsertion != 0 {
		resetMask |= irptCardInsertion
	}
	if irpt&irptCardRemoval != 0 {
		resetMask |= irptCardRemoval
		h.cardRemoval = true
	}
	if irpt&irptCardInterrupt != 0 {
		resetMask |= irptCardInterrupt
		h.issueCommand(context.Background(), cmdSendStatus, h.cardRCA<<16, acmd41Timeout)
	}
	if irpt&irptErrorMask != 0 {
		resetMask |= irptErrorMask
	}

	if resetMask != 0 {
		h.regs.Write32(regInterrupt, resetMask)
	}
}

func (h *Host) resetCmd() error {
	control1 := h.regs.Read32(regControl1)
	h.regs.Write32(regControl1, control1|control1ResetCmd)
	if !clock.PollUntil(clock.NewDeadline(resetTimeout), pollInterval, func() bool {
		return h.regs.Read32(regControl1)&control1ResetCmd == 0
	}) {
		return fmt.Errorf("sdhost: CMD line did not reset")
	}
	return nil
}

func (h *Host) resetDat() error {
	control1 := h.regs.Read32(regControl1)
	h.regs.Write32(regControl1, control1|control1ResetDat)
	if !clock.PollUntil(clock.NewDeadline(resetTimeout), pollInterval, func() bool {
		return h.regs.Read32(regControl1)&control1ResetDat == 0
	}) {
		return fmt.Errorf("sdhost: DAT line did not reset")
	}
	return nil
}
