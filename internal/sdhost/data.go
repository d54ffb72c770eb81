package sdhost

import (
	"context"
	"fmt"
	"time"

	"github.com/coriolis-os/drivers/internal/constants"
)

const dataCommandTimeout = 2 * time.Second

// ensureDataMode returns the card to data-transfer state before a
// read/write, following emmc.c's sd_ensure_data_mode: re-initialize
// if no card has ever been selected, otherwise inspect CMD13's
// CURRENT_STATE field and recover from STANDBY (select) or
// DATA/RECEIVE-DATA (stop transmission, reset DAT) before re-checking.
func (h *Host) ensureDataMode(ctx context.Context) error {
	if h.cardRCA == 0 {
		return h.Init(ctx)
	}

	h.issueCommand(ctx, cmdSendStatus, h.cardRCA<<16, acmd41Timeout)
	if !h.lastCmdSuccess {
		h.cardRCA = 0
		return h.Init(ctx)
	}
	state := (h.lastR0 >> 9) & 0xf

	switch state {
	case 4:
		return nil
	case 3:
		h.issueCommand(ctx, cmdSelectCard, h.cardRCA<<16, acmd41Timeout)
		if !h.lastCmdSuccess {
			h.cardRCA = 0
			return h.Init(ctx)
		}
	case 5, 6:
		h.issueCommand(ctx, cmdStopTransmission, 0, acmd41Timeout)
		if err := h.resetDat(); err != nil {
			h.cardRCA = 0
			return h.Init(ctx)
		}
	default:
		h.cardRCA = 0
		return h.Init(ctx)
	}

	h.issueCommand(ctx, cmdSendStatus, h.cardRCA<<16, acmd41Timeout)
	if !h.lastCmdSuccess || (h.lastR0>>9)&0xf != 4 {
		h.cardRCA = 0
		return h.Init(ctx)
	}
	return nil
}

// doDataCommand issues a single- or multi-block read/write, retrying
// up to three times on failure and resetting the card's RCA (forcing
// full re-identification on the next call) once retries are
// exhausted. Mirrors emmc.c's sd_do_data_command; this port always
// takes the PIO path (see issue.go's issueCommandInt doc comment).
func (h *Host) doDataCommand(ctx context.Context, blockNo uint32, buf []byte, isWrite bool) error {
	if len(buf) == 0 || len(buf)%int(h.blockSize) != 0 {
		return fmt.Errorf("sdhost: transfer length %d is not a multiple of the block size %d", len(buf), h.blockSize)
	}
	blocksToTransfer := uint32(len(buf)) / h.blockSize

	addr := blockNo
	if !h.supportsSDHC {
		addr = blockNo * h.blockSize
	}

	var c command
	switch {
	case !isWrite && blocksToTransfer == 1:
		c = cmdReadSingleBlock
	case !isWrite:
		c = cmdReadMultipleBlock
	case isWrite && blocksToTransfer == 1:
		c = cmdWriteBlock
	default:
		c = cmdWriteMultipleBlock
	}

	var lastErr error
	for attempt := 0; attempt < constants.MaxCommandRetries; attempt++ {
		reg, ok := commandRegisters[c]
		if !ok {
			return fmt.Errorf("sdhost: no register mapping for command %d", c)
		}
		h.issueCommandInt(ctx, reg, addr, buf, isWrite, dataCommandTimeout)
		if h.lastCmdSuccess {
			return nil
		}
		lastErr = fmt.Errorf("sdhost: data command failed after attempt %d, error=%#x", attempt+1, h.lastError)
		h.resetCmd()
		h.resetDat()
	}

	h.cardRCA = 0
	return lastErr
}

// ReadBlocks reads len(buf)/BlockSize() consecutive blocks starting at
// startBlock into buf.
func (h *Host) ReadBlocks(ctx context.Context, startBlock uint32, buf []byte) error {
	if err := h.ensureDataMode(ctx); err != nil {
		return err
	}
	return h.doDataCommand(ctx, startBlock, buf, false)
}

// WriteBlocks writes len(buf)/BlockSize() consecutive blocks starting
// at startBlock from buf.
func (h *Host) WriteBlocks(ctx context.Context, startBlock uint32, buf []byte) error {
	if err := h.ensureDataMode(ctx); err != nil {
		return err
	}
	return h.doDataCommand(ctx, startBlock, buf, true)
}
