package sdhost

// command identifies a CMDn or ACMDn by its bare numeric index; App
// commands are distinguished by the isAppCmd flag passed alongside,
// matching emmc.c's IS_APP_CMD high-bit convention without baking a
// sentinel bit into a 6-bit index space.
type command uint8

// Command indices, from emmc.c's #define block.
const (
	cmdGoIdleState        command = 0
	cmdAllSendCID         command = 2
	cmdSendRelativeAddr   command = 3
	cmdIOSetOpCond        command = 5
	cmdSelectCard         command = 7
	cmdSendIfCond         command = 8
	cmdSendCSD            command = 9
	cmdStopTransmission   command = 12
	cmdSendStatus         command = 13
	cmdSetBlocklen        command = 16
	cmdReadSingleBlock    command = 17
	cmdReadMultipleBlock  command = 18
	cmdSetBlockCount      command = 23
	cmdWriteBlock         command = 24
	cmdWriteMultipleBlock command = 25
)

// App-command indices (sent after CMD55), from emmc.c's sd_acommands.
const (
	acmdSetBusWidth command = 6
	acmdSDSendOpCond command = 41
	acmdSendSCR      command = 51
)

const appCmd command = 55

// cmdReg builds the EMMC_CMDTM value for cmd per the same table emmc.c
// encodes as sd_commands/sd_acommands: command index in the top byte,
// response-type/data-direction/multi-block flags below it.
func cmdReg(c command, flags uint32) uint32 {
	return uint32(c)<<24 | flags
}

// commandRegisters mirrors sd_commands: flags for every normal (non-
// app) command this driver issues.
var commandRegisters = map[command]uint32{
	cmdGoIdleState:        cmdReg(cmdGoIdleState, respNone),
	cmdAllSendCID:         cmdReg(cmdAllSendCID, respR2),
	cmdSendRelativeAddr:   cmdReg(cmdSendRelativeAddr, respR6),
	cmdIOSetOpCond:        cmdReg(cmdIOSetOpCond, respR4),
	cmdSelectCard:         cmdReg(cmdSelectCard, respR1b),
	cmdSendIfCond:         cmdReg(cmdSendIfCond, respR7),
	cmdSendCSD:            cmdReg(cmdSendCSD, respR2),
	cmdStopTransmission:   cmdReg(cmdStopTransmission, respR1b|cmdTypeAbort),
	cmdSendStatus:         cmdReg(cmdSendStatus, respR1),
	cmdSetBlocklen:        cmdReg(cmdSetBlocklen, respR1),
	cmdReadSingleBlock:    cmdReg(cmdReadSingleBlock, respR1|dataRead),
	cmdReadMultipleBlock:  cmdReg(cmdReadMultipleBlock, respR1|dataRead|cmdMultiBlock|cmdBlkCntEn),
	cmdSetBlockCount:      cmdReg(cmdSetBlockCount, respR1),
	cmdWriteBlock:         cmdReg(cmdWriteBlock, respR1|dataWrite),
	cmdWriteMultipleBlock: cmdReg(cmdWriteMultipleBlock, respR1|dataWrite|cmdMultiBlock|cmdBlkCntEn),
	appCmd:                cmdReg(appCmd, respR1),
}

// appCommandRegisters mirrors sd_acommands: flags for every ACMDn this
// driver issues, sent immediately after CMD55.
var appCommandRegisters = map[command]uint32{
	acmdSetBusWidth:  cmdReg(acmdSetBusWidth, respR1),
	acmdSDSendOpCond: cmdReg(acmdSDSendOpCond, respR3),
	acmdSendSCR:      cmdReg(acmdSendSCR, respR1|dataRead),
}
