package flasher

import "time"

// USB-HID SRAM streaming.
const (
	// usbhidBatchSleep is the pause between successive SET_SRAM_FW_PACKET
	// batches, giving the device time to drain its SRAM write queue.
	usbhidBatchSleep = 10 * time.Millisecond
)

// CALC_SRAM_CRC / GET_FW_CRC polling.
const (
	usbhidCRCPollAttempts = 10
	usbhidCRCPollInterval = 500 * time.Millisecond
)

// usbhidRebootWait bounds the best-effort wait after FLASH_FW: the
// protocol offers no explicit reboot confirmation, so success is
// surfaced once the deadline passes.
const usbhidRebootWait = 7500 * time.Millisecond
