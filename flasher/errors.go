package flasher

import "fmt"

// ReadyTimeoutError reports that the device never replied "Ready" to
// the write-mode handshake within its retry budget.
type ReadyTimeoutError struct{}

func (e *ReadyTimeoutError) Error() string {
	return "flasher: device never replied Ready"
}

// BootloaderSwitchFailedError reports that a requested mode switch was
// issued but the device did not re-enumerate as the serial bootloader.
type BootloaderSwitchFailedError struct{}

func (e *BootloaderSwitchFailedError) Error() string {
	return "flasher: device did not switch to the serial bootloader"
}

// UpdateDeclinedError reports that the bootloader-update confirmation
// prompt was declined, aborting the job before the updater sub-flash.
type UpdateDeclinedError struct{}

func (e *UpdateDeclinedError) Error() string {
	return "flasher: bootloader update declined"
}

// FlashStalledError reports that a single block exceeded its retry
// budget during block transmission.
type FlashStalledError struct {
	BlockNum int
}

func (e *FlashStalledError) Error() string {
	return fmt.Sprintf("flasher: block %d exceeded its retry budget", e.BlockNum)
}

// CRCMismatchError reports that the device-reported image CRC did not
// match the expected value.
type CRCMismatchError struct {
	Expected string
	Actual   string
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("flasher: CRC mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// CRCTimeoutError reports that the device did not finish computing the
// image CRC within its polling budget.
type CRCTimeoutError struct{}

func (e *CRCTimeoutError) Error() string {
	return "flasher: device did not finish computing the image CRC"
}

// UserDataClearFailedError reports that the user-data-clear
// sub-protocol failed after its retries.
type UserDataClearFailedError struct{}

func (e *UserDataClearFailedError) Error() string {
	return "flasher: clearing user data failed"
}

// HIDCommandFailedError reports that a USB-HID SRAM command packet got
// a response but its status byte did not indicate success.
type HIDCommandFailedError struct {
	Command string
}

func (e *HIDCommandFailedError) Error() string {
	return fmt.Sprintf("flasher: %s command failed", e.Command)
}
