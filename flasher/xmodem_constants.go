package flasher

import "time"

// Open-port retry.
const (
	maxPortOpenAttempts = 5
	portOpenBackoffUnit = 500 * time.Millisecond
)

// Ready handshake.
const (
	maxReadyAttempts  = 7
	readyBackoffUnit  = 100 * time.Millisecond
	readyResponseWait = 1500 * time.Millisecond
)

// Bootloader version gate.
const (
	updaterExpectedCRC = "A435"
)

// bootloaderVersionsNeedingUpdate lists the obsolete bootloader
// versions that must be updated before a flash can proceed.
var bootloaderVersionsNeedingUpdate = map[string]bool{
	"1.00": true,
	"1.01": true,
}

// Clear-user-data sub-protocol.
const (
	maxClearUserDataAttempts = 5
	clearUserDataBackoffUnit = 100 * time.Millisecond
)

// Block transmission.
const (
	ackTimeout      = 1500 * time.Millisecond
	maxBlockRepeats = 10
)

// Reset / port-disappearance polling.
const (
	resetPollTimeout = 7500 * time.Millisecond
	resetPollStep    = 100 * time.Millisecond
)

// identityResponseWait bounds the 'i' command's response wait; the
// response itself is a fixed 54-byte ASCII string.
const identityResponseWait = 1500 * time.Millisecond

// crcResponseWait bounds the 'v'/'c' CRC-query response wait.
const crcResponseWait = 1500 * time.Millisecond

// backoffDelay returns base * 2^attempt, the shape every retry budget
// in this protocol uses (with a different base per operation).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}
