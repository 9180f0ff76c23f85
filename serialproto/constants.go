package serialproto

// Command bytes sent host-to-device. Each is a single ASCII byte.
const (
	// CmdDestructiveWrite requests a destructive write-ready handshake.
	CmdDestructiveWrite = 'd'

	// CmdNonDestructiveWrite requests a non-destructive write-ready handshake.
	CmdNonDestructiveWrite = 'u'

	// CmdClearUserData requests a user-data-clear-ready handshake.
	CmdClearUserData = 't'

	// CmdIdentity requests the bootloader identity string.
	CmdIdentity = 'i'

	// CmdReadImageCRC requests the image CRC including the bootloader region.
	CmdReadImageCRC = 'v'

	// CmdReadFirmwareCRC requests the image CRC over the firmware region only.
	CmdReadFirmwareCRC = 'c'

	// CmdReadUserDataCRC requests the CRC of the user-data region.
	CmdReadUserDataCRC = 'n'

	// CmdReset requests a device reset.
	CmdReset = 'r'
)

// XMODEM control bytes.
const (
	SOH = 0x01
	EOF = 0x04
	ACK = 0x06
)

// BlockSize is the XMODEM payload size in bytes.
const BlockSize = 128

// FrameSize is the total size of an XMODEM block frame:
// SOH(1) + block#(1) + complement(1) + payload(128) + crc16(2).
const FrameSize = 1 + 1 + 1 + BlockSize + 2

// FillerByte pads a short final block. This is deliberately distinct
// from the zero byte used by the user-data-clear sub-protocol; see
// BlankUserDataByte.
const FillerByte = 0xFF

// BlankUserDataByte fills the 16 synthetic blocks sent during the
// clear-user-data sub-protocol. Do not unify this with FillerByte: the
// asymmetry matches the device's erase semantics.
const BlankUserDataByte = 0x00

// ClearUserDataBlockCount is the number of synthetic blank blocks sent
// during the clear-user-data sub-protocol.
const ClearUserDataBlockCount = 16

// Response byte-length expectations.
const (
	// ReadyResponseLen is the number of bytes accumulated before matching
	// the "Ready" response against ReadyPattern.
	ReadyResponseLen = 11

	// IdentityResponseLen is the number of bytes the bootloader-identity
	// response occupies.
	IdentityResponseLen = 54

	// CRCResponseLen is the number of bytes a CRC-query response occupies.
	CRCResponseLen = 18
)
