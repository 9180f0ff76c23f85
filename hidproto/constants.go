package hidproto

// Command bytes, carried as the first byte of every request packet. A
// response packet echoes the command at byte [1]; byte [0] is a
// transport-level tag the HID layer supplies.
const (
	CmdInitSRAM        = 0x02
	CmdClearUserData   = 0x03
	CmdSetSRAMFWPacket = 0x04
	CmdCalcSRAMCRC     = 0x05
	CmdCalcFlashCRC    = 0x06
	CmdGetFWCRC        = 0x07
	CmdFlashFW         = 0x08
)

// Probe command bytes. These belong to the same HID packet channel as
// the flashing command set above but are used only to classify device
// state (transport.HIDChannel.Query / SwitchToBootloader /
// GetFirmwareVersion / GetFirmwareDescription) before any flash begins.
const (
	CmdQueryUSBHIDBootloader  = 0x00
	CmdQueryBootloader        = 0x01
	CmdGetFirmwareVersion     = 0x09
	CmdGetFirmwareDescription = 0x0A
	CmdSwitchToBootloader     = 0x0B
)

// StatusOK is the success value found at response byte [2].
const StatusOK = 0x01

// MaxPacketPayload is the largest payload a single SET_SRAM_FW_PACKET
// request may carry.
const MaxPacketPayload = 56

// BatchSizeDefault and BatchSizeWindows are the number of SRAM packets
// streamed per host-side sendMultiple transaction. The Windows value is
// smaller to work around a host-side USB buffering quirk; both are
// preserved as named platform constants rather than unified.
const (
	BatchSizeDefault = 60
	BatchSizeWindows = 30
)
