package hidproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BuildInitSRAM builds the INIT_SRAM request.
func BuildInitSRAM() []byte {
	return []byte{CmdInitSRAM}
}

// BuildClearUserData builds the CLEAR_USER_DATA request.
func BuildClearUserData() []byte {
	return []byte{CmdClearUserData}
}

// BuildSRAMFWPacket builds a single SET_SRAM_FW_PACKET request carrying
// payload at the given SRAM byte offset. payload must be at most
// MaxPacketPayload bytes.
func BuildSRAMFWPacket(offset uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPacketPayload {
		return nil, fmt.Errorf("hidproto: SRAM packet payload too large: %d bytes", len(payload))
	}
	req := make([]byte, 1+4+1+len(payload))
	req[0] = CmdSetSRAMFWPacket
	binary.LittleEndian.PutUint32(req[1:5], offset)
	req[5] = byte(len(payload))
	copy(req[6:], payload)
	return req, nil
}

// BuildCalcSRAMCRC builds the CALC_SRAM_CRC request.
func BuildCalcSRAMCRC() []byte {
	return []byte{CmdCalcSRAMCRC}
}

// BuildGetFWCRC builds the GET_FW_CRC request.
func BuildGetFWCRC() []byte {
	return []byte{CmdGetFWCRC}
}

// BuildFlashFW builds the FLASH_FW request that commits SRAM to flash
// and reboots the device.
func BuildFlashFW() []byte {
	return []byte{CmdFlashFW}
}

// IsSuccess reports whether a response packet's status byte indicates
// success.
func IsSuccess(resp []byte) bool {
	return len(resp) > 2 && resp[2] == StatusOK
}

// ParseFWCRC extracts the little-endian CRC bytes [3],[4] from a
// successful GET_FW_CRC response.
func ParseFWCRC(resp []byte) (uint16, error) {
	if !IsSuccess(resp) {
		return 0, fmt.Errorf("hidproto: GET_FW_CRC response not successful")
	}
	if len(resp) < 5 {
		return 0, fmt.Errorf("hidproto: GET_FW_CRC response too short: %d bytes", len(resp))
	}
	return binary.LittleEndian.Uint16(resp[3:5]), nil
}

// BatchSize selects the SRAM streaming batch size for the given GOOS
// value ("windows" or anything else).
func BatchSize(goos string) int {
	if goos == "windows" {
		return BatchSizeWindows
	}
	return BatchSizeDefault
}

// BuildQueryUSBHIDBootloader builds the request asking the running
// firmware whether it supports the USB-HID SRAM bootloader path.
func BuildQueryUSBHIDBootloader() []byte {
	return []byte{CmdQueryUSBHIDBootloader}
}

// BuildQueryBootloader builds the request asking the running firmware
// whether it supports switching into the serial bootloader.
func BuildQueryBootloader() []byte {
	return []byte{CmdQueryBootloader}
}

// BuildGetFirmwareVersion builds the request for the running firmware's
// version string.
func BuildGetFirmwareVersion() []byte {
	return []byte{CmdGetFirmwareVersion}
}

// BuildGetFirmwareDescription builds the request for the running
// firmware's human-readable description string.
func BuildGetFirmwareDescription() []byte {
	return []byte{CmdGetFirmwareDescription}
}

// BuildSwitchToBootloader builds the request asking the running
// firmware to re-enumerate as the serial bootloader.
func BuildSwitchToBootloader() []byte {
	return []byte{CmdSwitchToBootloader}
}

// ParseQueryResult reads the boolean result at response byte [2] from a
// query-style probe response.
func ParseQueryResult(resp []byte) (bool, error) {
	if len(resp) < 3 {
		return false, fmt.Errorf("hidproto: query response too short: %d bytes", len(resp))
	}
	return resp[2] != 0, nil
}

// ParseASCIIField reads a NUL-terminated ASCII string starting at
// response byte [2], as used by GetFirmwareVersion and
// GetFirmwareDescription.
func ParseASCIIField(resp []byte) (string, error) {
	if len(resp) < 3 {
		return "", fmt.Errorf("hidproto: ASCII field response too short: %d bytes", len(resp))
	}
	field := resp[2:]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field), nil
}
