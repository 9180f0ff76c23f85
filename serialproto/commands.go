package serialproto

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/crc"
)

// BuildBlockFrame builds the 133-byte XMODEM-CRC frame for block number
// n (1-based) carrying payload. payload must be at most BlockSize bytes;
// a short final block is right-padded with FillerByte.
func BuildBlockFrame(n byte, payload []byte) ([]byte, error) {
	if len(payload) > BlockSize {
		return nil, fmt.Errorf("serialproto: block payload too large: %d bytes", len(payload))
	}

	block := make([]byte, BlockSize)
	copy(block, payload)
	for i := len(payload); i < BlockSize; i++ {
		block[i] = FillerByte
	}

	frame := make([]byte, FrameSize)
	frame[0] = SOH
	frame[1] = n
	frame[2] = 0xFF - n
	copy(frame[3:3+BlockSize], block)
	binary.BigEndian.PutUint16(frame[3+BlockSize:], crc.BlockCRC16(block))

	return frame, nil
}

// BuildBlankUserDataFrame builds one of the ClearUserDataBlockCount
// synthetic blank blocks sent during the clear-user-data sub-protocol.
// Its payload is entirely BlankUserDataByte — never FillerByte.
func BuildBlankUserDataFrame(n byte) []byte {
	payload := make([]byte, BlockSize)
	for i := range payload {
		payload[i] = BlankUserDataByte
	}
	frame, _ := BuildBlockFrame(n, payload)
	// Overwrite with the blank byte; BuildBlockFrame's padding loop never
	// triggers here since payload is already BlockSize long, but keep the
	// intent explicit rather than relying on that.
	copy(frame[3:3+BlockSize], payload)
	binary.BigEndian.PutUint16(frame[3+BlockSize:], crc.BlockCRC16(payload))
	return frame
}

// ValidateBlockFrame checks the structural invariants every on-wire
// XMODEM frame must satisfy (testable property 3 in the spec this
// protocol implements).
func ValidateBlockFrame(frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("serialproto: frame length %d, want %d", len(frame), FrameSize)
	}
	if frame[0] != SOH {
		return fmt.Errorf("serialproto: frame[0] = 0x%02X, want SOH", frame[0])
	}
	if frame[2] != 0xFF-frame[1] {
		return fmt.Errorf("serialproto: frame[2] = 0x%02X, want complement of block number 0x%02X", frame[2], frame[1])
	}
	want := crc.BlockCRC16(frame[3 : 3+BlockSize])
	got := binary.BigEndian.Uint16(frame[3+BlockSize:])
	if got != want {
		return fmt.Errorf("serialproto: frame trailer CRC 0x%04X, want 0x%04X", got, want)
	}
	return nil
}
