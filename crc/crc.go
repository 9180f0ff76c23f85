package crc

// ImageCRCWindowSize is the fixed firmware region the image-CRC
// algorithm covers, right-padded with 0xFF before bit processing. This
// is a HID-path-only constant; do not conflate it with either of the
// firmware size gates the dispatcher enforces.
const ImageCRCWindowSize = 240 * 1024

// imagePadByte is the value the image-CRC window is padded with.
const imagePadByte = 0xFF

// polynomial is the CRC-16/CCITT-FALSE generator polynomial used by
// ImageCRC's bit-serial core.
const polynomial = 0x1021

// BlockCRC16 computes the table-free CCITT-style 16-bit CRC used as the
// two-byte trailer of every XMODEM data block, and independently by the
// device's own non-destructive image-CRC commands. The initial state is
// zero (not 0xFFFF, unlike the classic CRC-16-CCITT).
func BlockCRC16(data []byte) uint16 {
	var crcState uint16
	for _, b := range data {
		code := (crcState >> 8) & 0xFF
		code ^= uint16(b)
		code ^= code >> 4
		crcState = (crcState << 8) ^ code ^ (code << 5) ^ (code << 7)
	}
	return crcState
}

// ImageCRC computes the bit-serial CRC the device reports after a
// USB-HID SRAM flash. The image is conceptually right-padded with 0xFF
// to ImageCRCWindowSize bytes, then 16 trailing zero bits are shifted
// through the same register — this is what lets the device compute the
// identical value from flash without ever materializing the padding.
//
// image must not exceed ImageCRCWindowSize; callers enforce the
// relevant size gate (MAX_USBHID) before calling this.
func ImageCRC(image []byte) uint16 {
	var state uint16

	shiftByte := func(b byte) {
		for bit := 7; bit >= 0; bit-- {
			top := state >> 15
			state = state << 1
			if b&(1<<uint(bit)) != 0 {
				state |= 1
			}
			if top != 0 {
				state ^= polynomial
			}
		}
	}

	for _, b := range image {
		shiftByte(b)
	}
	for i := len(image); i < ImageCRCWindowSize; i++ {
		shiftByte(imagePadByte)
	}

	// 16 trailing zero bits.
	for i := 0; i < 16; i++ {
		top := state >> 15
		state = state << 1
		if top != 0 {
			state ^= polynomial
		}
	}

	return state
}
