// Package crc implements the two checksum algorithms the AudioMoth
// bootloader protocols rely on.
//
// BlockCRC16 is the CCITT-style 16-bit CRC used as the trailer of every
// XMODEM data block and as the algorithm behind the device's own
// image-CRC commands ('v' and 'c'). ImageCRC is the
// bit-serial CRC the device reports after a USB-HID SRAM flash: it
// treats the firmware image, right-padded to a fixed window, as a raw
// bit stream.
//
// Both are deliberately table-free; each processes one byte (or bit) at
// a time, matching how the device itself computes them in constrained
// firmware.
package crc
