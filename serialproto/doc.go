// Package serialproto encodes and decodes the wire protocol the
// AudioMoth serial bootloader speaks over its single 9600-baud byte
// stream: single-ASCII-byte commands, their expected response shapes,
// and the 133-byte XMODEM-CRC data-block frame used to stream firmware.
//
// Nothing in this package performs I/O; it only builds request bytes
// and parses response bytes, so it is trivially unit-testable and is
// driven by transport.SerialPort.
package serialproto
