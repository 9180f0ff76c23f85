// Package transport implements the two physical channels a flasher
// session can own: a serial line (SerialPort) and a USB-HID packet
// channel (HIDChannel), plus the port-discovery helpers the dispatcher
// and probe use to tell which channel a device currently exposes.
//
// Both channel types are safe for use by exactly one goroutine at a
// time — the owning flasher.Session serializes all calls — and both
// release their underlying OS handle idempotently on Close.
package transport
