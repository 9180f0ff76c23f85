// Package probe classifies the attached device's current mode: absent,
// already in the serial bootloader, or running firmware with varying
// support for automatic mode-switch and USB-HID flashing.
//
// Probe never blocks indefinitely — every step it takes is wrapped in
// the transport package's own timeouts and attempt loops — and any
// failure collapses to Absent rather than propagating an error,
// matching the device-probe contract this package implements.
package probe
