// Package dispatch implements the single public entry point embedding
// applications call: Dispatcher.Flash probes the attached device,
// optionally updates an obsolete bootloader, chooses between the
// USB-HID and serial XMODEM-CRC flashers, and reports a monotonic
// progress sequence back to the caller.
//
// Exactly one Flash call runs at a time per Dispatcher; a second call
// made while one is in flight fails fast with BusyError rather than
// queuing.
package dispatch
