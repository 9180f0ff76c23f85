package probe

import (
	"context"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/transport"
)

// Kind enumerates the four device states; together with Status.USBHID
// for RunningAutoSwitch they distinguish five situations.
type Kind int

const (
	// Absent means no matching serial port or HID device was found.
	Absent Kind = iota

	// InSerialBootloader means a port matching the serial-bootloader
	// USB profile was found; the device is ready for XMODEM-CRC
	// flashing.
	InSerialBootloader

	// RunningAutoSwitch means running firmware answered the HID probe
	// and supports switching to the bootloader automatically.
	RunningAutoSwitch

	// RunningManual means running firmware answered the HID probe but
	// requires the user to switch modes manually.
	RunningManual
)

// Status is the classification Probe produces.
type Status struct {
	Kind Kind

	// Port is meaningful only when Kind == InSerialBootloader: the OS
	// port name the matching serial-bootloader profile was found on.
	Port string

	// USBHID is meaningful only when Kind == RunningAutoSwitch: it
	// reports whether the device additionally supports the USB-HID
	// SRAM flashing path.
	USBHID bool

	FirmwareVersion     string
	FirmwareDescription string
}

// HIDProber is the subset of transport.HIDChannel's behavior Probe
// depends on, so tests can substitute a fake device.
type HIDProber interface {
	Query(ctx context.Context) (usbhid bool, bootloader bool, err error)
	GetFirmwareVersion(ctx context.Context) (string, error)
	GetFirmwareDescription(ctx context.Context) (string, error)
	Close() error
}

// PortDiscoverer matches transport.DiscoverBootloaderPort's signature.
type PortDiscoverer func() (name string, found bool, err error)

// HIDOpener matches a wrapped transport.OpenHIDChannel.
type HIDOpener func() (HIDProber, error)

// DefaultHIDOpener opens the real USB-HID channel.
func DefaultHIDOpener() (HIDProber, error) {
	return transport.OpenHIDChannel()
}

// Probe runs the three-step classification algorithm: a matching
// serial port wins outright; otherwise the HID channel is queried in
// sequence, and any failure along that path collapses to Absent.
func Probe(ctx context.Context, discover PortDiscoverer, openHID HIDOpener) Status {
	if name, found, err := discover(); err == nil && found {
		return Status{Kind: InSerialBootloader, Port: name}
	}

	ch, err := openHID()
	if err != nil {
		return Status{Kind: Absent}
	}
	defer ch.Close()

	usbhid, bootloader, err := ch.Query(ctx)
	if err != nil {
		return Status{Kind: Absent}
	}

	version, err := ch.GetFirmwareVersion(ctx)
	if err != nil {
		return Status{Kind: Absent}
	}

	description, err := ch.GetFirmwareDescription(ctx)
	if err != nil {
		return Status{Kind: Absent}
	}

	if bootloader {
		return Status{Kind: RunningAutoSwitch, USBHID: usbhid, FirmwareVersion: version, FirmwareDescription: description}
	}
	return Status{Kind: RunningManual, FirmwareVersion: version, FirmwareDescription: description}
}
