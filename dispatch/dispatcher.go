package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/firmware"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/flasher"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/probe"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/transport"
)

// bootloaderSwitchTimeout and bootloaderSwitchPollStep bound how long
// Flash waits for the serial bootloader port to appear after a running
// firmware switches mode (automatically, or by the user's own hand for
// a RunningManual device).
const (
	bootloaderSwitchTimeout  = 10 * time.Second
	bootloaderSwitchPollStep = 100 * time.Millisecond
)

// Options is one job's configuration surface, exactly spec.md §6's
// options table.
type Options struct {
	Destructive   bool
	ClearUserData bool
	PreferUSBHID  bool

	// ExpectedCRC, if non-empty, is the four-uppercase-hex-digit image
	// CRC the device must report back. Left empty when the caller
	// doesn't know it in advance; the device-reported value is then
	// only informational.
	ExpectedCRC string

	// Version is a caller-supplied label threaded into progress text;
	// the dispatcher itself never inspects it.
	Version string
}

// Outcome is what a completed job reports back to Flash's caller.
type Outcome struct {
	ReceivedCRC string
}

// Dispatcher owns the single live session and busy flag: it probes
// device state, optionally updates an obsolete bootloader, chooses
// between the USB-HID and serial flashers, and enforces the size gates
// before either is ever opened.
type Dispatcher struct {
	mu   sync.Mutex
	busy bool
	cfg  Config
}

// NewDispatcher builds a Dispatcher from functional options.
func NewDispatcher(opts ...Option) *Dispatcher {
	return &Dispatcher{cfg: NewConfig(opts...)}
}

// IsBusy reports whether a job is currently in flight.
func (d *Dispatcher) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Flash runs one flash job to completion: probe, size gates, the
// destructive-release-filename guard, USB-HID-vs-serial selection, and
// the chosen flasher's state machine. It fails fast with BusyError if
// another job is already in flight.
func (d *Dispatcher) Flash(ctx context.Context, img *firmware.Image, opts Options) (Outcome, error) {
	if !d.acquire() {
		return Outcome{}, &BusyError{}
	}
	defer d.release()

	if err := img.CheckSize(opts.Destructive); err != nil {
		return Outcome{}, err
	}
	if !img.IsValid() {
		return Outcome{}, &firmware.InvalidImageError{Reason: "reset-vector word lies outside the SRAM window"}
	}

	status := probe.Probe(ctx, d.cfg.DiscoverPort, d.probeOpenHID)
	d.cfg.logInfo("device probed", "status", statusLabel(status))

	if status.Kind == probe.Absent {
		return Outcome{}, &transport.DeviceUnreachableError{Operation: "probe"}
	}

	if opts.Destructive && status.Kind != probe.InSerialBootloader {
		if firmware.IsReleaseFilename(img.Name) {
			return Outcome{}, &firmware.InvalidImageError{Reason: "destructive flash of a released firmware image is refused"}
		}
		if d.cfg.Confirm == nil || !d.cfg.Confirm("This will overwrite the bootloader region. Continue?") {
			return Outcome{}, &UserAbortedError{}
		}
	}

	useHID := opts.PreferUSBHID && !opts.Destructive && status.Kind == probe.RunningAutoSwitch && status.USBHID

	if useHID {
		if err := img.CheckSizeForUSBHID(); err != nil {
			return Outcome{}, err
		}
		return d.flashUSBHID(ctx, img, opts)
	}

	portName, err := d.resolveSerialPort(ctx, status)
	if err != nil {
		return Outcome{}, err
	}
	return d.flashSerial(ctx, portName, img, opts)
}

// ProbeStatus runs one probe tick, suppressing it while a flash job is
// in flight so the probe never overlaps a job's exclusive transport
// ownership. skipped reports whether the tick was suppressed; status
// is meaningless when it is.
func (d *Dispatcher) ProbeStatus(ctx context.Context) (status probe.Status, skipped bool) {
	if d.IsBusy() {
		return probe.Status{}, true
	}
	return probe.Probe(ctx, d.cfg.DiscoverPort, d.probeOpenHID), false
}

// Watch drives the probe cadence: one ProbeStatus tick every interval,
// reporting each unsuppressed result to tick, until ctx is cancelled.
func (d *Dispatcher) Watch(ctx context.Context, interval time.Duration, tick func(probe.Status)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if status, skipped := d.ProbeStatus(ctx); !skipped {
				tick(status)
			}
		}
	}
}

// StatusText maps a probe result to the user-facing device label the
// embedding UI shows between jobs.
func StatusText(status probe.Status) string {
	switch status.Kind {
	case probe.InSerialBootloader:
		return "Found an AudioMoth in flash mode"
	case probe.RunningAutoSwitch:
		return fmt.Sprintf("Found an AudioMoth running firmware %s (%s)", status.FirmwareVersion, status.FirmwareDescription)
	case probe.RunningManual:
		return fmt.Sprintf("Found an AudioMoth running firmware %s (%s) - switch to flash mode manually", status.FirmwareVersion, status.FirmwareDescription)
	default:
		return "No AudioMoth found"
	}
}

func (d *Dispatcher) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return false
	}
	d.busy = true
	return true
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

// probeOpenHID adapts Config.OpenHID to probe.HIDOpener's narrower
// return type.
func (d *Dispatcher) probeOpenHID() (probe.HIDProber, error) {
	dev, err := d.cfg.OpenHID()
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// hidSenderOpener adapts Config.OpenHID to flasher.HIDOpener.
func (d *Dispatcher) hidSenderOpener() (flasher.HIDSender, error) {
	dev, err := d.cfg.OpenHID()
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// resolveSerialPort returns the serial-bootloader port name to flash
// over: the one probe already found, or one obtained by switching a
// running firmware into the bootloader and waiting for it to
// re-enumerate.
func (d *Dispatcher) resolveSerialPort(ctx context.Context, status probe.Status) (string, error) {
	if status.Kind == probe.InSerialBootloader {
		return status.Port, nil
	}

	if status.Kind == probe.RunningAutoSwitch {
		dev, err := d.cfg.OpenHID()
		if err != nil {
			return "", err
		}
		switchErr := dev.SwitchToBootloader(ctx)
		dev.Close()
		if switchErr != nil {
			return "", switchErr
		}
	}

	d.cfg.emit(flasher.Progress{Kind: flasher.EventRestarting, Timeout: bootloaderSwitchTimeout})
	name, err := d.pollForPort(ctx)
	if err != nil {
		return "", &flasher.BootloaderSwitchFailedError{}
	}
	return name, nil
}

// pollForPort polls cfg.DiscoverPort every bootloaderSwitchPollStep
// until it reports a matching port, bootloaderSwitchTimeout elapses, or
// ctx is cancelled. It mirrors transport.PollForPortAppearance but
// drives Config.DiscoverPort rather than the OS enumerator directly, so
// tests can substitute a fake discoverer for this wait too.
func (d *Dispatcher) pollForPort(ctx context.Context) (string, error) {
	deadline := time.Now().Add(bootloaderSwitchTimeout)
	for {
		if name, found, err := d.cfg.DiscoverPort(); err == nil && found {
			return name, nil
		}
		if time.Now().After(deadline) {
			return "", &transport.TimeoutError{Operation: "port appearance"}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(bootloaderSwitchPollStep):
		}
	}
}

func (d *Dispatcher) flashUSBHID(ctx context.Context, img *firmware.Image, opts Options) (Outcome, error) {
	f := flasher.NewUSBHIDFlasher(d.hidSenderOpener, d.flasherOptions()...)
	job := flasher.USBHIDJob{
		Image:         img.Data,
		ClearUserData: opts.ClearUserData,
		ExpectedCRC:   parseHexCRC(opts.ExpectedCRC),
	}

	result, err := f.Run(ctx, job)
	if err != nil {
		d.cfg.logError("usb-hid flash failed", "error", err)
		return Outcome{}, err
	}
	return Outcome{ReceivedCRC: fmt.Sprintf("%04X", result.ReceivedCRC)}, nil
}

func (d *Dispatcher) flashSerial(ctx context.Context, portName string, img *firmware.Image, opts Options) (Outcome, error) {
	f := flasher.NewXMODEMFlasher(portName, d.cfg.UpdaterImage, d.flasherOptions()...)
	job := flasher.Job{
		Image:         img.Data,
		Destructive:   opts.Destructive,
		ClearUserData: opts.ClearUserData,
		ExpectedCRC:   opts.ExpectedCRC,
	}

	result, err := f.Run(ctx, job)
	if err != nil {
		d.cfg.logError("serial flash failed", "error", err)
		return Outcome{}, err
	}
	return Outcome{ReceivedCRC: result.ReceivedCRC}, nil
}

func (d *Dispatcher) flasherOptions() []flasher.Option {
	var opts []flasher.Option
	if d.cfg.ProgressCallback != nil {
		opts = append(opts, flasher.WithProgressCallback(d.cfg.ProgressCallback))
	}
	if d.cfg.Logger != nil {
		opts = append(opts, flasher.WithLogger(d.cfg.Logger))
	}
	if d.cfg.Confirm != nil {
		opts = append(opts, flasher.WithConfirm(d.cfg.Confirm))
	}
	return opts
}

// parseHexCRC parses a four-hex-digit CRC string into a uint16
// pointer, returning nil for an empty or malformed string so the
// USB-HID flasher falls back to computing it locally.
func parseHexCRC(s string) *uint16 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return nil
	}
	r := uint16(v)
	return &r
}

func statusLabel(status probe.Status) string {
	switch status.Kind {
	case probe.Absent:
		return "absent"
	case probe.InSerialBootloader:
		return "in-serial-bootloader"
	case probe.RunningAutoSwitch:
		return "running-auto-switch"
	case probe.RunningManual:
		return "running-manual"
	default:
		return "unknown"
	}
}
