package dispatch

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/flasher"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/probe"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/transport"
)

// HIDDevice is the full set of USB-HID operations the dispatcher
// needs: the probe queries, the mode switch, and the flashing packet
// exchange. transport.HIDChannel satisfies this directly; tests supply
// a narrower fake.
type HIDDevice interface {
	probe.HIDProber
	flasher.HIDSender
	SwitchToBootloader(ctx context.Context) error
}

// ConfirmFunc asks the embedding UI to approve a destructive flash or
// the bootloader-updater sub-flash. With a nil ConfirmFunc a
// destructive flash of running firmware is declined, while a needed
// bootloader update proceeds without asking.
type ConfirmFunc func(question string) bool

// Config holds the dispatcher's ambient configuration: logging,
// progress reporting, the user-confirmation callback, the built-in
// bootloader-updater image, and the transport-opening hooks tests
// override with fakes.
type Config struct {
	ProgressCallback flasher.ProgressCallback
	Logger           *log.Logger
	Confirm          ConfirmFunc

	// UpdaterImage is the built-in bootloader-update image flashed when
	// the device reports an obsolete bootloader version. A nil image
	// means bootloader updates are unsupported; a job that needs one
	// fails rather than silently skipping the update.
	UpdaterImage []byte

	OpenHID      func() (HIDDevice, error)
	DiscoverPort probe.PortDiscoverer
}

func defaultConfig() Config {
	return Config{
		OpenHID:      defaultOpenHID,
		DiscoverPort: transport.DiscoverBootloaderPort,
	}
}

func defaultOpenHID() (HIDDevice, error) {
	ch, err := transport.OpenHIDChannel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Option is a functional option configuring a Dispatcher.
type Option func(*Config)

// WithProgressCallback sets the callback invoked for every progress
// event a flash job emits, passed straight through to the active
// flasher.
func WithProgressCallback(callback flasher.ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger used for dispatch- and flasher-level
// tracing.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithConfirm sets the callback Flash uses to ask the embedding UI to
// approve a destructive flash of a non-release image; it is also passed
// to the serial flasher to approve a bootloader update.
func WithConfirm(confirm ConfirmFunc) Option {
	return func(c *Config) {
		c.Confirm = confirm
	}
}

// WithBootloaderUpdaterImage sets the built-in image flashed when the
// device reports an obsolete bootloader version.
func WithBootloaderUpdaterImage(image []byte) Option {
	return func(c *Config) {
		c.UpdaterImage = image
	}
}

// WithHIDOpener overrides how the dispatcher opens the USB-HID
// channel, for tests that substitute an in-memory fake.
func WithHIDOpener(open func() (HIDDevice, error)) Option {
	return func(c *Config) {
		c.OpenHID = open
	}
}

// WithPortDiscoverer overrides how the dispatcher discovers the serial
// bootloader port, for tests that substitute a fake enumeration.
func WithPortDiscoverer(discover probe.PortDiscoverer) Option {
	return func(c *Config) {
		c.DiscoverPort = discover
	}
}

// NewConfig builds a Config from functional options, starting from
// defaultConfig.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) emit(p flasher.Progress) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(p)
	}
}

func (c Config) logInfo(msg string, kv ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(msg, kv...)
	}
}

func (c Config) logError(msg string, kv ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(msg, kv...)
	}
}
