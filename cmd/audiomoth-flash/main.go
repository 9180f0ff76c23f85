// Command audiomoth-flash is the non-GUI embedding surface for the
// dispatcher: a flag-driven CLI that loads an image, wires up a
// Dispatcher against the real transports, and prints its progress
// events as it runs one flash job to completion. With --watch it
// instead reports device status on the probe cadence until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/dispatch"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/firmware"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/flasher"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/probe"
)

// statusPollInterval is the cadence --watch probes device state on.
const statusPollInterval = time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("audiomoth-flash", pflag.ContinueOnError)

	path := flags.String("path", "", "path to the firmware image to flash")
	port := flags.String("port", "", "serial port to flash over (overrides bootloader-port discovery)")
	mode := flags.String("mode", "serial", "transport to flash over: serial or hid (hid also needs --prefer-usbhid)")
	destructive := flags.Bool("destructive", false, "allow overwriting the bootloader region")
	clearUserData := flags.Bool("clear-user-data", false, "clear the device's user data region as part of the flash")
	preferUSBHID := flags.Bool("prefer-usbhid", false, "with --mode hid, use the USB-HID SRAM path when the device supports it")
	expectedCRC := flags.String("expected-crc", "", "four-hex-digit image CRC the device must report back")
	watch := flags.Bool("watch", false, "report device status on a cadence instead of flashing")
	verbose := flags.Bool("verbose", false, "enable debug logging")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *path == "" && !*watch {
		logger.Error("--path is required")
		flags.Usage()
		return 2
	}
	if *mode != "serial" && *mode != "hid" {
		logger.Error("--mode must be serial or hid", "mode", *mode)
		return 2
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithProgressCallback(printProgress(logger)),
		dispatch.WithConfirm(confirmOnStdin),
	}
	if *port != "" {
		// --port pins the bootloader port directly, bypassing serial
		// enumeration for setups where auto-discovery picks the wrong
		// device (multiple AudioMoths attached, for instance).
		fixedPort := *port
		dispatchOpts = append(dispatchOpts, dispatch.WithPortDiscoverer(
			func() (string, bool, error) { return fixedPort, true, nil },
		))
	}
	d := dispatch.NewDispatcher(dispatchOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *watch {
		err := d.Watch(ctx, statusPollInterval, func(s probe.Status) {
			logger.Info(dispatch.StatusText(s))
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("watch failed", "error", err)
			return 1
		}
		return 0
	}

	image, err := loadImage(*path)
	if err != nil {
		logger.Error("failed to load firmware image", "error", err)
		return 1
	}

	opts := dispatch.Options{
		Destructive:   *destructive,
		ClearUserData: *clearUserData,
		PreferUSBHID:  *preferUSBHID && *mode == "hid",
		ExpectedCRC:   *expectedCRC,
	}

	outcome, err := d.Flash(ctx, image, opts)
	if err != nil {
		logger.Error("flash failed", "error", err)
		return 1
	}

	logger.Info("flash completed", "received_crc", outcome.ReceivedCRC)
	return 0
}

// loadImage reads the firmware image at path, flattening an Intel HEX
// file into the opaque binary form the flashers transfer; anything else
// is treated as a raw binary.
func loadImage(path string) (*firmware.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return firmware.LoadHex(path)
	}
	return firmware.Load(path)
}

// confirmOnStdin asks the operator running the CLI to approve a
// destructive flash or a bootloader update; any answer other than "y"
// or "yes" declines.
func confirmOnStdin(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "yes"
}

func printProgress(logger *log.Logger) flasher.ProgressCallback {
	return func(p flasher.Progress) {
		switch p.Kind {
		case flasher.EventOpening:
			logger.Info("opening port", "attempt", p.Attempt)
		case flasher.EventCheckingBootloader:
			logger.Info("checking bootloader version")
		case flasher.EventReadyCheck:
			logger.Info("waiting for device ready", "attempt", p.ReadyAttempt)
		case flasher.EventFlashing:
			logger.Info("flashing", "current", p.Current, "total", p.Total)
		case flasher.EventRestarting:
			logger.Info("waiting for device to restart", "timeout", p.Timeout)
		case flasher.EventRestart:
			logger.Info("device restarted", "elapsed", p.Elapsed)
		case flasher.EventCompleted:
			logger.Info("done")
		case flasher.EventAborted:
			logger.Error("aborted", "reason", p.Reason)
		}
	}
}
