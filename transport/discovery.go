package transport

import (
	"context"
	"strconv"
	"time"

	"go.bug.st/serial/enumerator"
)

// DiscoverBootloaderPort enumerates OS serial ports and returns the
// name of the first one whose USB identifiers match the device's
// serial-bootloader profile (vendor in {VendorSiliconLabs,
// VendorSTMicro}, product = ProductSerialBootloader). found is false,
// with no error, when no matching port exists.
func DiscoverBootloaderPort() (name string, found bool, err error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", false, err
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, okVID := parseHexID(p.VID)
		pid, okPID := parseHexID(p.PID)
		if !okVID || !okPID {
			continue
		}
		if isBootloaderVendor(vid) && pid == ProductSerialBootloader {
			return p.Name, true, nil
		}
	}
	return "", false, nil
}

func isBootloaderVendor(vid uint16) bool {
	return vid == VendorSiliconLabs || vid == VendorSTMicro
}

func parseHexID(s string) (uint16, bool) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// PollForPortAppearance polls DiscoverBootloaderPort every step until a
// matching port appears, timeout elapses, or ctx is cancelled.
func PollForPortAppearance(ctx context.Context, timeout, step time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if name, found, err := DiscoverBootloaderPort(); err == nil && found {
			return name, nil
		}
		if time.Now().After(deadline) {
			return "", &TimeoutError{Operation: "port appearance"}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(step):
		}
	}
}

// PollForPortDisappearance polls DiscoverBootloaderPort every step
// until no matching port is present, timeout elapses, or ctx is
// cancelled.
func PollForPortDisappearance(ctx context.Context, timeout, step time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, found, err := DiscoverBootloaderPort()
		if err == nil && !found {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Operation: "port disappearance"}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
}
