package firmware

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Size limits the dispatcher enforces before any transport is opened.
const (
	// MaxNonDestructive bounds a firmware-only (non-destructive) image.
	MaxNonDestructive = 256*1024 - 16*1024

	// MaxDestructive bounds a firmware+bootloader (destructive) image.
	MaxDestructive = 256 * 1024

	// MaxUSBHID bounds an image sent over the USB-HID SRAM path. This is
	// independent of the 240 KiB image-CRC window in package crc — do
	// not conflate the two.
	MaxUSBHID = 0x34000
)

// sramWindowLow and sramWindowHigh bound the valid reset-stack-pointer
// range for the image-validity heuristic.
const (
	sramWindowLow  = 0x20000000
	sramWindowHigh = 0x20008000
)

// releasePattern matches the filename convention used by firmware
// released alongside a bootloader; a destructive flash of a matching
// file is refused outright rather than merely confirmed, since these
// images are meant to be installed together with a bootloader update,
// not flashed destructively on their own.
var releasePattern = regexp.MustCompile(`^(audiomoth-firmware-basic|audiomoth-usb-microphone|audiomoth-gps-sync)-\d+\.\d+\.\d+\.bin$`)

// InvalidImageError reports that an image failed a size gate or the
// validity heuristic before any device interaction was attempted.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("firmware: invalid image: %s", e.Reason)
}

// Image is a firmware binary together with the filename it was loaded
// from (used only for the release-pattern guard; its bytes are opaque
// otherwise).
type Image struct {
	Name string
	Data []byte
}

// Load reads a firmware image from path.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("firmware: reading %s: %w", path, err)
	}
	return &Image{Name: path, Data: data}, nil
}

// IsReleaseFilename reports whether name's base filename matches the
// released-firmware naming convention.
func IsReleaseFilename(name string) bool {
	return releasePattern.MatchString(filepath.Base(name))
}

// IsValid reports whether the image's first 32-bit little-endian word
// (its reset-stack-pointer) lies in the SRAM window devices expect,
// rejecting obviously wrong files before any transfer.
func (img *Image) IsValid() bool {
	if len(img.Data) < 4 {
		return false
	}
	pointer := binary.LittleEndian.Uint32(img.Data[:4])
	return pointer >= sramWindowLow && pointer <= sramWindowHigh
}

// CheckSize enforces the size gate matching destructive, returning
// InvalidImageError if the image exceeds it.
func (img *Image) CheckSize(destructive bool) error {
	limit := MaxNonDestructive
	if destructive {
		limit = MaxDestructive
	}
	if len(img.Data) > limit {
		return &InvalidImageError{Reason: fmt.Sprintf("image is %d bytes, exceeds limit of %d bytes", len(img.Data), limit)}
	}
	return nil
}

// CheckSizeForUSBHID enforces MaxUSBHID, the size gate specific to the
// USB-HID SRAM path.
func (img *Image) CheckSizeForUSBHID() error {
	if len(img.Data) > MaxUSBHID {
		return &InvalidImageError{Reason: fmt.Sprintf("image is %d bytes, exceeds USB-HID limit of %d bytes", len(img.Data), MaxUSBHID)}
	}
	return nil
}
