package firmware

import (
	"encoding/binary"
	"testing"
)

func validHeader() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[:4], 0x20001000)
	return buf
}

func TestImageIsValid(t *testing.T) {
	img := &Image{Data: validHeader()}
	if !img.IsValid() {
		t.Error("expected valid image")
	}
}

func TestImageIsValidRejectsZeroPointer(t *testing.T) {
	img := &Image{Data: make([]byte, 8)}
	if img.IsValid() {
		t.Error("expected invalid image for all-zero header")
	}
}

func TestImageIsValidRejectsOutOfWindowPointer(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[:4], 0x30000000)
	img := &Image{Data: buf}
	if img.IsValid() {
		t.Error("expected invalid image for out-of-window pointer")
	}
}

func TestImageIsValidRejectsShortImage(t *testing.T) {
	img := &Image{Data: []byte{0x01, 0x02}}
	if img.IsValid() {
		t.Error("expected invalid image for short data")
	}
}

func TestCheckSizeNonDestructive(t *testing.T) {
	img := &Image{Data: make([]byte, MaxNonDestructive+1)}
	if err := img.CheckSize(false); err == nil {
		t.Fatal("expected InvalidImageError")
	}
	img.Data = make([]byte, MaxNonDestructive)
	if err := img.CheckSize(false); err != nil {
		t.Fatalf("unexpected error at exact limit: %v", err)
	}
}

func TestCheckSizeDestructive(t *testing.T) {
	img := &Image{Data: make([]byte, MaxDestructive+1)}
	if err := img.CheckSize(true); err == nil {
		t.Fatal("expected InvalidImageError")
	}
	img.Data = make([]byte, MaxNonDestructive+1)
	if err := img.CheckSize(true); err != nil {
		t.Fatalf("destructive gate should allow bootloader-sized image: %v", err)
	}
}

func TestCheckSizeForUSBHID(t *testing.T) {
	img := &Image{Data: make([]byte, MaxUSBHID+1)}
	if err := img.CheckSizeForUSBHID(); err == nil {
		t.Fatal("expected InvalidImageError")
	}
}

func TestIsReleaseFilename(t *testing.T) {
	cases := map[string]bool{
		"audiomoth-firmware-basic-1.9.1.bin":    true,
		"audiomoth-usb-microphone-1.2.0.bin":    true,
		"audiomoth-gps-sync-2.0.0.bin":          true,
		"my-custom-build.bin":                   false,
		"audiomoth-firmware-basic-1.9.1.hex":    false,
	}
	for name, want := range cases {
		if got := IsReleaseFilename(name); got != want {
			t.Errorf("IsReleaseFilename(%q) = %v, want %v", name, got, want)
		}
	}
}
