package firmware

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeHexFlattensRecordsAndFillsGaps(t *testing.T) {
	// Two data records with a four-byte gap between them; the gap must
	// flatten to the erased-flash fill value.
	content := ":0400000001020304F2\n" +
		":020008000506EB\n" +
		":00000001FF\n"

	data, err := decodeHex(strings.NewReader(content))
	if err != nil {
		t.Fatalf("decodeHex: %v", err)
	}

	want := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0x05, 0x06}
	if string(data) != string(want) {
		t.Errorf("data = % X, want % X", data, want)
	}
}

func TestDecodeHexExtendedLinearAddress(t *testing.T) {
	// Base 0x00010000 via a type-04 record, then one data byte at
	// offset 0 under that base.
	content := ":020000040001F9\n" +
		":01000000AA55\n" +
		":00000001FF\n"

	data, err := decodeHex(strings.NewReader(content))
	if err != nil {
		t.Fatalf("decodeHex: %v", err)
	}
	if len(data) != 0x10001 {
		t.Fatalf("len(data) = %d, want %d", len(data), 0x10001)
	}
	if data[0x10000] != 0xAA {
		t.Errorf("data[0x10000] = 0x%02X, want 0xAA", data[0x10000])
	}
	if data[0] != 0xFF {
		t.Errorf("data[0] = 0x%02X, want gap fill 0xFF", data[0])
	}
}

func TestDecodeHexRejectsChecksumMismatch(t *testing.T) {
	content := ":0400000001020304F3\n:00000001FF\n"
	if _, err := decodeHex(strings.NewReader(content)); err == nil {
		t.Fatal("expected error for bad record checksum")
	}
}

func TestDecodeHexRejectsMissingEOF(t *testing.T) {
	content := ":0400000001020304F2\n"
	if _, err := decodeHex(strings.NewReader(content)); err == nil {
		t.Fatal("expected error when the end-of-file record is missing")
	}
}

func TestDecodeHexRejectsRecordBeyondFlash(t *testing.T) {
	// Base 0x00040000 puts the record past the 256 KiB flash region.
	content := ":020000040004F6\n" +
		":01000000AA55\n" +
		":00000001FF\n"
	if _, err := decodeHex(strings.NewReader(content)); err == nil {
		t.Fatal("expected error for a record beyond the flash region")
	}
}

func TestDecodeHexRejectsTruncatedRecord(t *testing.T) {
	if _, err := decodeHex(strings.NewReader(":0400000001F2\n:00000001FF\n")); err == nil {
		t.Fatal("expected error for a record shorter than its byte count")
	}
}

func TestLoadHex(t *testing.T) {
	content := ":0400000001020304F2\n:00000001FF\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "firmware.hex")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}

	img, err := LoadHex(path)
	if err != nil {
		t.Fatalf("LoadHex: %v", err)
	}
	if img.Name != path {
		t.Errorf("Name = %q, want %q", img.Name, path)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if string(img.Data) != string(want) {
		t.Errorf("Data = % X, want % X", img.Data, want)
	}
}
