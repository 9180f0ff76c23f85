package transport

import (
	"context"
	"testing"
	"time"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/hidproto"
)

// fakeHIDDevice returns a fixed sequence of responses, optionally
// failing the first N attempts to exercise the retry loop.
type fakeHIDDevice struct {
	failFirst int
	calls     int
	response  []byte
}

func (f *fakeHIDDevice) Write(b []byte) (int, error) {
	return len(b), nil
}

func (f *fakeHIDDevice) ReadTimeout(b []byte, timeoutMs int) (int, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return 0, nil
	}
	n := copy(b, f.response)
	return n, nil
}

func (f *fakeHIDDevice) Close() error { return nil }

func TestHIDChannelQuery(t *testing.T) {
	dev := &fakeHIDDevice{response: []byte{0x00, hidproto.CmdQueryUSBHIDBootloader, 0x01}}
	ch := newHIDChannel(dev)

	usbhid, _, err := ch.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !usbhid {
		t.Error("expected usbhid=true")
	}
}

func TestHIDChannelRetriesBeforeSuccess(t *testing.T) {
	dev := &fakeHIDDevice{failFirst: 3, response: []byte{0x00, hidproto.CmdGetFirmwareVersion, 0x00}}
	// ParseASCIIField only needs len>=3; stub a short OK-ish payload.
	dev.response = append([]byte{0x00, hidproto.CmdGetFirmwareVersion}, []byte("1.0.0\x00")...)
	ch := newHIDChannel(dev)

	version, err := ch.GetFirmwareVersion(context.Background())
	if err != nil {
		t.Fatalf("GetFirmwareVersion: %v", err)
	}
	if version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", version)
	}
	if dev.calls <= 1 {
		t.Errorf("expected multiple attempts, got %d", dev.calls)
	}
}

func TestHIDChannelExhaustsAttempts(t *testing.T) {
	dev := &fakeHIDDevice{failFirst: 1000}
	ch := newHIDChannel(dev)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ch.SendPacket(ctx, []byte{0x02})
	if _, ok := err.(*DeviceUnreachableError); !ok {
		t.Fatalf("err = %v, want *DeviceUnreachableError", err)
	}
	if dev.calls != hidMaxAttempts {
		t.Errorf("calls = %d, want %d", dev.calls, hidMaxAttempts)
	}
}
