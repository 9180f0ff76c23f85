package flasher

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/crc"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/hidproto"
)

// fakeHIDSender answers every command with a scripted response keyed
// off the request's first byte, so one fake can drive the whole
// USB-HID flow without a real device.
type fakeHIDSender struct {
	fwCRC         uint16
	crcPollsLeft  int // number of GET_FW_CRC polls before returning success
	sramPayload   []byte
	batchCalls    int
	closed        bool
	failOnCommand byte
	hasFail       bool
}

func (f *fakeHIDSender) SendPacket(ctx context.Context, req []byte) ([]byte, error) {
	return f.handle(req), nil
}

func (f *fakeHIDSender) SendMultiple(ctx context.Context, reqs [][]byte) ([]byte, error) {
	f.batchCalls++
	var last []byte
	for _, req := range reqs {
		last = f.handle(req)
	}
	return last, nil
}

func (f *fakeHIDSender) Close() error {
	f.closed = true
	return nil
}

func (f *fakeHIDSender) handle(req []byte) []byte {
	cmd := req[0]
	if f.hasFail && cmd == f.failOnCommand {
		return []byte{0x00, cmd, 0x00}
	}
	switch cmd {
	case hidproto.CmdSetSRAMFWPacket:
		offset := req[1:5]
		numBytes := int(req[5])
		payload := req[6 : 6+numBytes]
		_ = offset
		f.sramPayload = append(f.sramPayload, payload...)
		return []byte{0x00, cmd, hidproto.StatusOK}
	case hidproto.CmdGetFWCRC:
		if f.crcPollsLeft > 0 {
			f.crcPollsLeft--
			return []byte{0x00, cmd, 0x00}
		}
		resp := []byte{0x00, cmd, hidproto.StatusOK, byte(f.fwCRC), byte(f.fwCRC >> 8)}
		return resp
	default:
		return []byte{0x00, cmd, hidproto.StatusOK}
	}
}

func newTestUSBHIDFlasher(dev HIDSender) *USBHIDFlasher {
	return &USBHIDFlasher{
		open:       func() (HIDSender, error) { return dev, nil },
		cfg:        NewConfig(),
		session:    NewSession(),
		goos:       "linux",
		rebootWait: time.Millisecond,
	}
}

func TestUSBHIDFlasherHappyPath(t *testing.T) {
	image := bytes.Repeat([]byte{0x5A}, 200)
	expected := crc.ImageCRC(image)
	dev := &fakeHIDSender{fwCRC: expected}
	f := newTestUSBHIDFlasher(dev)

	result, err := f.Run(context.Background(), USBHIDJob{Image: image})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReceivedCRC != expected {
		t.Errorf("ReceivedCRC = %04X, want %04X", result.ReceivedCRC, expected)
	}
	if !bytes.Equal(dev.sramPayload, image) {
		t.Errorf("SRAM payload = %d bytes, want %d bytes matching image", len(dev.sramPayload), len(image))
	}
	if !dev.closed {
		t.Error("expected HID channel to be closed")
	}
}

func TestUSBHIDFlasherStreamsInBatches(t *testing.T) {
	batchSize := hidproto.BatchSize("linux")
	image := bytes.Repeat([]byte{0x11}, batchSize*hidproto.MaxPacketPayload+10)
	expected := crc.ImageCRC(image)
	dev := &fakeHIDSender{fwCRC: expected}
	f := newTestUSBHIDFlasher(dev)

	if _, err := f.Run(context.Background(), USBHIDJob{Image: image}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dev.batchCalls != 2 {
		t.Errorf("batchCalls = %d, want 2", dev.batchCalls)
	}
}

func TestUSBHIDFlasherPollsUntilCRCReady(t *testing.T) {
	image := bytes.Repeat([]byte{0x03}, 64)
	expected := crc.ImageCRC(image)
	dev := &fakeHIDSender{fwCRC: expected, crcPollsLeft: 4}
	f := newTestUSBHIDFlasher(dev)

	result, err := f.Run(context.Background(), USBHIDJob{Image: image})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReceivedCRC != expected {
		t.Errorf("ReceivedCRC = %04X, want %04X", result.ReceivedCRC, expected)
	}
}

func TestUSBHIDFlasherCRCTimeout(t *testing.T) {
	image := bytes.Repeat([]byte{0x03}, 64)
	dev := &fakeHIDSender{crcPollsLeft: 1000}
	f := newTestUSBHIDFlasher(dev)

	_, err := f.Run(context.Background(), USBHIDJob{Image: image})
	if _, ok := err.(*CRCTimeoutError); !ok {
		t.Fatalf("err = %v, want *CRCTimeoutError", err)
	}
}

func TestUSBHIDFlasherCRCMismatch(t *testing.T) {
	image := bytes.Repeat([]byte{0x09}, 64)
	dev := &fakeHIDSender{fwCRC: 0xDEAD}
	f := newTestUSBHIDFlasher(dev)

	expected := crc.ImageCRC(image)
	if expected == 0xDEAD {
		t.Fatal("test fixture collision: pick a different image")
	}

	_, err := f.Run(context.Background(), USBHIDJob{Image: image})
	mismatch, ok := err.(*CRCMismatchError)
	if !ok {
		t.Fatalf("err = %v, want *CRCMismatchError", err)
	}
	if mismatch.Actual != "DEAD" {
		t.Errorf("Actual = %q, want DEAD", mismatch.Actual)
	}
}

func TestUSBHIDFlasherExplicitExpectedCRCOverridesComputed(t *testing.T) {
	image := bytes.Repeat([]byte{0x22}, 64)
	want := uint16(0x1234)
	dev := &fakeHIDSender{fwCRC: want}
	f := newTestUSBHIDFlasher(dev)

	result, err := f.Run(context.Background(), USBHIDJob{Image: image, ExpectedCRC: &want})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReceivedCRC != want {
		t.Errorf("ReceivedCRC = %04X, want %04X", result.ReceivedCRC, want)
	}
}

func TestUSBHIDFlasherInitSRAMFailure(t *testing.T) {
	image := bytes.Repeat([]byte{0x02}, 32)
	dev := &fakeHIDSender{hasFail: true, failOnCommand: hidproto.CmdInitSRAM}
	f := newTestUSBHIDFlasher(dev)

	_, err := f.Run(context.Background(), USBHIDJob{Image: image})
	failed, ok := err.(*HIDCommandFailedError)
	if !ok {
		t.Fatalf("err = %v, want *HIDCommandFailedError", err)
	}
	if failed.Command != "INIT_SRAM" {
		t.Errorf("Command = %q, want INIT_SRAM", failed.Command)
	}
}

func TestUSBHIDFlasherClearUserDataFailure(t *testing.T) {
	image := bytes.Repeat([]byte{0x02}, 32)
	expected := crc.ImageCRC(image)
	dev := &fakeHIDSender{fwCRC: expected, hasFail: true, failOnCommand: hidproto.CmdClearUserData}
	f := newTestUSBHIDFlasher(dev)

	_, err := f.Run(context.Background(), USBHIDJob{Image: image, ClearUserData: true})
	if _, ok := err.(*UserDataClearFailedError); !ok {
		t.Fatalf("err = %v, want *UserDataClearFailedError", err)
	}
}
