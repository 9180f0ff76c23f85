package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/karalabe/hid"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/hidproto"
)

// USB vendor identifiers AudioMoth devices enumerate under, regardless
// of mode.
const (
	VendorSiliconLabs = 0x10C4
	VendorSTMicro     = 0x2544
)

// Product identifiers distinguishing device mode.
const (
	ProductRunningFirmware  = 0x0002
	ProductSerialBootloader = 0x0003
)

const (
	// hidRetryBase is RETRY_BASE in the spec's attempt-loop description.
	hidRetryBase = 100 * time.Millisecond

	// hidMaxAttempts is the number of tries an attempt loop makes before
	// surfacing DeviceUnreachableError.
	hidMaxAttempts = 10

	// hidReadTimeout bounds a single HID read within one attempt.
	hidReadTimeout = 200 * time.Millisecond

	hidPacketSize = 64
)

// hidDevice is the subset of karalabe/hid's Device this package
// depends on, kept narrow so tests can supply an in-memory fake.
type hidDevice interface {
	Write(b []byte) (int, error)
	ReadTimeout(b []byte, timeoutMs int) (int, error)
	Close() error
}

// HIDChannel is the USB-HID packet channel the USB-HID SRAM flasher
// and the device probe drive.
type HIDChannel struct {
	dev hidDevice

	closeOnce sync.Once
	closeErr  error
}

// OpenHIDChannel opens the first HID device whose vendor/product
// identifiers match a running-firmware AudioMoth.
func OpenHIDChannel() (*HIDChannel, error) {
	for _, vendor := range []uint16{VendorSiliconLabs, VendorSTMicro} {
		infos, err := hid.Enumerate(vendor, ProductRunningFirmware)
		if err != nil || len(infos) == 0 {
			continue
		}
		dev, err := infos[0].Open()
		if err != nil {
			continue
		}
		return newHIDChannel(dev), nil
	}
	return nil, &DeviceUnreachableError{Operation: "open"}
}

func newHIDChannel(dev hidDevice) *HIDChannel {
	return &HIDChannel{dev: dev}
}

// Close releases the underlying HID device. Idempotent, matching
// SerialPort's close guarantee.
func (c *HIDChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.dev.Close()
	})
	return c.closeErr
}

// Query issues queryUSBHIDBootloader and queryBootloader, used by the
// device probe to classify a running firmware.
func (c *HIDChannel) Query(ctx context.Context) (usbhid bool, bootloader bool, err error) {
	resp, err := c.transact(ctx, "queryUSBHIDBootloader", hidproto.BuildQueryUSBHIDBootloader())
	if err != nil {
		return false, false, err
	}
	if usbhid, err = hidproto.ParseQueryResult(resp); err != nil {
		return false, false, &UnexpectedResponseError{Raw: resp}
	}

	resp, err = c.transact(ctx, "queryBootloader", hidproto.BuildQueryBootloader())
	if err != nil {
		return false, false, err
	}
	if bootloader, err = hidproto.ParseQueryResult(resp); err != nil {
		return false, false, &UnexpectedResponseError{Raw: resp}
	}

	return usbhid, bootloader, nil
}

// GetFirmwareVersion returns the running firmware's version string.
func (c *HIDChannel) GetFirmwareVersion(ctx context.Context) (string, error) {
	resp, err := c.transact(ctx, "getFirmwareVersion", hidproto.BuildGetFirmwareVersion())
	if err != nil {
		return "", err
	}
	version, err := hidproto.ParseASCIIField(resp)
	if err != nil {
		return "", &UnexpectedResponseError{Raw: resp}
	}
	return version, nil
}

// GetFirmwareDescription returns the running firmware's description string.
func (c *HIDChannel) GetFirmwareDescription(ctx context.Context) (string, error) {
	resp, err := c.transact(ctx, "getFirmwareDescription", hidproto.BuildGetFirmwareDescription())
	if err != nil {
		return "", err
	}
	desc, err := hidproto.ParseASCIIField(resp)
	if err != nil {
		return "", &UnexpectedResponseError{Raw: resp}
	}
	return desc, nil
}

// SwitchToBootloader asks the running firmware to re-enumerate as the
// serial bootloader.
func (c *HIDChannel) SwitchToBootloader(ctx context.Context) error {
	_, err := c.transact(ctx, "switchToBootloader", hidproto.BuildSwitchToBootloader())
	return err
}

// SendPacket sends one request packet and returns its response, both
// wrapped in the attempt loop.
func (c *HIDChannel) SendPacket(ctx context.Context, req []byte) ([]byte, error) {
	return c.transact(ctx, "sendPacket", req)
}

// SendMultiple sends a batch of request packets one after another,
// each as its own request/response exchange wrapped in the attempt
// loop, and returns the final response. The packets are not combined
// into one host-side transaction; the first packet that exhausts its
// attempts ends the batch with DeviceUnreachableError.
func (c *HIDChannel) SendMultiple(ctx context.Context, reqs [][]byte) ([]byte, error) {
	var last []byte
	for _, req := range reqs {
		resp, err := c.transact(ctx, "sendMultiple", req)
		if err != nil {
			return nil, err
		}
		last = resp
	}
	return last, nil
}

// transact wraps a single request/response exchange in the spec's
// attempt loop: up to hidMaxAttempts tries, jittered backoff of
// hidRetryBase/2 + hidRetryBase/2*rand() between them.
func (c *HIDChannel) transact(ctx context.Context, operation string, req []byte) ([]byte, error) {
	var resp []byte

	op := func() error {
		if _, err := c.dev.Write(req); err != nil {
			return err
		}
		buf := make([]byte, hidPacketSize)
		n, err := c.dev.ReadTimeout(buf, int(hidReadTimeout/time.Millisecond))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("transport: no HID response")
		}
		resp = buf[:n]
		return nil
	}

	b := backoff.WithMaxRetries(newJitterBackOff(), hidMaxAttempts-1)
	bctx := backoff.WithContext(b, ctx)

	if err := backoff.Retry(op, bctx); err != nil {
		return nil, &DeviceUnreachableError{Operation: operation}
	}
	return resp, nil
}

// jitterBackOff produces the spec's RETRY_BASE/2 + RETRY_BASE/2*rand()
// delay between attempts, implementing backoff.BackOff so it can drive
// backoff.Retry directly.
type jitterBackOff struct {
	rnd *rand.Rand
}

func newJitterBackOff() *jitterBackOff {
	return &jitterBackOff{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (j *jitterBackOff) NextBackOff() time.Duration {
	half := hidRetryBase / 2
	return half + time.Duration(float64(half)*j.rnd.Float64())
}

func (j *jitterBackOff) Reset() {}
