package flasher

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/crc"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/hidproto"
)

// HIDSender is the subset of transport.HIDChannel's behavior the
// USB-HID SRAM flasher depends on, kept narrow so tests can supply an
// in-memory fake instead of a real device.
type HIDSender interface {
	SendPacket(ctx context.Context, req []byte) ([]byte, error)
	SendMultiple(ctx context.Context, reqs [][]byte) ([]byte, error)
	Close() error
}

// HIDOpener opens a fresh HID channel for one USB-HID flash job.
type HIDOpener func() (HIDSender, error)

// USBHIDJob describes one USB-HID SRAM flash request. There is no
// Destructive field: HID staging can never overwrite the bootloader
// region, so the dispatcher never selects this flasher for a
// destructive job in the first place.
type USBHIDJob struct {
	Image         []byte
	ClearUserData bool

	// ExpectedCRC, if non-nil, is the image CRC the device must report
	// back after SRAM staging. Left nil to have the flasher compute it
	// locally from Image via crc.ImageCRC, the caller's-binary case §4.5
	// describes.
	ExpectedCRC *uint16
}

// USBHIDResult is what a completed USB-HID job reports back.
type USBHIDResult struct {
	ReceivedCRC uint16
}

// USBHIDFlasher drives the USB-HID SRAM staging protocol: INIT_SRAM,
// batched SRAM packet streaming, CRC verification, optional user-data
// clear, and the commit-and-reboot command. No serial port is ever
// involved.
type USBHIDFlasher struct {
	open    HIDOpener
	cfg     Config
	session *Session
	goos    string

	// rebootWait is usbhidRebootWait in production; tests shrink it so
	// the best-effort post-FLASH_FW wait doesn't make the suite slow.
	rebootWait time.Duration
}

// NewUSBHIDFlasher builds a flasher that opens a fresh HID channel via
// open for each job.
func NewUSBHIDFlasher(open HIDOpener, opts ...Option) *USBHIDFlasher {
	return &USBHIDFlasher{
		open:       open,
		cfg:        NewConfig(opts...),
		session:    NewSession(),
		goos:       runtime.GOOS,
		rebootWait: usbhidRebootWait,
	}
}

// Run executes job to completion: open the HID channel, stage the
// image into SRAM, verify its CRC, optionally clear user data, commit
// SRAM to flash, and wait out the device's reboot.
func (f *USBHIDFlasher) Run(ctx context.Context, job USBHIDJob) (USBHIDResult, error) {
	ctx = f.session.Begin(ctx)
	defer f.session.End()

	f.cfg.emit(Progress{Kind: EventOpening, Attempt: 1})
	dev, err := f.open()
	if err != nil {
		return f.abort(err)
	}
	f.session.SetTransport(dev)

	if err := f.initSRAM(ctx, dev); err != nil {
		dev.Close()
		return f.abort(err)
	}

	total := len(job.Image)
	f.cfg.emit(Progress{Kind: EventFlashing, Total: total, Current: 0})
	if err := f.streamToSRAM(ctx, dev, job.Image); err != nil {
		dev.Close()
		return f.abort(err)
	}

	expected := job.ExpectedCRC
	if expected == nil {
		computed := crc.ImageCRC(job.Image)
		expected = &computed
	}

	if err := f.requestSRAMCRC(ctx, dev); err != nil {
		dev.Close()
		return f.abort(err)
	}

	received, err := f.pollForCRC(ctx, dev)
	if err != nil {
		dev.Close()
		return f.abort(err)
	}
	f.cfg.logDebug("usb-hid sram crc", "expected", fmt.Sprintf("%04X", *expected), "received", fmt.Sprintf("%04X", received))

	if received != *expected {
		dev.Close()
		return f.abort(&CRCMismatchError{
			Expected: fmt.Sprintf("%04X", *expected),
			Actual:   fmt.Sprintf("%04X", received),
		})
	}

	if job.ClearUserData {
		if err := f.clearUserData(ctx, dev); err != nil {
			dev.Close()
			return f.abort(err)
		}
	}

	if err := f.flashFW(ctx, dev); err != nil {
		dev.Close()
		return f.abort(err)
	}
	dev.Close()

	f.cfg.emit(Progress{Kind: EventRestarting, Timeout: f.rebootWait})
	select {
	case <-ctx.Done():
		return f.abort(ctx.Err())
	case <-time.After(f.rebootWait):
	}
	f.cfg.emit(Progress{Kind: EventRestart, Elapsed: f.rebootWait})
	f.cfg.emit(Progress{Kind: EventCompleted})

	return USBHIDResult{ReceivedCRC: received}, nil
}

func (f *USBHIDFlasher) abort(err error) (USBHIDResult, error) {
	f.cfg.emit(Progress{Kind: EventAborted, Reason: err.Error()})
	f.cfg.logError("usb-hid flash aborted", "error", err)
	return USBHIDResult{}, err
}

func (f *USBHIDFlasher) initSRAM(ctx context.Context, dev HIDSender) error {
	resp, err := dev.SendPacket(ctx, hidproto.BuildInitSRAM())
	if err != nil {
		return err
	}
	if !hidproto.IsSuccess(resp) {
		return &HIDCommandFailedError{Command: "INIT_SRAM"}
	}
	return nil
}

// streamToSRAM sends the image in batches of hidproto.BatchSize(goos)
// SET_SRAM_FW_PACKET requests, each batch issued as one sendMultiple
// transaction, sleeping usbhidBatchSleep between batches.
func (f *USBHIDFlasher) streamToSRAM(ctx context.Context, dev HIDSender, image []byte) error {
	batchSize := hidproto.BatchSize(f.goos)
	total := len(image)
	offset := 0

	for offset < total {
		batch := make([][]byte, 0, batchSize)
		for len(batch) < batchSize && offset < total {
			end := offset + hidproto.MaxPacketPayload
			if end > total {
				end = total
			}
			pkt, err := hidproto.BuildSRAMFWPacket(uint32(offset), image[offset:end])
			if err != nil {
				return err
			}
			batch = append(batch, pkt)
			offset = end
		}

		resp, err := dev.SendMultiple(ctx, batch)
		if err != nil {
			return err
		}
		if !hidproto.IsSuccess(resp) {
			return &HIDCommandFailedError{Command: "SET_SRAM_FW_PACKET"}
		}

		f.cfg.emit(Progress{Kind: EventFlashing, Total: total, Current: offset})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(usbhidBatchSleep):
		}
	}
	return nil
}

func (f *USBHIDFlasher) requestSRAMCRC(ctx context.Context, dev HIDSender) error {
	resp, err := dev.SendPacket(ctx, hidproto.BuildCalcSRAMCRC())
	if err != nil {
		return err
	}
	if !hidproto.IsSuccess(resp) {
		return &HIDCommandFailedError{Command: "CALC_SRAM_CRC"}
	}
	return nil
}

// pollForCRC polls GET_FW_CRC up to usbhidCRCPollAttempts times,
// usbhidCRCPollInterval apart, accepting the first successful response.
func (f *USBHIDFlasher) pollForCRC(ctx context.Context, dev HIDSender) (uint16, error) {
	for attempt := 0; attempt < usbhidCRCPollAttempts; attempt++ {
		resp, err := dev.SendPacket(ctx, hidproto.BuildGetFWCRC())
		if err == nil && hidproto.IsSuccess(resp) {
			return hidproto.ParseFWCRC(resp)
		}
		if attempt == usbhidCRCPollAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(usbhidCRCPollInterval):
		}
	}
	return 0, &CRCTimeoutError{}
}

func (f *USBHIDFlasher) clearUserData(ctx context.Context, dev HIDSender) error {
	resp, err := dev.SendPacket(ctx, hidproto.BuildClearUserData())
	if err != nil {
		return err
	}
	if !hidproto.IsSuccess(resp) {
		return &UserDataClearFailedError{}
	}
	return nil
}

func (f *USBHIDFlasher) flashFW(ctx context.Context, dev HIDSender) error {
	resp, err := dev.SendPacket(ctx, hidproto.BuildFlashFW())
	if err != nil {
		return err
	}
	if !hidproto.IsSuccess(resp) {
		return &HIDCommandFailedError{Command: "FLASH_FW"}
	}
	return nil
}
