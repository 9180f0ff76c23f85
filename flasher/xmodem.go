package flasher

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/serialproto"
	"github.com/OpenAcousticDevices/AudioMoth-Flash-App/transport"
)

// ackPattern matches the single-byte ACK (0x06) the device sends after
// a block or an EOF; AwaitResponse needs a pattern even for single-byte
// replies. The reset echo 'r' is matched by serialproto.ResetPattern.
var ackPattern = regexp.MustCompile("\x06")

// Job describes one XMODEM-CRC flash request.
type Job struct {
	Image         []byte
	Destructive   bool
	ClearUserData bool

	// ExpectedCRC, if non-empty, is the four-uppercase-hex-digit CRC the
	// device must report back for the job to succeed. Left empty for a
	// user-supplied image whose CRC is unknown in advance; the received
	// value is then only informational.
	ExpectedCRC string
}

// Result is what a completed job reports back to its caller.
type Result struct {
	ReceivedCRC string
}

// XMODEMFlasher drives the serial XMODEM-CRC protocol end to end,
// including the recursive bootloader-update sub-flash.
type XMODEMFlasher struct {
	portName     string
	updaterImage []byte
	cfg          Config
	session      *Session
}

// NewXMODEMFlasher builds a flasher bound to portName. updaterImage, if
// non-nil, is the built-in bootloader-update image used when the
// device reports an obsolete bootloader version; pass nil to disable
// bootloader updates, as Run does for the nested sub-flash so the
// update can never recurse past one level.
func NewXMODEMFlasher(portName string, updaterImage []byte, opts ...Option) *XMODEMFlasher {
	return &XMODEMFlasher{
		portName:     portName,
		updaterImage: updaterImage,
		cfg:          NewConfig(opts...),
		session:      NewSession(),
	}
}

// Run executes job to completion: open the port, ready-handshake, check
// the bootloader version (recursing through an updater sub-flash if
// it's obsolete), optionally clear user data, send every block, verify
// the device's reported CRC, and wait for it to reset out of the
// bootloader. It returns once the device has disappeared from the port
// list or a terminal error occurs.
func (f *XMODEMFlasher) Run(ctx context.Context, job Job) (Result, error) {
	ctx = f.session.Begin(ctx)
	defer f.session.End()

	// At most one bootloader-update pass: the gate is re-checked after
	// the nested sub-flash resets the device, and a device that still
	// reports an obsolete version at that point is treated as stuck
	// rather than looped on indefinitely.
	for attempt := 0; attempt < 2; attempt++ {
		port, err := f.openPort(ctx)
		if err != nil {
			return f.abort(err)
		}
		f.session.SetTransport(port)

		version, err := f.readyAndIdentify(ctx, port, job.Destructive)
		if err != nil {
			port.Close()
			return f.abort(err)
		}

		if bootloaderVersionsNeedingUpdate[version] {
			if attempt > 0 {
				port.Close()
				break
			}
			if err := f.runBootloaderUpdate(ctx, port, version); err != nil {
				return f.abort(err)
			}
			continue
		}

		result, err := f.flashOverOpenPort(ctx, port, job)
		if err != nil {
			return f.abort(err)
		}
		f.cfg.emit(Progress{Kind: EventCompleted})
		return result, nil
	}

	return f.abort(fmt.Errorf("flasher: bootloader update did not resolve after retry"))
}

// runBootloaderUpdate performs the updater sub-flash and closes the
// port it was holding. On success the caller loops back to reopen the
// port and re-check the version, matching the state diagram's
// UpdatingBootloader -> Resetting -> OpeningPort cycle.
func (f *XMODEMFlasher) runBootloaderUpdate(ctx context.Context, port *transport.SerialPort, version string) error {
	if f.updaterImage == nil {
		port.Close()
		return fmt.Errorf("flasher: bootloader update required (version %s) but no updater image is configured", version)
	}
	if f.cfg.Confirm != nil && !f.cfg.Confirm("The bootloader on this AudioMoth is out of date and must be updated before flashing. Update it now?") {
		port.Close()
		return &UpdateDeclinedError{}
	}

	f.cfg.emit(Progress{Kind: EventCheckingBootloader})
	f.cfg.logInfo("obsolete bootloader, running updater sub-flash", "version", version)

	port.Close()
	f.session.SetTransport(nil)

	nested := &XMODEMFlasher{portName: f.portName, cfg: f.cfg, session: NewSession()}
	updaterJob := Job{Image: f.updaterImage, Destructive: false, ExpectedCRC: updaterExpectedCRC}
	if _, err := nested.Run(ctx, updaterJob); err != nil {
		return fmt.Errorf("flasher: bootloader update failed: %w", err)
	}
	return nil
}

func (f *XMODEMFlasher) abort(err error) (Result, error) {
	f.cfg.emit(Progress{Kind: EventAborted, Reason: err.Error()})
	f.cfg.logError("flash aborted", "error", err)
	return Result{}, err
}

// openPort retries opening the serial port up to maxPortOpenAttempts
// times with an exponential backoff, surfacing PortUnavailableError on
// exhaustion.
func (f *XMODEMFlasher) openPort(ctx context.Context) (*transport.SerialPort, error) {
	for attempt := 0; attempt < maxPortOpenAttempts; attempt++ {
		f.cfg.emit(Progress{Kind: EventOpening, Attempt: attempt + 1})
		port, err := transport.OpenSerialPort(f.portName)
		if err == nil {
			return port, nil
		}
		if attempt == maxPortOpenAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(portOpenBackoffUnit, attempt)):
		}
	}
	return nil, &transport.PortUnavailableError{Port: f.portName}
}

// readyAndIdentify runs the write-mode ready handshake and then reads
// the bootloader identity string, returning its version field.
func (f *XMODEMFlasher) readyAndIdentify(ctx context.Context, port *transport.SerialPort, destructive bool) (string, error) {
	if err := f.readyHandshake(ctx, port, writeModeCmd(destructive)); err != nil {
		return "", err
	}

	if err := port.Write([]byte{serialproto.CmdIdentity}); err != nil {
		return "", err
	}
	raw, err := port.AwaitResponse(ctx, serialproto.IdentityResponseLen, serialproto.IdentityPattern, identityResponseWait)
	if err != nil {
		return "", err
	}
	identity, err := serialproto.ParseIdentity(raw)
	if err != nil {
		return "", err
	}
	f.cfg.logDebug("bootloader identity", "version", identity.Version, "chipID", identity.ChipID)
	return identity.Version, nil
}

// readyHandshake sends cmd and retries until an 11-byte "Ready"
// response arrives or the retry budget is exhausted.
func (f *XMODEMFlasher) readyHandshake(ctx context.Context, port *transport.SerialPort, cmd byte) error {
	for attempt := 0; attempt < maxReadyAttempts; attempt++ {
		f.cfg.emit(Progress{Kind: EventReadyCheck, ReadyAttempt: attempt + 1})
		if err := port.Write([]byte{cmd}); err != nil {
			return err
		}
		_, err := port.AwaitResponse(ctx, serialproto.ReadyResponseLen, serialproto.ReadyPattern, readyResponseWait)
		if err == nil {
			return nil
		}
		if attempt == maxReadyAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(readyBackoffUnit, attempt)):
		}
	}
	return &ReadyTimeoutError{}
}

func writeModeCmd(destructive bool) byte {
	if destructive {
		return serialproto.CmdDestructiveWrite
	}
	return serialproto.CmdNonDestructiveWrite
}

// flashOverOpenPort runs the remainder of the state machine on an
// already-ready port: the optional clear-user-data sub-protocol, block
// transmission, EOF/CRC verification, and reset. The port is always
// closed before this returns, on every exit path.
func (f *XMODEMFlasher) flashOverOpenPort(ctx context.Context, port *transport.SerialPort, job Job) (Result, error) {
	if job.ClearUserData {
		if err := f.clearUserData(ctx, port); err != nil {
			port.Close()
			return Result{}, err
		}
	}

	f.cfg.emit(Progress{Kind: EventFlashing, Total: numBlocks(len(job.Image)), Current: 0})
	if err := f.sendBlocks(ctx, port, job.Image); err != nil {
		port.Close()
		return Result{}, err
	}

	receivedCRC, err := f.confirmEOFAndCRC(ctx, port, job)
	if err != nil {
		port.Close()
		return Result{}, err
	}

	if err := f.resetAndAwaitDisappearance(ctx, port); err != nil {
		return Result{}, err
	}

	return Result{ReceivedCRC: receivedCRC}, nil
}

// clearUserData runs the clear-user-data sub-protocol: a 't'
// ready-handshake, 16 synthetic all-zero blocks, EOF, then polling for
// a zeroed user-data CRC. It does not close the port on success; the
// caller proceeds directly to sending the real image over the same
// connection, matching the single ReadyCheck state the device passes
// through before branching into this sub-protocol.
func (f *XMODEMFlasher) clearUserData(ctx context.Context, port *transport.SerialPort) error {
	if err := f.readyHandshake(ctx, port, serialproto.CmdClearUserData); err != nil {
		return &UserDataClearFailedError{}
	}

	for n := 1; n <= serialproto.ClearUserDataBlockCount; n++ {
		frame := serialproto.BuildBlankUserDataFrame(byte(n))
		if err := f.sendFrameAndAwaitACK(ctx, port, frame); err != nil {
			return &UserDataClearFailedError{}
		}
	}

	if err := port.Write([]byte{serialproto.EOF}); err != nil {
		return &UserDataClearFailedError{}
	}
	if _, err := port.AwaitResponse(ctx, 1, ackPattern, ackTimeout); err != nil {
		return &UserDataClearFailedError{}
	}

	for attempt := 0; attempt < maxClearUserDataAttempts; attempt++ {
		if err := port.Write([]byte{serialproto.CmdReadUserDataCRC}); err != nil {
			return &UserDataClearFailedError{}
		}
		if _, err := port.AwaitResponse(ctx, serialproto.CRCResponseLen, serialproto.UserDataPattern, crcResponseWait); err == nil {
			return nil
		}
		if attempt == maxClearUserDataAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(clearUserDataBackoffUnit, attempt)):
		}
	}
	return &UserDataClearFailedError{}
}

// sendBlocks transmits every 128-byte block of image using the sliding
// (lower, upper) window: a late ACK can still advance lower past a
// block that was separately re-sent, so both ends converge on the same
// next-block index without the sender mis-numbering anything.
func (f *XMODEMFlasher) sendBlocks(ctx context.Context, port *transport.SerialPort, image []byte) error {
	total := numBlocks(len(image))
	lower, upper, numRepeats := 1, 1, 0

	for lower <= total {
		window := upper - lower + 1
		if window < 1 {
			window = 1
		}
		cur := lower + numRepeats%window

		frame, err := serialproto.BuildBlockFrame(byte(cur), blockPayload(image, cur))
		if err != nil {
			return err
		}

		ackErr := f.sendFrameAndAwaitACK(ctx, port, frame)
		if ackErr == nil {
			numRepeats = 0
			lower = cur + 1
			upper = lower
			f.cfg.emit(Progress{Kind: EventFlashing, Total: total, Current: lower - 1})
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, closed := ackErr.(*transport.PortClosedError); closed {
			return ackErr
		}

		if _, isTimeout := ackErr.(*transport.TimeoutError); isTimeout {
			// Widen the window rather than clamping one short of total:
			// a window that can reach the last block keeps the modulo
			// below from dividing by zero once lower reaches total.
			if upper < total {
				upper++
			}
		} else if err := port.Flush(); err != nil {
			return err
		}

		numRepeats++
		if numRepeats >= maxBlockRepeats {
			return &FlashStalledError{BlockNum: cur}
		}
	}
	return nil
}

func (f *XMODEMFlasher) sendFrameAndAwaitACK(ctx context.Context, port *transport.SerialPort, frame []byte) error {
	if err := port.Write(frame); err != nil {
		return err
	}
	_, err := port.AwaitResponse(ctx, 1, ackPattern, ackTimeout)
	return err
}

func numBlocks(n int) int {
	if n == 0 {
		return 0
	}
	return (n + serialproto.BlockSize - 1) / serialproto.BlockSize
}

func blockPayload(image []byte, blockNum int) []byte {
	start := (blockNum - 1) * serialproto.BlockSize
	if start > len(image) {
		start = len(image)
	}
	end := start + serialproto.BlockSize
	if end > len(image) {
		end = len(image)
	}
	return image[start:end]
}

// confirmEOFAndCRC sends EOF, awaits its ACK, then reads back the
// device's image CRC and compares it to job.ExpectedCRC when one was
// supplied.
func (f *XMODEMFlasher) confirmEOFAndCRC(ctx context.Context, port *transport.SerialPort, job Job) (string, error) {
	if err := port.Write([]byte{serialproto.EOF}); err != nil {
		return "", err
	}
	if _, err := port.AwaitResponse(ctx, 1, ackPattern, ackTimeout); err != nil {
		return "", err
	}

	cmd := byte(serialproto.CmdReadFirmwareCRC)
	if job.Destructive {
		cmd = serialproto.CmdReadImageCRC
	}
	if err := port.Write([]byte{cmd}); err != nil {
		return "", err
	}
	raw, err := port.AwaitResponse(ctx, serialproto.CRCResponseLen, serialproto.ImageCRCPattern, crcResponseWait)
	if err != nil {
		if _, isTimeout := err.(*transport.TimeoutError); isTimeout {
			return "", &CRCTimeoutError{}
		}
		return "", err
	}
	receivedCRC, err := serialproto.ParseImageCRC(raw)
	if err != nil {
		return "", err
	}

	if job.ExpectedCRC != "" && receivedCRC != job.ExpectedCRC {
		return "", &CRCMismatchError{Expected: job.ExpectedCRC, Actual: receivedCRC}
	}
	return receivedCRC, nil
}

// resetAndAwaitDisappearance sends the reset command, closes the port
// once its echo arrives (or on error), then polls for the bootloader
// port to vanish from the OS port list.
func (f *XMODEMFlasher) resetAndAwaitDisappearance(ctx context.Context, port *transport.SerialPort) error {
	writeErr := port.Write([]byte{serialproto.CmdReset})
	var echoErr error
	if writeErr == nil {
		_, echoErr = port.AwaitResponse(ctx, 1, serialproto.ResetPattern, ackTimeout)
	}
	port.Close()
	if writeErr != nil {
		return writeErr
	}
	if echoErr != nil {
		return echoErr
	}

	f.cfg.emit(Progress{Kind: EventRestarting, Timeout: resetPollTimeout})
	pollStart := time.Now()
	if err := transport.PollForPortDisappearance(ctx, resetPollTimeout, resetPollStep); err != nil {
		return err
	}
	f.cfg.emit(Progress{Kind: EventRestart, Elapsed: time.Since(pollStart)})
	return nil
}
