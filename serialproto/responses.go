package serialproto

import (
	"fmt"
	"regexp"
)

// Exported so callers that drive transport.SerialPort.AwaitResponse
// directly (package flasher) can pass these patterns through without
// this package performing any I/O itself.
var (
	ReadyPattern    = regexp.MustCompile(`Ready`)
	IdentityPattern = regexp.MustCompile(`BOOTLOADER version ([0-9]\.[0-9]{2}), Chip ID ([0-9A-Z]{16})`)
	ImageCRCPattern = regexp.MustCompile(`CRC: 0000([A-Z0-9]{4})`)
	UserDataPattern = regexp.MustCompile(`CRC: 00000000`)
	ResetPattern    = regexp.MustCompile(`r`)
)

// UnmatchedResponseError reports that a response buffer did not match
// the pattern a command expected.
type UnmatchedResponseError struct {
	Operation string
	Raw       []byte
}

func (e *UnmatchedResponseError) Error() string {
	return fmt.Sprintf("serialproto: unexpected response to %s: %q", e.Operation, e.Raw)
}

// MatchReady reports whether buf contains the device's "Ready" reply.
func MatchReady(buf []byte) bool {
	return ReadyPattern.Match(buf)
}

// BootloaderIdentity is the parsed form of the 'i' command's response.
type BootloaderIdentity struct {
	Version string
	ChipID  string
}

// ParseIdentity extracts the bootloader version and chip ID from the
// 'i' command's 54-byte response.
func ParseIdentity(buf []byte) (BootloaderIdentity, error) {
	m := IdentityPattern.FindSubmatch(buf)
	if m == nil {
		return BootloaderIdentity{}, &UnmatchedResponseError{Operation: "identity", Raw: buf}
	}
	return BootloaderIdentity{Version: string(m[1]), ChipID: string(m[2])}, nil
}

// ParseImageCRC extracts the four trailing hex digits from a 'v' or 'c'
// command's response.
func ParseImageCRC(buf []byte) (string, error) {
	m := ImageCRCPattern.FindSubmatch(buf)
	if m == nil {
		return "", &UnmatchedResponseError{Operation: "image-crc", Raw: buf}
	}
	return string(m[1]), nil
}

// MatchUserDataCleared reports whether an 'n' command's response shows
// an all-zero user-data CRC.
func MatchUserDataCleared(buf []byte) bool {
	return UserDataPattern.Match(buf)
}

// MatchResetEcho reports whether an 'r' command's response echoed 'r'.
func MatchResetEcho(buf []byte) bool {
	return ResetPattern.Match(buf)
}
