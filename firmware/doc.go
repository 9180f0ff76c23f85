// Package firmware loads and validates the opaque firmware images the
// flashers transfer to a device: size gates, the reset-stack-pointer
// validity heuristic, and the release-filename guard that protects a
// destructive flash from silently wiping a bootloader a user didn't
// mean to replace. Images arrive either as raw binaries (Load) or as
// Intel HEX files flattened against the erased-flash fill value
// (LoadHex).
package firmware
