// Package config exposes the boot-time options a pocketcore host can
// set before handing a cartridge to the emulator: BIOS overlay path,
// a CGB-mode force flag for ROMs that support both but default to DMG,
// a headless frame budget, and a double-speed-at-boot test hook used
// by CGB timing test ROMs that expect to start already in double speed.
package config

// Boot holds the boot-time options passed to gameboy.NewWithConfig
// (NewWithFile passes Default()).
type Boot struct {
	// BIOSPath names a boot ROM image. NewWithConfig does not read it:
	// no boot ROM is loaded and the CPU starts at the cartridge entry
	// point (0x0100).
	BIOSPath string

	// ForceCGB runs a cartridge that declares both DMG and CGB support
	// in CGB mode even though it isn't CGB-only.
	ForceCGB bool

	// Frames records the host's headless frame budget. NewWithConfig
	// does not read it; the frame cap of a run is the maxFrames passed
	// to Emulator.ConfigureCompletionDetection.
	Frames int

	// StartInDoubleSpeed seeds the speed controller already armed in
	// double-speed mode, a hook used by a handful of CGB timing test
	// ROMs that assume double speed from their very first instruction
	// rather than switching to it themselves.
	StartInDoubleSpeed bool
}

// Default returns the boot configuration used when no flags are given:
// no BIOS overlay, DMG/CGB mode taken from the cartridge header,
// single speed, unbounded frame count.
func Default() Boot {
	return Boot{}
}
