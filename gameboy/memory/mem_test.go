package memory

import "testing"

func newTestMMU() *MMU {
	rom := make([]uint8, 0x8000)
	cart, err := NewCartridgeWithData(rom)
	if err != nil {
		panic(err)
	}
	return NewWithCartridge(cart)
}

func TestMMU_CGBModeOverride(t *testing.T) {
	m := newTestMMU()
	if m.CGBMode() {
		t.Fatalf("CGBMode() = true for a plain DMG cartridge, want false")
	}

	m.SetCGBMode(true)
	if !m.CGBMode() {
		t.Fatalf("SetCGBMode(true) did not stick: CGBMode() = false")
	}
}

func TestMMU_SetDoubleSpeed(t *testing.T) {
	m := newTestMMU()
	m.SetDoubleSpeed(true)

	if key1 := m.Read(0xFF4D); key1&0x80 == 0 {
		t.Fatalf("Read(KEY1) = 0x%02X after SetDoubleSpeed(true), want bit 7 set", key1)
	}
}

// TestMMU_DoubleSpeed_HalvesPPURate checks the actual rate divergence
// double speed is supposed to cause: the PPU runs at a fixed real-time
// dot rate, so the same CPU T-state count must advance LY half as far
// in double speed as it does at normal speed.
func TestMMU_DoubleSpeed_HalvesPPURate(t *testing.T) {
	const scanline = 456

	single := newTestMMU()
	single.Write(0xFF40, 0x80) // LCDC: LCD on
	single.Tick(scanline * 4)

	double := newTestMMU()
	double.Write(0xFF40, 0x80)
	double.SetDoubleSpeed(true)
	double.Tick(scanline * 4)

	gotSingle := single.Read(0xFF44) // LY
	gotDouble := double.Read(0xFF44)
	if gotDouble != gotSingle/2 {
		t.Fatalf("LY after %d T-states: single-speed = %d, double-speed = %d, want double-speed = single/2", scanline*4, gotSingle, gotDouble)
	}
}

// TestMMU_DoubleSpeed_TimerRunsAtFullRate checks that the timer, unlike
// the PPU, runs at CPU-clock rate and so is NOT halved by double speed:
// the same T-state count must advance DIV identically in both modes.
func TestMMU_DoubleSpeed_TimerRunsAtFullRate(t *testing.T) {
	single := newTestMMU()
	single.Tick(1024)

	double := newTestMMU()
	double.SetDoubleSpeed(true)
	double.Tick(1024)

	gotSingle := single.Read(0xFF04) // DIV
	gotDouble := double.Read(0xFF04)
	if gotDouble != gotSingle {
		t.Fatalf("DIV after 1024 T-states: single-speed = %d, double-speed = %d, want equal", gotSingle, gotDouble)
	}
}

// TestMMU_DoubleSpeed_DotAccumCarriesRemainder checks that halving an
// odd cycle count across successive Tick calls doesn't lose or gain a
// dot to rounding - two Tick(1) calls in double speed must advance the
// PPU exactly as far as one Tick(2) call would.
func TestMMU_DoubleSpeed_DotAccumCarriesRemainder(t *testing.T) {
	const scanline = 456

	split := newTestMMU()
	split.Write(0xFF40, 0x80)
	split.SetDoubleSpeed(true)
	for i := 0; i < scanline*4; i++ {
		split.Tick(1)
	}

	whole := newTestMMU()
	whole.Write(0xFF40, 0x80)
	whole.SetDoubleSpeed(true)
	whole.Tick(scanline * 4)

	if got, want := split.Read(0xFF44), whole.Read(0xFF44); got != want {
		t.Fatalf("LY split across Tick(1) calls = %d, want %d (same as one Tick(%d) call)", got, want, scanline*4)
	}
}

func TestMMU_SerialOutput(t *testing.T) {
	m := newTestMMU()

	write := func(b byte) {
		m.Write(0xFF01, b) // SB
		m.Write(0xFF02, 0x81) // SC: start transfer, internal clock
	}

	for _, b := range []byte("Passed\n") {
		write(b)
	}

	if got, want := m.SerialOutput(), "Passed"; got != want {
		t.Fatalf("SerialOutput() = %q, want %q", got, want)
	}
}

func TestMMU_SerialOutput_PartialLine(t *testing.T) {
	m := newTestMMU()

	for _, b := range []byte("no newline yet") {
		m.Write(0xFF01, b)
		m.Write(0xFF02, 0x81)
	}

	if got, want := m.SerialOutput(), "no newline yet"; got != want {
		t.Fatalf("SerialOutput() = %q, want %q", got, want)
	}
}

func TestMMU_VRAMBankSwitch(t *testing.T) {
	m := newTestMMU()
	m.SetCGBMode(true)

	m.Write(0xFF4F, 0x00) // VBK = bank 0
	m.Write(0x8000, 0xAA)

	m.Write(0xFF4F, 0x01) // VBK = bank 1
	m.Write(0x8000, 0xBB)

	if got := m.ReadVRAMBank(0, 0x8000); got != 0xAA {
		t.Fatalf("ReadVRAMBank(0, 0x8000) = 0x%02X, want 0xAA", got)
	}
	if got := m.ReadVRAMBank(1, 0x8000); got != 0xBB {
		t.Fatalf("ReadVRAMBank(1, 0x8000) = 0x%02X, want 0xBB", got)
	}
}

func TestMMU_WRAMBankSwitch(t *testing.T) {
	m := newTestMMU()
	m.SetCGBMode(true)

	m.Write(0xFF70, 0x01) // SVBK = bank 1
	m.Write(0xD000, 0x11)

	m.Write(0xFF70, 0x02) // SVBK = bank 2
	m.Write(0xD000, 0x22)

	m.Write(0xFF70, 0x01)
	if got := m.Read(0xD000); got != 0x11 {
		t.Fatalf("Read(0xD000) on WRAM bank 1 = 0x%02X, want 0x11", got)
	}

	m.Write(0xFF70, 0x02)
	if got := m.Read(0xD000); got != 0x22 {
		t.Fatalf("Read(0xD000) on WRAM bank 2 = 0x%02X, want 0x22", got)
	}
}

func TestMMU_BGPaletteRoundTrip(t *testing.T) {
	m := newTestMMU()
	m.SetCGBMode(true)

	m.Write(0xFF68, 0x80) // BCPS: index 0, auto-increment
	m.Write(0xFF69, 0xFF) // low byte
	m.Write(0xFF69, 0x7F) // high byte -> color 0x7FFF (white, BGR555)

	if got, want := m.BGPaletteColor(0, 0), uint16(0x7FFF); got != want {
		t.Fatalf("BGPaletteColor(0, 0) = 0x%04X, want 0x%04X", got, want)
	}
}
