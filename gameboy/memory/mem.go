package memory

import (
	"fmt"
	"log/slog"

	"github.com/embertale/pocketcore/gameboy/addr"
	"github.com/embertale/pocketcore/gameboy/audio"
	"github.com/embertale/pocketcore/gameboy/bit"
	"github.com/embertale/pocketcore/gameboy/dma"
	"github.com/embertale/pocketcore/gameboy/interrupts"
	"github.com/embertale/pocketcore/gameboy/serial"
	"github.com/embertale/pocketcore/gameboy/speed"
	"github.com/embertale/pocketcore/gameboy/video"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers. It is
// the game's whole world: ROM/RAM via the cartridge's mapper, the
// always-present internal RAM, and every memory-mapped register -
// including the ones (VRAM/WRAM banking, CGB palettes, HDMA, speed
// switch) that only exist on CGB hardware.
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	regionMap [256]memRegion

	APU *audio.APU
	PPU *video.PPU

	interrupts *interrupts.Controller
	timer      Timer
	serial     SerialPort
	speed      speed.Controller

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	// CGB banking and palette state. vramBank1/wramBanks are only ever
	// touched on CGB hardware (isCGB), but are harmless, always-allocated
	// storage on DMG too - simpler than conditionally allocating them.
	isCGB      bool
	key0       uint8
	vbk        uint8
	vramBank1  [0x2000]byte
	svbk       uint8
	wramBanks  [8][0x1000]byte // index 0 unused (bank 0 is the fixed C000-CFFF region in m.memory)
	bootMapped bool

	bgPalRAM  [64]byte
	objPalRAM [64]byte
	bgPalIdx  uint8
	objPalIdx uint8
	opri      uint8

	oamDma  dma.OamDma
	hdma    dma.Hdma
	hdmaCtl dma.HdmaController

	// dotAccum carries the remainder of a cycle count that didn't divide
	// evenly by 2 across Tick calls, so halving the dot-clock rate in
	// double speed mode doesn't lose or gain a dot to rounding.
	dotAccum int
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		interrupts:    interrupts.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
		bootMapped:    true,
	}
	mmu.serial = serial.NewLogSink(func() { mmu.interrupts.Request(addr.SerialInterrupt) })
	mmu.PPU = video.NewPPU(mmu)
	initRegionMap(mmu)
	return mmu
}

// Tick advances every peripheral that shares the system clock by the
// given number of T-states: the timer (one T-state at a time, since
// its overflow-reload sequencing is counted in individual ticks), the
// serial port, HDMA/OAM DMA, and the PPU/APU.
//
// cycles is always CPU-clock T-states. In CGB double-speed mode the
// CPU clock runs at 2x - the timer, serial (internal clock), OAM DMA
// and the HDMA word-copy cadence are all driven directly off that
// clock, so they speed up along with it automatically since they're
// ticked the full cycles count. The PPU and APU are NOT CPU-clock
// peripherals on real hardware - they run off the fixed dot clock
// regardless of CPU speed - so they're ticked at half the rate here
// while double speed is active, with dotAccum absorbing the rounding
// remainder across calls.
func (m *MMU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		m.timer.Tick(m.interrupts)
	}
	if m.serial != nil {
		m.serial.Tick(cycles)
	}

	m.hdmaCtl.NotifyHBlank(m.PPU != nil && m.ppuInHBlank())
	m.hdma.TickGdma(m.Read, m.writeVRAMAbsolute)
	for i := 0; i < cycles; i++ {
		m.hdmaCtl.Advance(&m.hdma, false, m.Read, m.writeVRAMAbsoluteOne)
	}

	for i := 0; i < cycles; i++ {
		m.oamDma.Tick(m.Read, m.writeOAMByte)
	}

	realCycles := cycles
	if m.speed.Double() {
		total := m.dotAccum + cycles
		realCycles = total / 2
		m.dotAccum = total % 2
	} else {
		m.dotAccum = 0
	}

	m.PPU.Tick(realCycles)
	m.APU.Tick(realCycles)
}

// HDMAActive reports whether the CPU should be considered frozen this
// tick: the top-level scheduler halts instruction dispatch while an
// HDMA/GDMA block copy is actively underway.
func (m *MMU) HDMAActive() bool {
	return m.hdmaCtl.CurrentlyCopying(&m.hdma)
}

// SpeedSwitchPrepared reports whether KEY1's prepare latch is armed,
// consulted by the CPU when executing STOP.
func (m *MMU) SpeedSwitchPrepared() bool {
	return m.speed.Prepared()
}

// ToggleSpeed flips single/double speed and clears the prepare latch.
// Called by the CPU when STOP executes with the switch armed.
func (m *MMU) ToggleSpeed() {
	m.speed.Toggle()
}

func (m *MMU) ppuInHBlank() bool {
	return m.PPU.FrameBuffer() != nil && m.readStatMode() == 0
}

func (m *MMU) readStatMode() byte {
	return m.Read(addr.STAT) & 0x03
}

// writeVRAMAbsoluteOne copies a single byte into the currently selected
// VRAM bank at an absolute address, used by HdmaController.Advance
// which copies one word (2 bytes) per call via Hdma.copyWord.
func (m *MMU) writeVRAMAbsoluteOne(address uint16, value byte) {
	m.writeVRAMAbsolute(address, value)
}

// writeVRAMAbsolute writes to VRAM ignoring the DMA-transfer-during-HBlank
// access restrictions a CPU write would be subject to; HDMA/GDMA always
// target the bank currently selected by VBK.
func (m *MMU) writeVRAMAbsolute(address uint16, value byte) {
	if m.isCGB && m.vbk == 1 {
		m.vramBank1[address-0x8000] = value
		return
	}
	m.memory[address] = value
}

func (m *MMU) writeOAMByte(index int, value byte) {
	m.memory[0xFE00+uint16(index)] = value
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// serialOutputter is implemented by SerialPort backends that buffer
// human-readable output (currently only serial.LogSink) - used by
// headless runners that want to assert on what a test ROM printed.
type serialOutputter interface {
	Output() string
}

// SerialOutput returns everything the serial port has logged so far,
// or "" if the configured SerialPort doesn't buffer output.
func (m *MMU) SerialOutput() string {
	if o, ok := m.serial.(serialOutputter); ok {
		return o.Output()
	}
	return ""
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.isCGB = cart.IsCGB()

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount) // FIXME: add support for multicart
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.hasRTC, cart.ramBankCount)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	m.interrupts.Request(interrupt)
}

// CGBMode reports whether the loaded cartridge runs in CGB-native mode.
func (m *MMU) CGBMode() bool { return m.isCGB }

// SetCGBMode forces CGB-native mode on or off, overriding the cartridge
// header flag. Used to run a DMG-compatible ROM in CGB mode.
func (m *MMU) SetCGBMode(v bool) { m.isCGB = v }

// SetDoubleSpeed seeds the CPU speed controller, bypassing the normal
// STOP/KEY1 switch sequence. Used to start a CGB timing test ROM
// already running at double speed.
func (m *MMU) SetDoubleSpeed(v bool) { m.speed.SetDouble(v) }

// DoubleSpeed reports whether the CPU is currently running at double
// speed.
func (m *MMU) DoubleSpeed() bool { return m.speed.Double() }

// ReadVRAMBank reads VRAM ignoring the current VBK selection - used by
// the PPU's fetcher to pull CGB tile attributes from bank 1 regardless
// of what the CPU currently has mapped in.
func (m *MMU) ReadVRAMBank(bank int, address uint16) byte {
	if address < 0x8000 || address > 0x9FFF {
		return 0xFF
	}
	if bank == 1 {
		return m.vramBank1[address-0x8000]
	}
	return m.memory[address]
}

// BGPaletteColor/OBJPaletteColor resolve a CGB palette/color-index pair
// to its packed BGR555 value from palette RAM.
func (m *MMU) BGPaletteColor(palette, colorIndex uint8) uint16 {
	return readPaletteEntry(m.bgPalRAM[:], palette, colorIndex)
}

func (m *MMU) OBJPaletteColor(palette, colorIndex uint8) uint16 {
	return readPaletteEntry(m.objPalRAM[:], palette, colorIndex)
}

func readPaletteEntry(ram []byte, palette, colorIndex uint8) uint16 {
	idx := int(palette&0x07)*8 + int(colorIndex&0x03)*2
	return uint16(ram[idx]) | uint16(ram[idx+1])<<8
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		if m.isCGB && m.vbk == 1 {
			return m.vramBank1[address-0x8000]
		}
		return m.memory[address]
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		return m.readWRAM(address - 0x2000)
	case regionOAM:
		if m.oamDma.Active() {
			return 0xFF
		}
		return m.memory[address]
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

// readWRAM maps the switchable D000-DFFF half through SVBK; C000-CFFF
// is always the fixed bank stored directly in m.memory.
func (m *MMU) readWRAM(address uint16) byte {
	if address < 0xD000 {
		return m.memory[address]
	}
	return m.wramBanks[m.wramBankIndex()][address-0xD000]
}

func (m *MMU) writeWRAM(address uint16, value byte) {
	if address < 0xD000 {
		m.memory[address] = value
		return
	}
	m.wramBanks[m.wramBankIndex()][address-0xD000] = value
}

func (m *MMU) wramBankIndex() uint8 {
	bank := m.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.SB || address == addr.SC:
		return m.serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return m.timer.Read(address)
	case address >= 0xFF10 && address <= 0xFF3F:
		return m.APU.ReadRegister(address)
	case address == addr.IF:
		return m.interrupts.ReadIF()
	case address == addr.IE:
		return m.interrupts.IE
	case address == addr.VBK:
		return m.vbk | 0xFE
	case address == addr.SVBK:
		return m.svbk | 0xF8
	case address == addr.KEY0:
		return m.key0
	case address == addr.KEY1:
		return m.speed.Read()
	case address == addr.HDMA5:
		return m.hdma.ReadHDMA5()
	case address == addr.BCPS:
		return m.bgPalIdx | 0x40
	case address == addr.BCPD:
		return m.bgPalRAM[m.bgPalIdx&0x3F]
	case address == addr.OCPS:
		return m.objPalIdx | 0x40
	case address == addr.OCPD:
		return m.objPalRAM[m.objPalIdx&0x3F]
	case address == addr.OPRI:
		return m.opri | 0xFE
	case address >= 0xFF80:
		return m.memory[address]
	default:
		return m.memory[address]
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		if m.isCGB && m.vbk == 1 {
			m.vramBank1[address-0x8000] = value
		} else {
			m.memory[address] = value
		}
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.writeWRAM(address-0x2000, value)
	case regionOAM:
		if !m.oamDma.Active() {
			m.memory[address] = value
		}
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.writeJoypad(value)
	case address == addr.SB || address == addr.SC:
		m.serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		m.timer.Write(address, value)
	case address >= 0xFF10 && address <= 0xFF3F:
		m.APU.WriteRegister(address, value)
	case address == addr.IF:
		m.interrupts.WriteIF(value)
	case address == addr.IE:
		m.interrupts.WriteIE(value)
	case address == addr.DMA:
		m.memory[address] = value
		m.oamDma.Start(value)
	case address == addr.VBK:
		if m.isCGB {
			m.vbk = value & 0x01
		}
	case address == addr.SVBK:
		if m.isCGB {
			m.svbk = value & 0x07
		}
	case address == addr.KEY0:
		if m.bootMapped {
			m.key0 = value
		}
	case address == addr.KEY1:
		m.speed.Write(value)
	case address == addr.BootDisable:
		m.bootMapped = false
	case address == addr.HDMA1:
		m.hdma.WriteSourceHigh(value)
	case address == addr.HDMA2:
		m.hdma.WriteSourceLow(value)
	case address == addr.HDMA3:
		m.hdma.WriteDestHigh(value)
	case address == addr.HDMA4:
		m.hdma.WriteDestLow(value)
	case address == addr.HDMA5:
		m.hdma.WriteHDMA5(value)
	case address == addr.BCPS:
		m.bgPalIdx = value & 0xBF
	case address == addr.BCPD:
		m.bgPalRAM[m.bgPalIdx&0x3F] = value
		if m.bgPalIdx&0x80 != 0 {
			m.bgPalIdx = (m.bgPalIdx & 0xC0) | ((m.bgPalIdx + 1) & 0x3F)
		}
	case address == addr.OCPS:
		m.objPalIdx = value & 0xBF
	case address == addr.OCPD:
		m.objPalRAM[m.objPalIdx&0x3F] = value
		if m.objPalIdx&0x80 != 0 {
			m.objPalIdx = (m.objPalIdx & 0xC0) | ((m.objPalIdx + 1) & 0x3F)
		}
	case address == addr.OPRI:
		m.opri = value & 0x01
	case address >= 0xFF80:
		m.memory[address] = value
	default:
		m.memory[address] = value
	}
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to.
//
// The mapping (a selection bit selects its group when it is 0):
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Select, Start
//   - if both are clear, hw does an AND of both button sets
//   - if both are set, return 0x0F (high impedence state)
//
// This function is called whenever:
//   - there is a write to the P1 register (only set bits 4-5)
//   - a button is pressed or released (tracked separately)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		// no selection
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits)
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.interrupts.Request(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
