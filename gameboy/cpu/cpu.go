// Package cpu implements the Sharp SM83 instruction set: register file,
// ALU operations, the opcode/CB-opcode dispatch tables and interrupt
// servicing.
package cpu

import "github.com/embertale/pocketcore/gameboy/addr"

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// MemoryBus is everything the CPU needs from the rest of the system: byte
// access, a way to advance the peripherals it doesn't own directly
// (timer, PPU, DMA engines) by a T-state count, whether an HDMA block
// copy currently has exclusive use of the bus, and the CGB speed-switch
// controls STOP operates on.
type MemoryBus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(tstates int)
	HDMAActive() bool
	SpeedSwitchPrepared() bool
	ToggleSpeed()
}

// CPU is the main struct holding Sharp SM83 state: the 8 single-byte
// registers (paired as AF/BC/DE/HL), SP, PC, and the flags the ALU
// helpers in instructions.go operate on directly.
type CPU struct {
	bus MemoryBus

	a, f uint8
	b, c uint8
	d, e uint8
	h, l uint8
	sp   uint16
	pc   uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool

	// speedSwitchStall counts down the M-cycles STOP stalls the CPU for
	// after toggling speed with the KEY1 prepare latch armed.
	speedSwitchStall int

	cycles uint64
}

// New returns a CPU ready to run from the cartridge entry point, as if
// the boot ROM had just handed off control.
func New(bus MemoryBus) *CPU {
	return &CPU{
		bus: bus,
		a:   0x01, f: 0xB0,
		b: 0x00, c: 0x13,
		d: 0x00, e: 0xD8,
		h: 0x01, l: 0x4D,
		sp: 0xFFFE,
		pc: 0x0100,
	}
}

func (c *CPU) PC() uint16 { return c.pc }
func (c *CPU) SP() uint16 { return c.sp }
func (c *CPU) Halted() bool { return c.halted }
func (c *CPU) Stopped() bool { return c.stopped }
func (c *CPU) ClearStopped() { c.stopped = false }
func (c *CPU) IME() bool { return c.interruptsEnabled }

func (c *CPU) getBC() uint16 { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) setBC(v uint16) { c.b = uint8(v >> 8); c.c = uint8(v) }
func (c *CPU) getDE() uint16 { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) setDE(v uint16) { c.d = uint8(v >> 8); c.e = uint8(v) }
func (c *CPU) getHL() uint16 { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) setHL(v uint16) { c.h = uint8(v >> 8); c.l = uint8(v) }
func (c *CPU) getAF() uint16 { return uint16(c.a)<<8 | uint16(c.f) }

// setAF forces the low nibble of F to zero: the bottom 4 flag-register
// bits never exist in hardware and POP AF must not let stack garbage
// set them.
func (c *CPU) setAF(v uint16) { c.a = uint8(v >> 8); c.f = uint8(v) & 0xF0 }

func (c *CPU) setFlag(flag Flag)   { c.f |= uint8(flag) }
func (c *CPU) resetFlag(flag Flag) { c.f &^= uint8(flag) }
func (c *CPU) isSetFlag(flag Flag) bool { return c.f&uint8(flag) != 0 }

func (c *CPU) setFlagToCondition(flag Flag, cond bool) {
	if cond {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

func (c *CPU) readImmediate() uint8 {
	v := c.bus.Read(c.pc)
	c.pc++
	return v
}

func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return uint16(high)<<8 | uint16(low)
}

func (c *CPU) peekImmediate() uint8     { return c.bus.Read(c.pc) }
func (c *CPU) peekImmediateWord() uint16 {
	low := c.bus.Read(c.pc)
	high := c.bus.Read(c.pc + 1)
	return uint16(high)<<8 | uint16(low)
}

// handleInterrupts checks for a pending, enabled interrupt and services
// it if IME is set. It always reports whether *some* interrupt source is
// pending (IE & IF != 0), since that is also what wakes the CPU from
// HALT regardless of IME.
func (c *CPU) handleInterrupts() bool {
	ie := c.bus.Read(addr.IE)
	iflags := c.bus.Read(addr.IF) & 0x1F
	pending := ie & iflags & 0x1F
	if pending == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	var bitIdx uint8
	for i := uint8(0); i < 5; i++ {
		if pending&(1<<i) != 0 {
			bitIdx = i
			break
		}
	}

	vectors := [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

	c.interruptsEnabled = false
	c.bus.Write(addr.IF, iflags&^(1<<bitIdx))
	c.pushStack(c.pc)
	c.pc = vectors[bitIdx]
	c.cycles += 20
	c.bus.Tick(20)

	return true
}

// Step runs one fetch/decode/execute cycle (or one HALT/STOP/speed-
// switch idle tick) and returns the number of T-states consumed,
// including any interrupt dispatch. This is the unit the top-level
// scheduler drives once per CPU-instruction boundary.
//
// Instructions execute atomically rather than as individually
// scheduled micro-steps, but Step still charges exactly the published
// M-cycle count for the opcode and only commits to a new instruction
// at a boundary where the bus is checked for an in-progress HDMA/GDMA
// block copy - while one is active the CPU is frozen and this call
// just advances the clock 4 T-states, same as a HALT/STOP/speed-switch
// idle tick.
func (c *CPU) Step() int {
	if c.speedSwitchStall > 0 {
		c.speedSwitchStall--
		c.bus.Tick(4)
		c.cycles += 4
		return 4
	}

	if c.bus.HDMAActive() {
		c.bus.Tick(4)
		c.cycles += 4
		return 4
	}

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	pending := c.handleInterrupts()
	if c.halted {
		if !pending {
			c.bus.Tick(4)
			c.cycles += 4
			return 4
		}
		c.halted = false
		if !c.interruptsEnabled {
			// Woken by a source that IME can't service: the halt bug
			// makes the next opcode fetch fail to advance pc, so the
			// byte after HALT executes twice.
			c.haltBug = true
		}
	}

	opcode := Decode(c)
	if c.currentOpcode&0xCB00 != 0 {
		c.pc += 2
	} else {
		c.pc++
	}

	if c.haltBug {
		c.haltBug = false
		c.pc -= 1
	}

	cycles := opcode(c)
	c.bus.Tick(cycles)
	c.cycles += uint64(cycles)
	return cycles
}
