package cpu

import "github.com/embertale/pocketcore/gameboy/bit"

func (c *CPU) pushStack(r uint16) {
	c.sp--
	c.bus.Write(c.sp, bit.Low(r))
	c.sp--
	c.bus.Write(c.sp, bit.High(r))
}

func (c *CPU) popStack() uint16 {
	high := c.bus.Read(c.sp)
	c.sp++
	low := c.bus.Read(c.sp)
	c.sp++

	return bit.Combine(high, low)
}

func (c *CPU) inc(r *uint8) {
	old := *r
	*r++

	c.setFlagToCondition(zeroFlag, *r == 0)
	c.setFlagToCondition(halfCarryFlag, (old&0xF) == 0xF)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	old := *r
	*r--

	c.setFlagToCondition(zeroFlag, *r == 0)
	c.setFlagToCondition(halfCarryFlag, (old&0xF) == 0x0)
	c.setFlag(subFlag)
}

// setRotateFlags applies the common carry/sub/half-carry update for the
// rotate family, and sets the zero flag from the result - except when r
// is A, where it clears Z as the unprefixed RLCA/RLA/RRCA/RRA do. The
// CB-prefixed A forms (CB07/CB0F/CB17/CB1F) pass &c.a too, so they also
// clear Z.
func (c *CPU) setRotateFlags(r *uint8, result uint8, carry bool) {
	*r = result
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
	if r == &c.a {
		c.resetFlag(zeroFlag)
	} else {
		c.setFlagToCondition(zeroFlag, result == 0)
	}
}

func (c *CPU) rlc(r *uint8) {
	value := *r
	result := (value << 1) | (value >> 7)
	c.setRotateFlags(r, result, value > 0x7F)
}

func (c *CPU) rl(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag)
	result := (value << 1) | carry
	c.setRotateFlags(r, result, value > 0x7F)
}

func (c *CPU) rrc(r *uint8) {
	value := *r
	result := (value >> 1) | ((value & 1) << 7)
	c.setRotateFlags(r, result, value&1 != 0)
}

func (c *CPU) rr(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag) << 7
	result := (value >> 1) | carry
	c.setRotateFlags(r, result, value&1 != 0)
}

func (c *CPU) sla(r *uint8) {
	value := *r
	result := value << 1
	*r = result
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.setFlagToCondition(zeroFlag, result == 0)
}

func (c *CPU) sra(r *uint8) {
	value := *r
	result := (value >> 1) | (value & 0x80)
	*r = result
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&1 != 0)
	c.setFlagToCondition(zeroFlag, result == 0)
}

func (c *CPU) srl(r *uint8) {
	value := *r
	result := value >> 1
	*r = result
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&1 != 0)
	c.setFlagToCondition(zeroFlag, result == 0)
}

func (c *CPU) swap(r *uint8) {
	value := *r
	result := (value << 4) | (value >> 4)
	*r = result
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
	c.setFlagToCondition(zeroFlag, result == 0)
}

// bit tests bit idx of value, setting zero/half-carry/sub accordingly.
// Carry is left untouched.
func (c *CPU) bit(idx uint8, value uint8) {
	c.setFlagToCondition(zeroFlag, value&(1<<idx) == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) res(idx uint8, r *uint8) { *r &^= 1 << idx }
func (c *CPU) set(idx uint8, r *uint8) { *r |= 1 << idx }

// addToA sets the result of adding an 8 bit register to A, while setting all relevant flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	carry := (uint16(a) + uint16(value)) > 0xFF
	halfCarry := (a&0xF)+(value&0xF) > 0xF

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.a = result
}

// adc adds value plus the carry flag (1 if set, 0 otherwise) to A, setting all relevant flags.
func (c *CPU) adc(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := uint16(a) + uint16(value) + uint16(carry)
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, result > 0xFF)
	c.setFlagToCondition(halfCarryFlag, (a&0xF)+(value&0xF)+carry > 0xF)
}

// addToHL sets the result of adding a 16 bit register to HL, while setting relevant flags.
func (c *CPU) addToHL(reg uint16) {
	hl := bit.Combine(c.h, c.l)
	result := hl + reg

	carry := (uint32(hl) + uint32(reg)) > 0xFFFF
	halfCarry := (hl&0xFFF)+(reg&0xFFF) > 0xFFF

	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.h = bit.High(result)
	c.l = bit.Low(result)
}

// sub will subtract the value from register A and set all relevant flags.
func (c *CPU) sub(value uint8) {
	a := c.a
	c.a = a - value

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// sbc will subtract the value and carry (1 if set, 0 otherwise) from the register A.
func (c *CPU) sbc(value uint8) {
	a := c.a
	carry := 0
	if c.isSetFlag(carryFlag) {
		carry = 1
	}

	result := int(c.a) - int(value) - carry
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, result < 0)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF)-carry < 0)
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

// cp compares value with A: it sets the flags exactly as sub does and leaves A unchanged.
func (c *CPU) cp(value uint8) {
	a := c.a
	c.sub(value)
	c.a = a
}

// daa adjusts A to packed BCD after an addition (N clear) or a subtraction (N set).
func (c *CPU) daa() {
	sub := c.isSetFlag(subFlag)
	adjust := uint8(0)
	if c.isSetFlag(halfCarryFlag) || (!sub && c.a&0xF > 9) {
		adjust = 0x06
	}
	if c.isSetFlag(carryFlag) || (!sub && c.a > 0x99) {
		adjust |= 0x60
		c.setFlag(carryFlag)
	}
	if sub {
		adjust = -adjust
	}
	c.a += adjust
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(halfCarryFlag)
}

// jr performs a relative jump: the displacement byte sits at pc, and the
// offset is relative to the address right after it.
func (c *CPU) jr() {
	n := int8(c.bus.Read(c.pc))
	c.pc = c.pc + 1 + uint16(int16(n))
}

// skipImmediate/skipImmediateWord advance pc past an operand without
// using it, for the not-taken path of conditional jumps/calls.
func (c *CPU) skipImmediate()     { c.pc++ }
func (c *CPU) skipImmediateWord() { c.pc += 2 }

// jp performs an absolute jump using the immediate 16-bit operand.
func (c *CPU) jp() {
	c.pc = c.readImmediateWord()
}

// call pushes the return address and jumps to the immediate operand.
func (c *CPU) call() {
	target := c.readImmediateWord()
	c.pushStack(c.pc)
	c.pc = target
}

// ret pops the return address into pc.
func (c *CPU) ret() {
	c.pc = c.popStack()
}

// rst pushes the return address and jumps to a fixed vector.
func (c *CPU) rst(vector uint16) {
	c.pushStack(c.pc)
	c.pc = vector
}
