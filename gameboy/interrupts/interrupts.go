// Package interrupts implements the IE/IF/IME latching and vector
// selection described in the core's interrupt controller.
package interrupts

import "github.com/embertale/pocketcore/gameboy/addr"

// Vector is the ISR entry point address for a given interrupt source.
type Vector uint16

// Vectors in priority order, VBlank highest.
const (
	VBlankVector Vector = 0x40
	StatVector   Vector = 0x48
	TimerVector  Vector = 0x50
	SerialVector Vector = 0x58
	JoypadVector Vector = 0x60
)

// sources lists the five interrupts from highest to lowest priority,
// paired with their IE/IF bit mask and ISR vector.
var sources = [5]struct {
	mask   uint8
	vector Vector
}{
	{uint8(addr.VBlankInterrupt), VBlankVector},
	{uint8(addr.LCDSTATInterrupt), StatVector},
	{uint8(addr.TimerInterrupt), TimerVector},
	{uint8(addr.SerialInterrupt), SerialVector},
	{uint8(addr.JoypadInterrupt), JoypadVector},
}

// Controller holds the enable mask, flag mask and master enable bit,
// plus the two auxiliary flags the HALT bug machinery needs.
type Controller struct {
	IE   uint8
	IF   uint8
	IME  bool
	// WaitingForHalt and HaltBugPending are not written anywhere in the
	// module: the CPU keeps its halt and halt-bug state in its own
	// halted/haltBug fields.
	WaitingForHalt bool
	HaltBugPending bool
}

// New returns a controller with IF's unused top 3 bits read as set,
// matching hardware (spec.md §6: "IF ... high 3 bits read as 1").
func New() *Controller {
	return &Controller{}
}

// Request sets the IF bit for the given interrupt source.
func (c *Controller) Request(i addr.Interrupt) {
	c.IF |= uint8(i)
}

// Pending reports the bits that are both enabled and flagged.
func (c *Controller) Pending() uint8 {
	return c.IE & c.IF & 0x1F
}

// HasPending reports whether any enabled interrupt is flagged,
// regardless of IME - used by HALT to decide whether to wake up.
func (c *Controller) HasPending() bool {
	return c.Pending() != 0
}

// ReadIF returns the IF register as the CPU would observe it: the top
// three bits always read back as 1.
func (c *Controller) ReadIF() uint8 {
	return c.IF | 0xE0
}

// WriteIF stores only the low 5 bits of a CPU write to 0xFF0F.
func (c *Controller) WriteIF(v uint8) {
	c.IF = v & 0x1F
}

// WriteIE stores a CPU write to 0xFFFF. All 8 bits are retained even
// though only the low 5 are meaningful, matching observed hardware
// register behavior where unused bits are simply inert storage.
func (c *Controller) WriteIE(v uint8) {
	c.IE = v
}

// Highest returns the highest-priority pending interrupt's vector and
// its IF bitmask, and whether one exists.
func (c *Controller) Highest() (vector Vector, mask uint8, ok bool) {
	pending := c.Pending()
	if pending == 0 {
		return 0, 0, false
	}
	for _, s := range sources {
		if pending&s.mask != 0 {
			return s.vector, s.mask, true
		}
	}
	return 0, 0, false
}

// Acknowledge clears the IF bit for the dispatched interrupt and
// disables IME, as the ISR does after reading the vector.
func (c *Controller) Acknowledge(mask uint8) {
	c.IF &^= mask
	c.IME = false
}
