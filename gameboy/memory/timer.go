package memory

import (
	"github.com/embertale/pocketcore/gameboy/addr"
	"github.com/embertale/pocketcore/gameboy/interrupts"
)

// tacFreqBits maps TAC's low two bits to the DIV bit index that is
// multiplexed into the falling-edge detector.
var tacFreqBits = [4]uint8{9, 3, 5, 7}

// Timer models DIV/TIMA/TMA/TAC with falling-edge TIMA increments and
// the exact multi-tick overflow-reload sequencing observed on
// hardware: tick 1 after overflow requests the interrupt, tick 5
// reloads TIMA from TMA early (a same-tick write to TIMA is what a
// test ROM uses to detect this), tick 6 reloads again and clears the
// overflow state.
type Timer struct {
	div  uint16
	tima uint8
	tma  uint8
	tac  uint8

	timaOverflown           bool
	ticksSinceTimaOverflown uint8
}

// SetSeed initializes DIV to a boot-time value.
func (t *Timer) SetSeed(seed uint16) {
	t.div = seed
}

func (t *Timer) isEnabled() bool {
	return t.tac&0x04 != 0
}

func (t *Timer) selectedBit(div uint16) bool {
	return (div>>tacFreqBits[t.tac&3])&1 == 1
}

// Tick advances the timer by exactly one T-state.
func (t *Timer) Tick(ic *interrupts.Controller) {
	prevDiv := t.div
	t.div++

	if t.isEnabled() && t.fallingEdge(prevDiv, t.div) {
		t.incrTima()
	}

	if t.timaOverflown {
		t.ticksSinceTimaOverflown++
	}

	switch t.ticksSinceTimaOverflown {
	case 1:
		ic.Request(addr.TimerInterrupt)
	case 5:
		t.tima = t.tma
	case 6:
		t.tima = t.tma
		t.timaOverflown = false
		t.ticksSinceTimaOverflown = 0
	}
}

// fallingEdge reports a 1->0 transition of the TAC-selected DIV bit.
func (t *Timer) fallingEdge(prev, current uint16) bool {
	bitIndex := tacFreqBits[t.tac&3]
	return (prev>>bitIndex)&1 == 1 && (current>>bitIndex)&1 == 0
}

func (t *Timer) incrTima() {
	t.tima++
	if t.tima == 0 {
		t.timaOverflown = true
		t.ticksSinceTimaOverflown = 0
	}
}

func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return byte(t.div >> 8)
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | 0xF8
	default:
		return 0xFF
	}
}

func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		prevDiv := t.div
		t.div = 0
		if t.isEnabled() && t.fallingEdge(prevDiv, t.div) {
			t.incrTima()
		}
	case addr.TIMA:
		// A write during the 4-T reload window (ticks 1-4) is accepted
		// normally; a write landing on or after tick 5 is too late to
		// abort the hardware reload, matching timer.rs's `< 5` guard.
		if t.ticksSinceTimaOverflown < 5 {
			t.tima = value
			t.timaOverflown = false
			t.ticksSinceTimaOverflown = 0
		}
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		wasSelected := t.isEnabled() && t.selectedBit(t.div)
		t.tac = value
		nowSelected := t.isEnabled() && t.selectedBit(t.div)
		if wasSelected && !nowSelected {
			t.incrTima()
		}
	}
}
