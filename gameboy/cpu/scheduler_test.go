package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/embertale/pocketcore/gameboy/addr"
	"github.com/embertale/pocketcore/gameboy/memory"
)

// TestStep_FreezesDuringHDMA checks that Step refuses to fetch a new
// instruction while a GDMA burst is in progress: it should just charge
// 4 T-states and leave PC untouched, the way a HALT idle tick does.
func TestStep_FreezesDuringHDMA(t *testing.T) {
	mmu := memory.New()
	mmu.SetCGBMode(true)
	mmu.Write(addr.HDMA5, 0x00) // trigger a 16-byte GDMA burst

	cpu := New(mmu)
	pcBefore := cpu.pc

	if !mmu.HDMAActive() {
		t.Fatalf("HDMAActive() = false right after triggering a GDMA burst, want true")
	}

	cycles := cpu.Step()

	assert.Equal(t, 4, cycles)
	assert.Equal(t, pcBefore, cpu.pc, "Step must not advance pc while HDMA is active")
}

// TestOpcode0x10_SpeedSwitch checks STOP's speed-switch behavior when
// the KEY1 prepare latch is armed: it toggles speed, clears the latch,
// and stalls the CPU for 2049 M-cycles before it resumes fetching.
func TestOpcode0x10_SpeedSwitch(t *testing.T) {
	mmu := memory.New()
	mmu.SetCGBMode(true)
	mmu.Write(addr.KEY1, 0x01) // arm the prepare latch

	cpu := New(mmu)
	cycles := opcode0x10(cpu)

	assert.Equal(t, 4, cycles)
	assert.Equal(t, 2049, cpu.speedSwitchStall)
	assert.False(t, cpu.stopped, "a prepared speed switch must not also set the plain STOP flag")

	if key1 := mmu.Read(addr.KEY1); key1&0x80 == 0 {
		t.Fatalf("KEY1 = 0x%02X after speed-switch STOP, want bit 7 (current speed) set", key1)
	}
	if key1 := mmu.Read(addr.KEY1); key1&0x01 != 0 {
		t.Fatalf("KEY1 = 0x%02X after speed-switch STOP, want bit 0 (prepare latch) cleared", key1)
	}

	pcBefore := cpu.pc
	for i := 0; i < 2049; i++ {
		stepCycles := cpu.Step()
		assert.Equal(t, 4, stepCycles)
		assert.Equal(t, pcBefore, cpu.pc)
	}
	assert.Equal(t, 0, cpu.speedSwitchStall)
}

// TestOpcode0x10_PlainStop checks that STOP without the prepare latch
// armed falls back to the teacher's original plain-stop behavior.
func TestOpcode0x10_PlainStop(t *testing.T) {
	mmu := memory.New()
	cpu := New(mmu)

	cycles := opcode0x10(cpu)

	assert.Equal(t, 4, cycles)
	assert.True(t, cpu.stopped)
	assert.Equal(t, 0, cpu.speedSwitchStall)
}
