package gameboy

import (
	"github.com/embertale/pocketcore/gameboy/addr"
	"github.com/embertale/pocketcore/gameboy/memory"
)

// Bus is the thin indirection layer the CPU is built against
// (cpu.MemoryBus), so the CPU package never imports memory directly.
// All actual state lives in the MMU; Bus just forwards.
type Bus struct {
	MMU *memory.MMU
}

func NewBus(mmu *memory.MMU) *Bus {
	return &Bus{MMU: mmu}
}

func (b *Bus) Read(address uint16) byte {
	return b.MMU.Read(address)
}

func (b *Bus) Write(address uint16, value byte) {
	b.MMU.Write(address, value)
}

// Tick advances every peripheral sharing the system clock (timer, PPU,
// APU, serial, DMA engines) by the given T-state count. Called by the
// CPU once per instruction boundary - see cpu.CPU.Step.
func (b *Bus) Tick(cycles int) {
	b.MMU.Tick(cycles)
}

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.MMU.RequestInterrupt(interrupt)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.MMU.ReadBit(index, address)
}

// HDMAActive reports whether an HDMA/GDMA block copy is in progress -
// the CPU stalls rather than dispatching new instructions while this
// is true.
func (b *Bus) HDMAActive() bool {
	return b.MMU.HDMAActive()
}

// SpeedSwitchPrepared and ToggleSpeed back the CPU's handling of STOP
// on CGB hardware with KEY1's prepare latch armed.
func (b *Bus) SpeedSwitchPrepared() bool {
	return b.MMU.SpeedSwitchPrepared()
}

func (b *Bus) ToggleSpeed() {
	b.MMU.ToggleSpeed()
}
