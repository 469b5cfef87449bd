// Package dma implements the OAM DMA and HDMA/GDMA transfer engines.
package dma

// OamDma models the 0xFF46-triggered 160-byte copy into the sprite
// table: a 5-T start queue, then one byte copied per 4-T slice.
type OamDma struct {
	startDelay  int
	active      bool
	activeClock int
	index       int
	sourceBase  uint16
}

// Active reports whether the copy itself is running. It stays false
// during the initial start-delay window, so OAM reads are not yet gated
// then - only once the copy has begun.
func (d *OamDma) Active() bool { return d.active }

// Start enqueues a transfer triggered by a write to the DMA register.
func (d *OamDma) Start(value uint8) {
	d.startDelay = 5
	d.sourceBase = uint16(value) << 8
}

// Tick advances one T-state. read fetches a source byte from the bus;
// writeOAM stores a byte directly into sprite memory, bypassing the
// DMA read-gate the bus applies to ordinary CPU accesses.
func (d *OamDma) Tick(read func(uint16) byte, writeOAM func(index int, value byte)) {
	if d.startDelay > 0 {
		d.startDelay--
		if d.startDelay == 0 {
			d.active = true
			d.index = 0
			d.activeClock = 0
		}
		return
	}

	if !d.active {
		return
	}

	d.activeClock++
	if d.activeClock >= 4 {
		d.activeClock = 0
		writeOAM(d.index, read(d.sourceBase+uint16(d.index)))
		d.index++
		if d.index >= 160 {
			d.active = false
		}
	}
}
