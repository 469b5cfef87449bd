package addr

// CGB-only and shared speed/banking registers.
const (
	// KEY0 latches CGB/DMG compatibility mode; written once by the boot ROM.
	KEY0 uint16 = 0xFF4C
	// KEY1 controls the CGB double-speed switch (prepare bit + current speed).
	KEY1 uint16 = 0xFF4D
	// VBK selects the active VRAM bank (CGB: 0 or 1).
	VBK uint16 = 0xFF4F
	// BootDisable is written once to permanently unmap the boot ROM overlay.
	BootDisable uint16 = 0xFF50

	// HDMA1/HDMA2 form the 16-bit HDMA source address (low nibble ignored).
	HDMA1 uint16 = 0xFF51
	HDMA2 uint16 = 0xFF52
	// HDMA3/HDMA4 form the HDMA destination offset within VRAM.
	HDMA3 uint16 = 0xFF53
	HDMA4 uint16 = 0xFF54
	// HDMA5 triggers the transfer and reports remaining length / active state.
	HDMA5 uint16 = 0xFF55

	// BCPS/BCPD address CGB background color palette RAM.
	BCPS uint16 = 0xFF68
	BCPD uint16 = 0xFF69
	// OCPS/OCPD address CGB object color palette RAM.
	OCPS uint16 = 0xFF6A
	OCPD uint16 = 0xFF6B
	// OPRI selects DMG-style (coordinate) vs CGB-style (OAM order) sprite priority.
	OPRI uint16 = 0xFF6C

	// SVBK selects the switchable WRAM bank (1-7, 0 reads back as 1).
	SVBK uint16 = 0xFF70
)
