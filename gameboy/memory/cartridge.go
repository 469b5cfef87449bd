package memory

import (
	"fmt"
	"log/slog"
	"strings"
)

const titleLength = 11

const (
	titleAddress           = 0x134
	cgbFlagAddress         = 0x143
	cartridgeTypeAddress   = 0x147
	romSizeAddress         = 0x148
	ramSizeAddress         = 0x149
	versionNumberAddress   = 0x14C
	headerChecksumAddress  = 0x14D
	globalChecksumAddress  = 0x14E
)

// Cartridge is the parsed ROM image plus the header metadata needed to
// pick and size a mapper. The mapper itself is constructed separately
// (see NewWithCartridge) since it owns mutable banking state the
// cartridge's raw bytes don't.
type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSizeCode    uint8
	ramSizeCode    uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	romBankCount int
	ramBankCount uint8
	romBankMask  uint16
	isCGB        bool
	cgbOnly      bool
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x8000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData parses a ROM image's header and returns a
// Cartridge ready to back a mapper via NewWithCartridge. Construction
// errors (spec.md §7) are returned rather than panicking: a truncated
// or corrupt ROM file is a caller mistake to report, not a programmer
// bug in the core.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) < 0x150 {
		return nil, fmt.Errorf("memory: rom image too small to contain a header (%d bytes)", len(bytes))
	}

	titleBytes := bytes[titleAddress : titleAddress+titleLength]
	cgbFlag := bytes[cgbFlagAddress]
	cartType := bytes[cartridgeTypeAddress]
	romSizeCode := bytes[romSizeAddress]
	ramSizeCode := bytes[ramSizeAddress]

	mbcType, hasBattery, hasRTC, hasRumble := mbcTypeFromCode(cartType)
	if mbcType == MBCUnknownType {
		return nil, fmt.Errorf("memory: unrecognized cartridge type code 0x%02X", cartType)
	}

	romBankCount := romBankCountFromCode(romSizeCode)
	ramBankCount := ramBankCountFromCode(ramSizeCode)
	if mbcType == MBC2Type {
		// MBC2 has its own built-in 512x4-bit RAM; the header RAM size
		// code is meaningless for it.
		ramBankCount = 0
	}

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		headerChecksum: uint16(bytes[headerChecksumAddress]),
		globalChecksum: uint16(bytes[globalChecksumAddress])<<8 | uint16(bytes[globalChecksumAddress+1]),
		version:        bytes[versionNumberAddress],
		cartType:       cartType,
		romSizeCode:    romSizeCode,
		ramSizeCode:    ramSizeCode,
		mbcType:        mbcType,
		hasBattery:     hasBattery,
		hasRTC:         hasRTC,
		hasRumble:      hasRumble,
		romBankCount:   romBankCount,
		ramBankCount:   uint8(ramBankCount),
		romBankMask:    romBankMask(romBankCount),
		isCGB:          cgbFlag == 0x80 || cgbFlag == 0xC0,
		cgbOnly:        cgbFlag == 0xC0,
	}

	copy(cart.data, bytes)

	slog.Info("cartridge loaded",
		"title", strings.TrimSpace(cart.title),
		"mapper", mbcType,
		"rom_banks", romBankCount,
		"ram_banks", ramBankCount,
		"battery", hasBattery,
		"cgb", cart.isCGB,
	)

	return cart, nil
}

// Title returns the cleaned cartridge title from the header.
func (c *Cartridge) Title() string { return c.title }

// IsCGB reports whether this ROM declares CGB compatibility (partial or
// exclusive).
func (c *Cartridge) IsCGB() bool { return c.isCGB }

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte ignores the write and returns the byte stored at the specified address. Bank switching and
// external RAM writes go through the MBC instead.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
