package video

import (
	"github.com/embertale/pocketcore/gameboy/addr"
	"github.com/embertale/pocketcore/gameboy/bit"
)

// Bus is everything the PPU needs from the rest of the system: register
// access, interrupt requests, and CGB-aware VRAM/palette reads that go
// beyond what a plain Read(addr) can express (bank 1 tile attributes,
// palette RAM).
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)

	// ReadVRAMBank reads VRAM ignoring the current VBK selection; bank is
	// always 0 on DMG. Used by the fetcher to pull CGB tile attributes
	// from bank 1 regardless of what the CPU has selected.
	ReadVRAMBank(bank int, address uint16) byte

	// CGBMode reports whether the console is running in CGB-native mode
	// (as opposed to DMG or CGB-DMG-compatibility mode), which gates tile
	// attributes, OAM priority mode and palette RAM.
	CGBMode() bool

	// BGPaletteColor/OBJPaletteColor resolve a CGB palette/color-index
	// pair to a packed BGR555 value (bits 14:0), as stored in palette RAM.
	BGPaletteColor(palette, colorIndex uint8) uint16
	OBJPaletteColor(palette, colorIndex uint8) uint16

	RequestInterrupt(interrupt addr.Interrupt)
}

// Mode is the PPU's current rendering stage; the values match STAT bits 1-0.
type Mode int

const (
	ModeHBlank Mode = 0
	ModeVBlank Mode = 1
	ModeOAM    Mode = 2
	ModeVRAM   Mode = 3
)

const (
	dotsPerOAMScan  = 80
	dotsPerScanline = 456
	vblankStartLine = 144
	lastLine        = 153
)

// tileAttr holds the CGB background-map attribute byte fetched from
// VRAM bank 1 (ignored entirely in DMG mode, where it reads as zero).
type tileAttr struct {
	palette  uint8
	bank     uint8
	flipX    bool
	flipY    bool
	priority bool // BG-to-OAM priority override
}

func decodeTileAttr(raw byte) tileAttr {
	return tileAttr{
		palette:  raw & 0x07,
		bank:     (raw >> 3) & 0x01,
		flipX:    bit.IsSet(5, raw),
		flipY:    bit.IsSet(6, raw),
		priority: bit.IsSet(7, raw),
	}
}

// bgPixel is one background/window pixel sitting in the BG FIFO.
type bgPixel struct {
	color    uint8
	palette  uint8
	priority bool
}

// spritePixel is one object pixel sitting in the sprite FIFO.
type spritePixel struct {
	color    uint8
	palette  uint8
	behindBG bool
	oamIndex int
}

type fetchStep int

const (
	stepFetchTileID fetchStep = iota
	stepFetchDataLow
	stepFetchDataHigh
	stepPush
)

// PPU implements the dot-stepped pixel-slice fetcher described by the
// Game Boy's pixel FIFO: a background/window fetcher and a sprite
// fetcher feed two independent FIFOs, mixed one pixel per dot into the
// framebuffer.
type PPU struct {
	bus         Bus
	framebuffer *FrameBuffer
	oam         *OAM

	mode Mode
	line int
	dot  int

	// pixel transfer state for the current scanline
	lx            int // pixels emitted so far on this line (0-159)
	scxDiscard    int // pending SCX%8 pixels to drop from the first fetch
	windowLine   int // internal window line counter (0-143)
	windowActive bool

	bgFifo     []bgPixel
	spriteFifo []spritePixel

	fetchStep   fetchStep
	fetchSubDot int
	fetchTileX  int
	fetchTileID uint8
	fetchAttr   tileAttr
	fetchFineY  int
	fetchLow    byte
	fetchHigh   byte
	usingWindow bool

	scanlineSprites  []Sprite
	nextSpriteIdx    int
	spriteFetchLeft  int // dots remaining in an in-progress sprite fetch
	spriteBeingFetch *Sprite

	statLine bool // combined STAT IRQ signal, for rising-edge detection

	lcdWasOn bool
}

func NewPPU(bus Bus) *PPU {
	p := &PPU{
		bus:         bus,
		framebuffer: NewFrameBuffer(),
		oam:         NewOAM(bus),
		mode:        ModeOAM,
	}
	return p
}

func (p *PPU) FrameBuffer() *FrameBuffer { return p.framebuffer }

// Tick advances the PPU by the given number of real dots (already
// adjusted for CGB double-speed by the caller - the dot clock itself
// never speeds up).
func (p *PPU) Tick(dots int) {
	lcdOn := bit.IsSet(7, p.bus.Read(addr.LCDC))
	if !lcdOn {
		if p.lcdWasOn {
			p.disableLCD()
		}
		p.lcdWasOn = false
		return
	}
	if !p.lcdWasOn {
		p.enableLCD()
	}
	p.lcdWasOn = true

	for i := 0; i < dots; i++ {
		p.tickDot()
	}
}

// disableLCD resets scan state the moment bit 7 of LCDC goes low: LY and
// the mode both reset, and the screen goes blank until it's turned on
// again.
func (p *PPU) disableLCD() {
	p.line = 0
	p.dot = 0
	p.mode = ModeHBlank
	p.windowLine = 0
	p.writeLY(0)
	p.setMode(ModeHBlank)
	for y := uint(0); y < FramebufferHeight; y++ {
		for x := uint(0); x < FramebufferWidth; x++ {
			p.framebuffer.SetPixel(x, y, WhiteColor)
		}
	}
}

// enableLCD restarts scanning from OAM search on line 0.
func (p *PPU) enableLCD() {
	p.line = 0
	p.dot = 0
	p.windowLine = 0
	p.writeLY(0)
	p.beginOAMScan()
}

func (p *PPU) tickDot() {
	switch p.mode {
	case ModeOAM:
		if p.dot == 0 {
			p.beginOAMScan()
		}
		p.dot++
		if p.dot >= dotsPerOAMScan {
			p.beginPixelTransfer()
		}
	case ModeVRAM:
		p.dot++
		p.tickPixelTransfer()
	case ModeHBlank:
		p.dot++
		if p.dot >= dotsPerScanline {
			p.endScanline()
		}
	case ModeVBlank:
		p.dot++
		if p.dot >= dotsPerScanline {
			p.advanceVBlankLine()
		}
	}
	p.updateSTATLine()
}

func (p *PPU) beginOAMScan() {
	p.setMode(ModeOAM)
	p.scanlineSprites = p.oam.GetSpritesForScanline(p.line)
	if !p.oam.oamPriorityMode() {
		sortSpritesByX(p.scanlineSprites)
	}
}

// sortSpritesByX enforces DMG/coordinate-priority ordering; CGB OAM-order
// priority (OPRI bit 0 clear) leaves sprites in OAM order (the order
// GetSpritesForScanline already returns them in).
func sortSpritesByX(sprites []Sprite) {
	for i := 1; i < len(sprites); i++ {
		for j := i; j > 0 && sprites[j].X < sprites[j-1].X; j-- {
			sprites[j], sprites[j-1] = sprites[j-1], sprites[j]
		}
	}
}

func (p *PPU) beginPixelTransfer() {
	p.setMode(ModeVRAM)
	p.lx = 0
	p.bgFifo = p.bgFifo[:0]
	p.spriteFifo = p.spriteFifo[:0]
	p.nextSpriteIdx = 0
	p.spriteBeingFetch = nil
	p.spriteFetchLeft = 0

	scx := p.bus.Read(addr.SCX)
	p.scxDiscard = int(scx) % 8

	p.usingWindow = false
	p.windowActive = p.windowTriggeredThisLine()
	p.startBGFetch()
}

func (p *PPU) windowTriggeredThisLine() bool {
	if !bit.IsSet(5, p.bus.Read(addr.LCDC)) {
		return false
	}
	wy := p.bus.Read(addr.WY)
	return int(wy) <= p.line
}

func (p *PPU) startBGFetch() {
	p.fetchStep = stepFetchTileID
	p.fetchSubDot = 0
	scx := p.bus.Read(addr.SCX)
	if p.usingWindow {
		p.fetchTileX = 0
	} else {
		p.fetchTileX = int(scx) / 8
	}
}

func (p *PPU) tickPixelTransfer() {
	if p.spriteBeingFetch != nil {
		p.spriteFetchLeft--
		if p.spriteFetchLeft <= 0 {
			p.finishSpriteFetch()
		}
		return
	}

	if wx := p.bus.Read(addr.WX); !p.usingWindow && p.windowActive {
		if p.lx+7 >= int(wx) {
			p.usingWindow = true
			p.bgFifo = p.bgFifo[:0]
			p.startBGFetch()
		}
	}

	p.tickBGFetcher()

	if s := p.spriteToFetchAt(p.lx); s != nil {
		p.beginSpriteFetch(s)
		return
	}

	p.popAndMixPixel()

	if p.lx >= FramebufferWidth {
		p.finishScanline()
	}
}

func (p *PPU) spriteToFetchAt(lx int) *Sprite {
	if !bit.IsSet(1, p.bus.Read(addr.LCDC)) {
		return nil
	}
	for p.nextSpriteIdx < len(p.scanlineSprites) {
		s := &p.scanlineSprites[p.nextSpriteIdx]
		if int(s.X) > lx {
			return nil
		}
		p.nextSpriteIdx++
		if int(s.X)+8 <= 0 {
			continue // fully off the left edge, never visible
		}
		return s
	}
	return nil
}

func (p *PPU) beginSpriteFetch(s *Sprite) {
	p.spriteBeingFetch = s
	p.spriteFetchLeft = 6
}

func (p *PPU) finishSpriteFetch() {
	s := p.spriteBeingFetch
	p.spriteBeingFetch = nil

	rowInSprite := p.line - int(s.Y)
	if s.FlipY {
		rowInSprite = s.Height - 1 - rowInSprite
	}

	tileIndex := s.TileIndex
	if s.Height == 16 {
		tileIndex &= 0xFE
		if rowInSprite >= 8 {
			tileIndex |= 0x01
			rowInSprite -= 8
		}
	}

	bank := 0
	palette := uint8(0)
	if p.bus.CGBMode() {
		if bit.IsSet(3, s.Flags) {
			bank = 1
		}
		palette = s.Flags & 0x07
	}

	tileAddr := addr.TileData0 + uint16(tileIndex)*16 + uint16(rowInSprite)*2
	low := p.bus.ReadVRAMBank(bank, tileAddr)
	high := p.bus.ReadVRAMBank(bank, tileAddr+1)

	for px := 0; px < 8; px++ {
		bitIdx := px
		if !s.FlipX {
			bitIdx = 7 - px
		}
		color := colorIndexFromBytes(low, high, uint8(bitIdx))
		screenX := int(s.X) + px
		fifoIdx := screenX - p.lx
		if fifoIdx < 0 || fifoIdx >= len(p.spriteFifo)+8 {
			continue
		}
		for len(p.spriteFifo) <= fifoIdx {
			p.spriteFifo = append(p.spriteFifo, spritePixel{oamIndex: -1})
		}
		existing := p.spriteFifo[fifoIdx]
		if existing.oamIndex != -1 && existing.color != 0 {
			// a higher-priority sprite (lower OAM index, already fetched
			// first since sprites are processed in X/OAM order) keeps the
			// pixel unless this one is opaque and the slot is still empty.
			continue
		}
		if color == 0 {
			continue
		}
		var objPalette uint8
		if p.bus.CGBMode() {
			objPalette = palette
		} else if s.PaletteOBP1 {
			objPalette = 1
		}
		p.spriteFifo[fifoIdx] = spritePixel{
			color:    color,
			palette:  objPalette,
			behindBG: s.BehindBG,
			oamIndex: s.OAMIndex,
		}
	}
}

func colorIndexFromBytes(low, high byte, bitIdx uint8) uint8 {
	var c uint8
	if bit.IsSet(bitIdx, low) {
		c |= 1
	}
	if bit.IsSet(bitIdx, high) {
		c |= 2
	}
	return c
}

// tickBGFetcher runs one dot of the 8-dot (4-state, 2-dots-per-state)
// background/window tile fetch cycle.
func (p *PPU) tickBGFetcher() {
	switch p.fetchStep {
	case stepFetchTileID:
		p.fetchSubDot++
		if p.fetchSubDot >= 2 {
			p.fetchSubDot = 0
			p.doFetchTileID()
			p.fetchStep = stepFetchDataLow
		}
	case stepFetchDataLow:
		p.fetchSubDot++
		if p.fetchSubDot >= 2 {
			p.fetchSubDot = 0
			p.doFetchDataLow()
			p.fetchStep = stepFetchDataHigh
		}
	case stepFetchDataHigh:
		p.fetchSubDot++
		if p.fetchSubDot >= 2 {
			p.fetchSubDot = 0
			p.doFetchDataHigh()
			p.fetchStep = stepPush
		}
	case stepPush:
		if p.fetchSubDot < 2 {
			p.fetchSubDot++
		}
		if p.fetchSubDot >= 2 && len(p.bgFifo) == 0 {
			p.fetchSubDot = 0
			p.pushBGRow()
			p.fetchTileX++
			p.fetchStep = stepFetchTileID
		}
	}
}

func (p *PPU) doFetchTileID() {
	lcdc := p.bus.Read(addr.LCDC)

	var mapBase uint16
	var fineY int
	if p.usingWindow {
		if bit.IsSet(6, lcdc) {
			mapBase = addr.TileMap1
		} else {
			mapBase = addr.TileMap0
		}
		fineY = p.windowLine % 8
	} else {
		if bit.IsSet(3, lcdc) {
			mapBase = addr.TileMap1
		} else {
			mapBase = addr.TileMap0
		}
		scy := p.bus.Read(addr.SCY)
		fineY = (p.line + int(scy)) % 8
	}

	row := 0
	if p.usingWindow {
		row = p.windowLine / 8
	} else {
		scy := p.bus.Read(addr.SCY)
		row = ((p.line + int(scy)) % 256) / 8
	}
	col := p.fetchTileX % 32

	mapAddr := mapBase + uint16(row*32+col)
	p.fetchTileID = p.bus.ReadVRAMBank(0, mapAddr)
	if p.bus.CGBMode() {
		p.fetchAttr = decodeTileAttr(p.bus.ReadVRAMBank(1, mapAddr))
	} else {
		p.fetchAttr = tileAttr{}
	}
	p.fetchFineY = fineY
}

func (p *PPU) doFetchDataLow() {
	p.fetchLow = p.bus.ReadVRAMBank(int(p.fetchAttr.bank), p.tileDataAddr())
}

func (p *PPU) doFetchDataHigh() {
	p.fetchHigh = p.bus.ReadVRAMBank(int(p.fetchAttr.bank), p.tileDataAddr()+1)
}

func (p *PPU) tileDataAddr() uint16 {
	lcdc := p.bus.Read(addr.LCDC)
	fineY := p.fetchFineY
	if p.fetchAttr.flipY {
		fineY = 7 - fineY
	}

	if bit.IsSet(4, lcdc) {
		return addr.TileData0 + uint16(p.fetchTileID)*16 + uint16(fineY)*2
	}
	signed := int8(p.fetchTileID)
	return uint16(int(addr.TileData2) + int(signed)*16 + fineY*2)
}

func (p *PPU) pushBGRow() {
	low, high := p.fetchLow, p.fetchHigh
	for px := 0; px < 8; px++ {
		bitIdx := uint8(7 - px)
		if p.fetchAttr.flipX {
			bitIdx = uint8(px)
		}
		color := colorIndexFromBytes(low, high, bitIdx)
		p.bgFifo = append(p.bgFifo, bgPixel{
			color:    color,
			palette:  p.fetchAttr.palette,
			priority: p.fetchAttr.priority,
		})
	}
}

func (p *PPU) popAndMixPixel() {
	if len(p.bgFifo) == 0 {
		return
	}

	bg := p.bgFifo[0]
	p.bgFifo = p.bgFifo[1:]

	if p.lx < p.scxDiscard && !p.usingWindow {
		p.lx++
		return
	}

	var sp spritePixel
	sp.oamIndex = -1
	if len(p.spriteFifo) > 0 {
		sp = p.spriteFifo[0]
		p.spriteFifo = p.spriteFifo[1:]
	}

	screenX := p.lx
	if screenX >= FramebufferWidth {
		return
	}

	bgEnabled := p.bus.CGBMode() || bit.IsSet(0, p.bus.Read(addr.LCDC))
	bgColor := bg.color
	if !bgEnabled {
		bgColor = 0
	}

	useSprite := sp.oamIndex != -1 && sp.color != 0
	if useSprite && sp.behindBG && bgColor != 0 {
		useSprite = false
	}
	if useSprite && p.bus.CGBMode() && bg.priority && bgColor != 0 && bit.IsSet(0, p.bus.Read(addr.LCDC)) {
		useSprite = false
	}

	var rgb uint32
	if useSprite {
		rgb = p.resolveColor(true, sp.palette, sp.color)
	} else {
		rgb = p.resolveColor(false, bg.palette, bgColor)
	}

	p.framebuffer.SetPixel(uint(screenX), uint(p.line), GBColor(rgb))
	p.lx++
}

func (p *PPU) resolveColor(isSprite bool, palette, colorIndex uint8) uint32 {
	if p.bus.CGBMode() {
		var bgr555 uint16
		if isSprite {
			bgr555 = p.bus.OBJPaletteColor(palette, colorIndex)
		} else {
			bgr555 = p.bus.BGPaletteColor(palette, colorIndex)
		}
		return bgr555ToRGB888(bgr555)
	}

	var paletteReg byte
	if isSprite {
		if palette == 1 {
			paletteReg = p.bus.Read(addr.OBP1)
		} else {
			paletteReg = p.bus.Read(addr.OBP0)
		}
	} else {
		paletteReg = p.bus.Read(addr.BGP)
	}
	shade := (paletteReg >> (colorIndex * 2)) & 0x03
	return uint32(ByteToColor(shade))
}

// bgr555ToRGB888 expands a 5-bit-per-channel CGB palette entry to 8 bits
// per channel by replicating the top 3 bits into the low 3, the
// standard BGR555->RGB888 scaling used by real CGB LCDs. Packed as
// RGBA to match FrameBuffer/ByteToColor's byte order.
func bgr555ToRGB888(v uint16) uint32 {
	r5 := uint8(v & 0x1F)
	g5 := uint8((v >> 5) & 0x1F)
	b5 := uint8((v >> 10) & 0x1F)

	expand := func(c5 uint8) uint32 {
		return uint32(c5)<<3 | uint32(c5)>>2
	}

	r := expand(r5)
	g := expand(g5)
	b := expand(b5)
	return r<<24 | g<<16 | b<<8 | 0xFF
}

func (p *PPU) finishScanline() {
	if p.usingWindow {
		p.windowLine++
	}
	p.setMode(ModeHBlank)
}

func (p *PPU) endScanline() {
	p.dot = 0
	p.line++
	p.writeLY(p.line)

	if p.line >= vblankStartLine {
		p.setMode(ModeVBlank)
		p.bus.RequestInterrupt(addr.VBlankInterrupt)
		return
	}

	p.beginOAMScan()
}

func (p *PPU) advanceVBlankLine() {
	p.dot = 0
	p.line++

	if p.line > lastLine {
		p.line = 0
		p.windowLine = 0
		p.writeLY(0)
		p.beginOAMScan()
		return
	}

	p.writeLY(p.line)
}

// setMode updates the mode and mirrors it into STAT bits 1-0.
func (p *PPU) setMode(mode Mode) {
	p.mode = mode
	stat := p.bus.Read(addr.STAT)
	stat = stat&0xFC | byte(mode)
	p.bus.Write(addr.STAT, stat)
}

// writeLY updates LY and the LYC coincidence flag/interrupt.
func (p *PPU) writeLY(line int) {
	p.bus.Write(addr.LY, byte(line))

	lyc := p.bus.Read(addr.LYC)
	stat := p.bus.Read(addr.STAT)
	if byte(line) == lyc {
		stat = bit.Set(2, stat)
	} else {
		stat = bit.Reset(2, stat)
	}
	p.bus.Write(addr.STAT, stat)
}

// updateSTATLine implements the STAT interrupt's edge-triggered OR
// latch: any of the four STAT interrupt sources being true raises the
// combined signal, but the interrupt only fires on a 0->1 transition.
func (p *PPU) updateSTATLine() {
	stat := p.bus.Read(addr.STAT)
	lycMatch := bit.IsSet(2, stat)

	signal := false
	if bit.IsSet(6, stat) && lycMatch {
		signal = true
	}
	switch p.mode {
	case ModeHBlank:
		signal = signal || bit.IsSet(3, stat)
	case ModeVBlank:
		signal = signal || bit.IsSet(4, stat)
	case ModeOAM:
		signal = signal || bit.IsSet(5, stat)
	}

	if signal && !p.statLine {
		p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
	}
	p.statLine = signal
}
