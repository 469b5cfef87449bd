package video

// SpritePriorityBuffer manages sprite-to-pixel ownership for priority,
// see https://gbdev.io/pandocs/OAM.html#drawing-priority. DMG hardware
// (and CGB games that opt into DMG-compatible priority via OPRI)
// enforces strict X-coordinate priority:
//   - sprites with lower X coordinates have priority
//   - when X coordinates match, lower OAM indices win.
//
// Native CGB priority (OPRI's power-on default) drops the X comparison
// entirely and goes by OAM index alone - see TryClaimPixel's
// oamPriorityOnly parameter.
//
// Example 1: overlap with different X coordinates
//
//	Pixels:     0  1  2  3  4  5  6  7  8  9 10 11 12 13 14 15 16 17
//	Sprite 0:                  [-----A-----]                    (X=5, OAM=0)
//	Sprite 1:                           [-----B-----]           (X=10, OAM=1)
//	Result:                    [-----A-----]--B-----]
//
// Sprite 0 wins all its pixels because it has lower X coordinate.
//
// Example 2: overlap with same X coordinates
//
//	Pixels:    10 11 12 13 14 15 16 17 18 19 20 21 22 23 24 25
//	Sprite 1:           [-----D-----]                          (X=12, OAM=1)
//	Sprite 3:           [-----C-----]                          (X=12, OAM=3)
//	Sprite 5:  [-----E-----]                                   (X=10, OAM=5)
//	Result:    [-----E-----]--D-----]
//
// - Pixels 10-17: Sprite 5 wins (lowest X=10, beats both Sprites 1 and 3)
// - Pixels 18-19: Sprite 1 wins (same X=12, lower OAM than Sprite 3)
//
// How the priority buffer works:
//
// Instead of sorting sprites by priority, we use a per-pixel ownership model:
//
// 1. Initialize: Clear buffer, marking all pixels as unowned (-1)
// 2. Selection phase: For each sprite (in OAM order):
//
//		For each pixel the sprite covers (8 pixels wide):
//		  	Check current owner of that pixel
//	  		If unowned OR this sprite has higher priority:
//	  			Claim the pixel (store sprite index and X coordinate)
//
// 3. Render phase:
//
//		For each sprite:
//	 		Only draw pixels that this sprite owns
//	  		Skip transparent pixels and background priority checks
//
// A simpler solution would be to collect sprites by looking at their Y coord
// in a first loop (0 to 40, selection priority), then, before drawing, sorting
// them by (X, OAM index) and drawing in that order. This buffer instead avoids
// sorts by precomputing ownership during the selection phase.
type SpritePriorityBuffer struct {
	// ownerIndex tracks which sprite (by OAM index) owns each pixel
	// -1 means no sprite owns this pixel
	ownerIndex [FramebufferWidth]int

	// ownerX tracks the X coordinate of the sprite that owns each pixel
	// used for priority comparison when multiple sprites overlap
	ownerX [FramebufferWidth]int
}

// Clear resets the buffer for a new scanline
func (s *SpritePriorityBuffer) Clear() {
	for i := range FramebufferWidth {
		s.ownerIndex[i] = -1
		s.ownerX[i] = 0xFF // max value ensures any sprite wins initially
	}
}

// TryClaimPixel attempts to claim ownership of a pixel for a sprite.
// Returns true if the sprite wins priority and claims the pixel.
//
// oamPriorityOnly selects which of the two hardware priority schemes
// applies: DMG (and CGB with OPRI set to DMG-compatibility mode) always
// compares X coordinate first; native CGB priority (OPRI's default,
// OAM order) ignores X entirely and lets whichever sprite claimed a
// pixel first - i.e. the lowest OAM index, since sprites are always
// offered to this buffer in OAM order - keep it:
//  1. If no sprite owns the pixel, this sprite wins.
//  2. oamPriorityOnly: the current owner keeps the pixel; otherwise,
//     the lower X coordinate wins, with ties broken by lower OAM index.
func (s *SpritePriorityBuffer) TryClaimPixel(pixelX, spriteIndex, spriteX int, oamPriorityOnly bool) bool {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return false
	}

	currentOwner := s.ownerIndex[pixelX]

	if currentOwner == -1 {
		s.ownerIndex[pixelX] = spriteIndex
		s.ownerX[pixelX] = spriteX
		return true
	}

	if oamPriorityOnly {
		return false
	}

	currentX := s.ownerX[pixelX]

	if spriteX < currentX {
		s.ownerIndex[pixelX] = spriteIndex
		s.ownerX[pixelX] = spriteX
		return true
	}

	if spriteX == currentX && spriteIndex < currentOwner {
		s.ownerIndex[pixelX] = spriteIndex
		s.ownerX[pixelX] = spriteX
		return true
	}

	return false
}

// GetOwner returns the sprite index that owns a pixel, or -1 if none
func (s *SpritePriorityBuffer) GetOwner(pixelX int) int {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return -1
	}
	return s.ownerIndex[pixelX]
}