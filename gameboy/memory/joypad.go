package memory

// JoypadKey represents a key on the Gameboy joypad. P1/joypad-interrupt
// handling itself lives directly on MMU (see HandleKeyPress/
// HandleKeyRelease in mem.go) since the falling-edge interrupt and the
// buttons/d-pad line-select behavior are tied into the same register
// reads/writes the rest of the IO space goes through; this file keeps
// just the key enum both that code and callers share.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)
