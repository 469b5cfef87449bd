// Package gameboy ties the CPU, memory bus and PPU together into a
// runnable system: loading a cartridge, stepping instructions, and
// exposing the framebuffer and debug state to a host (a CLI runner, a
// test harness, or an interactive debugger).
package gameboy

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/embertale/pocketcore/gameboy/config"
	"github.com/embertale/pocketcore/gameboy/cpu"
	"github.com/embertale/pocketcore/gameboy/debug"
	"github.com/embertale/pocketcore/gameboy/memory"
	"github.com/embertale/pocketcore/gameboy/timing"
	"github.com/embertale/pocketcore/gameboy/video"
)

// DebuggerState represents the current debugger mode.
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// cyclesPerFrame is the fixed T-state budget of one Game Boy frame:
// 154 scanlines * 456 dots.
const cyclesPerFrame = timing.CyclesPerFrame

// Emulator is the root struct and entry point for running the emulation.
type Emulator struct {
	cpu *cpu.CPU
	bus *Bus
	mem *memory.MMU

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	// Completion detection: used by headless/scenario runs to recognize
	// a test ROM that has settled into its terminal "print result, loop
	// forever" state, rather than always running to a hard frame cap.
	maxFrames     uint64
	minLoopCount  int
	loopRunLength int

	// frameLimiter paces RunUntilFrame's default (free-running) case.
	// Headless/test-ROM runs want to go as fast as possible, so this
	// defaults to a no-op; SetRealtime swaps in a wall-clock pacer for
	// callers that want the core to behave like real hardware.
	frameLimiter timing.Limiter
}

func (e *Emulator) init(mem *memory.MMU) {
	e.bus = NewBus(mem)
	e.cpu = cpu.New(e.bus)
	e.mem = mem
	e.frameLimiter = timing.NewNoOpLimiter()
}

// SetRealtime switches the frame pacer: true paces RunUntilFrame to
// real Game Boy frame timing (~59.7 fps), false (the default) runs as
// fast as the host allows.
func (e *Emulator) SetRealtime(v bool) {
	if v {
		e.frameLimiter = timing.NewAdaptiveLimiter()
	} else {
		e.frameLimiter = timing.NewNoOpLimiter()
	}
}

// New creates a new emulator instance with no cartridge loaded.
func New() *Emulator {
	e := &Emulator{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))
	return e
}

// NewWithFile creates a new emulator instance and loads the ROM at path,
// using default boot options.
func NewWithFile(path string) (*Emulator, error) {
	return NewWithConfig(path, config.Default())
}

// NewWithConfig creates a new emulator instance, loads the ROM at path,
// and applies the given boot options (forced CGB mode, double-speed
// boot hook) before returning it.
func NewWithConfig(path string, boot config.Boot) (*Emulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rom file: %w", err)
	}

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rom header: %w", err)
	}

	slog.Debug("loaded rom", "path", path, "size", len(data), "title", cart.Title())

	mem := memory.NewWithCartridge(cart)
	if boot.ForceCGB {
		mem.SetCGBMode(true)
	}
	if boot.StartInDoubleSpeed {
		mem.SetDoubleSpeed(true)
	}

	e := &Emulator{}
	e.init(mem)
	return e, nil
}

// ConfigureCompletionDetection arms RunUntilComplete's stopping
// condition: run for at most maxFrames, but stop early once the CPU's
// PC is observed unchanged at the start of minLoopCount consecutive
// frames (the PC-spinning pattern blargg-style test ROMs settle into
// once they've printed their result to serial). minLoopCount <= 0
// disables early stopping - RunUntilComplete then always runs exactly
// maxFrames frames.
func (e *Emulator) ConfigureCompletionDetection(maxFrames uint64, minLoopCount int) {
	e.maxFrames = maxFrames
	e.minLoopCount = minLoopCount
	e.loopRunLength = 0
}

// RunUntilComplete runs frames until the configured completion
// condition is met (see ConfigureCompletionDetection) or maxFrames is
// reached, whichever comes first.
func (e *Emulator) RunUntilComplete() {
	for e.frameCount < e.maxFrames {
		startPC := e.cpu.PC()
		e.RunUntilFrame()

		if e.minLoopCount <= 0 {
			continue
		}

		if e.cpu.PC() == startPC {
			e.loopRunLength++
		} else {
			e.loopRunLength = 0
		}

		if e.loopRunLength >= e.minLoopCount {
			slog.Debug("completion detected", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", startPC))
			return
		}
	}
}

// RunUntilFrame runs the CPU until one full frame's worth of T-states
// has elapsed, honoring the debugger's pause/step/step-frame modes.
func (e *Emulator) RunUntilFrame() {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	switch state {
	case DebuggerPaused:
		return
	case DebuggerStep:
		e.debuggerMutex.Lock()
		requested := e.stepRequested
		e.stepRequested = false
		e.debuggerMutex.Unlock()
		if !requested {
			return
		}

		oldPC := e.cpu.PC()
		e.cpu.Step()
		e.instructionCount++
		slog.Debug("step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.PC()))
		e.SetDebuggerState(DebuggerPaused)
	case DebuggerStepFrame:
		e.debuggerMutex.Lock()
		requested := e.frameRequested
		e.frameRequested = false
		e.debuggerMutex.Unlock()
		if !requested {
			return
		}

		e.runFrame()
		e.SetDebuggerState(DebuggerPaused)
	default: // DebuggerRunning
		e.runFrame()
		e.frameLimiter.WaitForNextFrame()
	}
}

// runFrame steps the CPU until cyclesPerFrame T-states have elapsed.
func (e *Emulator) runFrame() {
	total := 0
	for total < cyclesPerFrame {
		total += e.cpu.Step()
		e.instructionCount++
	}
	e.frameCount++
	if e.frameCount%60 == 0 {
		slog.Debug("frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.PC()))
	}
}

func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.mem.PPU.FrameBuffer()
}

func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

func (e *Emulator) GetCPU() *cpu.CPU {
	return e.cpu
}

func (e *Emulator) GetMMU() *memory.MMU {
	return e.mem
}

func (e *Emulator) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

// Debugger control methods.

func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
}

// ExtractDebugData snapshots CPU/memory/OAM/VRAM state for debug UIs.
// Returns nil if the emulator hasn't been initialized (no MMU/CPU yet).
func (e *Emulator) ExtractDebugData() *debug.CompleteDebugData {
	if e.mem == nil || e.cpu == nil {
		return nil
	}

	pc := e.cpu.PC()

	const snapshotSize = 64
	startAddr := pc
	size := snapshotSize
	if uint32(startAddr)+uint32(size) > 0x10000 {
		size = int(0x10000 - uint32(startAddr))
	}
	snapshotBytes := make([]byte, size)
	for i := 0; i < size; i++ {
		snapshotBytes[i] = e.mem.Read(startAddr + uint16(i))
	}

	cpuState := &debug.CPUState{
		SP:     e.cpu.SP(),
		PC:     pc,
		IME:    e.cpu.IME(),
		Cycles: e.instructionCount,
	}

	lcdc := e.mem.Read(0xFF40)
	spriteHeight := 8
	if lcdc&0x04 != 0 {
		spriteHeight = 16
	}
	currentLine := int(e.mem.Read(0xFF44))

	return &debug.CompleteDebugData{
		OAM:    debug.ExtractOAMDataFromReader(e.mem, currentLine, spriteHeight),
		VRAM:   debug.ExtractVRAMData(e.mem),
		CPU:    cpuState,
		Memory: &debug.MemorySnapshot{StartAddr: startAddr, Bytes: snapshotBytes},

		DebuggerState:   debuggerStateToDebugPkg(e.GetDebuggerState()),
		InterruptEnable: e.mem.Read(0xFFFF),
		InterruptFlags:  e.mem.Read(0xFF0F),
		CGBMode:         e.mem.CGBMode(),
		DoubleSpeed:     e.mem.DoubleSpeed(),
	}
}

func debuggerStateToDebugPkg(s DebuggerState) debug.DebuggerState {
	switch s {
	case DebuggerPaused:
		return debug.DebuggerPaused
	case DebuggerStep:
		return debug.DebuggerStepInstruction
	case DebuggerStepFrame:
		return debug.DebuggerStepFrame
	default:
		return debug.DebuggerRunning
	}
}
