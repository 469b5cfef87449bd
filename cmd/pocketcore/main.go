package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/embertale/pocketcore/gameboy"
	"github.com/embertale/pocketcore/gameboy/config"
)

func main() {
	app := cli.NewApp()
	app.Name = "pocketcore"
	app.Usage = "pocketcore run --rom test.gb --frames 300 --serial-assert Passed"
	app.Description = "Headless Game Boy / Game Boy Color emulator core runner"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "run a ROM for up to --frames frames, stopping early once its PC settles into a loop",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "rom",
					Usage: "path to the ROM file",
				},
				cli.IntFlag{
					Name:  "frames",
					Usage: "maximum number of frames to run",
					Value: 60,
				},
				cli.StringFlag{
					Name:  "serial-assert",
					Usage: "fail with a non-zero exit code unless this substring appears in the serial output",
				},
				cli.BoolFlag{
					Name:  "force-cgb",
					Usage: "run the cartridge in CGB mode even if it isn't CGB-only",
				},
				cli.IntFlag{
					Name:  "loop-detect",
					Usage: "stop early once the CPU's PC repeats for this many consecutive frames (0 disables early stop)",
					Value: 60,
				},
			},
			Action: runROM,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("pocketcore failed", "error", err)
		os.Exit(1)
	}
}

func runROM(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			return errors.New("no ROM path provided, use --rom")
		}
	}

	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("--frames must be a positive value")
	}

	boot := config.Default()
	boot.ForceCGB = c.Bool("force-cgb")
	boot.Frames = frames

	emu, err := gameboy.NewWithConfig(romPath, boot)
	if err != nil {
		return fmt.Errorf("loading rom: %w", err)
	}

	emu.ConfigureCompletionDetection(uint64(frames), c.Int("loop-detect"))
	emu.RunUntilComplete()

	slog.Info("run complete",
		"rom", romPath,
		"frames", emu.GetFrameCount(),
		"instructions", emu.GetInstructionCount())

	assertion := c.String("serial-assert")
	if assertion == "" {
		return nil
	}

	output := emu.GetMMU().SerialOutput()
	if !strings.Contains(output, assertion) {
		fmt.Fprintf(os.Stderr, "serial output:\n%s\n", output)
		return fmt.Errorf("serial output did not contain %q", assertion)
	}

	slog.Info("serial assertion passed", "assert", assertion)
	return nil
}
