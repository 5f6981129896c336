package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kahara/pioblink/builder"
)

var (
	simulateOpts = struct {
		preset  presetFlag
		cycles  uint64
		verbose bool
	}{}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a preset on the simulator",
		Long:  "Boot a preset on the register-level simulator, run the state machine and measure the waveform on its pin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := simulateOpts.preset.load()
			if err != nil {
				return err
			}
			s, err := builder.Simulate(ps, simulateOpts.cycles, diagLogger(simulateOpts.verbose))
			if err != nil {
				for _, f := range s.Faults {
					logger.Println(colorize(colorRed, f.String()))
				}
				return err
			}
			printSimulation(cmd.OutOrStdout(), s)
			return nil
		},
	}
)

func init() {
	simulateOpts.preset.register(simulateCmd)
	simulateCmd.Flags().Uint64Var(&simulateOpts.cycles, "cycles", 0, "system clock cycles to run (default: five blink periods)")
	simulateCmd.Flags().BoolVarP(&simulateOpts.verbose, "verbose", "v", false, "show the bring-up diagnostics")
}

func printSimulation(w io.Writer, s *builder.Simulation) {
	fmt.Fprintf(w, "preset    %s\n", colorize(colorCyan, s.Preset.Name))
	fmt.Fprintf(w, "clk_sys   %d Hz\n", s.Clocks.Sys)
	fmt.Fprintf(w, "clk_ref   %d Hz\n", s.Clocks.Ref)
	fmt.Fprintf(w, "clk_usb   %d Hz\n", s.Clocks.USB)
	fmt.Fprintf(w, "pll_sys   %d Hz\n", s.Clocks.PLLSys)
	fmt.Fprintf(w, "pll_usb   %d Hz\n", s.Clocks.PLLUSB)
	fmt.Fprintf(w, "loaded at %d\n", s.Offset)
	if s.Timing != nil {
		fmt.Fprintf(w, "expected  %d sm cycles, %.0f sys cycles, %v\n",
			s.Timing.LoopCycles, s.Timing.SysCycles, s.Timing.Period)
	}
	if s.Waveform != nil {
		fmt.Fprintf(w, "measured  %s\n", colorize(colorGreen, s.Waveform.String()))
		fmt.Fprintf(w, "period    %v\n", s.Waveform.Duration(s.Clocks.Sys))
	} else {
		fmt.Fprintf(w, "measured  no waveform in %d cycles\n", s.Cycles)
	}
	for _, f := range s.Faults {
		fmt.Fprintln(w, colorize(colorRed, f.String()))
	}
}
