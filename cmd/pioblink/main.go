// Command pioblink inspects, simulates and packages the presets of the blink
// firmware, and shows the firmware's diagnostics from a serial port.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorCyan  = "\x1b[36m"
	colorDim   = "\x1b[2m"
)

var (
	// logger carries progress and diagnostics; command output goes to the
	// command's output writer.
	logger = log.New(os.Stderr, "", 0)

	noColor bool

	rootCmd = &cobra.Command{
		Use:           "pioblink",
		Short:         "RP2040 PIO blink presets",
		Long:          "Inspect, simulate and package the clock and PIO presets of the blink firmware.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(presetsCmd, simulateCmd, asmCmd, disasmCmd, hexCmd, reportCmd, bundleCmd, monitorCmd)
}

// colorize wraps s in an ANSI color unless color is turned off. The
// colorable writers translate the codes for terminals that need it.
func colorize(color, s string) string {
	if noColor {
		return s
	}
	return color + s + colorReset
}

func main() {
	rootCmd.SetOut(colorable.NewColorableStdout())
	logger.SetOutput(colorable.NewColorableStderr())
	if err := rootCmd.Execute(); err != nil {
		logger.Println(colorize(colorRed, fmt.Sprint("error: ", err)))
		os.Exit(1)
	}
}
