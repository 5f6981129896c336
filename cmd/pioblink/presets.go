package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/preset"
)

var (
	presetsOpts = struct {
		yaml bool
	}{}

	presetsCmd = &cobra.Command{
		Use:   "presets [NAME|FILE...]",
		Short: "List presets",
		Long:  "List the built-in presets, or the named presets and preset files, with their clock and blink period.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = preset.Names()
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				ps, err := preset.Resolve(arg)
				if err != nil {
					return err
				}
				if presetsOpts.yaml {
					data, err := preset.Marshal(ps)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "---\n%s", data)
					continue
				}
				period := "not periodic"
				if tm, err := ps.Timing(); err == nil {
					period = tm.Period.String()
				}
				fmt.Fprintf(out, "%-12s clk_sys %3d MHz  pin %2d  clkdiv %5d.%03d  period %s\n",
					colorize(colorCyan, ps.Name), ps.SysFreq()/1000000, ps.Pin,
					ps.ClkInt, uint32(ps.ClkFrac)*1000/256, period)
			}
			return nil
		},
	}
)

func init() {
	presetsCmd.Flags().BoolVar(&presetsOpts.yaml, "yaml", false, "print the presets as YAML preset files")
}

// presetFlag is the --preset flag shared by the commands that build from a
// preset.
type presetFlag struct {
	name string
}

func (f *presetFlag) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "preset", "p", preset.Default, "built-in preset name or preset file")
}

func (f *presetFlag) load() (preset.Preset, error) {
	return preset.Resolve(f.name)
}

// diagLogger forwards diagnostic records to the logger when verbose is set.
func diagLogger(verbose bool) *diag.Logger {
	if !verbose {
		return nil
	}
	return diag.New(diag.FuncSink(func(stamp uint64, msg string) {
		logger.Printf("%s %s", colorize(colorDim, fmt.Sprintf("[%d]", stamp)), msg)
	}))
}
