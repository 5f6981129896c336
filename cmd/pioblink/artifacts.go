package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kahara/pioblink/builder"
)

// artifactCmd builds a command that simulates a preset and writes one
// artifact of it to the -o file.
func artifactCmd(use, short string, write func(w io.Writer, s *builder.Simulation) error) *cobra.Command {
	var (
		preset presetFlag
		output string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("no output file given (-o)")
			}
			ps, err := preset.load()
			if err != nil {
				return err
			}
			s, err := builder.Simulate(ps, 0, nil)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := write(f, s); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Printf("wrote %s", colorize(colorGreen, output))
			return nil
		},
	}
	preset.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

var (
	hexCmd    = artifactCmd("hex", "Write the loaded program as Intel HEX", builder.WriteHex)
	reportCmd = artifactCmd("report", "Write an HTML report of a preset", builder.RenderReport)
	bundleCmd = artifactCmd("bundle", "Write an ar archive of every artifact of a preset", builder.WriteBundle)
)
