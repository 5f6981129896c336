package main

import (
	"errors"
	"fmt"
	"go/scanner"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kahara/pioblink/builder"
	"github.com/kahara/pioblink/src/machine/pio"
	"github.com/kahara/pioblink/src/machine/pio/pioasm"
)

var (
	asmOpts = struct {
		format bool
	}{}

	asmCmd = &cobra.Command{
		Use:   "asm FILE",
		Short: "Assemble a PIO program",
		Long:  "Assemble a pioasm source file and print the instruction words with their disassembly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := pioasm.Assemble(args[0], string(src))
			if err != nil {
				var list scanner.ErrorList
				if errors.As(err, &list) {
					for _, e := range list {
						logger.Println(colorize(colorRed, e.Error()))
					}
					return pioasm.ErrBad
				}
				return err
			}
			if asmOpts.format {
				_, err := io.WriteString(cmd.OutOrStdout(), pioasm.Format(prog))
				return err
			}
			printListing(cmd.OutOrStdout(), 0, prog)
			return nil
		},
	}

	disasmOpts = struct {
		hex string
	}{}

	disasmCmd = &cobra.Command{
		Use:   "disasm [WORD...]",
		Short: "Disassemble PIO instruction words",
		Long:  "Disassemble instruction words given as arguments, or the instruction memory image in an Intel HEX file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var code []uint16
			offset := uint8(0)
			if disasmOpts.hex != "" {
				f, err := os.Open(disasmOpts.hex)
				if err != nil {
					return err
				}
				defer f.Close()
				offset, code, err = builder.ReadHex(f)
				if err != nil {
					return err
				}
			}
			for _, arg := range args {
				w, err := strconv.ParseUint(arg, 0, 16)
				if err != nil {
					return fmt.Errorf("bad instruction word %q", arg)
				}
				code = append(code, uint16(w))
			}
			if len(code) == 0 {
				return errors.New("nothing to disassemble")
			}
			prog := pio.Program{Name: "disasm", Origin: -1, Wrap: uint8(len(code) - 1), Code: code}
			printListing(cmd.OutOrStdout(), offset, prog)
			return nil
		},
	}
)

func init() {
	asmCmd.Flags().BoolVar(&asmOpts.format, "format", false, "print the program back as canonical source")
	disasmCmd.Flags().StringVar(&disasmOpts.hex, "hex", "", "read the words from an Intel HEX image")
}

func printListing(w io.Writer, offset uint8, prog pio.Program) {
	for i, word := range prog.Code {
		mark := "  "
		switch {
		case i == int(prog.WrapTarget) && i == int(prog.Wrap):
			mark = "<>"
		case i == int(prog.WrapTarget):
			mark = "> "
		case i == int(prog.Wrap):
			mark = " <"
		}
		fmt.Fprintf(w, "%2d %s %s  %s\n", int(offset)+i, mark,
			colorize(colorDim, fmt.Sprintf("%04x", word)), pio.Decode(word))
	}
}
