package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	monitorOpts = struct {
		port string
		baud int
	}{}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Show the firmware's diagnostics",
		Long:  "Read the diagnostic records the firmware prints during start-up from a serial port.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := monitorOpts.port
			if port == "" {
				var err error
				port, err = defaultPort()
				if err != nil {
					return err
				}
			}
			p, err := serial.Open(port, &serial.Mode{BaudRate: monitorOpts.baud})
			if err != nil {
				return fmt.Errorf("could not open %s: %w", port, err)
			}
			logger.Printf("connected to %s, press Ctrl-C to exit", colorize(colorGreen, port))

			var closed atomic.Bool
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			defer signal.Stop(sig)
			go func() {
				<-sig
				closed.Store(true)
				p.Close()
			}()

			err = monitor(p, cmd.OutOrStdout())
			if closed.Load() {
				return nil
			}
			p.Close()
			return err
		},
	}
)

func init() {
	monitorCmd.Flags().StringVar(&monitorOpts.port, "port", "", "serial port (default: the only one present)")
	monitorCmd.Flags().IntVar(&monitorOpts.baud, "baudrate", 115200, "baud rate")
}

// defaultPort returns the serial port to use when none is given.
func defaultPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", err
	}
	switch len(ports) {
	case 0:
		return "", errors.New("no serial ports available")
	case 1:
		return ports[0], nil
	}
	return "", fmt.Errorf("multiple serial ports available, choose one with --port: %v", ports)
}

// recordLine matches a diagnostic record as printed by the firmware
// ("[ 3 ] msg") or by the host sink ("[3] msg").
var recordLine = regexp.MustCompile(`^\[\s*(\d+)\s*\]\s?(.*)$`)

// parseRecord splits a diagnostic line into its stamp and message.
func parseRecord(line string) (stamp uint64, msg string, ok bool) {
	m := recordLine.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	stamp, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return stamp, m[2], true
}

// monitor copies diagnostic records from r to w. Stamps count up by one, so
// a gap means records were lost and a zero means the firmware restarted.
func monitor(r io.Reader, w io.Writer) error {
	var next uint64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		stamp, msg, ok := parseRecord(line)
		if !ok {
			fmt.Fprintln(w, colorize(colorDim, line))
			continue
		}
		switch {
		case stamp == 0 && next != 0:
			fmt.Fprintln(w, colorize(colorCyan, "--- restart ---"))
		case stamp > next:
			fmt.Fprintln(w, colorize(colorRed, fmt.Sprintf("--- %d records lost ---", stamp-next)))
		}
		next = stamp + 1
		fmt.Fprintf(w, "%s %s\n", colorize(colorDim, fmt.Sprintf("[%d]", stamp)), msg)
	}
	return scanner.Err()
}
