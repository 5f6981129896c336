package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/blakesmith/ar"

	"github.com/kahara/pioblink/src/machine/pio/pioasm"
	"github.com/kahara/pioblink/src/preset"
)

// Bundle member names, in archive order.
const (
	BundleHex    = "program.hex"
	BundleSource = "program.pio"
	BundlePreset = "preset.yaml"
	BundleReport = "report.html"
)

// WriteBundle writes an ar archive holding every artifact of s. The archive
// carries no timestamps or owners, so equal simulations give equal bytes.
func WriteBundle(w io.Writer, s *Simulation) error {
	type member struct {
		name   string
		render func(io.Writer) error
	}
	members := []member{
		{BundleHex, func(w io.Writer) error { return WriteHex(w, s) }},
		{BundleSource, func(w io.Writer) error {
			_, err := io.WriteString(w, pioasm.Format(s.Preset.Program))
			return err
		}},
		{BundlePreset, func(w io.Writer) error {
			data, err := preset.Marshal(s.Preset)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}},
		{BundleReport, func(w io.Writer) error { return RenderReport(w, s) }},
	}

	arwriter := ar.NewWriter(w)
	if err := arwriter.WriteGlobalHeader(); err != nil {
		return err
	}
	for _, m := range members {
		var buf bytes.Buffer
		if err := m.render(&buf); err != nil {
			return fmt.Errorf("bundle %s: %w", m.name, err)
		}
		header := &ar.Header{
			Name:    m.name,
			ModTime: time.Unix(0, 0),
			Uid:     0,
			Gid:     0,
			Mode:    0644,
			Size:    int64(buf.Len()),
		}
		if err := arwriter.WriteHeader(header); err != nil {
			return err
		}
		if _, err := arwriter.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ReadBundle returns the members of an archive written by WriteBundle, by
// name.
func ReadBundle(r io.Reader) (map[string][]byte, error) {
	members := map[string][]byte{}
	arreader := ar.NewReader(r)
	for {
		header, err := arreader.Next()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(arreader)
		if err != nil {
			return nil, err
		}
		members[header.Name] = data
	}
}
