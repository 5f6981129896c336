package builder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/kahara/pioblink/src/device/rp"
)

// instrMemBase is the bus address of INSTR_MEM0 of PIO0. Each slot is a
// 32-bit register with the instruction in the low half.
const instrMemBase = rp.PIO0_BASE + rp.PIO_INSTR_MEM0_Offset

var errBadHex = errors.New("builder: not a PIO instruction memory image")

// objcopyError is an error returned by functions that act like objcopy.
type objcopyError struct {
	Op  string
	Err error
}

func (e objcopyError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e objcopyError) Unwrap() error { return e.Err }

// WriteHex writes the loaded program of s as an Intel HEX image of the
// instruction memory registers it occupies.
func WriteHex(w io.Writer, s *Simulation) error {
	code := s.Code()
	data := make([]byte, 4*len(code))
	for i, word := range code {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(word))
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(uint32(instrMemBase)+4*uint32(s.Offset), data); err != nil {
		return objcopyError{"failed to create .hex file", err}
	}
	if err := mem.DumpIntelHex(w, 16); err != nil {
		return objcopyError{"failed to write .hex file", err}
	}
	return nil
}

// ReadHex reads an image written by WriteHex back into the slot it starts at
// and the instruction words.
func ReadHex(r io.Reader) (offset uint8, code []uint16, err error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, nil, objcopyError{"failed to parse .hex file", err}
	}
	segs := mem.GetDataSegments()
	if len(segs) != 1 {
		return 0, nil, fmt.Errorf("%w: %d segments", errBadHex, len(segs))
	}
	seg := segs[0]
	start := uintptr(seg.Address)
	end := start + uintptr(len(seg.Data))
	if start < instrMemBase || end > instrMemBase+4*rp.PIO_INSTR_MEM_SIZE || start%4 != 0 || len(seg.Data)%4 != 0 {
		return 0, nil, fmt.Errorf("%w: %#08x..%#08x", errBadHex, start, end)
	}
	for i := 0; i < len(seg.Data); i += 4 {
		v := binary.LittleEndian.Uint32(seg.Data[i:])
		if v > 0xffff {
			return 0, nil, fmt.Errorf("%w: slot value %#08x", errBadHex, v)
		}
		code = append(code, uint16(v))
	}
	return uint8((start - instrMemBase) / 4), code, nil
}
