// Package pioasm assembles and disassembles PIO programs written in the
// syntax of the Raspberry Pi pioasm tool.
//
// One program per source, without side-set. Supported directives are
// .program, .origin, .define, .wrap_target, .wrap and .word. Operands, delays
// and .define values are C style constant expressions over integers, .define
// names and labels.
package pioasm

import (
	"errors"
	"fmt"
	"go/scanner"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/kahara/pioblink/src/machine/pio"
)

// ErrBad is wrapped by every error Assemble returns.
var ErrBad = errors.New("pioasm: bad program")

type sourceLine struct {
	pos  token.Position
	raw  string
	text string
}

type assembler struct {
	errs    scanner.ErrorList
	symbols map[string]int64

	name       string
	origin     int8
	wrapTarget int
	wrap       int
	count      int
	sawProgram bool
	instrs     []sourceLine
}

// Assemble assembles src. filename is only used in error positions and as
// the program name when there is no .program directive.
//
// The returned error wraps ErrBad and a scanner.ErrorList with one entry per
// offending line, or the reason the program does not validate.
func Assemble(filename, src string) (pio.Program, error) {
	a := &assembler{
		symbols:    map[string]int64{},
		name:       strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		origin:     -1,
		wrapTarget: -1,
		wrap:       -1,
	}

	// First pass: labels, defines and directives.
	for i, raw := range strings.Split(src, "\n") {
		l := sourceLine{
			pos: token.Position{Filename: filename, Line: i + 1, Column: 1},
			raw: raw,
		}
		text := stripComment(raw)
		text, labels := splitLabels(text)
		for _, label := range labels {
			a.define(l, label, int64(a.count))
		}
		l.text = strings.TrimSpace(text)
		switch {
		case l.text == "":
		case l.text[0] == '.':
			a.directive(l)
		default:
			a.instrs = append(a.instrs, l)
			a.count++
		}
	}

	// Second pass: encode, now that every label is known.
	code := make([]uint16, 0, len(a.instrs))
	for _, l := range a.instrs {
		code = append(code, a.instruction(l))
	}

	if len(a.errs) > 0 {
		a.errs.Sort()
		return pio.Program{}, fmt.Errorf("%w: %w", ErrBad, a.errs.Err())
	}

	prog := pio.Program{
		Name:   a.name,
		Origin: a.origin,
		Code:   code,
	}
	if a.wrapTarget >= 0 {
		prog.WrapTarget = uint8(a.wrapTarget)
	}
	if a.wrap >= 0 {
		prog.Wrap = uint8(a.wrap)
	} else if len(code) > 0 {
		prog.Wrap = uint8(len(code) - 1)
	}
	if err := prog.Validate(); err != nil {
		return pio.Program{}, fmt.Errorf("%w: %w", ErrBad, err)
	}
	return prog, nil
}

func (a *assembler) errorf(l sourceLine, near string, format string, args ...any) {
	pos := l.pos
	if near != "" {
		if i := strings.Index(l.raw, near); i >= 0 {
			pos.Column = i + 1
		}
	}
	a.errs.Add(pos, fmt.Sprintf(format, args...))
}

func (a *assembler) define(l sourceLine, name string, v int64) {
	if _, ok := a.symbols[name]; ok {
		a.errorf(l, name, "%s redefined", name)
		return
	}
	a.symbols[name] = v
}

// eval evaluates the operand expr of line l.
func (a *assembler) eval(l sourceLine, expr string) (int64, bool) {
	pos := l.pos
	if i := strings.Index(l.raw, expr); i >= 0 {
		pos.Column = i + 1
	}
	v, err := evalExpr(pos, expr, a.symbols)
	if err != nil {
		a.errs.Add(err.Pos, err.Msg)
		return 0, false
	}
	return v, true
}

// evalRange evaluates expr and checks that it lies in [lo, hi].
func (a *assembler) evalRange(l sourceLine, what, expr string, lo, hi int64) (uint8, bool) {
	v, ok := a.eval(l, expr)
	if !ok {
		return 0, false
	}
	if v < lo || v > hi {
		a.errorf(l, expr, "%s %d out of range %d..%d", what, v, lo, hi)
		return 0, false
	}
	return uint8(v), true
}

func (a *assembler) directive(l sourceLine) {
	fields, err := shlex.Split(l.text)
	if err != nil || len(fields) == 0 {
		a.errorf(l, "", "malformed directive")
		return
	}
	switch dir := strings.ToLower(fields[0]); dir {
	case ".program":
		if a.sawProgram {
			a.errorf(l, dir, "only one program per source")
			return
		}
		if len(fields) != 2 {
			a.errorf(l, dir, ".program takes a name")
			return
		}
		a.sawProgram = true
		a.name = fields[1]
	case ".origin":
		if len(fields) < 2 {
			a.errorf(l, dir, ".origin takes an offset")
			return
		}
		if v, ok := a.evalRange(l, "origin", strings.Join(fields[1:], " "), 0, pio.InstructionMemorySize-1); ok {
			a.origin = int8(v)
		}
	case ".define":
		args := fields[1:]
		if len(args) > 0 && strings.EqualFold(args[0], "public") {
			args = args[1:]
		}
		if len(args) < 2 {
			a.errorf(l, dir, ".define takes a name and a value")
			return
		}
		if v, ok := a.eval(l, strings.Join(args[1:], " ")); ok {
			a.define(l, args[0], v)
		}
	case ".wrap_target":
		if a.wrapTarget >= 0 {
			a.errorf(l, dir, ".wrap_target already set")
			return
		}
		a.wrapTarget = a.count
	case ".wrap":
		if a.wrap >= 0 {
			a.errorf(l, dir, ".wrap already set")
			return
		}
		if a.count == 0 {
			a.errorf(l, dir, ".wrap before any instruction")
			return
		}
		a.wrap = a.count - 1
	case ".word":
		if len(fields) < 2 {
			a.errorf(l, dir, ".word takes a value")
			return
		}
		// Encoded in the second pass like any instruction.
		a.instrs = append(a.instrs, l)
		a.count++
	case ".side_set":
		a.errorf(l, dir, "side-set is not supported")
	case ".lang_opt":
	default:
		a.errorf(l, dir, "unknown directive %s", dir)
	}
}

// stripComment removes ; and // comments.
func stripComment(s string) string {
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	return s
}

// splitLabels strips leading "name:" and "public name:" labels.
func splitLabels(s string) (string, []string) {
	var labels []string
	for {
		rest := strings.TrimSpace(s)
		if len(rest) >= 7 && strings.EqualFold(rest[:7], "public ") {
			rest = strings.TrimSpace(rest[7:])
		}
		n := identLen(rest)
		if n == 0 || n >= len(rest) || rest[n] != ':' {
			return s, labels
		}
		labels = append(labels, rest[:n])
		s = rest[n+1:]
	}
}

func identLen(s string) int {
	for i, c := range s {
		switch {
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return i
		}
	}
	return len(s)
}
