package pioasm

import (
	"strings"

	"github.com/google/shlex"

	"github.com/kahara/pioblink/src/machine/pio"
)

var jmpConds = map[string]pio.JmpCond{
	"!x":    pio.JmpXZero,
	"x--":   pio.JmpXNZeroPostDec,
	"!y":    pio.JmpYZero,
	"y--":   pio.JmpYNZeroPostDec,
	"x!=y":  pio.JmpXNotEqualY,
	"pin":   pio.JmpPinInput,
	"!osre": pio.JmpOSRNotEmpty,
}

var waitSources = map[string]pio.WaitSource{
	"gpio": pio.WaitGPIO,
	"pin":  pio.WaitPin,
	"irq":  pio.WaitIRQ,
}

var inSources = map[string]pio.InSource{
	"pins": pio.InPins,
	"x":    pio.InX,
	"y":    pio.InY,
	"null": pio.InNull,
	"isr":  pio.InISR,
	"osr":  pio.InOSR,
}

var outDests = map[string]pio.OutDest{
	"pins":    pio.OutPins,
	"x":       pio.OutX,
	"y":       pio.OutY,
	"null":    pio.OutNull,
	"pindirs": pio.OutPinDirs,
	"pc":      pio.OutPC,
	"isr":     pio.OutISR,
	"exec":    pio.OutExec,
}

var movDests = map[string]pio.MovDest{
	"pins": pio.MovDestPins,
	"x":    pio.MovDestX,
	"y":    pio.MovDestY,
	"exec": pio.MovDestExec,
	"pc":   pio.MovDestPC,
	"isr":  pio.MovDestISR,
	"osr":  pio.MovDestOSR,
}

var movSources = map[string]pio.MovSource{
	"pins":   pio.MovSrcPins,
	"x":      pio.MovSrcX,
	"y":      pio.MovSrcY,
	"null":   pio.MovSrcNull,
	"status": pio.MovSrcStatus,
	"isr":    pio.MovSrcISR,
	"osr":    pio.MovSrcOSR,
}

var setDests = map[string]pio.SetDest{
	"pins":    pio.SetPins,
	"x":       pio.SetX,
	"y":       pio.SetY,
	"pindirs": pio.SetPinDirs,
}

// instruction encodes one instruction or .word line. Errors are recorded and
// a zero word returned.
func (a *assembler) instruction(l sourceLine) uint16 {
	text, delay, ok := a.splitDelay(l)
	if !ok {
		return 0
	}
	fields, err := shlex.Split(text)
	if err != nil || len(fields) == 0 {
		a.errorf(l, "", "malformed instruction")
		return 0
	}
	mnemonic := strings.ToLower(fields[0])
	args := fields[1:]
	ops := operands(args)

	if mnemonic == ".word" {
		if delay != 0 {
			a.errorf(l, "[", ".word takes no delay")
			return 0
		}
		v, ok := a.eval(l, strings.Join(args, " "))
		if !ok {
			return 0
		}
		if v < 0 || v > 0xffff {
			a.errorf(l, "", ".word %d out of range", v)
			return 0
		}
		return uint16(v)
	}

	var instr pio.Instruction
	switch mnemonic {
	case "nop":
		if len(args) != 0 {
			a.errorf(l, args[0], "nop takes no operands")
			return 0
		}
		nop := pio.Nop()
		nop.Delay = delay
		instr = nop
	case "jmp":
		instr, ok = a.jmp(l, ops, delay)
	case "wait":
		instr, ok = a.wait(l, args, delay)
	case "in":
		instr, ok = a.shift(l, ops, delay, true)
	case "out":
		instr, ok = a.shift(l, ops, delay, false)
	case "push", "pull":
		instr, ok = a.fifo(l, mnemonic, args, delay)
	case "mov":
		instr, ok = a.mov(l, ops, delay)
	case "irq":
		instr, ok = a.irq(l, args, delay)
	case "set":
		instr, ok = a.set(l, ops, delay)
	default:
		a.errorf(l, fields[0], "unknown instruction %q", fields[0])
		return 0
	}
	if !ok {
		return 0
	}
	return instr.Encode()
}

// splitDelay removes a trailing [delay] from the line.
func (a *assembler) splitDelay(l sourceLine) (string, uint8, bool) {
	text := l.text
	if !strings.HasSuffix(text, "]") {
		return text, 0, true
	}
	i := strings.LastIndex(text, "[")
	if i < 0 {
		a.errorf(l, "]", "unbalanced ]")
		return "", 0, false
	}
	d, ok := a.evalRange(l, "delay", text[i+1:len(text)-1], 0, pio.MaxDelay)
	return strings.TrimSpace(text[:i]), d, ok
}

// operands splits comma separated operands.
func operands(args []string) []string {
	joined := strings.TrimSpace(strings.Join(args, " "))
	if joined == "" {
		return nil
	}
	ops := strings.Split(joined, ",")
	for i := range ops {
		ops[i] = strings.TrimSpace(ops[i])
	}
	return ops
}

func (a *assembler) lookup(l sourceLine, what, name string, table map[string]uint8) (uint8, bool) {
	v, ok := table[strings.ToLower(name)]
	if !ok {
		a.errorf(l, name, "unknown %s %q", what, name)
	}
	return v, ok
}

// toTable widens a typed name table for lookup.
func toTable[T ~uint8](m map[string]T) map[string]uint8 {
	out := make(map[string]uint8, len(m))
	for k, v := range m {
		out[k] = uint8(v)
	}
	return out
}

func (a *assembler) jmp(l sourceLine, ops []string, delay uint8) (pio.Instruction, bool) {
	var cond pio.JmpCond
	switch len(ops) {
	case 1:
	case 2:
		c, ok := a.lookup(l, "condition", ops[0], toTable(jmpConds))
		if !ok {
			return nil, false
		}
		cond = pio.JmpCond(c)
		ops = ops[1:]
	default:
		a.errorf(l, "", "jmp takes [condition,] target")
		return nil, false
	}
	addr, ok := a.evalRange(l, "jump target", ops[0], 0, pio.InstructionMemorySize-1)
	return pio.Jmp{Cond: cond, Addr: addr, Delay: delay}, ok
}

func (a *assembler) wait(l sourceLine, args []string, delay uint8) (pio.Instruction, bool) {
	rel := len(args) == 4 && strings.EqualFold(args[3], "rel")
	if rel {
		args = args[:3]
	}
	if len(args) != 3 {
		a.errorf(l, "", "wait takes polarity, source and index")
		return nil, false
	}
	pol, ok := a.evalRange(l, "polarity", args[0], 0, 1)
	if !ok {
		return nil, false
	}
	src, ok := a.lookup(l, "wait source", args[1], toTable(waitSources))
	if !ok {
		return nil, false
	}
	limit := int64(31)
	if pio.WaitSource(src) == pio.WaitIRQ {
		limit = 7
	} else if rel {
		a.errorf(l, "rel", "rel only applies to irq")
		return nil, false
	}
	idx, ok := a.evalRange(l, "index", args[2], 0, limit)
	if rel {
		idx |= 0x10
	}
	return pio.Wait{Polarity: pol == 1, Source: pio.WaitSource(src), Index: idx, Delay: delay}, ok
}

func (a *assembler) shift(l sourceLine, ops []string, delay uint8, in bool) (pio.Instruction, bool) {
	if len(ops) != 2 {
		a.errorf(l, "", "expected source/destination and bit count")
		return nil, false
	}
	n, ok := a.evalRange(l, "bit count", ops[1], 1, 32)
	if !ok {
		return nil, false
	}
	n &= 0x1f
	if in {
		src, ok := a.lookup(l, "in source", ops[0], toTable(inSources))
		return pio.In{Source: pio.InSource(src), BitCount: n, Delay: delay}, ok
	}
	dst, ok := a.lookup(l, "out destination", ops[0], toTable(outDests))
	return pio.Out{Dest: pio.OutDest(dst), BitCount: n, Delay: delay}, ok
}

func (a *assembler) fifo(l sourceLine, mnemonic string, args []string, delay uint8) (pio.Instruction, bool) {
	cond, block := false, true
	condName := "iffull"
	if mnemonic == "pull" {
		condName = "ifempty"
	}
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case condName:
			cond = true
		case "block":
			block = true
		case "noblock":
			block = false
		default:
			a.errorf(l, arg, "unexpected %s operand %q", mnemonic, arg)
			return nil, false
		}
	}
	if mnemonic == "pull" {
		return pio.Pull{IfEmpty: cond, Block: block, Delay: delay}, true
	}
	return pio.Push{IfFull: cond, Block: block, Delay: delay}, true
}

func (a *assembler) mov(l sourceLine, ops []string, delay uint8) (pio.Instruction, bool) {
	if len(ops) != 2 {
		a.errorf(l, "", "mov takes destination and source")
		return nil, false
	}
	dst, ok := a.lookup(l, "mov destination", ops[0], toTable(movDests))
	if !ok {
		return nil, false
	}
	op, src := pio.MovNone, ops[1]
	switch {
	case strings.HasPrefix(src, "!"), strings.HasPrefix(src, "~"):
		op, src = pio.MovInvert, src[1:]
	case strings.HasPrefix(src, "::"):
		op, src = pio.MovBitReverse, src[2:]
	}
	s, ok := a.lookup(l, "mov source", strings.TrimSpace(src), toTable(movSources))
	return pio.Mov{Dest: pio.MovDest(dst), Op: op, Source: pio.MovSource(s), Delay: delay}, ok
}

func (a *assembler) irq(l sourceLine, args []string, delay uint8) (pio.Instruction, bool) {
	var clr, wait bool
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "set", "nowait":
			args = args[1:]
		case "wait":
			wait, args = true, args[1:]
		case "clear":
			clr, args = true, args[1:]
		}
	}
	rel := len(args) == 2 && strings.EqualFold(args[1], "rel")
	if rel {
		args = args[:1]
	}
	if len(args) != 1 {
		a.errorf(l, "", "irq takes [set|nowait|wait|clear] index [rel]")
		return nil, false
	}
	idx, ok := a.evalRange(l, "irq index", args[0], 0, 7)
	if rel {
		idx |= 0x10
	}
	return pio.Irq{Clear: clr, Wait: wait, Index: idx, Delay: delay}, ok
}

func (a *assembler) set(l sourceLine, ops []string, delay uint8) (pio.Instruction, bool) {
	if len(ops) != 2 {
		a.errorf(l, "", "set takes destination and value")
		return nil, false
	}
	dst, ok := a.lookup(l, "set destination", ops[0], toTable(setDests))
	if !ok {
		return nil, false
	}
	v, ok := a.evalRange(l, "set value", ops[1], 0, 31)
	return pio.Set{Dest: pio.SetDest(dst), Data: v, Delay: delay}, ok
}
