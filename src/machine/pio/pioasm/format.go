package pioasm

import (
	"fmt"
	"strings"

	"github.com/kahara/pioblink/src/machine/pio"
)

// Format writes prog back as assembler source that Assemble accepts. Words
// that do not disassemble to valid syntax are emitted with .word.
func Format(prog pio.Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, ".program %s\n", programName(prog.Name))
	if prog.Origin >= 0 {
		fmt.Fprintf(&b, ".origin %d\n", prog.Origin)
	}
	for i, w := range prog.Code {
		if i == int(prog.WrapTarget) {
			b.WriteString(".wrap_target\n")
		}
		text := pio.Decode(w).String()
		if strings.Contains(text, "?") {
			text = fmt.Sprintf(".word %#04x ; %s", w, text)
		}
		fmt.Fprintf(&b, "    %s\n", text)
		if i == int(prog.Wrap) {
			b.WriteString(".wrap\n")
		}
	}
	return b.String()
}

func programName(name string) string {
	if name == "" || strings.ContainsAny(name, " \t") {
		return "program"
	}
	return name
}
