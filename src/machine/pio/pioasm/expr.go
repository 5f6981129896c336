package pioasm

// This file implements the constant expressions allowed in operands, delays
// and .define: integers, symbols, parentheses, unary - and ~, and the C
// binary operators.

import (
	"fmt"
	"go/scanner"
	"go/token"
	"strconv"
)

var (
	prefixParseFns map[token.Token]func(*tokenizer) (int64, *scanner.Error)
	precedences    = map[token.Token]int{
		token.OR:  precedenceOr,
		token.XOR: precedenceXor,
		token.AND: precedenceAnd,
		token.SHL: precedenceShift,
		token.SHR: precedenceShift,
		token.ADD: precedenceAdd,
		token.SUB: precedenceAdd,
		token.MUL: precedenceMul,
		token.QUO: precedenceMul,
		token.REM: precedenceMul,
	}
)

// See: https://en.cppreference.com/w/c/language/operator_precedence
const (
	precedenceLowest = iota + 1
	precedenceOr
	precedenceXor
	precedenceAnd
	precedenceShift
	precedenceAdd
	precedenceMul
	precedencePrefix
)

func init() {
	// This must be done in an init function to avoid an initialization order
	// failure.
	prefixParseFns = map[token.Token]func(*tokenizer) (int64, *scanner.Error){
		token.IDENT:  parseIdent,
		token.INT:    parseInt,
		token.LPAREN: parseParenExpr,
		token.SUB:    parseUnaryExpr,
		token.TILDE:  parseUnaryExpr,
	}
}

// evalExpr evaluates src. pos is the position of the first character of src
// and symbols holds the values of .define names and labels.
func evalExpr(pos token.Position, src string, symbols map[string]int64) (int64, *scanner.Error) {
	t := newTokenizer(pos, src, symbols)
	v, err := parseExpr(t, precedenceLowest)
	if err != nil {
		return 0, err
	}
	t.Next()
	if t.curToken != token.EOF {
		return 0, &scanner.Error{
			Pos: t.position(t.curOff),
			Msg: "unexpected token " + t.curToken.String() + ", expected end of expression",
		}
	}
	return v, nil
}

func parseExpr(t *tokenizer, precedence int) (int64, *scanner.Error) {
	if t.curToken == token.EOF {
		return 0, &scanner.Error{
			Pos: t.position(t.curOff),
			Msg: "empty expression",
		}
	}
	prefix := prefixParseFns[t.curToken]
	if prefix == nil {
		return 0, &scanner.Error{
			Pos: t.position(t.curOff),
			Msg: fmt.Sprintf("unexpected token %s", t.curToken),
		}
	}
	left, err := prefix(t)
	if err != nil {
		return 0, err
	}

	for t.peekToken != token.EOF && precedence < precedences[t.peekToken] {
		t.Next()
		left, err = parseBinaryExpr(t, left)
		if err != nil {
			return 0, err
		}
	}
	return left, nil
}

func parseIdent(t *tokenizer) (int64, *scanner.Error) {
	v, ok := t.symbols[t.curValue]
	if !ok {
		return 0, &scanner.Error{
			Pos: t.position(t.curOff),
			Msg: "undefined: " + t.curValue,
		}
	}
	return v, nil
}

func parseInt(t *tokenizer) (int64, *scanner.Error) {
	v, err := strconv.ParseInt(t.curValue, 0, 64)
	if err != nil {
		return 0, &scanner.Error{
			Pos: t.position(t.curOff),
			Msg: "invalid number " + t.curValue,
		}
	}
	return v, nil
}

func parseParenExpr(t *tokenizer) (int64, *scanner.Error) {
	t.Next()
	x, err := parseExpr(t, precedenceLowest)
	if err != nil {
		return 0, err
	}
	t.Next()
	if t.curToken != token.RPAREN {
		return 0, unexpectedToken(t, token.RPAREN)
	}
	return x, nil
}

func parseBinaryExpr(t *tokenizer, left int64) (int64, *scanner.Error) {
	op, opOff := t.curToken, t.curOff
	precedence := precedences[op]
	t.Next()
	right, err := parseExpr(t, precedence)
	if err != nil {
		return 0, err
	}
	switch op {
	case token.OR:
		return left | right, nil
	case token.XOR:
		return left ^ right, nil
	case token.AND:
		return left & right, nil
	case token.SHL, token.SHR:
		if right < 0 || right > 63 {
			return 0, &scanner.Error{
				Pos: t.position(opOff),
				Msg: fmt.Sprintf("invalid shift count %d", right),
			}
		}
		if op == token.SHL {
			return left << right, nil
		}
		return left >> right, nil
	case token.ADD:
		return left + right, nil
	case token.SUB:
		return left - right, nil
	case token.MUL:
		return left * right, nil
	case token.QUO, token.REM:
		if right == 0 {
			return 0, &scanner.Error{
				Pos: t.position(opOff),
				Msg: "division by zero",
			}
		}
		if op == token.QUO {
			return left / right, nil
		}
		return left % right, nil
	}
	panic("unreachable")
}

func parseUnaryExpr(t *tokenizer) (int64, *scanner.Error) {
	op := t.curToken
	t.Next()
	x, err := parseExpr(t, precedencePrefix)
	if err != nil {
		return 0, err
	}
	if op == token.TILDE {
		return ^x, nil
	}
	return -x, nil
}

// unexpectedToken returns an error of the form "unexpected token FOO, expected
// BAR".
func unexpectedToken(t *tokenizer, expected token.Token) *scanner.Error {
	return &scanner.Error{
		Pos: t.position(t.curOff),
		Msg: fmt.Sprintf("unexpected token %s, expected %s", t.curToken, expected),
	}
}

// tokenizer splits an expression into Go tokens.
type tokenizer struct {
	pos                 token.Position
	src, buf            string
	symbols             map[string]int64
	curOff, peekOff     int
	curToken, peekToken token.Token
	curValue, peekValue string
}

// newTokenizer initializes a new tokenizer, positioned at the first token in
// the string.
func newTokenizer(pos token.Position, src string, symbols map[string]int64) *tokenizer {
	t := &tokenizer{
		pos:       pos,
		src:       src,
		buf:       src,
		symbols:   symbols,
		peekToken: token.ILLEGAL,
	}
	// Parse the first two tokens (cur and peek).
	t.Next()
	t.Next()
	return t
}

// position returns the source position of byte off of the expression.
func (t *tokenizer) position(off int) token.Position {
	pos := t.pos
	pos.Column += off
	pos.Offset += off
	return pos
}

// Next consumes the next token in the stream. There is no return value, read
// the next token from the offset, token and value properties.
func (t *tokenizer) Next() {
	// The previous peek is now the current token.
	t.curOff = t.peekOff
	t.curToken = t.peekToken
	t.curValue = t.peekValue

	for {
		t.peekOff = len(t.src) - len(t.buf)
		if len(t.buf) == 0 {
			t.peekToken = token.EOF
			t.peekValue = ""
			return
		}
		c := t.buf[0]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			t.buf = t.buf[1:]
		case len(t.buf) >= 2 && (t.buf[:2] == "<<" || t.buf[:2] == ">>"):
			// Two-character tokens.
			t.peekToken = token.SHL
			if c == '>' {
				t.peekToken = token.SHR
			}
			t.peekValue = t.buf[:2]
			t.buf = t.buf[2:]
			return
		case c == '(' || c == ')' || c == '+' || c == '-' || c == '*' || c == '/' || c == '%' || c == '&' || c == '|' || c == '^' || c == '~':
			// Single-character tokens.
			switch c {
			case '(':
				t.peekToken = token.LPAREN
			case ')':
				t.peekToken = token.RPAREN
			case '+':
				t.peekToken = token.ADD
			case '-':
				t.peekToken = token.SUB
			case '*':
				t.peekToken = token.MUL
			case '/':
				t.peekToken = token.QUO
			case '%':
				t.peekToken = token.REM
			case '&':
				t.peekToken = token.AND
			case '|':
				t.peekToken = token.OR
			case '^':
				t.peekToken = token.XOR
			case '~':
				t.peekToken = token.TILDE
			}
			t.peekValue = t.buf[:1]
			t.buf = t.buf[1:]
			return
		case c >= '0' && c <= '9':
			// Numeric constant, including 0x, 0b and 0o prefixes.
			tokenLen := len(t.buf)
			for i, c := range t.buf {
				if !(c >= '0' && c <= '9' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
					tokenLen = i
					break
				}
			}
			t.peekToken = token.INT
			t.peekValue = t.buf[:tokenLen]
			t.buf = t.buf[tokenLen:]
			return
		case c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_':
			// Identifier. Find all remaining tokens that are part of this
			// identifier.
			tokenLen := len(t.buf)
			for i, c := range t.buf {
				if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_') {
					tokenLen = i
					break
				}
			}
			t.peekToken = token.IDENT
			t.peekValue = t.buf[:tokenLen]
			t.buf = t.buf[tokenLen:]
			return
		default:
			t.peekToken = token.ILLEGAL
			t.peekValue = t.buf[:1]
			t.buf = t.buf[1:]
			return
		}
	}
}
