package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope supplies the values an expression may reference while a compound
// is being read or written: the fields decoded so far, the two file
// version numbers, and the argument bound at the enclosing field.
type Scope interface {
	// FieldValue returns the numeric value of an already-decoded field.
	FieldValue(name string) (int64, bool)
	Version() uint32
	UserVersion() uint32
	// Arg returns the value of the enclosing field's arg expression.
	Arg() (int64, bool)
}

// ExprError reports an expression that failed to evaluate: a missing
// field reference, division by zero, or a type mismatch.
type ExprError struct {
	Expr string
	Msg  string
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("expr %q: %s", e.Expr, e.Msg)
}

// Expr is a compiled condition or length expression. Compilation happens
// once at schema load; evaluation is pure and allocation-free.
type Expr struct {
	src  string
	root exprNode
	// fieldRefs lists every field name the expression reads, used by the
	// loader to enforce that conditions only look backwards.
	fieldRefs []string
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// FieldRefs returns the field names the expression references.
func (e *Expr) FieldRefs() []string { return e.fieldRefs }

// Eval evaluates the expression. Booleans evaluate to 0 or 1.
func (e *Expr) Eval(scope Scope) (int64, error) {
	v, err := e.root.eval(e, scope)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// EvalBool evaluates the expression as a predicate.
func (e *Expr) EvalBool(scope Scope) (bool, error) {
	v, err := e.Eval(scope)
	return v != 0, err
}

func (e *Expr) fail(format string, args ...any) error {
	return &ExprError{Expr: e.src, Msg: fmt.Sprintf(format, args...)}
}

type exprNode interface {
	eval(e *Expr, scope Scope) (int64, error)
}

type litNode int64

func (n litNode) eval(*Expr, Scope) (int64, error) { return int64(n), nil }

type fieldNode string

func (n fieldNode) eval(e *Expr, scope Scope) (int64, error) {
	v, ok := scope.FieldValue(string(n))
	if !ok {
		return 0, e.fail("field %q has no value in scope", string(n))
	}
	return v, nil
}

type versionNode struct{}

func (versionNode) eval(_ *Expr, scope Scope) (int64, error) {
	return int64(scope.Version()), nil
}

type userVersionNode struct{}

func (userVersionNode) eval(_ *Expr, scope Scope) (int64, error) {
	return int64(scope.UserVersion()), nil
}

type argNode struct{}

func (argNode) eval(e *Expr, scope Scope) (int64, error) {
	v, ok := scope.Arg()
	if !ok {
		return 0, e.fail("arg referenced but no argument bound")
	}
	return v, nil
}

type unaryNode struct {
	op string
	x  exprNode
}

func (n unaryNode) eval(e *Expr, scope Scope) (int64, error) {
	v, err := n.x.eval(e, scope)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "!":
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case "-":
		return -v, nil
	}
	return 0, e.fail("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op   string
	x, y exprNode
}

func (n binaryNode) eval(e *Expr, scope Scope) (int64, error) {
	x, err := n.x.eval(e, scope)
	if err != nil {
		return 0, err
	}
	// Short-circuit before the right side can fail.
	switch n.op {
	case "&&":
		if x == 0 {
			return 0, nil
		}
	case "||":
		if x != 0 {
			return 1, nil
		}
	}
	y, err := n.y.eval(e, scope)
	if err != nil {
		return 0, err
	}
	b2i := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch n.op {
	case "&&", "||":
		return b2i(y != 0), nil
	case "==":
		return b2i(x == y), nil
	case "!=":
		return b2i(x != y), nil
	case "<":
		return b2i(x < y), nil
	case "<=":
		return b2i(x <= y), nil
	case ">":
		return b2i(x > y), nil
	case ">=":
		return b2i(x >= y), nil
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return 0, e.fail("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return 0, e.fail("division by zero")
		}
		return x % y, nil
	}
	return 0, e.fail("unknown operator %q", n.op)
}

// Compile parses src into an expression. consts resolves named values
// (version constants and enum option names) at compile time; field names
// stay symbolic and are looked up in the Scope at evaluation time.
func Compile(src string, consts map[string]uint64) (*Expr, error) {
	p := &exprParser{src: src, consts: consts}
	p.next()
	root, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("expr %q: unexpected %q", src, p.tok.text)
	}
	e := &Expr{src: src, root: root}
	collectFieldRefs(root, &e.fieldRefs)
	return e, nil
}

func collectFieldRefs(n exprNode, out *[]string) {
	switch t := n.(type) {
	case fieldNode:
		*out = append(*out, string(t))
	case unaryNode:
		collectFieldRefs(t.x, out)
	case binaryNode:
		collectFieldRefs(t.x, out)
		collectFieldRefs(t.y, out)
	}
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	num  int64
}

type exprParser struct {
	src    string
	pos    int
	tok    token
	consts map[string]uint64
	err    error
}

// binding powers, higher binds tighter
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *exprParser) next() {
	if p.err != nil {
		p.tok = token{kind: tokEOF}
		return
	}
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}
	c := p.src[p.pos]
	switch {
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "("}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")"}
	case c >= '0' && c <= '9':
		start := p.pos
		dotted := false
		for p.pos < len(p.src) && (isNumChar(p.src[p.pos]) || p.src[p.pos] == '.') {
			if p.src[p.pos] == '.' {
				dotted = true
			}
			p.pos++
		}
		text := p.src[start:p.pos]
		var v int64
		if dotted {
			packed, err := ParseVersion(text)
			if err != nil {
				p.err = fmt.Errorf("expr %q: %w", p.src, err)
				p.tok = token{kind: tokEOF}
				return
			}
			v = int64(packed)
		} else {
			u, err := strconv.ParseUint(text, 0, 64)
			if err != nil {
				p.err = fmt.Errorf("expr %q: bad number %q", p.src, text)
				p.tok = token{kind: tokEOF}
				return
			}
			v = int64(u)
		}
		p.tok = token{kind: tokNum, text: text, num: v}
	case isIdentStart(c):
		start := p.pos
		for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos]}
	default:
		for _, op := range [...]string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "+", "-", "*", "/", "%"} {
			if strings.HasPrefix(p.src[p.pos:], op) {
				p.pos += len(op)
				p.tok = token{kind: tokOp, text: op}
				return
			}
		}
		p.err = fmt.Errorf("expr %q: unexpected character %q", p.src, string(c))
		p.tok = token{kind: tokEOF}
	}
}

func isNumChar(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' || c == 'x' || c == 'X'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func (p *exprParser) parseBinary(minPrec int) (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		prec, ok := binaryPrec[p.tok.text]
		if !ok || prec < minPrec {
			break
		}
		op := p.tok.text
		p.next()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, x: left, y: right}
	}
	if p.err != nil {
		return nil, p.err
	}
	return left, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if p.tok.kind == tokOp && (p.tok.text == "!" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokNum:
		n := litNode(p.tok.num)
		p.next()
		return n, nil
	case tokIdent:
		name := p.tok.text
		p.next()
		switch name {
		case "version":
			return versionNode{}, nil
		case "user_version":
			return userVersionNode{}, nil
		case "arg":
			return argNode{}, nil
		}
		if v, ok := p.consts[name]; ok {
			return litNode(int64(v)), nil
		}
		return fieldNode(name), nil
	case tokLParen:
		p.next()
		inner, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("expr %q: missing closing parenthesis", p.src)
		}
		p.next()
		return inner, nil
	case tokEOF:
		if p.err != nil {
			return nil, p.err
		}
		return nil, fmt.Errorf("expr %q: unexpected end of expression", p.src)
	default:
		return nil, fmt.Errorf("expr %q: unexpected %q", p.src, p.tok.text)
	}
}
