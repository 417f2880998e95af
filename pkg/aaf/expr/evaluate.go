package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is matched by every parse error.
var ErrSyntax = errors.New("expression syntax error")

// SyntaxError reports where parsing failed.
type SyntaxError struct {
	Pos int
	Msg string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expr: %s at offset %d", e.Msg, e.Pos)
}

// Is matches ErrSyntax.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// BinaryOp is a custom comparison operator.
type BinaryOp func(left, right any) bool

// Evaluator compiles expressions with optional custom operators.
type Evaluator struct {
	customOps map[string]BinaryOp
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a word operator such as "matches". Built-in
// operator names cannot be overridden.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if fn == nil || comparisonOps[name] || isKeyword(name) {
			return
		}
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

func isKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "and", "or", "not", "contains", "true", "false", "null", "nil":
		return true
	}
	return false
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program is a compiled expression. It is immutable and safe for
// concurrent use.
type Program struct {
	source string
	root   node
}

// Compile parses src.
func (e *Evaluator) Compile(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, custom: e.customOps}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
	}
	return &Program{source: src, root: root}, nil
}

// Evaluate compiles and evaluates src against vars.
func (e *Evaluator) Evaluate(src string, vars map[string]any) (bool, error) {
	p, err := e.Compile(src)
	if err != nil {
		return false, err
	}
	return p.Eval(vars)
}

// Compile parses src with the default evaluator.
func Compile(src string) (*Program, error) {
	return New().Compile(src)
}

// MustCompile is Compile that panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval compiles and evaluates src with the default evaluator.
func Eval(src string, vars map[string]any) (bool, error) {
	return New().Evaluate(src, vars)
}

// String returns the source text.
func (p *Program) String() string { return p.source }

// Eval evaluates the program and reports the truthiness of the result.
func (p *Program) Eval(vars map[string]any) (bool, error) {
	v, err := p.root.eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.source, err)
	}
	return IsTruthy(v), nil
}

// Value evaluates the program and returns the raw result.
func (p *Program) Value(vars map[string]any) (any, error) {
	return p.root.eval(vars)
}

func (l literal) eval(map[string]any) (any, error) { return l.value, nil }

func (id ident) eval(vars map[string]any) (any, error) {
	return Lookup(vars, id.path), nil
}

func (n not) eval(vars map[string]any) (any, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	return !IsTruthy(v), nil
}

func (l logical) eval(vars map[string]any) (any, error) {
	left, err := l.left.eval(vars)
	if err != nil {
		return nil, err
	}
	lt := IsTruthy(left)
	if l.and && !lt {
		return false, nil
	}
	if !l.and && lt {
		return true, nil
	}
	right, err := l.right.eval(vars)
	if err != nil {
		return nil, err
	}
	return IsTruthy(right), nil
}

func (b binary) eval(vars map[string]any) (any, error) {
	left, err := b.left.eval(vars)
	if err != nil {
		return nil, err
	}
	right, err := b.right.eval(vars)
	if err != nil {
		return nil, err
	}
	if b.custom != nil {
		return b.custom(left, right), nil
	}
	return Compare(left, right, b.op)
}
