// Package expr implements the infix predicate language of spec component
// 4.C: an expression is a list of tokens compiled by the shunting-yard
// algorithm to postfix and evaluated against a (key, tuple) pair using a
// stack of float64s.
//
// Evaluation is total-by-default-false: a missing feature, a first Prev
// reference, or a division by zero makes Evaluate return ok=false without
// panicking — no exception propagates out of Evaluate, matching spec §4.C /
// §7. The one state Evaluate changes is its PrevStore: every Prev token it
// reaches records the current field value, even when the evaluation then
// fails (which is how a first Prev reference fails once and succeeds on the
// next edge).
//
// Grounded on the teacher's pkg/cypher parser/evaluator split
// (parser.go tokenizes and builds an AST, executor.go walks it); this
// package keeps that tokenize-then-evaluate shape but targets the much
// smaller grammar spec.md describes (arithmetic plus comparisons over
// tuple fields, previous-values and named features) rather than Cypher.
package expr

import (
	"fmt"
	"math"
	"strconv"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
)

func powFloat(a, b float64) float64 { return math.Pow(a, b) }

// Op identifies an infix/postfix operator token.
type Op string

const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpPow Op = "^"
	OpLT  Op = "<"
	OpLE  Op = "<="
	OpGT  Op = ">"
	OpGE  Op = ">="
	OpEQ  Op = "=="
)

// precedence ranks operators for the shunting-yard algorithm; higher binds
// tighter. Comparisons bind loosest, `^` tightest and is right-associative.
var precedence = map[Op]int{
	OpLT: 1, OpLE: 1, OpGT: 1, OpGE: 1, OpEQ: 1,
	OpAdd: 2, OpSub: 2,
	OpMul: 3, OpDiv: 3,
	OpPow: 4,
}

var rightAssoc = map[Op]bool{OpPow: true}

// TokenKind discriminates the kinds of token an expression may contain.
type TokenKind int

const (
	KindNumber TokenKind = iota
	KindField
	KindPrev
	KindFunc
	KindOp
)

// Token is one element of an infix or postfix expression.
type Token struct {
	Kind  TokenKind
	Num   float64
	Field string // for KindField / KindPrev
	Func  FuncSpec
	Op    Op
}

// FuncSpec names a feature-map read: FeatureID identifies the producer,
// Project extracts a float64 from whatever Feature it published.
type FuncSpec struct {
	FeatureID string
	Project   func(feature.Feature) (float64, bool)
}

// Number constructs a numeric literal token.
func Number(v float64) Token { return Token{Kind: KindNumber, Num: v} }

// Field constructs a tuple-field-read token.
func Field(name string) Token { return Token{Kind: KindField, Field: name} }

// Prev constructs a previous-value-of-field token.
func Prev(name string) Token { return Token{Kind: KindPrev, Field: name} }

// Func constructs a feature-map-read token.
func Func(spec FuncSpec) Token { return Token{Kind: KindFunc, Func: spec} }

// OpToken constructs an operator token.
func OpToken(op Op) Token { return Token{Kind: KindOp, Op: op} }

// Expression is a compiled, postfix-ordered token list ready for repeated
// evaluation.
type Expression struct {
	postfix []Token
}

// Compile converts an infix token list to postfix using the shunting-yard
// algorithm. It does not validate field names or feature ids — those are
// resolved lazily at Evaluate time, since a Func token may reference a
// feature that does not yet exist (evaluating to ok=false is the normal,
// expected outcome, not a compile error).
func Compile(infix []Token) (*Expression, error) {
	var output []Token
	var opStack []Token

	popAndAppend := func() {
		n := len(opStack) - 1
		output = append(output, opStack[n])
		opStack = opStack[:n]
	}

	for _, tok := range infix {
		switch tok.Kind {
		case KindNumber, KindField, KindPrev, KindFunc:
			output = append(output, tok)
		case KindOp:
			for len(opStack) > 0 {
				top := opStack[len(opStack)-1]
				if top.Kind != KindOp {
					break
				}
				topPrec, curPrec := precedence[top.Op], precedence[tok.Op]
				if topPrec > curPrec || (topPrec == curPrec && !rightAssoc[tok.Op]) {
					popAndAppend()
					continue
				}
				break
			}
			opStack = append(opStack, tok)
		default:
			return nil, fmt.Errorf("expr: unknown token kind %d", tok.Kind)
		}
	}
	for len(opStack) > 0 {
		popAndAppend()
	}

	return &Expression{postfix: output}, nil
}

// prevStore remembers the last value seen per (key, field) so Prev tokens
// can read it. It is intentionally part of Evaluate's caller-supplied
// state rather than global: each predicate evaluation site owns its own
// PrevStore so unrelated predicates don't interfere with each other's
// notion of "previous".
type PrevStore struct {
	last map[string]float64
}

// NewPrevStore constructs an empty PrevStore.
func NewPrevStore() *PrevStore {
	return &PrevStore{last: make(map[string]float64)}
}

func prevKey(key, field string) string { return key + "\x00" + field }

func (s *PrevStore) get(key, field string) (float64, bool) {
	v, ok := s.last[prevKey(key, field)]
	return v, ok
}

func (s *PrevStore) set(key, field string, v float64) {
	s.last[prevKey(key, field)] = v
}

// Evaluate runs the compiled expression against (key, tuple), reading
// named features from featureMap and previous field values from prevs.
// It returns ok=false if any token fails to evaluate: a missing feature, a
// first-time Prev, or a division by zero. Prev tokens reached before the
// failure have already recorded their current field value in prevs.
func (ex *Expression) Evaluate(key string, e edge.Edge, featureMap *feature.Map, prevs *PrevStore) (result float64, ok bool) {
	var stack []float64

	push := func(v float64) { stack = append(stack, v) }
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		n := len(stack) - 1
		v := stack[n]
		stack = stack[:n]
		return v, true
	}

	for _, tok := range ex.postfix {
		switch tok.Kind {
		case KindNumber:
			push(tok.Num)

		case KindField:
			v, fieldOK := e.Tuple.Float64(tok.Field)
			if !fieldOK {
				return 0, false
			}
			push(v)

		case KindPrev:
			v, had := prevs.get(key, tok.Field)
			cur, curOK := e.Tuple.Float64(tok.Field)
			if curOK {
				prevs.set(key, tok.Field, cur)
			}
			if !had {
				return 0, false
			}
			push(v)

		case KindFunc:
			f, err := featureMap.At(key, tok.Func.FeatureID)
			if err != nil {
				return 0, false
			}
			v, projOK := tok.Func.Project(f)
			if !projOK {
				return 0, false
			}
			push(v)

		case KindOp:
			b, bOK := pop()
			a, aOK := pop()
			if !aOK || !bOK {
				return 0, false
			}
			v, opOK := applyOp(tok.Op, a, b)
			if !opOK {
				return 0, false
			}
			push(v)

		default:
			return 0, false
		}
	}

	if len(stack) != 1 {
		return 0, false
	}
	return stack[0], true
}

func applyOp(op Op, a, b float64) (float64, bool) {
	switch op {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpPow:
		return powFloat(a, b), true
	case OpLT:
		return boolToFloat(a < b), true
	case OpLE:
		return boolToFloat(a <= b), true
	case OpGT:
		return boolToFloat(a > b), true
	case OpGE:
		return boolToFloat(a >= b), true
	case OpEQ:
		return boolToFloat(a == b), true
	default:
		return 0, false
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ParseNumber is a small convenience used by callers building literal
// tokens from configuration strings.
func ParseNumber(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
