// Package expr evaluates the boolean condition expressions attached to
// alerts. Expressions reference condition aliases as variables and combine
// them with !, && and || plus parentheses, e.g. "latency || (errors && !warmup)".
package expr

import (
	"fmt"
	"strings"

	"github.com/pulseapm/alert-engine/pkg/models"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNot
	tokenAnd
	tokenOr
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
}

// operator precedence: unary NOT binds tightest, AND over OR. Parenthesized
// groups are reduced eagerly when the closing parenthesis is read.
func precedence(op tokenKind) int {
	switch op {
	case tokenNot:
		return 3
	case tokenAnd:
		return 2
	case tokenOr:
		return 1
	}
	return 0
}

// Evaluate evaluates a boolean expression over named boolean variables using
// an operand stack and an operator stack. An empty or whitespace-only
// expression evaluates to false. Variables absent from the map evaluate to
// false, never to an error. A malformed expression (unbalanced parentheses,
// dangling operator, unexpected character) returns an error wrapping
// models.ErrExpressionParse.
func Evaluate(expression string, variables map[string]bool) (bool, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, nil
	}

	var operands []bool
	var ops []tokenKind

	applyTop := func() error {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		switch op {
		case tokenNot:
			if len(operands) < 1 {
				return fmt.Errorf("%w: operator ! has no operand", models.ErrExpressionParse)
			}
			operands[len(operands)-1] = !operands[len(operands)-1]
		case tokenAnd, tokenOr:
			if len(operands) < 2 {
				return fmt.Errorf("%w: binary operator is missing an operand", models.ErrExpressionParse)
			}
			right := operands[len(operands)-1]
			left := operands[len(operands)-2]
			operands = operands[:len(operands)-1]
			if op == tokenAnd {
				operands[len(operands)-1] = left && right
			} else {
				operands[len(operands)-1] = left || right
			}
		default:
			return fmt.Errorf("%w: unexpected operator on stack", models.ErrExpressionParse)
		}
		return nil
	}

	for _, tok := range tokens {
		switch tok.kind {
		case tokenIdent:
			operands = append(operands, variables[tok.text])
		case tokenNot, tokenLParen:
			ops = append(ops, tok.kind)
		case tokenAnd, tokenOr:
			for len(ops) > 0 && ops[len(ops)-1] != tokenLParen && precedence(ops[len(ops)-1]) >= precedence(tok.kind) {
				if err := applyTop(); err != nil {
					return false, err
				}
			}
			ops = append(ops, tok.kind)
		case tokenRParen:
			for len(ops) > 0 && ops[len(ops)-1] != tokenLParen {
				if err := applyTop(); err != nil {
					return false, err
				}
			}
			if len(ops) == 0 {
				return false, fmt.Errorf("%w: unbalanced closing parenthesis", models.ErrExpressionParse)
			}
			ops = ops[:len(ops)-1] // discard the (
			// reduce any NOT that was pending on the group
			for len(ops) > 0 && ops[len(ops)-1] == tokenNot {
				if err := applyTop(); err != nil {
					return false, err
				}
			}
		}
	}

	for len(ops) > 0 {
		if ops[len(ops)-1] == tokenLParen {
			return false, fmt.Errorf("%w: unbalanced opening parenthesis", models.ErrExpressionParse)
		}
		if err := applyTop(); err != nil {
			return false, err
		}
	}

	if len(operands) != 1 {
		return false, fmt.Errorf("%w: expression does not reduce to a single value", models.ErrExpressionParse)
	}
	return operands[0], nil
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func tokenize(expression string) ([]token, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	var tokens []token
	for i := 0; i < len(expression); {
		c := expression[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen})
			i++
		case c == '!':
			tokens = append(tokens, token{kind: tokenNot})
			i++
		case c == '&':
			if i+1 >= len(expression) || expression[i+1] != '&' {
				return nil, fmt.Errorf("%w: single '&' at position %d", models.ErrExpressionParse, i)
			}
			tokens = append(tokens, token{kind: tokenAnd})
			i += 2
		case c == '|':
			if i+1 >= len(expression) || expression[i+1] != '|' {
				return nil, fmt.Errorf("%w: single '|' at position %d", models.ErrExpressionParse, i)
			}
			tokens = append(tokens, token{kind: tokenOr})
			i += 2
		case isIdentChar(c):
			start := i
			for i < len(expression) && isIdentChar(expression[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: expression[start:i]})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", models.ErrExpressionParse, c, i)
		}
	}
	return tokens, nil
}
