// Copyright 2025 Eric G. Suchanek
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/suchanek/personal-agent-sub002/pkg/llms"
	"github.com/suchanek/personal-agent-sub002/pkg/perr"
)

// RegisterCalculatorTool adds the arithmetic evaluator.
func RegisterCalculatorTool(reg *Registry) error {
	return reg.Register(&calculatorTool{})
}

type calculatorTool struct{}

func (t *calculatorTool) Info() Info {
	return Info{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression with + - * / % ^ and parentheses.",
		Kind:        KindBuiltin,
		Parameters: []llms.ToolParameter{
			{Name: "expression", Type: "string", Description: "Expression to evaluate, e.g. (2+3)*4", Required: true},
		},
	}
}

func (t *calculatorTool) Execute(_ context.Context, args map[string]any) (Result, error) {
	expression := stringArg(args, "expression")
	value, err := Evaluate(expression)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	return Result{
		Content: strconv.FormatFloat(value, 'g', -1, 64),
		Data:    map[string]any{"expression": expression, "value": value},
	}, nil
}

// Evaluate computes an infix arithmetic expression via shunting-yard.
func Evaluate(expression string) (float64, error) {
	tokens, err := tokenizeExpr(expression)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, calcErr("empty expression")
	}

	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}
	return evalRPN(rpn)
}

func calcErr(message string) error {
	return perr.New(perr.KindInvalidInput, "Calculator", "Evaluate", message)
}

type exprToken struct {
	op    byte // 0 for numbers
	value float64
}

func tokenizeExpr(expression string) ([]exprToken, error) {
	var tokens []exprToken
	i := 0
	for i < len(expression) {
		ch := expression[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case strings.IndexByte("+-*/%^()", ch) >= 0:
			// A minus after nothing, an operator or '(' is unary.
			if ch == '-' && (len(tokens) == 0 || tokens[len(tokens)-1].op != 0 && tokens[len(tokens)-1].op != ')') {
				tokens = append(tokens, exprToken{op: 'u'})
			} else {
				tokens = append(tokens, exprToken{op: ch})
			}
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(expression) && (expression[j] >= '0' && expression[j] <= '9' || expression[j] == '.') {
				j++
			}
			value, err := strconv.ParseFloat(expression[i:j], 64)
			if err != nil {
				return nil, calcErr("bad number " + expression[i:j])
			}
			tokens = append(tokens, exprToken{value: value})
			i = j
		default:
			return nil, calcErr(fmt.Sprintf("unexpected character %q", ch))
		}
	}
	return tokens, nil
}

var precedence = map[byte]int{'+': 1, '-': 1, '*': 2, '/': 2, '%': 2, '^': 3, 'u': 4}

func toRPN(tokens []exprToken) ([]exprToken, error) {
	var output, stack []exprToken
	for _, token := range tokens {
		switch {
		case token.op == 0:
			output = append(output, token)
		case token.op == '(':
			stack = append(stack, token)
		case token.op == ')':
			for len(stack) > 0 && stack[len(stack)-1].op != '(' {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return nil, calcErr("unbalanced parentheses")
			}
			stack = stack[:len(stack)-1]
		default:
			// '^' and unary minus are right-associative.
			for len(stack) > 0 && stack[len(stack)-1].op != '(' &&
				(precedence[stack[len(stack)-1].op] > precedence[token.op] ||
					precedence[stack[len(stack)-1].op] == precedence[token.op] && token.op != '^' && token.op != 'u') {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, token)
		}
	}
	for len(stack) > 0 {
		if stack[len(stack)-1].op == '(' {
			return nil, calcErr("unbalanced parentheses")
		}
		output = append(output, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return output, nil
}

func evalRPN(rpn []exprToken) (float64, error) {
	var stack []float64
	for _, token := range rpn {
		if token.op == 0 {
			stack = append(stack, token.value)
			continue
		}
		if token.op == 'u' {
			if len(stack) < 1 {
				return 0, calcErr("malformed expression")
			}
			stack[len(stack)-1] = -stack[len(stack)-1]
			continue
		}
		if len(stack) < 2 {
			return 0, calcErr("malformed expression")
		}
		b, a := stack[len(stack)-1], stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var value float64
		switch token.op {
		case '+':
			value = a + b
		case '-':
			value = a - b
		case '*':
			value = a * b
		case '/':
			if b == 0 {
				return 0, calcErr("division by zero")
			}
			value = a / b
		case '%':
			if b == 0 {
				return 0, calcErr("division by zero")
			}
			value = math.Mod(a, b)
		case '^':
			value = math.Pow(a, b)
		}
		stack = append(stack, value)
	}
	if len(stack) != 1 {
		return 0, calcErr("malformed expression")
	}
	return stack[0], nil
}
