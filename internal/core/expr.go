package core

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
)

// 表达式里的字段名 token，支持中英文字段名和数字
var exprFieldPattern = regexp.MustCompile(`[a-zA-Z0-9_.\p{Han}]+`)

// evaluateMathExpression 把表达式中的字段名替换为行的数值后求值
// 只允许 + - * / 括号和数字字面量，不允许任何动态代码执行
func evaluateMathExpression(expression string, row types.Row) (float64, error) {
	substituted := exprFieldPattern.ReplaceAllStringFunc(expression, func(token string) string {
		// 纯数字字面量原样保留
		if _, err := strconv.ParseFloat(token, 64); err == nil {
			return token
		}

		value, ok := types.ToNumber(row[token])
		if !ok {
			return "0"
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	})

	for _, r := range substituted {
		if !strings.ContainsRune("0123456789+-*/.() ", r) {
			return 0, errors.Errorf("expression contains unsafe character %q: %s", r, substituted)
		}
	}

	p := &exprParser{input: []rune(substituted)}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, errors.Errorf("unexpected character at %d: %s", p.pos, substituted)
	}

	return result, nil
}

// exprParser 递归下降的四则运算解析器
type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}

	return p.input[p.pos]
}

// parseExpr expr = term (('+'|'-') term)*
func (p *exprParser) parseExpr() (float64, error) {
	result, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek() {
		case '+':
			p.pos++
			term, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			result += term
		case '-':
			p.pos++
			term, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			result -= term
		default:
			return result, nil
		}
	}
}

// parseTerm term = factor (('*'|'/') factor)*
func (p *exprParser) parseTerm() (float64, error) {
	result, err := p.parseFactor()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek() {
		case '*':
			p.pos++
			factor, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			result *= factor
		case '/':
			p.pos++
			factor, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if factor == 0 {
				return 0, errors.New("division by zero")
			}
			result /= factor
		default:
			return result, nil
		}
	}
}

// parseFactor factor = number | '(' expr ')' | '-' factor
func (p *exprParser) parseFactor() (float64, error) {
	switch p.peek() {
	case '(':
		p.pos++
		result, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++

		return result, nil
	case '-':
		p.pos++
		factor, err := p.parseFactor()
		if err != nil {
			return 0, err
		}

		return -factor, nil
	}

	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, errors.Errorf("expected number at %d", start)
	}

	value, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return value, nil
}
