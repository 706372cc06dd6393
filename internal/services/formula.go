package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/lotwise/api/internal/domain"
)

var (
	// ErrFormulaInvalid signals an amount formula that cannot be parsed or
	// evaluated within the restricted grammar.
	ErrFormulaInvalid = errors.New("formula eval: invalid formula")
)

// formulaVariables builds the closed vocabulary an amount formula may
// reference. Monetary values are cents.
func formulaVariables(input domain.ScenarioInput) map[string]float64 {
	var tradeValue int64
	for _, trade := range input.TradeIns {
		tradeValue += trade.EstimatedValue
	}
	return map[string]float64{
		"sellingPrice":  float64(input.Deal.SellingPrice),
		"msrp":          float64(input.Deal.MSRP),
		"cashDown":      float64(input.Deal.CashDown),
		"termMonths":    float64(input.Deal.TermMonths),
		"apr":           input.Deal.APR,
		"vehicleWeight": float64(input.Vehicle.WeightPounds),
		"tradeInValue":  float64(tradeValue),
		"tradeInCount":  float64(len(input.TradeIns)),
	}
}

// evaluateFormula parses and evaluates a restricted arithmetic expression:
// numeric literals, whitelisted identifiers, + - * /, unary minus, and
// parentheses. The result is rounded half away from zero to whole cents.
// Any identifier outside the vocabulary, syntax error, or division by zero
// returns ErrFormulaInvalid.
func evaluateFormula(formula string, vars map[string]float64) (int64, error) {
	p := &formulaParser{input: formula, vars: vars}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrFormulaInvalid, p.input[p.pos], p.pos)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrFormulaInvalid)
	}
	return int64(math.Round(value)), nil
}

// formulaParser is a single-pass recursive-descent parser over the grammar
// expr := term (('+'|'-') term)*
// term := factor (('*'|'/') factor)*
// factor := number | ident | '(' expr ')' | '-' factor
type formulaParser struct {
	input string
	pos   int
	vars  map[string]float64
}

func (p *formulaParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value += rhs
		case p.peek() == '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *formulaParser) parseTerm() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '*':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case p.peek() == '/':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrFormulaInvalid)
			}
			value /= rhs
		default:
			return value, nil
		}
	}
}

func (p *formulaParser) parseFactor() (float64, error) {
	p.skipSpaces()
	switch ch := p.peek(); {
	case ch == '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	case ch == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrFormulaInvalid)
		}
		p.pos++
		return value, nil
	case ch >= '0' && ch <= '9' || ch == '.':
		return p.parseNumber()
	case unicode.IsLetter(rune(ch)) || ch == '_':
		return p.parseIdent()
	default:
		return 0, fmt.Errorf("%w: unexpected input at position %d", ErrFormulaInvalid, p.pos)
	}
}

func (p *formulaParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch >= '0' && ch <= '9' || ch == '.' {
			p.pos++
			continue
		}
		break
	}
	literal := p.input[start:p.pos]
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad numeric literal %q", ErrFormulaInvalid, literal)
	}
	return value, nil
}

func (p *formulaParser) parseIdent() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		ch := rune(p.input[p.pos])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			p.pos++
			continue
		}
		break
	}
	name := p.input[start:p.pos]
	value, ok := p.vars[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown identifier %q", ErrFormulaInvalid, name)
	}
	return value, nil
}

func (p *formulaParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *formulaParser) skipSpaces() {
	for p.pos < len(p.input) && strings.ContainsRune(" \t\r\n", rune(p.input[p.pos])) {
		p.pos++
	}
}
