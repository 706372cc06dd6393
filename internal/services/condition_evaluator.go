package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lotwise/api/internal/domain"
)

var (
	// ErrConditionMalformed signals a condition tree the evaluator cannot interpret,
	// such as an unknown operator or a comparison between incompatible types.
	ErrConditionMalformed = errors.New("condition eval: malformed condition")
)

// ConditionEvaluator evaluates rule condition trees against a flattened
// scenario value map. It is stateless and safe for concurrent use.
type ConditionEvaluator struct{}

// NewConditionEvaluator constructs a ConditionEvaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// ScenarioValues flattens a scenario into the value map condition variables
// resolve against. Derived aggregates (trade-in count, total trade equity
// value, financing flags) are exposed as top-level keys so rules do not need
// to restate the arithmetic.
func ScenarioValues(input domain.ScenarioInput) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("scenario values: marshal: %w", err)
	}
	values := map[string]any{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("scenario values: unmarshal: %w", err)
	}

	var tradeValue int64
	for _, trade := range input.TradeIns {
		tradeValue += trade.EstimatedValue
	}
	values["hasTradeIn"] = input.HasTradeIn()
	values["isFinanced"] = input.IsFinanced()
	values["tradeInCount"] = float64(len(input.TradeIns))
	values["tradeInValue"] = float64(tradeValue)
	return values, nil
}

// Evaluate walks the condition tree and reports whether it matches the given
// values. A nil condition matches unconditionally. Variables that resolve to
// no value are undefined: undefined compares equal only to an explicit null,
// every ordered comparison against undefined is false, and an undefined list
// has length zero. Structural problems return ErrConditionMalformed so the
// caller can treat the owning rule as non-matching.
func (e *ConditionEvaluator) Evaluate(cond *domain.Condition, values map[string]any) (bool, error) {
	if cond == nil {
		return true, nil
	}
	return e.eval(*cond, values, 0)
}

const maxConditionDepth = 32

func (e *ConditionEvaluator) eval(cond domain.Condition, values map[string]any, depth int) (bool, error) {
	if depth > maxConditionDepth {
		return false, fmt.Errorf("%w: tree deeper than %d levels", ErrConditionMalformed, maxConditionDepth)
	}

	switch cond.Op {
	case domain.ConditionOpAnd:
		if len(cond.Args) == 0 {
			return false, fmt.Errorf("%w: and requires at least one argument", ErrConditionMalformed)
		}
		for _, arg := range cond.Args {
			ok, err := e.eval(arg, values, depth+1)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case domain.ConditionOpOr:
		if len(cond.Args) == 0 {
			return false, fmt.Errorf("%w: or requires at least one argument", ErrConditionMalformed)
		}
		for _, arg := range cond.Args {
			ok, err := e.eval(arg, values, depth+1)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case domain.ConditionOpNot:
		if len(cond.Args) != 1 {
			return false, fmt.Errorf("%w: not requires exactly one argument", ErrConditionMalformed)
		}
		ok, err := e.eval(cond.Args[0], values, depth+1)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case domain.ConditionOpEq, domain.ConditionOpNe:
		left, leftDefined, err := resolveOperand(cond.Left, values)
		if err != nil {
			return false, err
		}
		right, rightDefined, err := resolveOperand(cond.Right, values)
		if err != nil {
			return false, err
		}
		equal := valuesEqual(left, leftDefined, right, rightDefined)
		if cond.Op == domain.ConditionOpNe {
			return !equal, nil
		}
		return equal, nil
	case domain.ConditionOpGt, domain.ConditionOpGte, domain.ConditionOpLt, domain.ConditionOpLte:
		left, leftDefined, err := resolveOperand(cond.Left, values)
		if err != nil {
			return false, err
		}
		right, rightDefined, err := resolveOperand(cond.Right, values)
		if err != nil {
			return false, err
		}
		if !leftDefined || !rightDefined {
			return false, nil
		}
		lhs, lok := asNumber(left)
		rhs, rok := asNumber(right)
		if !lok || !rok {
			return false, fmt.Errorf("%w: %s requires numeric operands", ErrConditionMalformed, cond.Op)
		}
		switch cond.Op {
		case domain.ConditionOpGt:
			return lhs > rhs, nil
		case domain.ConditionOpGte:
			return lhs >= rhs, nil
		case domain.ConditionOpLt:
			return lhs < rhs, nil
		default:
			return lhs <= rhs, nil
		}
	case domain.ConditionOpLenGt, domain.ConditionOpLenGte, domain.ConditionOpLenEq:
		left, leftDefined, err := resolveOperand(cond.Left, values)
		if err != nil {
			return false, err
		}
		length := 0
		if leftDefined {
			length, err = lengthOf(left)
			if err != nil {
				return false, err
			}
		}
		right, rightDefined, err := resolveOperand(cond.Right, values)
		if err != nil {
			return false, err
		}
		if !rightDefined {
			return false, fmt.Errorf("%w: %s requires a numeric right operand", ErrConditionMalformed, cond.Op)
		}
		want, ok := asNumber(right)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a numeric right operand", ErrConditionMalformed, cond.Op)
		}
		switch cond.Op {
		case domain.ConditionOpLenGt:
			return float64(length) > want, nil
		case domain.ConditionOpLenGte:
			return float64(length) >= want, nil
		default:
			return float64(length) == want, nil
		}
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrConditionMalformed, cond.Op)
	}
}

// resolveOperand returns the operand value and whether it is defined. A nil
// operand is malformed; a literal is always defined; a variable reference is
// defined only when the dotted path resolves.
func resolveOperand(op *domain.Operand, values map[string]any) (any, bool, error) {
	if op == nil {
		return nil, false, fmt.Errorf("%w: comparison operand missing", ErrConditionMalformed)
	}
	if path := strings.TrimSpace(op.Var); path != "" {
		value, ok := lookupPath(values, path)
		return value, ok, nil
	}
	return op.Value, true, nil
}

// lookupPath resolves a dotted path against nested maps.
func lookupPath(values map[string]any, path string) (any, bool) {
	var current any = values
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valuesEqual(left any, leftDefined bool, right any, rightDefined bool) bool {
	if !leftDefined || !rightDefined {
		// An undefined side only equals an explicit null on the other.
		if leftDefined {
			return left == nil
		}
		if rightDefined {
			return right == nil
		}
		return true
	}
	if lhs, ok := asNumber(left); ok {
		rhs, rok := asNumber(right)
		return rok && lhs == rhs
	}
	switch lhs := left.(type) {
	case string:
		rhs, ok := right.(string)
		return ok && lhs == rhs
	case bool:
		rhs, ok := right.(bool)
		return ok && lhs == rhs
	case nil:
		return right == nil
	default:
		return false
	}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func lengthOf(value any) (int, error) {
	switch v := value.(type) {
	case []any:
		return len(v), nil
	case string:
		return len(v), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: length requires a list or string operand", ErrConditionMalformed)
	}
}
