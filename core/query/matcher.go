package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/asaidimu/go-kente/core/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Matcher evaluates compiled criteria against records. The in-memory
// backend filters with it; it is also useful on its own for checking
// records against a filter tree without a store.
//
// String matching (like, begins-with, ends-with) is case-insensitive, the
// way SQL backends treat LIKE.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a matcher. A nil logger disables logging.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Matches reports whether the record satisfies the criteria. Nil criteria
// match everything.
func (m *Matcher) Matches(record schema.Record, criteria *FilterGroup) (bool, error) {
	if criteria == nil {
		return true, nil
	}
	return m.matchGroup(record, *criteria)
}

func (m *Matcher) matchGroup(record schema.Record, group FilterGroup) (bool, error) {
	switch group.Operator {
	case LogicalAnd:
		for _, cond := range group.Conditions {
			ok, err := m.matchCondition(record, cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		for _, sub := range group.Filters {
			ok, err := m.matchGroup(record, sub)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicalOr:
		for _, cond := range group.Conditions {
			ok, err := m.matchCondition(record, cond)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		for _, sub := range group.Filters {
			ok, err := m.matchGroup(record, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported logical operator %q", group.Operator)
	}
}

func (m *Matcher) matchCondition(record schema.Record, cond Condition) (bool, error) {
	value, present := record[cond.Attribute]

	switch cond.Operator {
	case ComparisonOperatorNull:
		return !present || value == nil, nil
	case ComparisonOperatorNotNull:
		return present && value != nil, nil
	case ComparisonOperatorIn:
		for _, candidate := range cond.Values {
			if ValuesEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case ComparisonOperatorNotIn:
		for _, candidate := range cond.Values {
			if ValuesEqual(value, candidate) {
				return false, nil
			}
		}
		return true, nil
	}

	if len(cond.Values) == 0 {
		return false, fmt.Errorf("operator %q requires a value for attribute %q", cond.Operator, cond.Attribute)
	}
	operand := cond.Values[0]

	switch cond.Operator {
	case ComparisonOperatorEqual:
		return ValuesEqual(value, operand), nil
	case ComparisonOperatorNotEqual:
		return !ValuesEqual(value, operand), nil
	case ComparisonOperatorGreaterThan, ComparisonOperatorGreaterEqual,
		ComparisonOperatorLessThan, ComparisonOperatorLessEqual:
		order, ok := CompareValues(value, operand)
		if !ok {
			m.logger.Debug("incomparable condition values",
				zap.String("attribute", cond.Attribute),
				zap.Any("value", value),
				zap.Any("operand", operand))
			return false, nil
		}
		switch cond.Operator {
		case ComparisonOperatorGreaterThan:
			return order > 0, nil
		case ComparisonOperatorGreaterEqual:
			return order >= 0, nil
		case ComparisonOperatorLessThan:
			return order < 0, nil
		default:
			return order <= 0, nil
		}
	case ComparisonOperatorLike:
		return m.matchLike(value, operand, cond.Attribute)
	case ComparisonOperatorBeginsWith:
		s, p, ok := stringPair(value, operand)
		return ok && strings.HasPrefix(s, p), nil
	case ComparisonOperatorEndsWith:
		s, p, ok := stringPair(value, operand)
		return ok && strings.HasSuffix(s, p), nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", cond.Operator)
	}
}

// matchLike matches SQL-style patterns: "%" spans any run of characters,
// "_" matches exactly one.
func (m *Matcher) matchLike(value, operand any, attribute string) (bool, error) {
	s, pattern, ok := stringPair(value, operand)
	if !ok {
		return false, nil
	}
	re, err := likeToRegexp(pattern)
	if err != nil {
		return false, fmt.Errorf("bad like pattern for attribute %q: %w", attribute, err)
	}
	return re.MatchString(s), nil
}

func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// stringPair lowercases a record value and a pattern operand for
// case-insensitive string matching. Returns false when either is not a
// string.
func stringPair(value, operand any) (string, string, bool) {
	s, sok := value.(string)
	p, pok := operand.(string)
	if !sok || !pok {
		return "", "", false
	}
	return strings.ToLower(s), strings.ToLower(p), true
}

// ValuesEqual compares across the representations records and conditions
// actually hold: any two numerics compare by value, ids compare across
// uuid and string form, times by instant. Backends use it for join
// matching as well.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat64(a); ok {
		bf, bok := toFloat64(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case uuid.UUID:
		switch bv := b.(type) {
		case uuid.UUID:
			return av == bv
		case string:
			parsed, err := uuid.Parse(bv)
			return err == nil && av == parsed
		}
		return false
	case string:
		if bv, ok := b.(uuid.UUID); ok {
			parsed, err := uuid.Parse(av)
			return err == nil && parsed == bv
		}
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two values when they are orderable together:
// numerics by value, strings lexicographically, times chronologically.
func CompareValues(a, b any) (int, bool) {
	if af, ok := toFloat64(a); ok {
		bf, bok := toFloat64(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if at, ok := a.(time.Time); ok {
		bt, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// toFloat64 widens any numeric value for comparison.
func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
