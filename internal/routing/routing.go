/**
 * @description
 * Priority-ordered rule evaluation that picks the business account receiving an
 * incoming payment. The engine is pure: it reads the routes it is given and
 * never falls back to a default account on its own.
 *
 * @notes
 * - Only active routes are considered, in ascending priority order. Ties keep
 *   the caller's order.
 * - A route without rules is a catch-all. Otherwise every rule must match.
 * - Unset context values, unknown conditions/operators and type mismatches all
 *   fail closed.
 */

package routing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/transfa/banklink-service/internal/domain"
)

// PaymentContext carries the attributes rules can inspect. Empty strings and
// nil pointers mean the attribute is unknown.
type PaymentContext struct {
	AmountCents   int64                `json:"amount"`
	PropertyType  string               `json:"property_type,omitempty"`
	TenantRisk    *int64               `json:"tenant_risk,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	TimeOfDay     *int64               `json:"time_of_day,omitempty"` // hour, 0-23
}

// ResolveAccount returns the target account of the first matching active route.
// The boolean is false when nothing matched.
func ResolveAccount(routes []domain.PaymentRoute, ctx PaymentContext) (string, bool) {
	for _, route := range Ordered(routes) {
		if !RouteMatches(route, ctx) {
			continue
		}
		if accountID := targetAccount(route); accountID != "" {
			return accountID, true
		}
	}
	return "", false
}

// Ordered returns the active routes sorted by ascending priority.
func Ordered(routes []domain.PaymentRoute) []domain.PaymentRoute {
	active := make([]domain.PaymentRoute, 0, len(routes))
	for _, r := range routes {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

// RouteMatches reports whether every rule of route matches ctx.
func RouteMatches(route domain.PaymentRoute, ctx PaymentContext) bool {
	for _, rule := range route.Rules {
		if !RuleMatches(rule, ctx) {
			return false
		}
	}
	return true
}

func targetAccount(route domain.PaymentRoute) string {
	if route.AccountID != "" {
		return route.AccountID
	}
	for _, rule := range route.Rules {
		if rule.AccountID != "" {
			return rule.AccountID
		}
	}
	return ""
}

// contextValue is the resolved attribute a rule compares against.
type contextValue struct {
	num   float64
	str   string
	isNum bool
	set   bool
}

func resolve(cond domain.RuleCondition, ctx PaymentContext) contextValue {
	switch cond {
	case domain.ConditionPaymentAmount:
		return contextValue{num: float64(ctx.AmountCents), isNum: true, set: true}
	case domain.ConditionPropertyType:
		return contextValue{str: ctx.PropertyType, set: ctx.PropertyType != ""}
	case domain.ConditionTenantRisk:
		if ctx.TenantRisk == nil {
			return contextValue{}
		}
		return contextValue{num: float64(*ctx.TenantRisk), isNum: true, set: true}
	case domain.ConditionPaymentMethod:
		return contextValue{str: string(ctx.PaymentMethod), set: ctx.PaymentMethod != ""}
	case domain.ConditionTimeOfDay:
		if ctx.TimeOfDay == nil {
			return contextValue{}
		}
		return contextValue{num: float64(*ctx.TimeOfDay), isNum: true, set: true}
	}
	return contextValue{}
}

// RuleMatches evaluates a single rule against ctx.
func RuleMatches(rule domain.RoutingRule, ctx PaymentContext) bool {
	actual := resolve(rule.Condition, ctx)
	if !actual.set {
		return false
	}

	switch rule.Operator {
	case domain.OperatorEquals:
		return equalsValue(actual, rule.Value)
	case domain.OperatorGreaterThan:
		want, ok := toNumber(rule.Value)
		return ok && actual.isNum && actual.num > want
	case domain.OperatorLessThan:
		want, ok := toNumber(rule.Value)
		return ok && actual.isNum && actual.num < want
	case domain.OperatorContains:
		if s, ok := rule.Value.(string); ok {
			return !actual.isNum && strings.Contains(actual.str, s)
		}
		items, ok := toList(rule.Value)
		if !ok {
			return false
		}
		for _, item := range items {
			if equalsValue(actual, item) {
				return true
			}
		}
		return false
	case domain.OperatorInRange:
		items, ok := toList(rule.Value)
		if !ok || len(items) != 2 || !actual.isNum {
			return false
		}
		lo, okLo := toNumber(items[0])
		hi, okHi := toNumber(items[1])
		return okLo && okHi && actual.num >= lo && actual.num <= hi
	}
	return false
}

func equalsValue(actual contextValue, value any) bool {
	if actual.isNum {
		want, ok := toNumber(value)
		return ok && actual.num == want
	}
	switch v := value.(type) {
	case string:
		return actual.str == v
	case domain.PaymentMethod:
		return actual.str == string(v)
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// ValidateRule rejects rules that could never be evaluated meaningfully.
func ValidateRule(rule domain.RoutingRule) error {
	if !rule.Condition.Valid() {
		return domain.NewValidationError("rule.condition", fmt.Sprintf("unknown condition %q", rule.Condition))
	}
	if !rule.Operator.Valid() {
		return domain.NewValidationError("rule.operator", fmt.Sprintf("unknown operator %q", rule.Operator))
	}
	switch rule.Operator {
	case domain.OperatorGreaterThan, domain.OperatorLessThan:
		if _, ok := toNumber(rule.Value); !ok {
			return domain.NewValidationError("rule.value", "numeric comparison requires a number")
		}
	case domain.OperatorInRange:
		items, ok := toList(rule.Value)
		if !ok || len(items) != 2 {
			return domain.NewValidationError("rule.value", "in_range requires [min, max]")
		}
		lo, okLo := toNumber(items[0])
		hi, okHi := toNumber(items[1])
		if !okLo || !okHi || lo > hi {
			return domain.NewValidationError("rule.value", "in_range bounds must be numbers with min <= max")
		}
	case domain.OperatorEquals, domain.OperatorContains:
		if rule.Value == nil {
			return domain.NewValidationError("rule.value", "value is required")
		}
	}
	return nil
}

// ValidateRoute checks the route's own fields and every rule.
func ValidateRoute(route domain.PaymentRoute) error {
	if strings.TrimSpace(route.Name) == "" {
		return domain.NewValidationError("name", "is required")
	}
	if targetAccount(route) == "" {
		return domain.NewValidationError("account_id", "is required")
	}
	for _, rule := range route.Rules {
		if err := ValidateRule(rule); err != nil {
			return err
		}
	}
	return nil
}
