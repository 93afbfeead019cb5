package domain

import "time"

// RuleCondition names the payment attribute a rule inspects.
type RuleCondition string

const (
	ConditionPaymentAmount RuleCondition = "payment_amount"
	ConditionPropertyType  RuleCondition = "property_type"
	ConditionTenantRisk    RuleCondition = "tenant_risk"
	ConditionPaymentMethod RuleCondition = "payment_method"
	ConditionTimeOfDay     RuleCondition = "time_of_day"
)

// Valid reports whether c is a known condition.
func (c RuleCondition) Valid() bool {
	switch c {
	case ConditionPaymentAmount, ConditionPropertyType, ConditionTenantRisk, ConditionPaymentMethod, ConditionTimeOfDay:
		return true
	}
	return false
}

// RuleOperator is the comparison applied by a rule.
type RuleOperator string

const (
	OperatorEquals      RuleOperator = "equals"
	OperatorGreaterThan RuleOperator = "greater_than"
	OperatorLessThan    RuleOperator = "less_than"
	OperatorContains    RuleOperator = "contains"
	OperatorInRange     RuleOperator = "in_range"
)

// Valid reports whether o is a known operator.
func (o RuleOperator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains, OperatorInRange:
		return true
	}
	return false
}

// PaymentMethod is how a tenant paid.
type PaymentMethod string

const (
	PaymentMethodACH   PaymentMethod = "ach"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodWire  PaymentMethod = "wire"
	PaymentMethodCheck PaymentMethod = "check"
	PaymentMethodCash  PaymentMethod = "cash"
)

// RoutingRule is a single predicate within a PaymentRoute. Value holds a number,
// a string, a list, or a two-element [min, max] list depending on Operator.
type RoutingRule struct {
	Condition RuleCondition `json:"condition"`
	Operator  RuleOperator  `json:"operator"`
	Value     any           `json:"value"`
	AccountID string        `json:"account_id,omitempty"`
}

// PaymentRoute directs incoming payments that match all its rules to AccountID.
// Maps to the `payment_routes` table.
type PaymentRoute struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	AccountID      string        `json:"account_id"`
	Rules          []RoutingRule `json:"rules"`
	IsActive       bool          `json:"is_active"`
	Priority       int           `json:"priority"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
