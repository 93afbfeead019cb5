package domain

import (
	"reflect"
	"time"
)

// Clone methods return deep copies: no pointer, slice or rule value of the
// result is shared with the receiver.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (p Permission) clone() Permission {
	p.ExpiresAt = clonePtr(p.ExpiresAt)
	return p
}

// Clone returns a deep copy of c.
func (c *BankConnection) Clone() *BankConnection {
	if c == nil {
		return nil
	}
	out := *c
	out.Permissions = Permissions{
		Read:   c.Permissions.Read.clone(),
		Debit:  c.Permissions.Debit.clone(),
		Credit: c.Permissions.Credit.clone(),
	}
	out.DailyLimit = clonePtr(c.DailyLimit)
	out.MonthlyLimit = clonePtr(c.MonthlyLimit)
	out.LastVerifiedAt = clonePtr(c.LastVerifiedAt)
	return &out
}

// Clone returns a deep copy of v, deposits included.
func (v *BankVerification) Clone() *BankVerification {
	if v == nil {
		return nil
	}
	out := *v
	out.CompletedAt = clonePtr(v.CompletedAt)
	if v.MicroDeposits != nil {
		out.MicroDeposits = make([]MicroDeposit, len(v.MicroDeposits))
		for i, d := range v.MicroDeposits {
			d.SentAt = clonePtr(d.SentAt)
			out.MicroDeposits[i] = d
		}
	}
	return &out
}

// Clone returns a deep copy of tx.
func (tx *BankTransaction) Clone() *BankTransaction {
	if tx == nil {
		return nil
	}
	out := *tx
	out.ProcessedAt = clonePtr(tx.ProcessedAt)
	return &out
}

// Clone returns a deep copy of a.
func (a *BusinessBankAccount) Clone() *BusinessBankAccount {
	if a == nil {
		return nil
	}
	out := *a
	out.DailyReceiveLimit = clonePtr(a.DailyReceiveLimit)
	out.MonthlyReceiveLimit = clonePtr(a.MonthlyReceiveLimit)
	out.ProcessingSchedule.DebitDays = append([]time.Weekday(nil), a.ProcessingSchedule.DebitDays...)
	out.ProcessingSchedule.CreditDays = append([]time.Weekday(nil), a.ProcessingSchedule.CreditDays...)
	out.ProcessingSchedule.Holidays = append([]string(nil), a.ProcessingSchedule.Holidays...)
	return &out
}

// Clone returns a deep copy of r, rule values included.
func (r *PaymentRoute) Clone() *PaymentRoute {
	if r == nil {
		return nil
	}
	out := *r
	if r.Rules != nil {
		out.Rules = make([]RoutingRule, len(r.Rules))
		for i, rule := range r.Rules {
			rule.Value = cloneValue(rule.Value)
			out.Rules[i] = rule
		}
	}
	return &out
}

// cloneValue copies slices and maps inside a decoded rule value. Scalars are
// returned as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
