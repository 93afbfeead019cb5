/**
 * @description
 * Pure validation helpers for US bank account identifiers. Nothing in this
 * package allocates state or panics; malformed input simply reports invalid.
 */

package bankcheck

import "strings"

const (
	routingNumberLength = 9
	minAccountDigits    = 4
	maxAccountDigits    = 17
)

var routingWeights = [routingNumberLength]int{3, 7, 1, 3, 7, 1, 3, 7, 1}

// BankAccountValidation is the structured outcome of ValidateBankAccount.
type BankAccountValidation struct {
	IsValid            bool     `json:"is_valid"`
	RoutingNumberValid bool     `json:"routing_number_valid"`
	AccountNumberValid bool     `json:"account_number_valid"`
	SupportsACH        bool     `json:"supports_ach"`
	SupportsWire       bool     `json:"supports_wire"`
	RiskFlags          []string `json:"risk_flags"`
}

// ValidateRoutingNumber applies the ABA checksum to a 9-digit routing number.
func ValidateRoutingNumber(routingNumber string) bool {
	if len(routingNumber) != routingNumberLength {
		return false
	}
	sum := 0
	for i := 0; i < routingNumberLength; i++ {
		c := routingNumber[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * routingWeights[i]
	}
	return sum%10 == 0
}

// ValidateAccountNumber accepts 4 to 17 digits once formatting characters are removed.
func ValidateAccountNumber(accountNumber string) bool {
	n := len(digitsOnly(accountNumber))
	return n >= minAccountDigits && n <= maxAccountDigits
}

// ValidateBankAccount combines both checks. Without a bank directory, ACH and
// wire participation follow routing validity.
func ValidateBankAccount(routingNumber, accountNumber string) BankAccountValidation {
	routingValid := ValidateRoutingNumber(routingNumber)
	accountValid := ValidateAccountNumber(accountNumber)
	return BankAccountValidation{
		IsValid:            routingValid && accountValid,
		RoutingNumberValid: routingValid,
		AccountNumberValid: accountValid,
		SupportsACH:        routingValid,
		SupportsWire:       routingValid,
		RiskFlags:          []string{},
	}
}

// MaskAccountNumber renders the last four digits as "****1234".
func MaskAccountNumber(accountNumber string) string {
	digits := digitsOnly(accountNumber)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "****" + digits
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
