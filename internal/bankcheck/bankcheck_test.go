package bankcheck

import (
	"fmt"
	"testing"
)

func referenceChecksum(s string) bool {
	if len(s) != 9 {
		return false
	}
	d := make([]int, 9)
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		d[i] = int(r - '0')
	}
	total := 3*(d[0]+d[3]+d[6]) + 7*(d[1]+d[4]+d[7]) + (d[2] + d[5] + d[8])
	return total%10 == 0
}

func TestValidateRoutingNumber(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"021000021", true},
		{"011000015", true},
		{"123456789", false},
		{"02100002", false},
		{"0210000210", false},
		{"02100002a", false},
		{"", false},
		{"021-00002", false},
		{"０21000021", false},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ValidateRoutingNumber(tc.input); got != tc.want {
				t.Fatalf("expected %v for %q, got %v", tc.want, tc.input, got)
			}
		})
	}
}

func TestValidateRoutingNumber_MatchesReferenceChecksum(t *testing.T) {
	for n := 0; n < 1_000_000_000; n += 7_919_993 {
		s := fmt.Sprintf("%09d", n)
		if got, want := ValidateRoutingNumber(s), referenceChecksum(s); got != want {
			t.Fatalf("checksum mismatch for %s: got %v want %v", s, got, want)
		}
	}
}

func TestValidateAccountNumber(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"123", false},
		{"1234", true},
		{"12-34", true},
		{"1234 5678 9012 3456 7", true},
		{"123456789012345678", false},
		{"abcd", false},
	}

	for _, tc := range cases {
		if got := ValidateAccountNumber(tc.input); got != tc.want {
			t.Fatalf("expected %v for %q, got %v", tc.want, tc.input, got)
		}
	}
}

func TestValidateBankAccount(t *testing.T) {
	result := ValidateBankAccount("021000021", "000123456789")
	if !result.IsValid || !result.SupportsACH || !result.SupportsWire {
		t.Fatalf("expected valid ACH/wire account, got %+v", result)
	}
	if result.RiskFlags == nil || len(result.RiskFlags) != 0 {
		t.Fatalf("expected empty risk flags, got %v", result.RiskFlags)
	}

	result = ValidateBankAccount("123456789", "000123456789")
	if result.IsValid || result.RoutingNumberValid || result.SupportsACH {
		t.Fatalf("expected invalid routing to disable ACH, got %+v", result)
	}
	if !result.AccountNumberValid {
		t.Fatal("expected account number to be valid independently")
	}
}

func TestMaskAccountNumber(t *testing.T) {
	if got := MaskAccountNumber("0001-2345-6789"); got != "****6789" {
		t.Fatalf("expected ****6789, got %q", got)
	}
	if got := MaskAccountNumber("12"); got != "****12" {
		t.Fatalf("expected ****12, got %q", got)
	}
}
