package domain

import "time"

// FeeSchedule lists the flat fees charged on a business account, all in cents.
type FeeSchedule struct {
	ACHReceive         int64 `json:"ach_receive"`
	ACHSend            int64 `json:"ach_send"`
	WireReceive        int64 `json:"wire_receive"`
	WireSend           int64 `json:"wire_send"`
	MonthlyMaintenance int64 `json:"monthly_maintenance"`
	Overdraft          int64 `json:"overdraft"`
}

// ProcessingSchedule describes when a business account moves money.
type ProcessingSchedule struct {
	DebitDays  []time.Weekday `json:"debit_days"`
	CreditDays []time.Weekday `json:"credit_days"`
	CutoffTime string         `json:"cutoff_time"` // HH:MM in Timezone
	Timezone   string         `json:"timezone"`
	Holidays   []string       `json:"holidays"` // YYYY-MM-DD

	// ObserveFederalHolidays also closes the observed US federal holidays.
	ObserveFederalHolidays bool `json:"observe_federal_holidays"`
}

// BusinessBankAccount is an organization's receiving/sending account.
// Maps to the `business_bank_accounts` table.
type BusinessBankAccount struct {
	ID                  string             `json:"id"`
	OrganizationID      string             `json:"organization_id"`
	BankName            string             `json:"bank_name"`
	AccountType         AccountType        `json:"account_type"`
	AccountMask         string             `json:"account_mask"`
	RoutingMask         string             `json:"routing_mask"`
	BusinessName        string             `json:"business_name"`
	EINMask             string             `json:"ein_mask,omitempty"`
	IsVerified          bool               `json:"is_verified"`
	IsPrimary           bool               `json:"is_primary"`
	CanReceivePayments  bool               `json:"can_receive_payments"`
	CanSendPayments     bool               `json:"can_send_payments"`
	DailyReceiveLimit   *int64             `json:"daily_receive_limit,omitempty"`
	MonthlyReceiveLimit *int64             `json:"monthly_receive_limit,omitempty"`
	Fees                FeeSchedule        `json:"fees"`
	ProcessingSchedule  ProcessingSchedule `json:"processing_schedule"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
